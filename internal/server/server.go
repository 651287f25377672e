// Package server exposes the HTTP API: auth, profiles, shelves, match
// discovery, discussion spaces with calls, vendor webhooks and cron hooks.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bookworm/internal/app"
	"bookworm/internal/call"
	"bookworm/internal/call/provider"
	"bookworm/internal/match"
	"bookworm/internal/quota"
	"bookworm/internal/ratelimit"
	"bookworm/internal/util"
	"bookworm/internal/webhook"
	"bookworm/pkg/auth"
	"bookworm/pkg/domain"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App        *app.App
	Matches    *match.Engine
	Calls      *call.Manager
	Quota      *quota.Tracker
	Webhooks   *webhook.Normalizer
	CronSecret string

	// Optional limiters; nil disables the check.
	AuthLimiter    *ratelimit.FixedWindowLimiter
	MatchLimiter   *ratelimit.FixedWindowLimiter
	WebhookLimiter *ratelimit.FixedWindowLimiter

	TrustedProxies *util.TrustedProxies
}

// Server routes requests to the application subsystems.
type Server struct {
	app        *app.App
	matches    *match.Engine
	calls      *call.Manager
	quota      *quota.Tracker
	webhooks   *webhook.Normalizer
	cronSecret string

	authLimiter    *ratelimit.FixedWindowLimiter
	matchLimiter   *ratelimit.FixedWindowLimiter
	webhookLimiter *ratelimit.FixedWindowLimiter
	trustedProxies *util.TrustedProxies

	mux *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		matches:        cfg.Matches,
		calls:          cfg.Calls,
		quota:          cfg.Quota,
		webhooks:       cfg.Webhooks,
		cronSecret:     cfg.CronSecret,
		authLimiter:    cfg.AuthLimiter,
		matchLimiter:   cfg.MatchLimiter,
		webhookLimiter: cfg.WebhookLimiter,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler wrapped with the shared middleware.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithSecurityHeaders(h)
	h = util.WithCORS(h)
	h = util.WithRequestLog("api", h)
	h = util.WithRequestID(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/api/auth/signup", s.limited(s.authLimiter, s.handleSignup))
	s.mux.HandleFunc("/api/auth/login", s.limited(s.authLimiter, s.handleLogin))
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)

	// profile and shelf
	s.mux.Handle("/api/users/me", s.authenticated(s.handleMe))
	s.mux.Handle("/api/users/me/profile", s.authenticated(s.handleProfile))
	s.mux.Handle("/api/users/me/avatar", s.authenticated(s.handleAvatar))
	s.mux.Handle("/api/users/me/books", s.authenticated(s.handleShelf))
	s.mux.Handle("/api/users/me/books/", s.authenticated(s.handleShelfEntry))

	// matching
	s.mux.HandleFunc("/api/matches", s.limited(s.matchLimiter, s.authenticated(s.handleMatches).ServeHTTP))
	s.mux.Handle("/api/matches/connections", s.authenticated(s.handleConnections))

	// spaces and calls
	s.mux.Handle("/api/spaces", s.authenticated(s.handleSpaces))
	s.mux.Handle("/api/spaces/", s.authenticated(s.handleSpaceSubtree))

	// vendor webhooks
	s.mux.HandleFunc("/api/webhooks/", s.limited(s.webhookLimiter, s.handleWebhook))

	// cron
	s.mux.HandleFunc("/api/cron/reset-match-quota", s.cronOnly(s.handleCronResetQuota))
	s.mux.HandleFunc("/api/cron/expire-matches", s.cronOnly(s.handleCronExpireMatches))

	// notifications
	s.mux.Handle("/api/notifications", s.authenticated(s.handleNotifications))
	s.mux.Handle("/api/notifications/read", s.authenticated(s.handleNotificationsRead))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ── middleware ──

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok := s.app.UserFromToken(token)
		if !ok {
			s.audit(r, "api.authorize", "fail", "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) limited(limiter *ratelimit.FixedWindowLimiter, next http.HandlerFunc) http.HandlerFunc {
	if limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
		if !limiter.Allow(key) {
			s.audit(r, "api.ratelimit", "fail")
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	}
}

func (s *Server) cronOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		token, ok := bearerToken(r)
		if !ok || s.cronSecret == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.cronSecret)) != 1 {
			s.audit(r, "cron.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// ── auth handlers ──

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.SignUp(req.Email, req.Password, req.Name)
	if err != nil {
		s.audit(r, "auth.signup", "fail", "reason", err.Error())
		s.writeAppError(w, err)
		return
	}
	s.audit(r, "auth.signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.Login(req.Email, req.Password)
	if err != nil {
		s.audit(r, "auth.login", "fail")
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.audit(r, "auth.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── profile handlers ──

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	remaining := -1
	if s.quota != nil {
		if left, err := s.quota.Remaining(user); err == nil {
			remaining = left
		}
	}
	avatarURL, _ := s.app.AvatarURL(r.Context(), user)
	writeJSON(w, http.StatusOK, meResponse{User: user, MatchesLeftToday: remaining, AvatarURL: avatarURL})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		var req profileRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		updated, err := s.app.UpdateProfile(user.ID, app.ProfileUpdate{
			Name:            req.Name,
			Bio:             req.Bio,
			Location:        req.Location,
			FavoriteGenres:  req.FavoriteGenres,
			FavoriteAuthors: req.FavoriteAuthors,
		})
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "avatar file is required")
		return
	}
	defer file.Close()
	updated, err := s.app.UploadAvatar(r.Context(), user.ID, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	url, _ := s.app.AvatarURL(r.Context(), updated)
	writeJSON(w, http.StatusOK, map[string]any{"user": updated, "avatarUrl": url})
}

// ── shelf handlers ──

func (s *Server) handleShelf(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		status := domain.ReadingStatus(strings.ToUpper(r.URL.Query().Get("status")))
		entries, err := s.app.Shelf(user.ID, status)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": entries, "count": len(entries)})
	case http.MethodPost:
		var req shelfRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		entry, err := s.app.AddToShelf(user.ID, req.Title, req.Author, req.CoverURL,
			domain.ReadingStatus(strings.ToUpper(req.Status)), req.Progress)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleShelfEntry(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/users/me/books/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.RemoveFromShelf(user.ID, id); err != nil {
		s.writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── match handlers ──

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		suggestions, err := s.matches.Suggest(r.Context(), user.ID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": suggestions, "count": len(suggestions)})
	case http.MethodPost:
		var req matchActionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		switch strings.ToLower(req.Action) {
		case "like":
			res, err := s.matches.Like(r.Context(), user.ID, req.TargetID, req.Message)
			if err != nil {
				s.writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, matchActionResponse{
				Match: res.Match, IsMutual: res.Mutual, RemainingToday: res.Remaining,
			})
		case "pass":
			res, err := s.matches.Pass(r.Context(), user.ID, req.TargetID)
			if err != nil {
				s.writeAppError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, matchActionResponse{Match: res.Match, RemainingToday: res.Remaining})
		default:
			writeError(w, http.StatusUnprocessableEntity, "action must be like or pass")
		}
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	conns, err := s.matches.Connections(r.Context(), user.ID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": conns, "count": len(conns)})
}

// ── space handlers ──

func (s *Server) handleSpaces(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		spaces, err := s.app.Spaces(0)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": spaces, "count": len(spaces)})
	case http.MethodPost:
		var req spaceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		space, err := s.app.CreateSpace(user.ID, req.Name, req.Description, req.BookID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, space)
	default:
		methodNotAllowed(w)
	}
}

// handleSpaceSubtree routes /api/spaces/{id} and its nested resources.
func (s *Server) handleSpaceSubtree(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/spaces/")
	spaceID, sub, _ := strings.Cut(rest, "/")
	if spaceID == "" {
		http.NotFound(w, r)
		return
	}
	switch sub {
	case "":
		s.handleSpaceByID(w, r, spaceID)
	case "join":
		s.handleSpaceJoin(w, r, user, spaceID)
	case "messages":
		s.handleSpaceMessages(w, r, user, spaceID)
	case "call":
		s.handleSpaceCall(w, r, user, spaceID)
	case "call/token":
		s.handleSpaceCallToken(w, r, user, spaceID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSpaceByID(w http.ResponseWriter, r *http.Request, spaceID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	space, err := s.app.Space(spaceID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, space)
}

func (s *Server) handleSpaceJoin(w http.ResponseWriter, r *http.Request, user domain.User, spaceID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	member, err := s.app.JoinSpace(spaceID, user.ID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (s *Server) handleSpaceMessages(w http.ResponseWriter, r *http.Request, user domain.User, spaceID string) {
	switch r.Method {
	case http.MethodGet:
		msgs, err := s.app.Messages(spaceID, user.ID, 0)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": msgs, "count": len(msgs)})
	case http.MethodPost:
		var req messageRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		msg, err := s.app.PostMessage(spaceID, user.ID, req.Content)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSpaceCall(w http.ResponseWriter, r *http.Request, user domain.User, spaceID string) {
	switch r.Method {
	case http.MethodPost:
		var req startCallRequest
		if r.ContentLength > 0 {
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid JSON body")
				return
			}
		}
		session, err := s.calls.Start(r.Context(), spaceID, user.ID,
			domain.VoipProvider(strings.ToUpper(req.Provider)))
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, session)
	case http.MethodGet:
		session, err := s.calls.Session(r.Context(), spaceID, user.ID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	case http.MethodDelete:
		session, err := s.calls.End(r.Context(), spaceID, user.ID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSpaceCallToken(w http.ResponseWriter, r *http.Request, user domain.User, spaceID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	token, err := s.calls.JoinToken(r.Context(), spaceID, user.ID)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// ── webhook handler ──

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	providerKey := strings.TrimPrefix(r.URL.Path, "/api/webhooks/")
	if providerKey == "" || strings.Contains(providerKey, "/") {
		http.NotFound(w, r)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	result, err := s.webhooks.Handle(r.Context(), providerKey, r.Header, body)
	switch {
	case errors.Is(err, webhook.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, "unknown provider")
	case errors.Is(err, webhook.ErrBadSignature):
		// never reveal which verification step failed
		s.audit(r, "webhook.verify", "fail", "provider", providerKey)
		writeError(w, http.StatusUnauthorized, "invalid signature")
	case errors.Is(err, webhook.ErrBadPayload):
		writeError(w, http.StatusBadRequest, "invalid payload")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// ── cron handlers ──

func (s *Server) handleCronResetQuota(w http.ResponseWriter, r *http.Request) {
	n, err := s.quota.ResetStale()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.audit(r, "cron.reset_match_quota", "success", "reset", n)
	writeJSON(w, http.StatusOK, map[string]int64{"reset": n})
}

func (s *Server) handleCronExpireMatches(w http.ResponseWriter, r *http.Request) {
	n, err := s.matches.ExpirePending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.audit(r, "cron.expire_matches", "success", "expired", n)
	writeJSON(w, http.StatusOK, map[string]int64{"expired": n})
}

// ── notification handlers ──

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	items, err := s.app.Notifications(user.ID, 0)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (s *Server) handleNotificationsRead(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.MarkNotificationsRead(user.ID); err != nil {
		s.writeAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── error mapping ──

func (s *Server) writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrNotSpaceMember),
		errors.Is(err, call.ErrNotMember),
		errors.Is(err, call.ErrNotHost):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrSpaceNotFound),
		errors.Is(err, call.ErrSpaceNotFound),
		errors.Is(err, call.ErrNoActiveCall),
		errors.Is(err, call.ErrSessionClosed),
		errors.Is(err, app.ErrShelfEntryNotFound),
		errors.Is(err, match.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, match.ErrQuotaExhausted):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, match.ErrAlreadyActed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, provider.ErrNotConfigured):
		slog.Error("voip provider unavailable", "error", err)
		writeError(w, http.StatusInternalServerError, "call provider unavailable")
	case errors.Is(err, app.ErrEmailAndPasswordRequired),
		errors.Is(err, app.ErrEmailAlreadyExists),
		errors.Is(err, app.ErrNameRequired),
		errors.Is(err, app.ErrTitleAndAuthorRequired),
		errors.Is(err, app.ErrInvalidReadingStatus),
		errors.Is(err, app.ErrInvalidProgress),
		errors.Is(err, app.ErrSpaceNameRequired),
		errors.Is(err, app.ErrEmptyMessage),
		errors.Is(err, app.ErrAvatarTooLarge),
		errors.Is(err, app.ErrAvatarNotAnImage),
		errors.Is(err, match.ErrSelfMatch),
		errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// ── request/response shapes ──

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type meResponse struct {
	User             domain.User `json:"user"`
	MatchesLeftToday int         `json:"matchesLeftToday"`
	AvatarURL        string      `json:"avatarUrl,omitempty"`
}

type profileRequest struct {
	Name            *string   `json:"name"`
	Bio             *string   `json:"bio"`
	Location        *string   `json:"location"`
	FavoriteGenres  *[]string `json:"favoriteGenres"`
	FavoriteAuthors *[]string `json:"favoriteAuthors"`
}

type shelfRequest struct {
	Title    string `json:"title"`
	Author   string `json:"author"`
	CoverURL string `json:"coverUrl"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}

type matchActionRequest struct {
	TargetID string `json:"targetId"`
	Action   string `json:"action"`
	Message  string `json:"message"`
}

type matchActionResponse struct {
	Match          domain.Match `json:"match"`
	IsMutual       bool         `json:"isMutual"`
	RemainingToday int          `json:"remainingToday"`
}

type spaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	BookID      string `json:"bookId"`
}

type messageRequest struct {
	Content string `json:"content"`
}

type startCallRequest struct {
	Provider string `json:"provider"`
}

// ── helpers ──

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Timeouts for the outer http.Server.
const (
	ReadTimeout  = 10 * time.Second
	WriteTimeout = 30 * time.Second
	IdleTimeout  = 120 * time.Second
)
