// Package match implements candidate discovery, compatibility scoring and the
// like/pass workflow.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"bookworm/internal/quota"
	"bookworm/internal/util"
	"bookworm/pkg/domain"
	"bookworm/pkg/notify"
	"bookworm/pkg/store"
)

const (
	// poolSize caps how many candidates are fetched before scoring.
	poolSize = 50
	// suggestionLimit is how many scored candidates a discovery call returns.
	suggestionLimit = 20
	// pendingTTL is how long a like waits for an answer before expiring.
	pendingTTL = 7 * 24 * time.Hour
)

var (
	ErrQuotaExhausted = errors.New("daily match quota exhausted")
	ErrSelfMatch      = errors.New("cannot match with yourself")
	ErrAlreadyActed   = errors.New("already acted on this user")
	ErrUserNotFound   = errors.New("user not found")
)

// Suggestion is one scored discovery result: the candidate plus the overlap
// that produced the score. Pure projection, nothing is mutated.
type Suggestion struct {
	User              domain.User   `json:"user"`
	Score             int           `json:"score"`
	SharedBooks       []domain.Book `json:"sharedBooks"`
	SharedAuthors     []string      `json:"sharedAuthors"`
	SharedGenres      []string      `json:"sharedGenres"`
	CurrentReads      []domain.Book `json:"currentReads"`
	BooksReadThisYear int           `json:"booksReadThisYear"`
}

// ActResult is the outcome of a like or pass.
type ActResult struct {
	Match     domain.Match `json:"match"`
	Mutual    bool         `json:"mutual"`
	Remaining int          `json:"remainingToday"`
}

// Engine drives match discovery and the directed like/pass state machine.
type Engine struct {
	store   store.Store
	quota   *quota.Tracker
	notify  notify.Publisher
	logger  *slog.Logger
	now     func() time.Time
}

func NewEngine(st store.Store, qt *quota.Tracker, pub notify.Publisher, logger *slog.Logger) *Engine {
	if pub == nil {
		pub = notify.NoopPublisher{}
	}
	return &Engine{store: st, quota: qt, notify: pub, logger: logger, now: time.Now}
}

// Suggest returns up to 20 candidates scored by shared reading taste.
// Candidates the user already acted on, or who already acted on the user,
// are excluded along with the user themselves.
func (e *Engine) Suggest(ctx context.Context, userID string) ([]Suggestion, error) {
	me, ok, err := e.store.GetUserByID(userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return nil, ErrUserNotFound
	}

	myBooks, err := e.store.ListUserBooks(userID, domain.ReadingNow)
	if err != nil {
		return nil, fmt.Errorf("load shelf: %w", err)
	}
	bookIDs := make([]string, 0, len(myBooks))
	for _, ub := range myBooks {
		bookIDs = append(bookIDs, ub.BookID)
	}

	acted, err := e.store.ListMatchedUserIDs(userID)
	if err != nil {
		return nil, fmt.Errorf("load acted: %w", err)
	}
	exclude := append([]string{userID}, acted...)

	pool, err := e.store.ListCandidates(store.CandidateFilter{
		ExcludeIDs: exclude,
		BookIDs:    bookIDs,
		Authors:    me.FavoriteAuthors,
		Genres:     me.FavoriteGenres,
		Limit:      poolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	out := make([]Suggestion, 0, len(pool))
	for _, cand := range pool {
		candBooks, err := e.store.ListUserBooks(cand.ID, domain.ReadingNow)
		if err != nil {
			return nil, fmt.Errorf("load candidate shelf: %w", err)
		}
		out = append(out, buildSuggestion(me, myBooks, cand, candBooks))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > suggestionLimit {
		out = out[:suggestionLimit]
	}
	return out, nil
}

func buildSuggestion(me domain.User, myBooks []domain.UserBook, cand domain.User, candBooks []domain.UserBook) Suggestion {
	mine := make(map[string]struct{}, len(myBooks))
	for _, ub := range myBooks {
		mine[ub.BookID] = struct{}{}
	}
	shared := make([]domain.Book, 0)
	reads := make([]domain.Book, 0, len(candBooks))
	for _, ub := range candBooks {
		reads = append(reads, ub.Book)
		if _, ok := mine[ub.BookID]; ok {
			shared = append(shared, ub.Book)
		}
	}
	return Suggestion{
		User:              cand,
		Score:             Score(me, myBooks, cand, candBooks),
		SharedBooks:       shared,
		SharedAuthors:     sharedValues(me.FavoriteAuthors, cand.FavoriteAuthors),
		SharedGenres:      sharedValues(me.FavoriteGenres, cand.FavoriteGenres),
		CurrentReads:      reads,
		BooksReadThisYear: cand.BooksReadThisYear,
	}
}

func sharedValues(a, b []string) []string {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[util.NormalizeTag(v)] = struct{}{}
	}
	out := make([]string, 0)
	seen := make(map[string]struct{}, len(b))
	for _, v := range b {
		k := util.NormalizeTag(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := set[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Score computes the compatibility score between two users:
// a flat 50 for at least one shared currently-reading book, up to 30 for
// shared favorite authors (30 each, capped) and up to 30 for shared favorite
// genres (10 each, capped).
func Score(a domain.User, aBooks []domain.UserBook, b domain.User, bBooks []domain.UserBook) int {
	score := 0
	if sharedBook(aBooks, bBooks) {
		score += 50
	}
	if n := overlapCount(a.FavoriteAuthors, b.FavoriteAuthors); n > 0 {
		score += min(30, 30*n)
	}
	if n := overlapCount(a.FavoriteGenres, b.FavoriteGenres); n > 0 {
		score += min(30, 10*n)
	}
	return score
}

func sharedBook(a, b []domain.UserBook) bool {
	ids := make(map[string]struct{}, len(a))
	for _, ub := range a {
		ids[ub.BookID] = struct{}{}
	}
	for _, ub := range b {
		if _, ok := ids[ub.BookID]; ok {
			return true
		}
	}
	return false
}

func overlapCount(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[util.NormalizeTag(v)] = struct{}{}
	}
	n := 0
	seen := make(map[string]struct{}, len(b))
	for _, v := range b {
		k := util.NormalizeTag(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := set[k]; ok {
			n++
		}
	}
	return n
}

// Like records a directed like from sender to target. A like consumes one
// quota unit for free users; if the target already liked the sender, both
// rows are promoted to ACCEPTED and the result is mutual.
func (e *Engine) Like(ctx context.Context, senderID, targetID, message string) (ActResult, error) {
	if senderID == targetID {
		return ActResult{}, ErrSelfMatch
	}
	sender, ok, err := e.store.GetUserByID(senderID)
	if err != nil {
		return ActResult{}, fmt.Errorf("load sender: %w", err)
	}
	if !ok {
		return ActResult{}, ErrUserNotFound
	}
	target, ok, err := e.store.GetUserByID(targetID)
	if err != nil {
		return ActResult{}, fmt.Errorf("load target: %w", err)
	}
	if !ok {
		return ActResult{}, ErrUserNotFound
	}

	left, err := e.quota.Remaining(sender)
	if err != nil {
		return ActResult{}, fmt.Errorf("check quota: %w", err)
	}
	if left == 0 {
		return ActResult{}, ErrQuotaExhausted
	}

	// Reverse PENDING means the target liked us first: answer instead of
	// creating a new edge.
	reverse, hasReverse, err := e.store.GetMatchBetween(targetID, senderID)
	if err != nil {
		return ActResult{}, fmt.Errorf("load reverse: %w", err)
	}

	now := e.now()
	m := domain.Match{
		ID:         util.NewID(),
		SenderID:   senderID,
		ReceiverID: targetID,
		Status:     domain.MatchPending,
		Message:    message,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	mutual := hasReverse && reverse.Status == domain.MatchPending
	if mutual {
		m.Status = domain.MatchAccepted
	}

	if err := e.store.CreateMatch(m); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ActResult{}, ErrAlreadyActed
		}
		return ActResult{}, fmt.Errorf("create match: %w", err)
	}
	if mutual {
		if err := e.store.SetMatchStatus(reverse.ID, domain.MatchAccepted); err != nil {
			return ActResult{}, fmt.Errorf("accept reverse: %w", err)
		}
	}

	if err := e.quota.Consume(sender); err != nil {
		return ActResult{}, fmt.Errorf("consume quota: %w", err)
	}
	remaining, err := e.quota.Remaining(sender)
	if err != nil {
		return ActResult{}, fmt.Errorf("check quota: %w", err)
	}

	if mutual {
		e.sendNotification(ctx, senderID, domain.NotifyMatchAccepted, "It's a match!",
			fmt.Sprintf("You and %s liked each other.", target.Name))
		e.sendNotification(ctx, targetID, domain.NotifyMatchAccepted, "It's a match!",
			fmt.Sprintf("You and %s liked each other.", sender.Name))
	} else {
		e.sendNotification(ctx, targetID, domain.NotifyMatchRequest, "New match request",
			fmt.Sprintf("%s wants to connect with you.", sender.Name))
	}

	return ActResult{Match: m, Mutual: mutual, Remaining: remaining}, nil
}

// Pass records a directed rejection. An exhausted daily quota blocks the
// action, but passing never consumes it.
func (e *Engine) Pass(ctx context.Context, senderID, targetID string) (ActResult, error) {
	if senderID == targetID {
		return ActResult{}, ErrSelfMatch
	}
	sender, ok, err := e.store.GetUserByID(senderID)
	if err != nil {
		return ActResult{}, fmt.Errorf("load sender: %w", err)
	}
	if !ok {
		return ActResult{}, ErrUserNotFound
	}
	if _, ok, err := e.store.GetUserByID(targetID); err != nil {
		return ActResult{}, fmt.Errorf("load target: %w", err)
	} else if !ok {
		return ActResult{}, ErrUserNotFound
	}

	// The quota gates every action; only likes consume it.
	left, err := e.quota.Remaining(sender)
	if err != nil {
		return ActResult{}, fmt.Errorf("check quota: %w", err)
	}
	if left == 0 {
		return ActResult{}, ErrQuotaExhausted
	}

	now := e.now()
	m := domain.Match{
		ID:         util.NewID(),
		SenderID:   senderID,
		ReceiverID: targetID,
		Status:     domain.MatchRejected,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.store.CreateMatch(m); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ActResult{}, ErrAlreadyActed
		}
		return ActResult{}, fmt.Errorf("create match: %w", err)
	}
	return ActResult{Match: m, Remaining: left}, nil
}

// Connections lists accepted matches for the user, deduplicated so a mutual
// pair appears once.
func (e *Engine) Connections(ctx context.Context, userID string) ([]domain.User, error) {
	matches, err := e.store.ListAcceptedMatches(userID)
	if err != nil {
		return nil, fmt.Errorf("list accepted: %w", err)
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]domain.User, 0, len(matches))
	for _, m := range matches {
		other := m.SenderID
		if other == userID {
			other = m.ReceiverID
		}
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		u, ok, err := e.store.GetUserByID(other)
		if err != nil {
			return nil, fmt.Errorf("load connection: %w", err)
		}
		if ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// ExpirePending marks likes older than the pending TTL as EXPIRED. Called by
// the scheduled expiry endpoint.
func (e *Engine) ExpirePending(ctx context.Context) (int64, error) {
	return e.store.ExpirePendingMatches(e.now().Add(-pendingTTL))
}

func (e *Engine) sendNotification(ctx context.Context, userID string, typ domain.NotificationType, title, body string) {
	n := domain.Notification{
		ID:        util.NewID(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Body:      body,
		CreatedAt: e.now(),
	}
	if err := e.store.CreateNotifications([]domain.Notification{n}); err != nil {
		e.logger.Error("store notification", "user_id", userID, "type", typ, "error", err)
		return
	}
	notify.LogPublishError(e.notify.Publish(ctx, n), userID, typ)
}

// WithClock overrides the time source. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}
