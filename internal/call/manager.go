// Package call owns the space call-session lifecycle: starting rooms,
// issuing join credentials and tearing sessions down, on top of a pluggable
// VOIP vendor.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bookworm/internal/call/provider"
	"bookworm/internal/util"
	"bookworm/pkg/domain"
	"bookworm/pkg/notify"
	"bookworm/pkg/store"
)

// MaxParticipants caps room size across all vendors.
const MaxParticipants = 20

var (
	ErrSpaceNotFound = errors.New("space not found")
	ErrNotMember     = errors.New("not a space member")
	ErrNotHost       = errors.New("only a space owner or moderator can do this")
	ErrNoActiveCall  = errors.New("no active call in this space")
	ErrSessionClosed = errors.New("call session has ended")
)

// Token bundles the vendor credential with the session it belongs to. The
// provider/roomId/uid trio is surfaced at the top level so clients join
// without caring which vendor issued the credential.
type Token struct {
	Provider    domain.VoipProvider `json:"provider"`
	RoomID      string              `json:"roomId"`
	Token       string              `json:"token"`
	ProviderUID string              `json:"uid"`
	ExpiresAt   time.Time           `json:"expiresAt"`
	Role        domain.CallRole     `json:"role"`
	Session     domain.CallSession  `json:"session"`
	Extra       map[string]string   `json:"extra,omitempty"`
}

// Manager drives the call session state machine for spaces.
type Manager struct {
	store     store.Store
	providers *provider.Registry
	notify    notify.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewManager(st store.Store, reg *provider.Registry, pub notify.Publisher, logger *slog.Logger) *Manager {
	if pub == nil {
		pub = notify.NoopPublisher{}
	}
	return &Manager{store: st, providers: reg, notify: pub, logger: logger, now: time.Now}
}

// Start opens a call session for a space. Starting is idempotent: if a
// WAITING or LIVE session already exists it is returned unchanged. Any
// member may start; the starter becomes the host.
func (m *Manager) Start(ctx context.Context, spaceID, userID string, vendor domain.VoipProvider) (domain.CallSession, error) {
	if _, err := m.requireMember(spaceID, userID); err != nil {
		return domain.CallSession{}, err
	}

	existing, ok, err := m.store.GetCallSessionBySpace(spaceID)
	if err != nil {
		return domain.CallSession{}, fmt.Errorf("load session: %w", err)
	}
	if ok && existing.Status != domain.CallEnded {
		return existing, nil
	}

	adapter, err := m.providers.Get(vendor)
	if err != nil {
		return domain.CallSession{}, err
	}
	room, err := adapter.CreateRoom(ctx, spaceID, MaxParticipants)
	if err != nil {
		return domain.CallSession{}, err
	}

	now := m.now()
	session := domain.CallSession{
		ID:              util.NewID(),
		SpaceID:         spaceID,
		Provider:        adapter.Name(),
		ProviderRoomID:  room.RoomID,
		ProviderMeta:    room.Meta,
		Status:          domain.CallWaiting,
		MaxParticipants: MaxParticipants,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.store.CreateCallSession(session); err != nil {
		return domain.CallSession{}, fmt.Errorf("create session: %w", err)
	}
	m.logger.Info("call session created",
		"session_id", session.ID, "space_id", spaceID, "provider", session.Provider, "room", room.RoomID)
	return session, nil
}

// JoinToken mints a vendor credential for a member. The first issued token
// flips the session from WAITING to LIVE and notifies the other members.
// Reconnects reuse the member's participant row.
func (m *Manager) JoinToken(ctx context.Context, spaceID, userID string) (Token, error) {
	member, err := m.requireMember(spaceID, userID)
	if err != nil {
		return Token{}, err
	}
	session, ok, err := m.store.GetCallSessionBySpace(spaceID)
	if err != nil {
		return Token{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return Token{}, ErrNoActiveCall
	}
	if session.Status == domain.CallEnded {
		return Token{}, ErrSessionClosed
	}

	adapter, err := m.providers.Get(session.Provider)
	if err != nil {
		return Token{}, err
	}

	user, okUser, err := m.store.GetUserByID(userID)
	if err != nil {
		return Token{}, fmt.Errorf("load user: %w", err)
	}
	name := userID
	if okUser {
		name = user.Name
	}

	role := domain.CallRoleListener
	if member.Role == domain.SpaceRoleOwner || member.Role == domain.SpaceRoleModerator {
		role = domain.CallRoleHost
	}

	cred, err := adapter.IssueToken(ctx, provider.TokenRequest{
		Room:     session.ProviderRoomID,
		UserID:   userID,
		UserName: name,
		Role:     role,
	})
	if err != nil {
		return Token{}, err
	}

	now := m.now()
	if prev, found, err := m.store.GetLatestCallParticipant(session.ID, userID); err != nil {
		return Token{}, fmt.Errorf("load participant: %w", err)
	} else if found {
		if err := m.store.RejoinCallParticipant(prev.ID, cred.ProviderUID, now); err != nil {
			return Token{}, fmt.Errorf("rejoin participant: %w", err)
		}
	} else {
		p := domain.CallParticipant{
			ID:          util.NewID(),
			SessionID:   session.ID,
			UserID:      userID,
			ProviderUID: cred.ProviderUID,
			Role:        role,
			JoinedAt:    now,
		}
		if err := m.store.CreateCallParticipant(p); err != nil {
			return Token{}, fmt.Errorf("create participant: %w", err)
		}
	}

	if session.Status == domain.CallWaiting {
		if err := m.store.MarkCallSessionLive(session.ID, now); err != nil {
			return Token{}, fmt.Errorf("mark live: %w", err)
		}
		session.Status = domain.CallLive
		started := now
		session.StartedAt = &started
		m.notifyCallStarted(ctx, session, userID)
	}

	return Token{
		Provider:    session.Provider,
		RoomID:      session.ProviderRoomID,
		Token:       cred.Token,
		ProviderUID: cred.ProviderUID,
		ExpiresAt:   cred.ExpiresAt,
		Role:        role,
		Session:     session,
		Extra:       cred.Extra,
	}, nil
}

// End closes the active session. Only a space owner or moderator may end a
// call. Duration counts from the LIVE transition; a session ended while
// still WAITING has zero duration.
func (m *Manager) End(ctx context.Context, spaceID, userID string) (domain.CallSession, error) {
	member, err := m.requireMember(spaceID, userID)
	if err != nil {
		return domain.CallSession{}, err
	}
	if member.Role != domain.SpaceRoleOwner && member.Role != domain.SpaceRoleModerator {
		return domain.CallSession{}, ErrNotHost
	}
	session, ok, err := m.store.GetCallSessionBySpace(spaceID)
	if err != nil {
		return domain.CallSession{}, fmt.Errorf("load session: %w", err)
	}
	if !ok || session.Status == domain.CallEnded {
		return domain.CallSession{}, ErrNoActiveCall
	}
	return m.closeSession(ctx, session, true)
}

// EndByRoom closes whatever active session owns the vendor room. Driven by
// room-ended webhooks; a miss is not an error since the session may already
// be closed.
func (m *Manager) EndByRoom(ctx context.Context, vendor domain.VoipProvider, roomID string) (bool, error) {
	session, ok, err := m.store.GetActiveCallSessionByRoom(roomID)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if !ok || session.Provider != vendor {
		return false, nil
	}
	// The vendor already tore the room down.
	if _, err := m.closeSession(ctx, session, false); err != nil {
		return false, err
	}
	return true, nil
}

// ParticipantLeftByRoom closes the participant row matching a vendor
// participant id. Unknown rooms and unknown uids are ignored.
func (m *Manager) ParticipantLeftByRoom(ctx context.Context, vendor domain.VoipProvider, roomID, providerUID string) (bool, error) {
	session, ok, err := m.store.GetActiveCallSessionByRoom(roomID)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if !ok || session.Provider != vendor {
		return false, nil
	}
	if err := m.store.CloseCallParticipantByUID(session.ID, providerUID, m.now()); err != nil {
		return false, fmt.Errorf("close participant: %w", err)
	}
	return true, nil
}

// Session returns the latest session for a space, ended or not.
func (m *Manager) Session(ctx context.Context, spaceID, userID string) (domain.CallSession, error) {
	if _, err := m.requireMember(spaceID, userID); err != nil {
		return domain.CallSession{}, err
	}
	session, ok, err := m.store.GetCallSessionBySpace(spaceID)
	if err != nil {
		return domain.CallSession{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return domain.CallSession{}, ErrNoActiveCall
	}
	return session, nil
}

func (m *Manager) closeSession(ctx context.Context, session domain.CallSession, tearDownRoom bool) (domain.CallSession, error) {
	now := m.now()
	duration := 0
	if session.StartedAt != nil {
		duration = int(now.Sub(*session.StartedAt) / time.Second)
		if duration < 0 {
			duration = 0
		}
	}
	if err := m.store.EndCallSession(session.ID, now, duration); err != nil {
		return domain.CallSession{}, fmt.Errorf("end session: %w", err)
	}
	if err := m.store.CloseOpenCallParticipants(session.ID, now); err != nil {
		return domain.CallSession{}, fmt.Errorf("close participants: %w", err)
	}
	if tearDownRoom {
		if adapter, err := m.providers.Get(session.Provider); err == nil {
			if err := adapter.EndRoom(ctx, session.ProviderRoomID); err != nil {
				m.logger.Warn("vendor room teardown failed",
					"session_id", session.ID, "provider", session.Provider, "error", err)
			}
		}
	}
	session.Status = domain.CallEnded
	ended := now
	session.EndedAt = &ended
	session.DurationSec = duration
	m.logger.Info("call session ended",
		"session_id", session.ID, "space_id", session.SpaceID, "duration_sec", duration)
	return session, nil
}

func (m *Manager) notifyCallStarted(ctx context.Context, session domain.CallSession, starterID string) {
	members, err := m.store.ListSpaceMembers(session.SpaceID)
	if err != nil {
		m.logger.Error("list members for call notification", "space_id", session.SpaceID, "error", err)
		return
	}
	space, okSpace, _ := m.store.GetSpace(session.SpaceID)
	title := "Call started"
	body := "A call just started in your space."
	if okSpace {
		body = fmt.Sprintf("A call just started in %s.", space.Name)
	}
	batch := make([]domain.Notification, 0, len(members))
	for _, member := range members {
		if member.UserID == starterID {
			continue
		}
		batch = append(batch, domain.Notification{
			ID:        util.NewID(),
			UserID:    member.UserID,
			Type:      domain.NotifyCallStarted,
			Title:     title,
			Body:      body,
			CreatedAt: m.now(),
		})
	}
	if len(batch) == 0 {
		return
	}
	if err := m.store.CreateNotifications(batch); err != nil {
		m.logger.Error("store call notifications", "space_id", session.SpaceID, "error", err)
		return
	}
	for _, n := range batch {
		notify.LogPublishError(m.notify.Publish(ctx, n), n.UserID, n.Type)
	}
}

func (m *Manager) requireMember(spaceID, userID string) (domain.SpaceMember, error) {
	if _, ok, err := m.store.GetSpace(spaceID); err != nil {
		return domain.SpaceMember{}, fmt.Errorf("load space: %w", err)
	} else if !ok {
		return domain.SpaceMember{}, ErrSpaceNotFound
	}
	member, ok, err := m.store.GetSpaceMember(spaceID, userID)
	if err != nil {
		return domain.SpaceMember{}, fmt.Errorf("load member: %w", err)
	}
	if !ok {
		return domain.SpaceMember{}, ErrNotMember
	}
	return member, nil
}

// WithClock overrides the time source. Tests only.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}
