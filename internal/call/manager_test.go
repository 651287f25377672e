package call

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"bookworm/internal/call/provider"
	"bookworm/pkg/domain"
	"bookworm/pkg/notify"
	"bookworm/pkg/store"
)

// fakeAdapter counts vendor calls and mints predictable tokens.
type fakeAdapter struct {
	name       domain.VoipProvider
	rooms      int
	tokens     int
	endedRooms []string
}

func (f *fakeAdapter) Name() domain.VoipProvider { return f.name }

func (f *fakeAdapter) CreateRoom(_ context.Context, spaceID string, _ int) (provider.RoomInfo, error) {
	f.rooms++
	return provider.RoomInfo{RoomID: "bookworm-" + spaceID}, nil
}

func (f *fakeAdapter) IssueToken(_ context.Context, req provider.TokenRequest) (provider.Credential, error) {
	f.tokens++
	return provider.Credential{
		Token:       fmt.Sprintf("tok-%d", f.tokens),
		ProviderUID: fmt.Sprintf("uid-%s-%d", req.UserID, f.tokens),
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeAdapter) EndRoom(_ context.Context, roomID string) error {
	f.endedRooms = append(f.endedRooms, roomID)
	return nil
}

func newManager(t *testing.T) (*Manager, *store.MemoryStore, *fakeAdapter, *notify.Recorder) {
	t.Helper()
	st := store.NewMemoryStore()
	fake := &fakeAdapter{name: domain.ProviderDaily}
	reg := provider.NewRegistry(domain.ProviderDaily)
	reg.Register(fake)
	rec := &notify.Recorder{}
	mgr := NewManager(st, reg, rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return mgr, st, fake, rec
}

func seedSpace(t *testing.T, st *store.MemoryStore, spaceID, ownerID string, memberIDs ...string) {
	t.Helper()
	now := time.Now()
	err := st.CreateSpace(
		domain.Space{ID: spaceID, OwnerID: ownerID, Name: "space " + spaceID, CreatedAt: now},
		domain.SpaceMember{SpaceID: spaceID, UserID: ownerID, Role: domain.SpaceRoleOwner, JoinedAt: now},
	)
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}
	for _, id := range append([]string{ownerID}, memberIDs...) {
		if err := st.SaveUser(domain.User{ID: id, Email: id + "@example.com", Name: id}); err != nil {
			t.Fatalf("SaveUser: %v", err)
		}
	}
	for _, id := range memberIDs {
		err := st.AddSpaceMember(domain.SpaceMember{
			SpaceID: spaceID, UserID: id, Role: domain.SpaceRoleMember, JoinedAt: now,
		})
		if err != nil {
			t.Fatalf("AddSpaceMember: %v", err)
		}
	}
}

func TestStartIsIdempotent(t *testing.T) {
	mgr, st, fake, _ := newManager(t)
	seedSpace(t, st, "s1", "owner")

	first, err := mgr.Start(context.Background(), "s1", "owner", "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if first.Status != domain.CallWaiting {
		t.Fatalf("status = %s, want WAITING", first.Status)
	}
	if first.ProviderRoomID != "bookworm-s1" {
		t.Fatalf("room = %q", first.ProviderRoomID)
	}

	second, err := mgr.Start(context.Background(), "s1", "owner", "")
	if err != nil {
		t.Fatalf("Start again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("second start created a new session")
	}
	if fake.rooms != 1 {
		t.Fatalf("rooms created = %d, want 1", fake.rooms)
	}
}

func TestStartRequiresMembership(t *testing.T) {
	mgr, st, _, _ := newManager(t)
	seedSpace(t, st, "s1", "owner")
	if _, err := mgr.Start(context.Background(), "s1", "outsider", ""); !errors.Is(err, ErrNotMember) {
		t.Fatalf("err = %v, want ErrNotMember", err)
	}
	if _, err := mgr.Start(context.Background(), "nope", "owner", ""); !errors.Is(err, ErrSpaceNotFound) {
		t.Fatalf("err = %v, want ErrSpaceNotFound", err)
	}
}

func TestFirstTokenGoesLive(t *testing.T) {
	mgr, st, _, rec := newManager(t)
	seedSpace(t, st, "s1", "owner", "member1")
	if _, err := mgr.Start(context.Background(), "s1", "owner", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tok, err := mgr.JoinToken(context.Background(), "s1", "owner")
	if err != nil {
		t.Fatalf("JoinToken: %v", err)
	}
	if tok.Session.Status != domain.CallLive {
		t.Fatalf("status = %s, want LIVE", tok.Session.Status)
	}
	if tok.Session.StartedAt == nil {
		t.Fatal("startedAt not set")
	}
	if tok.Role != domain.CallRoleHost {
		t.Fatalf("role = %s, want HOST", tok.Role)
	}

	// second token must not reset startedAt
	started := *tok.Session.StartedAt
	tok2, err := mgr.JoinToken(context.Background(), "s1", "member1")
	if err != nil {
		t.Fatalf("JoinToken member: %v", err)
	}
	if tok2.Role != domain.CallRoleListener {
		t.Fatalf("role = %s, want LISTENER", tok2.Role)
	}
	session, ok, err := st.GetCallSessionBySpace("s1")
	if err != nil || !ok {
		t.Fatalf("GetCallSessionBySpace: %v ok=%v", err, ok)
	}
	if !session.StartedAt.Equal(started) {
		t.Fatalf("startedAt changed: %v vs %v", session.StartedAt, started)
	}

	events := rec.Published()
	if len(events) != 1 || events[0].UserID != "member1" || events[0].Type != domain.NotifyCallStarted {
		t.Fatalf("events = %+v, want one CALL_STARTED for member1", events)
	}
}

func TestJoinTokenWithoutSession(t *testing.T) {
	mgr, st, _, _ := newManager(t)
	seedSpace(t, st, "s1", "owner")
	if _, err := mgr.JoinToken(context.Background(), "s1", "owner"); !errors.Is(err, ErrNoActiveCall) {
		t.Fatalf("err = %v, want ErrNoActiveCall", err)
	}
}

func TestRejoinReusesParticipantRow(t *testing.T) {
	mgr, st, _, _ := newManager(t)
	seedSpace(t, st, "s1", "owner")
	if _, err := mgr.Start(context.Background(), "s1", "owner", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	first, err := mgr.JoinToken(context.Background(), "s1", "owner")
	if err != nil {
		t.Fatalf("JoinToken: %v", err)
	}
	second, err := mgr.JoinToken(context.Background(), "s1", "owner")
	if err != nil {
		t.Fatalf("JoinToken again: %v", err)
	}
	if first.ProviderUID == second.ProviderUID {
		t.Fatal("expected a fresh vendor uid per join")
	}
	p, ok, err := st.GetLatestCallParticipant(first.Session.ID, "owner")
	if err != nil || !ok {
		t.Fatalf("GetLatestCallParticipant: %v ok=%v", err, ok)
	}
	if p.ProviderUID != second.ProviderUID {
		t.Fatalf("participant uid = %q, want latest %q", p.ProviderUID, second.ProviderUID)
	}
	if p.LeftAt != nil {
		t.Fatal("rejoined participant should be open")
	}
}

func TestEndComputesDurationAndClosesParticipants(t *testing.T) {
	mgr, st, fake, _ := newManager(t)
	seedSpace(t, st, "s1", "owner", "member1")

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mgr.WithClock(func() time.Time { return base })
	if _, err := mgr.Start(context.Background(), "s1", "owner", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := mgr.JoinToken(context.Background(), "s1", "owner"); err != nil {
		t.Fatalf("JoinToken: %v", err)
	}

	mgr.WithClock(func() time.Time { return base.Add(90 * time.Second) })
	session, err := mgr.End(context.Background(), "s1", "owner")
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if session.Status != domain.CallEnded {
		t.Fatalf("status = %s", session.Status)
	}
	if session.DurationSec != 90 {
		t.Fatalf("duration = %d, want 90", session.DurationSec)
	}
	if len(fake.endedRooms) != 1 || fake.endedRooms[0] != "bookworm-s1" {
		t.Fatalf("ended rooms = %v", fake.endedRooms)
	}
	p, ok, err := st.GetLatestCallParticipant(session.ID, "owner")
	if err != nil || !ok {
		t.Fatalf("GetLatestCallParticipant: %v ok=%v", err, ok)
	}
	if p.LeftAt == nil {
		t.Fatal("participant should be closed")
	}
}

func TestEndRequiresHostRole(t *testing.T) {
	mgr, st, _, _ := newManager(t)
	seedSpace(t, st, "s1", "owner", "member1")
	if _, err := mgr.Start(context.Background(), "s1", "owner", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := mgr.End(context.Background(), "s1", "member1"); !errors.Is(err, ErrNotHost) {
		t.Fatalf("err = %v, want ErrNotHost", err)
	}
}

func TestEndByRoom(t *testing.T) {
	mgr, st, fake, _ := newManager(t)
	seedSpace(t, st, "s1", "owner")
	if _, err := mgr.Start(context.Background(), "s1", "owner", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	handled, err := mgr.EndByRoom(context.Background(), domain.ProviderDaily, "bookworm-s1")
	if err != nil {
		t.Fatalf("EndByRoom: %v", err)
	}
	if !handled {
		t.Fatal("expected session to be closed")
	}
	// vendor already removed the room
	if len(fake.endedRooms) != 0 {
		t.Fatalf("ended rooms = %v, want none", fake.endedRooms)
	}
	session, ok, err := st.GetCallSessionBySpace("s1")
	if err != nil || !ok {
		t.Fatalf("GetCallSessionBySpace: %v ok=%v", err, ok)
	}
	if session.Status != domain.CallEnded {
		t.Fatalf("status = %s", session.Status)
	}

	handled, err = mgr.EndByRoom(context.Background(), domain.ProviderDaily, "bookworm-s1")
	if err != nil {
		t.Fatalf("EndByRoom again: %v", err)
	}
	if handled {
		t.Fatal("already-ended session should be a no-op")
	}
}

func TestParticipantLeftByRoom(t *testing.T) {
	mgr, st, _, _ := newManager(t)
	seedSpace(t, st, "s1", "owner")
	if _, err := mgr.Start(context.Background(), "s1", "owner", ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tok, err := mgr.JoinToken(context.Background(), "s1", "owner")
	if err != nil {
		t.Fatalf("JoinToken: %v", err)
	}

	handled, err := mgr.ParticipantLeftByRoom(context.Background(), domain.ProviderDaily, "bookworm-s1", tok.ProviderUID)
	if err != nil {
		t.Fatalf("ParticipantLeftByRoom: %v", err)
	}
	if !handled {
		t.Fatal("expected participant close")
	}
	p, ok, err := st.GetLatestCallParticipant(tok.Session.ID, "owner")
	if err != nil || !ok {
		t.Fatalf("GetLatestCallParticipant: %v ok=%v", err, ok)
	}
	if p.LeftAt == nil {
		t.Fatal("participant should be marked left")
	}

	handled, err = mgr.ParticipantLeftByRoom(context.Background(), domain.ProviderDaily, "missing-room", "x")
	if err != nil {
		t.Fatalf("ParticipantLeftByRoom miss: %v", err)
	}
	if handled {
		t.Fatal("unknown room should be ignored")
	}
}
