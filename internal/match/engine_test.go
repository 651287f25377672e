package match

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"bookworm/internal/quota"
	"bookworm/internal/util"
	"bookworm/pkg/domain"
	"bookworm/pkg/notify"
	"bookworm/pkg/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T) (*Engine, *store.MemoryStore, *notify.Recorder) {
	t.Helper()
	st := store.NewMemoryStore()
	rec := &notify.Recorder{}
	eng := NewEngine(st, quota.NewTracker(st), rec, testLogger())
	return eng, st, rec
}

func seedUser(t *testing.T, st *store.MemoryStore, id string, genres, authors []string) domain.User {
	t.Helper()
	u := domain.User{
		ID:              id,
		Email:           id + "@example.com",
		Name:            id,
		Tier:            domain.TierFree,
		FavoriteGenres:  genres,
		FavoriteAuthors: authors,
		CreatedAt:       time.Now(),
	}
	if err := st.SaveUser(u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	return u
}

func seedReading(t *testing.T, st *store.MemoryStore, userID, bookID string) {
	t.Helper()
	if err := st.SaveBook(domain.Book{ID: bookID, Title: bookID, Author: "a"}); err != nil {
		t.Fatalf("SaveBook: %v", err)
	}
	err := st.SaveUserBook(domain.UserBook{
		ID:     util.NewID(),
		UserID: userID,
		BookID: bookID,
		Status: domain.ReadingNow,
	})
	if err != nil {
		t.Fatalf("SaveUserBook: %v", err)
	}
}

func TestScore(t *testing.T) {
	a := domain.User{FavoriteGenres: []string{"scifi", "fantasy"}, FavoriteAuthors: []string{"Le Guin"}}
	b := domain.User{FavoriteGenres: []string{"Fantasy", "horror"}, FavoriteAuthors: []string{"le guin"}}
	aBooks := []domain.UserBook{{BookID: "b1"}}
	bBooks := []domain.UserBook{{BookID: "b1"}, {BookID: "b2"}}

	// shared book 50 + one author 30 + one genre 10
	if got := Score(a, aBooks, b, bBooks); got != 90 {
		t.Fatalf("score = %d, want 90", got)
	}

	// genre score caps at 30
	a.FavoriteGenres = []string{"g1", "g2", "g3", "g4", "g5"}
	b.FavoriteGenres = a.FavoriteGenres
	if got := Score(a, nil, b, nil); got != 60 {
		t.Fatalf("score = %d, want 60", got)
	}
}

func TestSuggestExcludesActedAndSelf(t *testing.T) {
	eng, st, _ := newEngine(t)
	seedUser(t, st, "me", []string{"scifi"}, nil)
	seedUser(t, st, "liked", []string{"scifi"}, nil)
	seedUser(t, st, "fresh", []string{"scifi"}, nil)
	seedUser(t, st, "stranger", []string{"poetry"}, nil)

	if _, err := eng.Like(context.Background(), "me", "liked", ""); err != nil {
		t.Fatalf("Like: %v", err)
	}
	got, err := eng.Suggest(context.Background(), "me")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 1 || got[0].User.ID != "fresh" {
		t.Fatalf("suggestions = %+v, want only fresh", got)
	}
	if got[0].Score != 10 {
		t.Fatalf("score = %d, want 10", got[0].Score)
	}
}

func TestSuggestOrdersByScore(t *testing.T) {
	eng, st, _ := newEngine(t)
	seedUser(t, st, "me", []string{"scifi"}, []string{"Le Guin"})
	seedReading(t, st, "me", "dispossessed")
	seedUser(t, st, "genreOnly", []string{"scifi"}, nil)
	bookMate := seedUser(t, st, "bookMate", nil, []string{"Le Guin"})
	seedReading(t, st, bookMate.ID, "dispossessed")

	got, err := eng.Suggest(context.Background(), "me")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].User.ID != "bookMate" || got[0].Score != 80 {
		t.Fatalf("top = %s/%d, want bookMate/80", got[0].User.ID, got[0].Score)
	}
	if got[1].User.ID != "genreOnly" || got[1].Score != 10 {
		t.Fatalf("second = %s/%d, want genreOnly/10", got[1].User.ID, got[1].Score)
	}
}

func TestLikeConsumesQuota(t *testing.T) {
	eng, st, rec := newEngine(t)
	seedUser(t, st, "me", nil, nil)
	for i := 0; i < quota.FreeDailyLimit; i++ {
		id := string(rune('a' + i))
		seedUser(t, st, id, nil, nil)
		res, err := eng.Like(context.Background(), "me", id, "hi")
		if err != nil {
			t.Fatalf("Like %d: %v", i, err)
		}
		if res.Remaining != quota.FreeDailyLimit-i-1 {
			t.Fatalf("remaining = %d, want %d", res.Remaining, quota.FreeDailyLimit-i-1)
		}
	}
	seedUser(t, st, "extra", nil, nil)
	if _, err := eng.Like(context.Background(), "me", "extra", ""); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("err = %v, want ErrQuotaExhausted", err)
	}
	if got := len(rec.Published()); got != quota.FreeDailyLimit {
		t.Fatalf("published = %d, want %d", got, quota.FreeDailyLimit)
	}
}

func TestPassBlockedAtQuotaCap(t *testing.T) {
	eng, st, _ := newEngine(t)
	seedUser(t, st, "me", nil, nil)
	for i := 0; i < quota.FreeDailyLimit; i++ {
		id := string(rune('a' + i))
		seedUser(t, st, id, nil, nil)
		if _, err := eng.Like(context.Background(), "me", id, ""); err != nil {
			t.Fatalf("Like %d: %v", i, err)
		}
	}
	seedUser(t, st, "extra", nil, nil)
	if _, err := eng.Pass(context.Background(), "me", "extra"); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("Pass at cap: err = %v, want ErrQuotaExhausted", err)
	}
	if _, ok, err := st.GetMatchBetween("me", "extra"); err != nil || ok {
		t.Fatalf("rejected pass left a row: ok=%v err=%v", ok, err)
	}
}

func TestPassDoesNotConsumeQuota(t *testing.T) {
	eng, st, _ := newEngine(t)
	me := seedUser(t, st, "me", nil, nil)
	seedUser(t, st, "other", nil, nil)
	if _, err := eng.Pass(context.Background(), "me", "other"); err != nil {
		t.Fatalf("Pass: %v", err)
	}
	left, err := quota.NewTracker(st).Remaining(me)
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if left != quota.FreeDailyLimit {
		t.Fatalf("left = %d, want %d", left, quota.FreeDailyLimit)
	}
	m, ok, err := st.GetMatchBetween("me", "other")
	if err != nil || !ok {
		t.Fatalf("GetMatchBetween: %v ok=%v", err, ok)
	}
	if m.Status != domain.MatchRejected {
		t.Fatalf("status = %s, want REJECTED", m.Status)
	}
}

func TestMutualLikePromotesBothRows(t *testing.T) {
	eng, st, rec := newEngine(t)
	seedUser(t, st, "alice", nil, nil)
	seedUser(t, st, "bob", nil, nil)

	if _, err := eng.Like(context.Background(), "alice", "bob", ""); err != nil {
		t.Fatalf("Like alice->bob: %v", err)
	}
	res, err := eng.Like(context.Background(), "bob", "alice", "")
	if err != nil {
		t.Fatalf("Like bob->alice: %v", err)
	}
	if !res.Mutual {
		t.Fatal("expected mutual")
	}
	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		m, ok, err := st.GetMatchBetween(pair[0], pair[1])
		if err != nil || !ok {
			t.Fatalf("GetMatchBetween %v: %v ok=%v", pair, err, ok)
		}
		if m.Status != domain.MatchAccepted {
			t.Fatalf("%v status = %s, want ACCEPTED", pair, m.Status)
		}
	}

	events := rec.Published()
	accepted := 0
	for _, n := range events {
		if n.Type == domain.NotifyMatchAccepted {
			accepted++
		}
	}
	if accepted != 2 {
		t.Fatalf("accepted notifications = %d, want 2", accepted)
	}
}

func TestLikeTwiceRejected(t *testing.T) {
	eng, st, _ := newEngine(t)
	seedUser(t, st, "me", nil, nil)
	seedUser(t, st, "other", nil, nil)
	if _, err := eng.Like(context.Background(), "me", "other", ""); err != nil {
		t.Fatalf("Like: %v", err)
	}
	if _, err := eng.Like(context.Background(), "me", "other", ""); !errors.Is(err, ErrAlreadyActed) {
		t.Fatalf("err = %v, want ErrAlreadyActed", err)
	}
}

func TestLikeSelfRejected(t *testing.T) {
	eng, st, _ := newEngine(t)
	seedUser(t, st, "me", nil, nil)
	if _, err := eng.Like(context.Background(), "me", "me", ""); !errors.Is(err, ErrSelfMatch) {
		t.Fatalf("err = %v, want ErrSelfMatch", err)
	}
}

func TestSuggestionProjection(t *testing.T) {
	eng, st, _ := newEngine(t)
	me := seedUser(t, st, "me", []string{"SciFi"}, []string{"Le Guin"})
	seedReading(t, st, me.ID, "dispossessed")
	cand := seedUser(t, st, "cand", []string{"scifi", "horror"}, []string{"le guin"})
	cand.BooksReadThisYear = 12
	if err := st.SaveUser(cand); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	seedReading(t, st, cand.ID, "dispossessed")
	seedReading(t, st, cand.ID, "lathe")

	got, err := eng.Suggest(context.Background(), "me")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
	s := got[0]
	if len(s.SharedBooks) != 1 || s.SharedBooks[0].ID != "dispossessed" {
		t.Fatalf("shared books = %+v", s.SharedBooks)
	}
	if len(s.CurrentReads) != 2 {
		t.Fatalf("current reads = %+v", s.CurrentReads)
	}
	if len(s.SharedAuthors) != 1 || s.SharedAuthors[0] != "le guin" {
		t.Fatalf("shared authors = %v", s.SharedAuthors)
	}
	if len(s.SharedGenres) != 1 || s.SharedGenres[0] != "scifi" {
		t.Fatalf("shared genres = %v", s.SharedGenres)
	}
	if s.BooksReadThisYear != 12 {
		t.Fatalf("books read = %d", s.BooksReadThisYear)
	}
	if s.Score != 90 {
		t.Fatalf("score = %d, want 90", s.Score)
	}
}

func TestConnectionsDedupesMutualPair(t *testing.T) {
	eng, st, _ := newEngine(t)
	seedUser(t, st, "alice", nil, nil)
	seedUser(t, st, "bob", nil, nil)
	if _, err := eng.Like(context.Background(), "alice", "bob", ""); err != nil {
		t.Fatalf("Like: %v", err)
	}
	if _, err := eng.Like(context.Background(), "bob", "alice", ""); err != nil {
		t.Fatalf("Like: %v", err)
	}
	conns, err := eng.Connections(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Connections: %v", err)
	}
	if len(conns) != 1 || conns[0].ID != "bob" {
		t.Fatalf("connections = %+v, want [bob]", conns)
	}
}

func TestExpirePending(t *testing.T) {
	eng, st, _ := newEngine(t)
	seedUser(t, st, "alice", nil, nil)
	seedUser(t, st, "bob", nil, nil)

	past := time.Now().Add(-8 * 24 * time.Hour)
	eng.WithClock(func() time.Time { return past })
	if _, err := eng.Like(context.Background(), "alice", "bob", ""); err != nil {
		t.Fatalf("Like: %v", err)
	}
	eng.WithClock(time.Now)

	n, err := eng.ExpirePending(context.Background())
	if err != nil {
		t.Fatalf("ExpirePending: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired = %d, want 1", n)
	}
	m, ok, err := st.GetMatchBetween("alice", "bob")
	if err != nil || !ok {
		t.Fatalf("GetMatchBetween: %v ok=%v", err, ok)
	}
	if m.Status != domain.MatchExpired {
		t.Fatalf("status = %s, want EXPIRED", m.Status)
	}
}
