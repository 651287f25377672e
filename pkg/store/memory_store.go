package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"bookworm/pkg/domain"
)

// MemoryStore is an in-memory Store used by tests and local development.
// It mirrors the relational semantics of GormStore, including the unique
// constraints that back idempotency.
type MemoryStore struct {
	mu           sync.Mutex
	users        map[string]domain.User
	books        map[string]domain.Book
	userBooks    map[string]domain.UserBook
	matches      map[string]domain.Match
	quotas       map[string]domain.MatchQuota
	spaces       map[string]domain.Space
	members      map[string]domain.SpaceMember // key spaceID|userID
	messages     []domain.Message
	sessions     map[string]domain.CallSession
	participants map[string]domain.CallParticipant
	webhookLogs  map[string]domain.WebhookLog // key source|externalID
	notes        []domain.Notification
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]domain.User),
		books:        make(map[string]domain.Book),
		userBooks:    make(map[string]domain.UserBook),
		matches:      make(map[string]domain.Match),
		quotas:       make(map[string]domain.MatchQuota),
		spaces:       make(map[string]domain.Space),
		members:      make(map[string]domain.SpaceMember),
		sessions:     make(map[string]domain.CallSession),
		participants: make(map[string]domain.CallParticipant),
		webhookLogs:  make(map[string]domain.WebhookLog),
	}
}

func memberKey(spaceID, userID string) string { return spaceID + "|" + userID }
func logKey(source domain.VoipProvider, externalID string) string {
	return string(source) + "|" + externalID
}

// ── users ──

func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email && u.DeletedAt == nil {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.DeletedAt != nil {
		return domain.User{}, false, nil
	}
	return u, true, nil
}

func (s *MemoryStore) ListCandidates(filter CandidateFilter) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	excluded := make(map[string]struct{}, len(filter.ExcludeIDs))
	for _, id := range filter.ExcludeIDs {
		excluded[id] = struct{}{}
	}
	bookIDs := make(map[string]struct{}, len(filter.BookIDs))
	for _, id := range filter.BookIDs {
		bookIDs[id] = struct{}{}
	}

	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]domain.User, 0, limit)
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		u := s.users[id]
		if u.DeletedAt != nil {
			continue
		}
		if _, skip := excluded[u.ID]; skip {
			continue
		}
		match := false
		for _, ub := range s.userBooks {
			if ub.UserID == u.ID && ub.Status == domain.ReadingNow {
				if _, ok := bookIDs[ub.BookID]; ok {
					match = true
					break
				}
			}
		}
		if !match && overlaps(u.FavoriteAuthors, filter.Authors) {
			match = true
		}
		if !match && overlaps(u.FavoriteGenres, filter.Genres) {
			match = true
		}
		if match {
			out = append(out, u)
		}
	}
	return out, nil
}

func overlaps(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[strings.ToLower(v)] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[strings.ToLower(v)]; ok {
			return true
		}
	}
	return false
}

// ── shelf ──

func (s *MemoryStore) SaveBook(b domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.books[b.ID]; !ok {
		s.books[b.ID] = b
	}
	return nil
}

func (s *MemoryStore) GetBookByTitleAuthor(title, author string) (domain.Book, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.books {
		if b.Title == title && b.Author == author {
			return b, true, nil
		}
	}
	return domain.Book{}, false, nil
}

func (s *MemoryStore) SaveUserBook(ub domain.UserBook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.userBooks {
		if existing.UserID == ub.UserID && existing.BookID == ub.BookID {
			existing.Status = ub.Status
			existing.Progress = ub.Progress
			existing.UpdatedAt = ub.UpdatedAt
			s.userBooks[id] = existing
			return nil
		}
	}
	s.userBooks[ub.ID] = ub
	return nil
}

func (s *MemoryStore) DeleteUserBook(userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ub, ok := s.userBooks[id]
	if !ok || ub.UserID != userID {
		return false, nil
	}
	delete(s.userBooks, id)
	return true, nil
}

func (s *MemoryStore) ListUserBooks(userID string, status domain.ReadingStatus) ([]domain.UserBook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserBook, 0)
	for _, ub := range s.userBooks {
		if ub.UserID != userID {
			continue
		}
		if status != "" && ub.Status != status {
			continue
		}
		if b, ok := s.books[ub.BookID]; ok {
			ub.Book = b
		}
		out = append(out, ub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ── matches ──

func (s *MemoryStore) CreateMatch(m domain.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.matches {
		if existing.SenderID == m.SenderID && existing.ReceiverID == m.ReceiverID {
			return ErrDuplicate
		}
	}
	s.matches[m.ID] = m
	return nil
}

func (s *MemoryStore) GetMatchBetween(senderID, receiverID string) (domain.Match, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.matches {
		if m.SenderID == senderID && m.ReceiverID == receiverID {
			return m, true, nil
		}
	}
	return domain.Match{}, false, nil
}

func (s *MemoryStore) SetMatchStatus(id string, status domain.MatchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil
	}
	m.Status = status
	m.UpdatedAt = time.Now().UTC()
	s.matches[id] = m
	return nil
}

func (s *MemoryStore) ListMatchedUserIDs(userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, m := range s.matches {
		var other string
		switch {
		case m.SenderID == userID:
			other = m.ReceiverID
		case m.ReceiverID == userID:
			other = m.SenderID
		default:
			continue
		}
		if _, ok := seen[other]; ok {
			continue
		}
		seen[other] = struct{}{}
		out = append(out, other)
	}
	return out, nil
}

func (s *MemoryStore) ListAcceptedMatches(userID string) ([]domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Match, 0)
	for _, m := range s.matches {
		if m.Status != domain.MatchAccepted {
			continue
		}
		if m.SenderID == userID || m.ReceiverID == userID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) ExpirePendingMatches(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, m := range s.matches {
		if m.Status == domain.MatchPending && m.CreatedAt.Before(cutoff) {
			m.Status = domain.MatchExpired
			m.UpdatedAt = time.Now().UTC()
			s.matches[id] = m
			n++
		}
	}
	return n, nil
}

// ── match quota ──

func (s *MemoryStore) GetQuota(userID string) (domain.MatchQuota, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[userID]
	return q, ok, nil
}

func (s *MemoryStore) IncrementQuota(userID string, today time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[userID]
	if !ok || q.ResetDate.Before(today) {
		s.quotas[userID] = domain.MatchQuota{UserID: userID, UsedToday: 1, ResetDate: today}
		return nil
	}
	q.UsedToday++
	s.quotas[userID] = q
	return nil
}

func (s *MemoryStore) ResetStaleQuotas(today time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, q := range s.quotas {
		if q.ResetDate.Before(today) {
			q.UsedToday = 0
			q.ResetDate = today
			s.quotas[id] = q
			n++
		}
	}
	return n, nil
}

// ── spaces ──

func (s *MemoryStore) CreateSpace(space domain.Space, owner domain.SpaceMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spaces[space.ID] = space
	s.members[memberKey(owner.SpaceID, owner.UserID)] = owner
	return nil
}

func (s *MemoryStore) GetSpace(id string) (domain.Space, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.spaces[id]
	return sp, ok, nil
}

func (s *MemoryStore) ListSpaces(limit int) ([]domain.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]domain.Space, 0, len(s.spaces))
	for _, sp := range s.spaces {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AddSpaceMember(m domain.SpaceMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey(m.SpaceID, m.UserID)
	if _, ok := s.members[key]; ok {
		return nil
	}
	s.members[key] = m
	return nil
}

func (s *MemoryStore) GetSpaceMember(spaceID, userID string) (domain.SpaceMember, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberKey(spaceID, userID)]
	return m, ok, nil
}

func (s *MemoryStore) ListSpaceMembers(spaceID string) ([]domain.SpaceMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SpaceMember, 0)
	for _, m := range s.members {
		if m.SpaceID == spaceID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *MemoryStore) AppendMessage(m domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *MemoryStore) ListMessages(spaceID string, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]domain.Message, 0)
	for _, m := range s.messages {
		if m.SpaceID == spaceID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// ── call sessions ──

func (s *MemoryStore) CreateCallSession(cs domain.CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[cs.ID] = cs
	return nil
}

func (s *MemoryStore) GetCallSessionBySpace(spaceID string) (domain.CallSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest domain.CallSession
	found := false
	for _, cs := range s.sessions {
		if cs.SpaceID != spaceID {
			continue
		}
		if !found || cs.CreatedAt.After(latest.CreatedAt) {
			latest = cs
			found = true
		}
	}
	return latest, found, nil
}

func (s *MemoryStore) GetActiveCallSessionByRoom(roomID string) (domain.CallSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cs := range s.sessions {
		if cs.ProviderRoomID == roomID && (cs.Status == domain.CallWaiting || cs.Status == domain.CallLive) {
			return cs, true, nil
		}
	}
	return domain.CallSession{}, false, nil
}

func (s *MemoryStore) MarkCallSessionLive(id string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok || cs.Status != domain.CallWaiting {
		return nil
	}
	cs.Status = domain.CallLive
	started := startedAt
	cs.StartedAt = &started
	cs.UpdatedAt = time.Now().UTC()
	s.sessions[id] = cs
	return nil
}

func (s *MemoryStore) EndCallSession(id string, endedAt time.Time, durationSec int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs, ok := s.sessions[id]
	if !ok {
		return nil
	}
	cs.Status = domain.CallEnded
	ended := endedAt
	cs.EndedAt = &ended
	cs.DurationSec = durationSec
	cs.UpdatedAt = time.Now().UTC()
	s.sessions[id] = cs
	return nil
}

func (s *MemoryStore) CreateCallParticipant(p domain.CallParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.ID] = p
	return nil
}

func (s *MemoryStore) GetLatestCallParticipant(sessionID, userID string) (domain.CallParticipant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest domain.CallParticipant
	found := false
	for _, p := range s.participants {
		if p.SessionID != sessionID || p.UserID != userID {
			continue
		}
		if !found || p.JoinedAt.After(latest.JoinedAt) {
			latest = p
			found = true
		}
	}
	return latest, found, nil
}

func (s *MemoryStore) RejoinCallParticipant(id, providerUID string, joinedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return nil
	}
	p.JoinedAt = joinedAt
	p.LeftAt = nil
	if providerUID != "" {
		p.ProviderUID = providerUID
	}
	s.participants[id] = p
	return nil
}

func (s *MemoryStore) CloseOpenCallParticipants(sessionID string, leftAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.participants {
		if p.SessionID == sessionID && p.LeftAt == nil {
			left := leftAt
			p.LeftAt = &left
			s.participants[id] = p
		}
	}
	return nil
}

func (s *MemoryStore) CloseCallParticipantByUID(sessionID, providerUID string, leftAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.participants {
		if p.SessionID == sessionID && p.ProviderUID == providerUID && p.LeftAt == nil {
			left := leftAt
			p.LeftAt = &left
			s.participants[id] = p
		}
	}
	return nil
}

// ── webhook ledger ──

func (s *MemoryStore) GetWebhookLog(source domain.VoipProvider, externalID string) (domain.WebhookLog, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.webhookLogs[logKey(source, externalID)]
	return l, ok, nil
}

func (s *MemoryStore) UpsertWebhookLog(l domain.WebhookLog) (domain.WebhookLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := logKey(l.Source, l.ExternalID)
	if existing, ok := s.webhookLogs[key]; ok {
		existing.Payload = l.Payload
		existing.Status = l.Status
		existing.UpdatedAt = time.Now().UTC()
		s.webhookLogs[key] = existing
		return existing, nil
	}
	s.webhookLogs[key] = l
	return l, nil
}

func (s *MemoryStore) SetWebhookLogStatus(id string, status domain.WebhookStatus, errMsg string, processedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, l := range s.webhookLogs {
		if l.ID == id {
			l.Status = status
			l.Error = errMsg
			l.ProcessedAt = processedAt
			l.UpdatedAt = time.Now().UTC()
			s.webhookLogs[key] = l
			return nil
		}
	}
	return nil
}

// ── notifications ──

func (s *MemoryStore) CreateNotifications(items []domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, items...)
	return nil
}

func (s *MemoryStore) ListNotifications(userID string, limit int) ([]domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]domain.Notification, 0)
	for _, n := range s.notes {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkNotificationsRead(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notes {
		if n.UserID == userID && !n.Read {
			s.notes[i].Read = true
		}
	}
	return nil
}
