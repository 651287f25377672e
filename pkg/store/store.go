package store

import (
	"errors"
	"time"

	"bookworm/pkg/domain"
)

// Sentinel errors shared by all Store implementations.
var (
	// ErrDuplicate maps unique-constraint collisions (duplicate like, replayed
	// webhook insert) to a store-level sentinel.
	ErrDuplicate = errors.New("duplicate row")
)

// CandidateFilter describes the OR-union candidate pool for match discovery:
// users sharing a currently-reading book, a favorite author, or a favorite
// genre with the requester.
type CandidateFilter struct {
	ExcludeIDs []string
	BookIDs    []string
	Authors    []string
	Genres     []string
	Limit      int
}

// Store defines persistence operations for the whole application.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	ListCandidates(filter CandidateFilter) ([]domain.User, error)

	// shelf
	SaveBook(domain.Book) error
	GetBookByTitleAuthor(title, author string) (domain.Book, bool, error)
	SaveUserBook(domain.UserBook) error
	DeleteUserBook(userID, id string) (bool, error)
	ListUserBooks(userID string, status domain.ReadingStatus) ([]domain.UserBook, error)

	// matches
	CreateMatch(domain.Match) error
	GetMatchBetween(senderID, receiverID string) (domain.Match, bool, error)
	SetMatchStatus(id string, status domain.MatchStatus) error
	ListMatchedUserIDs(userID string) ([]string, error)
	ListAcceptedMatches(userID string) ([]domain.Match, error)
	ExpirePendingMatches(cutoff time.Time) (int64, error)

	// match quota
	GetQuota(userID string) (domain.MatchQuota, bool, error)
	IncrementQuota(userID string, today time.Time) error
	ResetStaleQuotas(today time.Time) (int64, error)

	// spaces
	CreateSpace(space domain.Space, owner domain.SpaceMember) error
	GetSpace(id string) (domain.Space, bool, error)
	ListSpaces(limit int) ([]domain.Space, error)
	AddSpaceMember(domain.SpaceMember) error
	GetSpaceMember(spaceID, userID string) (domain.SpaceMember, bool, error)
	ListSpaceMembers(spaceID string) ([]domain.SpaceMember, error)
	AppendMessage(domain.Message) error
	ListMessages(spaceID string, limit int) ([]domain.Message, error)

	// call sessions
	CreateCallSession(domain.CallSession) error
	GetCallSessionBySpace(spaceID string) (domain.CallSession, bool, error)
	GetActiveCallSessionByRoom(roomID string) (domain.CallSession, bool, error)
	MarkCallSessionLive(id string, startedAt time.Time) error
	EndCallSession(id string, endedAt time.Time, durationSec int) error
	CreateCallParticipant(domain.CallParticipant) error
	GetLatestCallParticipant(sessionID, userID string) (domain.CallParticipant, bool, error)
	RejoinCallParticipant(id, providerUID string, joinedAt time.Time) error
	CloseOpenCallParticipants(sessionID string, leftAt time.Time) error
	CloseCallParticipantByUID(sessionID, providerUID string, leftAt time.Time) error

	// webhook ledger
	GetWebhookLog(source domain.VoipProvider, externalID string) (domain.WebhookLog, bool, error)
	UpsertWebhookLog(domain.WebhookLog) (domain.WebhookLog, error)
	SetWebhookLogStatus(id string, status domain.WebhookStatus, errMsg string, processedAt *time.Time) error

	// notifications
	CreateNotifications([]domain.Notification) error
	ListNotifications(userID string, limit int) ([]domain.Notification, error)
	MarkNotificationsRead(userID string) error
}

// SessionStore persists opaque session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
