package domain

import "time"

type Tier string

const (
	TierFree    Tier = "FREE"
	TierPremium Tier = "PREMIUM"
)

type ReadingStatus string

const (
	ReadingWantToRead ReadingStatus = "WANT_TO_READ"
	ReadingNow        ReadingStatus = "READING"
	ReadingFinished   ReadingStatus = "FINISHED"
)

type MatchStatus string

const (
	MatchPending  MatchStatus = "PENDING"
	MatchAccepted MatchStatus = "ACCEPTED"
	MatchRejected MatchStatus = "REJECTED"
	MatchExpired  MatchStatus = "EXPIRED"
)

type SpaceRole string

const (
	SpaceRoleOwner     SpaceRole = "OWNER"
	SpaceRoleModerator SpaceRole = "MODERATOR"
	SpaceRoleMember    SpaceRole = "MEMBER"
)

type CallStatus string

const (
	CallWaiting CallStatus = "WAITING"
	CallLive    CallStatus = "LIVE"
	CallEnded   CallStatus = "ENDED"
)

type CallRole string

const (
	CallRoleHost     CallRole = "HOST"
	CallRoleListener CallRole = "LISTENER"
)

type VoipProvider string

const (
	ProviderDaily   VoipProvider = "DAILY"
	ProviderLiveKit VoipProvider = "LIVEKIT"
	ProviderAgora   VoipProvider = "AGORA"
	ProviderTwilio  VoipProvider = "TWILIO"
)

type WebhookStatus string

const (
	WebhookPending   WebhookStatus = "PENDING"
	WebhookProcessed WebhookStatus = "PROCESSED"
	WebhookFailed    WebhookStatus = "FAILED"
)

type NotificationType string

const (
	NotifyMatchRequest  NotificationType = "MATCH_REQUEST"
	NotifyMatchAccepted NotificationType = "MATCH_ACCEPTED"
	NotifyCallStarted   NotificationType = "CALL_STARTED"
)

type User struct {
	ID                string     `json:"id"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Name              string     `json:"name"`
	Bio               string     `json:"bio,omitempty"`
	Location          string     `json:"location,omitempty"`
	AvatarKey         string     `json:"-"`
	Tier              Tier       `json:"tier"`
	TierExpiresAt     *time.Time `json:"tierExpiresAt,omitempty"`
	FavoriteGenres    []string   `json:"favoriteGenres"`
	FavoriteAuthors   []string   `json:"favoriteAuthors"`
	BooksReadThisYear int        `json:"booksReadThisYear"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	DeletedAt         *time.Time `json:"-"`
}

// PremiumActive reports whether the user currently has an active premium
// subscription. An expired tierExpiresAt demotes the user to free behavior.
func (u User) PremiumActive(now time.Time) bool {
	if u.Tier != TierPremium {
		return false
	}
	return u.TierExpiresAt == nil || u.TierExpiresAt.After(now)
}

type Book struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Genre     string    `json:"genre,omitempty"`
	CoverURL  string    `json:"coverUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserBook struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	BookID    string        `json:"bookId"`
	Status    ReadingStatus `json:"status"`
	Progress  int           `json:"progress"`
	Book      Book          `json:"book"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Match is a directed like/pass edge. A mutual match is represented by two
// rows, one per direction, both ACCEPTED.
type Match struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"senderId"`
	ReceiverID  string      `json:"receiverId"`
	Status      MatchStatus `json:"status"`
	Message     string      `json:"message,omitempty"`
	BookContext string      `json:"bookContext,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// MatchQuota tracks daily match actions for one user. ResetDate is midnight of
// the day UsedToday applies to; a stale ResetDate means the counter is zero.
type MatchQuota struct {
	UserID    string    `json:"userId"`
	UsedToday int       `json:"usedToday"`
	ResetDate time.Time `json:"resetDate"`
}

type Space struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	BookID      string    `json:"bookId,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type SpaceMember struct {
	SpaceID  string    `json:"spaceId"`
	UserID   string    `json:"userId"`
	Role     SpaceRole `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Message struct {
	ID        string    `json:"id"`
	SpaceID   string    `json:"spaceId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// CallSession is the lifecycle record of one call, 1:1 with its space while
// WAITING or LIVE. ENDED sessions are kept for history; starting a new call on
// a space with only an ENDED session creates a fresh row.
type CallSession struct {
	ID              string            `json:"id"`
	SpaceID         string            `json:"spaceId"`
	Provider        VoipProvider      `json:"provider"`
	ProviderRoomID  string            `json:"roomId"`
	ProviderMeta    map[string]string `json:"meta,omitempty"`
	Status          CallStatus        `json:"status"`
	StartedAt       *time.Time        `json:"startedAt,omitempty"`
	EndedAt         *time.Time        `json:"endedAt,omitempty"`
	DurationSec     int               `json:"durationSec"`
	MaxParticipants int               `json:"maxParticipants"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// CallParticipant records one join attempt. Reconnects refresh JoinedAt and
// clear LeftAt on the latest row rather than creating a new one.
type CallParticipant struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"sessionId"`
	UserID      string     `json:"userId"`
	ProviderUID string     `json:"providerUid,omitempty"`
	Role        CallRole   `json:"role"`
	JoinedAt    time.Time  `json:"joinedAt"`
	LeftAt      *time.Time `json:"leftAt,omitempty"`
}

// WebhookLog is the idempotency and audit ledger for inbound vendor events,
// unique on (source, externalId).
type WebhookLog struct {
	ID          string        `json:"id"`
	Source      VoipProvider  `json:"source"`
	ExternalID  string        `json:"externalId"`
	EventType   string        `json:"eventType"`
	Payload     []byte        `json:"-"`
	Status      WebhookStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
	ProcessedAt *time.Time    `json:"processedAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}
