package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID                string `gorm:"primaryKey"`
	Email             string `gorm:"uniqueIndex;not null"`
	PasswordHash      string `gorm:"not null"`
	Name              string
	Bio               string
	Location          string
	AvatarKey         string
	Tier              string `gorm:"not null;default:FREE"`
	TierExpiresAt     *time.Time
	FavoriteGenres    datatypes.JSON `gorm:"type:jsonb"`
	FavoriteAuthors   datatypes.JSON `gorm:"type:jsonb"`
	BooksReadThisYear int            `gorm:"not null;default:0"`
	CreatedAt         time.Time      `gorm:"not null"`
	UpdatedAt         time.Time
	DeletedAt         *time.Time `gorm:"index"`
}

type BookModel struct {
	ID        string `gorm:"primaryKey"`
	Title     string `gorm:"not null;index"`
	Author    string `gorm:"index"`
	Genre     string
	CoverURL  string
	CreatedAt time.Time `gorm:"not null"`
}

type UserBookModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;uniqueIndex:ux_user_books_user_book,priority:1"`
	BookID    string `gorm:"not null;uniqueIndex:ux_user_books_user_book,priority:2;index"`
	Status    string `gorm:"not null;index"`
	Progress  int    `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
}

type MatchModel struct {
	ID          string `gorm:"primaryKey"`
	SenderID    string `gorm:"not null;uniqueIndex:ux_matches_sender_receiver,priority:1;index"`
	ReceiverID  string `gorm:"not null;uniqueIndex:ux_matches_sender_receiver,priority:2;index"`
	Status      string `gorm:"not null;index"`
	Message     string
	BookContext string
	CreatedAt   time.Time `gorm:"not null;index"`
	UpdatedAt   time.Time `gorm:"index"`
}

type MatchQuotaModel struct {
	UserID    string    `gorm:"primaryKey"`
	UsedToday int       `gorm:"not null;default:0"`
	ResetDate time.Time `gorm:"not null;index"`
}

type SpaceModel struct {
	ID          string `gorm:"primaryKey"`
	OwnerID     string `gorm:"not null;index"`
	BookID      string `gorm:"index"`
	Name        string `gorm:"not null"`
	Description string
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time
}

type SpaceMemberModel struct {
	SpaceID  string    `gorm:"primaryKey"`
	UserID   string    `gorm:"primaryKey"`
	Role     string    `gorm:"not null"`
	JoinedAt time.Time `gorm:"not null"`
}

type MessageModel struct {
	ID        string    `gorm:"primaryKey"`
	SpaceID   string    `gorm:"not null;index"`
	UserID    string    `gorm:"not null"`
	Content   string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type CallSessionModel struct {
	ID              string `gorm:"primaryKey"`
	SpaceID         string `gorm:"not null;index"`
	Provider        string `gorm:"not null"`
	ProviderRoomID  string `gorm:"not null;index"`
	ProviderMeta    datatypes.JSON `gorm:"type:jsonb"`
	Status          string         `gorm:"not null;index"`
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSec     int       `gorm:"not null;default:0"`
	MaxParticipants int       `gorm:"not null;default:20"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time
}

type CallParticipantModel struct {
	ID          string `gorm:"primaryKey"`
	SessionID   string `gorm:"not null;index"`
	UserID      string `gorm:"not null;index"`
	ProviderUID string `gorm:"index"`
	Role        string `gorm:"not null"`
	JoinedAt    time.Time `gorm:"not null"`
	LeftAt      *time.Time
}

type WebhookLogModel struct {
	ID          string `gorm:"primaryKey"`
	Source      string `gorm:"not null;uniqueIndex:ux_webhook_logs_source_external,priority:1"`
	ExternalID  string `gorm:"not null;uniqueIndex:ux_webhook_logs_source_external,priority:2"`
	EventType   string `gorm:"not null;index"`
	Payload     datatypes.JSON `gorm:"type:jsonb"`
	Status      string         `gorm:"not null;index"`
	Error       string
	ProcessedAt *time.Time
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time
}

type NotificationModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Type      string    `gorm:"not null"`
	Title     string    `gorm:"not null"`
	Body      string    `gorm:"not null"`
	Read      bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null;index"`
}
