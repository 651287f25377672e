// Package app is the core application service: accounts, profiles, shelves,
// discussion spaces and notifications. Match, call and webhook flows live in
// their own packages and are wired alongside it by the server.
package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"bookworm/internal/util"
	"bookworm/pkg/auth"
	"bookworm/pkg/domain"
	"bookworm/pkg/storage"
	"bookworm/pkg/store"
)

const (
	maxAvatarBytes = 5 << 20
	avatarURLTTL   = 15 * time.Minute
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration
	Store         store.Store
	Sessions      store.SessionStore
	Avatars       storage.ObjectStore
}

// App wires storage, sessions and media together.
type App struct {
	store    store.Store
	sessions store.SessionStore
	avatars  storage.ObjectStore
}

// New constructs the application. Store and Sessions default to Postgres and
// Redis respectively when not injected.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for redis sessions")
		}
		sessionStore = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionTTL)
	}

	return &App{
		store:    dataStore,
		sessions: sessionStore,
		avatars:  cfg.Avatars,
	}, nil
}

// Store exposes the underlying data store to sibling subsystems.
func (a *App) Store() store.Store { return a.store }

// ── accounts ──

// SignUp registers a new reader account and opens a session.
func (a *App) SignUp(email, password, name string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	if strings.TrimSpace(name) == "" {
		return domain.User{}, "", ErrNameRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(name),
		Tier:         domain.TierFree,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("create user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and opens a session.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// UserFromToken resolves a user from a session token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// Logout invalidates the session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// ── profile ──

// ProfileUpdate carries the mutable profile fields. Nil pointers leave the
// current value untouched.
type ProfileUpdate struct {
	Name            *string
	Bio             *string
	Location        *string
	FavoriteGenres  *[]string
	FavoriteAuthors *[]string
}

// UpdateProfile applies a partial profile update and returns the new state.
func (a *App) UpdateProfile(userID string, upd ProfileUpdate) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	if upd.Name != nil {
		if strings.TrimSpace(*upd.Name) == "" {
			return domain.User{}, ErrNameRequired
		}
		user.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Bio != nil {
		user.Bio = strings.TrimSpace(*upd.Bio)
	}
	if upd.Location != nil {
		user.Location = strings.TrimSpace(*upd.Location)
	}
	if upd.FavoriteGenres != nil {
		user.FavoriteGenres = util.NormalizeTags(*upd.FavoriteGenres)
	}
	if upd.FavoriteAuthors != nil {
		user.FavoriteAuthors = util.NormalizeTags(*upd.FavoriteAuthors)
	}
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// UploadAvatar stores the avatar object and records its key on the profile.
func (a *App) UploadAvatar(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (domain.User, error) {
	if a.avatars == nil {
		return domain.User{}, fmt.Errorf("avatar storage not configured")
	}
	if size <= 0 || size > maxAvatarBytes {
		return domain.User{}, ErrAvatarTooLarge
	}
	if !strings.HasPrefix(contentType, "image/") {
		return domain.User{}, ErrAvatarNotAnImage
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	key := fmt.Sprintf("avatars/%s/%s", userID, util.NewID())
	if err := a.avatars.Put(ctx, key, r, size, contentType); err != nil {
		return domain.User{}, fmt.Errorf("store avatar: %w", err)
	}
	old := user.AvatarKey
	user.AvatarKey = key
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	if old != "" {
		// best effort; an orphaned object is only waste
		_ = a.avatars.Delete(ctx, old)
	}
	return user, nil
}

// AvatarURL presigns a short-lived download link for the user's avatar.
func (a *App) AvatarURL(ctx context.Context, user domain.User) (string, error) {
	if a.avatars == nil || user.AvatarKey == "" {
		return "", nil
	}
	return a.avatars.PresignGet(ctx, user.AvatarKey, avatarURLTTL)
}

// ── shelf ──

// AddToShelf records a book on the user's shelf, creating the book row on
// first sight. Books are shared rows keyed by (title, author). Shelving a
// book as FINISHED bumps the reader's yearly count.
func (a *App) AddToShelf(userID, title, author, coverURL string, status domain.ReadingStatus, progress int) (domain.UserBook, error) {
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if title == "" || author == "" {
		return domain.UserBook{}, ErrTitleAndAuthorRequired
	}
	switch status {
	case domain.ReadingWantToRead, domain.ReadingNow, domain.ReadingFinished:
	default:
		return domain.UserBook{}, ErrInvalidReadingStatus
	}
	if progress < 0 || progress > 100 {
		return domain.UserBook{}, ErrInvalidProgress
	}
	if status == domain.ReadingFinished {
		progress = 100
	}

	book, ok, err := a.store.GetBookByTitleAuthor(title, author)
	if err != nil {
		return domain.UserBook{}, fmt.Errorf("fetch book: %w", err)
	}
	if !ok {
		now := time.Now().UTC()
		book = domain.Book{
			ID:        util.NewID(),
			Title:     title,
			Author:    author,
			CoverURL:  strings.TrimSpace(coverURL),
			CreatedAt: now,
		}
		if err := a.store.SaveBook(book); err != nil {
			return domain.UserBook{}, fmt.Errorf("create book: %w", err)
		}
	}

	now := time.Now().UTC()
	entry := domain.UserBook{
		ID:        util.NewID(),
		UserID:    userID,
		BookID:    book.ID,
		Status:    status,
		Progress:  progress,
		Book:      book,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveUserBook(entry); err != nil {
		return domain.UserBook{}, fmt.Errorf("save shelf entry: %w", err)
	}
	if status == domain.ReadingFinished {
		if user, ok, err := a.store.GetUserByID(userID); err == nil && ok {
			user.BooksReadThisYear++
			user.UpdatedAt = now
			if err := a.store.SaveUser(user); err != nil {
				return domain.UserBook{}, fmt.Errorf("update yearly count: %w", err)
			}
		}
	}
	return entry, nil
}

// RemoveFromShelf deletes one shelf entry owned by the user.
func (a *App) RemoveFromShelf(userID, entryID string) error {
	removed, err := a.store.DeleteUserBook(userID, entryID)
	if err != nil {
		return fmt.Errorf("delete shelf entry: %w", err)
	}
	if !removed {
		return ErrShelfEntryNotFound
	}
	return nil
}

// Shelf lists the user's shelf, optionally filtered by reading status.
func (a *App) Shelf(userID string, status domain.ReadingStatus) ([]domain.UserBook, error) {
	if status != "" {
		switch status {
		case domain.ReadingWantToRead, domain.ReadingNow, domain.ReadingFinished:
		default:
			return nil, ErrInvalidReadingStatus
		}
	}
	return a.store.ListUserBooks(userID, status)
}

// ── spaces ──

// CreateSpace opens a discussion space with the creator as OWNER.
func (a *App) CreateSpace(ownerID, name, description, bookID string) (domain.Space, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Space{}, ErrSpaceNameRequired
	}
	now := time.Now().UTC()
	space := domain.Space{
		ID:          util.NewID(),
		OwnerID:     ownerID,
		BookID:      strings.TrimSpace(bookID),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	owner := domain.SpaceMember{
		SpaceID:  space.ID,
		UserID:   ownerID,
		Role:     domain.SpaceRoleOwner,
		JoinedAt: now,
	}
	if err := a.store.CreateSpace(space, owner); err != nil {
		return domain.Space{}, fmt.Errorf("create space: %w", err)
	}
	return space, nil
}

// Space returns one space by id.
func (a *App) Space(id string) (domain.Space, error) {
	space, ok, err := a.store.GetSpace(id)
	if err != nil {
		return domain.Space{}, fmt.Errorf("fetch space: %w", err)
	}
	if !ok {
		return domain.Space{}, ErrSpaceNotFound
	}
	return space, nil
}

// Spaces lists open spaces, newest first.
func (a *App) Spaces(limit int) ([]domain.Space, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return a.store.ListSpaces(limit)
}

// JoinSpace adds the user as MEMBER. Joining twice is a no-op.
func (a *App) JoinSpace(spaceID, userID string) (domain.SpaceMember, error) {
	if _, ok, err := a.store.GetSpace(spaceID); err != nil {
		return domain.SpaceMember{}, fmt.Errorf("fetch space: %w", err)
	} else if !ok {
		return domain.SpaceMember{}, ErrSpaceNotFound
	}
	if existing, ok, err := a.store.GetSpaceMember(spaceID, userID); err != nil {
		return domain.SpaceMember{}, fmt.Errorf("fetch member: %w", err)
	} else if ok {
		return existing, nil
	}
	member := domain.SpaceMember{
		SpaceID:  spaceID,
		UserID:   userID,
		Role:     domain.SpaceRoleMember,
		JoinedAt: time.Now().UTC(),
	}
	if err := a.store.AddSpaceMember(member); err != nil {
		return domain.SpaceMember{}, fmt.Errorf("add member: %w", err)
	}
	return member, nil
}

// PostMessage appends a message to a space the user belongs to.
func (a *App) PostMessage(spaceID, userID, content string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, ErrEmptyMessage
	}
	if err := a.requireMember(spaceID, userID); err != nil {
		return domain.Message{}, err
	}
	msg := domain.Message{
		ID:        util.NewID(),
		SpaceID:   spaceID,
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendMessage(msg); err != nil {
		return domain.Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// Messages lists recent space messages in chronological order.
func (a *App) Messages(spaceID, userID string, limit int) ([]domain.Message, error) {
	if err := a.requireMember(spaceID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	return a.store.ListMessages(spaceID, limit)
}

func (a *App) requireMember(spaceID, userID string) error {
	if _, ok, err := a.store.GetSpace(spaceID); err != nil {
		return fmt.Errorf("fetch space: %w", err)
	} else if !ok {
		return ErrSpaceNotFound
	}
	if _, ok, err := a.store.GetSpaceMember(spaceID, userID); err != nil {
		return fmt.Errorf("fetch member: %w", err)
	} else if !ok {
		return ErrNotSpaceMember
	}
	return nil
}

// ── notifications ──

// Notifications lists the user's notifications, newest first.
func (a *App) Notifications(userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return a.store.ListNotifications(userID, limit)
}

// MarkNotificationsRead flags every unread notification as read.
func (a *App) MarkNotificationsRead(userID string) error {
	return a.store.MarkNotificationsRead(userID)
}
