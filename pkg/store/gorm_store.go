package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"bookworm/pkg/domain"
)

const migrateLockID int64 = 48125541

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock so
// multiple instances can boot concurrently.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		return tx.AutoMigrate(
			&UserModel{},
			&BookModel{},
			&UserBookModel{},
			&MatchModel{},
			&MatchQuotaModel{},
			&SpaceModel{},
			&SpaceMemberModel{},
			&MessageModel{},
			&CallSessionModel{},
			&CallParticipantModel{},
			&WebhookLogModel{},
			&NotificationModel{},
		)
	}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// ── users ──

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email", "password_hash", "name", "bio", "location", "avatar_key",
			"tier", "tier_expires_at", "favorite_genres", "favorite_authors",
			"books_read_this_year", "updated_at", "deleted_at",
		}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a non-deleted user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ? AND deleted_at IS NULL", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a non-deleted user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("id = ? AND deleted_at IS NULL", id).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListCandidates fetches the OR-union candidate pool: users who share a
// currently-reading book, a favorite author, or a favorite genre. The three
// filters run as separate queries and are merged in insertion order up to the
// pool limit.
func (s *GormStore) ListCandidates(filter CandidateFilter) ([]domain.User, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	exclude := filter.ExcludeIDs
	if len(exclude) == 0 {
		exclude = []string{""}
	}

	seen := make(map[string]struct{}, limit)
	out := make([]domain.User, 0, limit)
	merge := func(models []UserModel) {
		for _, m := range models {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			if len(out) >= limit {
				return
			}
			seen[m.ID] = struct{}{}
			out = append(out, userFromModel(m))
		}
	}

	if len(filter.BookIDs) > 0 {
		var models []UserModel
		err := s.db.
			Where("id NOT IN ? AND deleted_at IS NULL", exclude).
			Where(`EXISTS (
				SELECT 1 FROM user_book_models ub
				WHERE ub.user_id = user_models.id AND ub.status = ? AND ub.book_id IN ?
			)`, string(domain.ReadingNow), filter.BookIDs).
			Limit(limit).
			Find(&models).Error
		if err != nil {
			return nil, err
		}
		merge(models)
	}
	if len(out) < limit && len(filter.Authors) > 0 {
		models, err := s.listByJSONOverlap("favorite_authors", filter.Authors, exclude, limit)
		if err != nil {
			return nil, err
		}
		merge(models)
	}
	if len(out) < limit && len(filter.Genres) > 0 {
		models, err := s.listByJSONOverlap("favorite_genres", filter.Genres, exclude, limit)
		if err != nil {
			return nil, err
		}
		merge(models)
	}
	return out, nil
}

func (s *GormStore) listByJSONOverlap(column string, values, exclude []string, limit int) ([]UserModel, error) {
	placeholders := make([]string, len(values))
	args := make([]any, 0, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args = append(args, v)
	}
	cond := fmt.Sprintf("jsonb_exists_any(%s, ARRAY[%s])", column, strings.Join(placeholders, ","))
	var models []UserModel
	err := s.db.
		Where("id NOT IN ? AND deleted_at IS NULL", exclude).
		Where(cond, args...).
		Limit(limit).
		Find(&models).Error
	return models, err
}

// ── shelf ──

// SaveBook stores a book if absent (title/author catalog entry).
func (s *GormStore) SaveBook(b domain.Book) error {
	model := bookToModel(b)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&model).Error
}

// GetBookByTitleAuthor finds a catalog entry for dedupe on shelf add.
func (s *GormStore) GetBookByTitleAuthor(title, author string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.Where("title = ? AND author = ?", title, author).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// SaveUserBook upserts one shelf row per (user, book).
func (s *GormStore) SaveUserBook(ub domain.UserBook) error {
	model := userBookToModel(ub)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "book_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "progress", "updated_at"}),
	}).Create(&model).Error
}

// DeleteUserBook removes a shelf row owned by the user.
func (s *GormStore) DeleteUserBook(userID, id string) (bool, error) {
	res := s.db.Delete(&UserBookModel{}, "id = ? AND user_id = ?", id, userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListUserBooks returns shelf rows with their catalog book, optionally
// filtered by reading status.
func (s *GormStore) ListUserBooks(userID string, status domain.ReadingStatus) ([]domain.UserBook, error) {
	tx := s.db.Where("user_id = ?", userID)
	if status != "" {
		tx = tx.Where("status = ?", string(status))
	}
	var models []UserBookModel
	if err := tx.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return []domain.UserBook{}, nil
	}
	bookIDs := make([]string, 0, len(models))
	for _, m := range models {
		bookIDs = append(bookIDs, m.BookID)
	}
	var books []BookModel
	if err := s.db.Where("id IN ?", bookIDs).Find(&books).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]BookModel, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}
	out := make([]domain.UserBook, 0, len(models))
	for _, m := range models {
		ub := userBookFromModel(m)
		if b, ok := byID[m.BookID]; ok {
			ub.Book = bookFromModel(b)
		}
		out = append(out, ub)
	}
	return out, nil
}

// ── matches ──

// CreateMatch inserts a directed match row. A second row for the same
// (sender, receiver) pair fails with ErrDuplicate.
func (s *GormStore) CreateMatch(m domain.Match) error {
	model := matchToModel(m)
	if err := s.db.Create(&model).Error; err != nil {
		if err == gorm.ErrDuplicatedKey {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetMatchBetween returns the row sent from senderID to receiverID.
func (s *GormStore) GetMatchBetween(senderID, receiverID string) (domain.Match, bool, error) {
	var model MatchModel
	if err := s.db.Where("sender_id = ? AND receiver_id = ?", senderID, receiverID).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Match{}, false, nil
		}
		return domain.Match{}, false, err
	}
	return matchFromModel(model), true, nil
}

// SetMatchStatus updates one row's status.
func (s *GormStore) SetMatchStatus(id string, status domain.MatchStatus) error {
	return s.db.Model(&MatchModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}).Error
}

// ListMatchedUserIDs returns every counterpart the user has a match row with,
// either direction, any status. Used to exclude already-seen candidates.
func (s *GormStore) ListMatchedUserIDs(userID string) ([]string, error) {
	var models []MatchModel
	if err := s.db.
		Select("sender_id", "receiver_id").
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Find(&models).Error; err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(models))
	out := make([]string, 0, len(models))
	for _, m := range models {
		other := m.SenderID
		if other == userID {
			other = m.ReceiverID
		}
		if _, ok := seen[other]; ok {
			continue
		}
		seen[other] = struct{}{}
		out = append(out, other)
	}
	return out, nil
}

// ListAcceptedMatches returns all ACCEPTED rows involving the user, most
// recently updated first.
func (s *GormStore) ListAcceptedMatches(userID string) ([]domain.Match, error) {
	var models []MatchModel
	if err := s.db.
		Where("status = ? AND (sender_id = ? OR receiver_id = ?)", string(domain.MatchAccepted), userID, userID).
		Order("updated_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Match, 0, len(models))
	for _, m := range models {
		out = append(out, matchFromModel(m))
	}
	return out, nil
}

// ExpirePendingMatches flips PENDING rows older than cutoff to EXPIRED and
// returns the affected count.
func (s *GormStore) ExpirePendingMatches(cutoff time.Time) (int64, error) {
	res := s.db.Model(&MatchModel{}).
		Where("status = ? AND created_at < ?", string(domain.MatchPending), cutoff).
		Updates(map[string]any{
			"status":     string(domain.MatchExpired),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// ── match quota ──

// GetQuota returns the quota row for a user when present.
func (s *GormStore) GetQuota(userID string) (domain.MatchQuota, bool, error) {
	var model MatchQuotaModel
	if err := s.db.First(&model, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.MatchQuota{}, false, nil
		}
		return domain.MatchQuota{}, false, err
	}
	return quotaFromModel(model), true, nil
}

// IncrementQuota bumps the daily counter in one upsert so concurrent swipes
// never lose updates. A stale reset_date restarts the counter at 1 for today.
func (s *GormStore) IncrementQuota(userID string, today time.Time) error {
	return s.db.Exec(`
		INSERT INTO match_quota_models (user_id, used_today, reset_date)
		VALUES (?, 1, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			used_today = CASE
				WHEN match_quota_models.reset_date < EXCLUDED.reset_date THEN 1
				ELSE match_quota_models.used_today + 1
			END,
			reset_date = GREATEST(match_quota_models.reset_date, EXCLUDED.reset_date)
	`, userID, today).Error
}

// ResetStaleQuotas zeroes every counter whose reset_date precedes today.
func (s *GormStore) ResetStaleQuotas(today time.Time) (int64, error) {
	res := s.db.Model(&MatchQuotaModel{}).
		Where("reset_date < ?", today).
		Updates(map[string]any{
			"used_today": 0,
			"reset_date": today,
		})
	return res.RowsAffected, res.Error
}

// ── spaces ──

// CreateSpace inserts the space and its owner membership atomically.
func (s *GormStore) CreateSpace(space domain.Space, owner domain.SpaceMember) error {
	spaceModel := spaceToModel(space)
	ownerModel := spaceMemberToModel(owner)
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&spaceModel).Error; err != nil {
			return err
		}
		return tx.Create(&ownerModel).Error
	})
}

// GetSpace retrieves a space.
func (s *GormStore) GetSpace(id string) (domain.Space, bool, error) {
	var model SpaceModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Space{}, false, nil
		}
		return domain.Space{}, false, err
	}
	return spaceFromModel(model), true, nil
}

// ListSpaces returns recent spaces.
func (s *GormStore) ListSpaces(limit int) ([]domain.Space, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []SpaceModel
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Space, 0, len(models))
	for _, m := range models {
		out = append(out, spaceFromModel(m))
	}
	return out, nil
}

// AddSpaceMember joins a user to a space; re-joins keep the existing row.
func (s *GormStore) AddSpaceMember(m domain.SpaceMember) error {
	model := spaceMemberToModel(m)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "space_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&model).Error
}

// GetSpaceMember returns a membership row when present.
func (s *GormStore) GetSpaceMember(spaceID, userID string) (domain.SpaceMember, bool, error) {
	var model SpaceMemberModel
	if err := s.db.First(&model, "space_id = ? AND user_id = ?", spaceID, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.SpaceMember{}, false, nil
		}
		return domain.SpaceMember{}, false, err
	}
	return spaceMemberFromModel(model), true, nil
}

// ListSpaceMembers returns all memberships of a space in join order.
func (s *GormStore) ListSpaceMembers(spaceID string) ([]domain.SpaceMember, error) {
	var models []SpaceMemberModel
	if err := s.db.Where("space_id = ?", spaceID).Order("joined_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.SpaceMember, 0, len(models))
	for _, m := range models {
		out = append(out, spaceMemberFromModel(m))
	}
	return out, nil
}

// AppendMessage records a space message.
func (s *GormStore) AppendMessage(m domain.Message) error {
	model := messageToModel(m)
	return s.db.Create(&model).Error
}

// ListMessages returns recent messages in chronological order.
func (s *GormStore) ListMessages(spaceID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []MessageModel
	if err := s.db.Where("space_id = ?", spaceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, messageFromModel(models[i]))
	}
	return msgs, nil
}

// ── call sessions ──

// CreateCallSession persists a fresh WAITING session.
func (s *GormStore) CreateCallSession(cs domain.CallSession) error {
	model := callSessionToModel(cs)
	return s.db.Create(&model).Error
}

// GetCallSessionBySpace returns the most recent session for a space.
func (s *GormStore) GetCallSessionBySpace(spaceID string) (domain.CallSession, bool, error) {
	var model CallSessionModel
	if err := s.db.Where("space_id = ?", spaceID).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.CallSession{}, false, nil
		}
		return domain.CallSession{}, false, err
	}
	return callSessionFromModel(model), true, nil
}

// GetActiveCallSessionByRoom resolves a WAITING or LIVE session by the
// provider's room identifier. Used by webhook side effects.
func (s *GormStore) GetActiveCallSessionByRoom(roomID string) (domain.CallSession, bool, error) {
	var model CallSessionModel
	err := s.db.Where("provider_room_id = ? AND status IN ?", roomID,
		[]string{string(domain.CallWaiting), string(domain.CallLive)}).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.CallSession{}, false, nil
		}
		return domain.CallSession{}, false, err
	}
	return callSessionFromModel(model), true, nil
}

// MarkCallSessionLive transitions WAITING to LIVE; a no-op when the session
// already left WAITING (concurrent first joins race harmlessly).
func (s *GormStore) MarkCallSessionLive(id string, startedAt time.Time) error {
	return s.db.Model(&CallSessionModel{}).
		Where("id = ? AND status = ?", id, string(domain.CallWaiting)).
		Updates(map[string]any{
			"status":     string(domain.CallLive),
			"started_at": startedAt,
			"updated_at": time.Now().UTC(),
		}).Error
}

// EndCallSession marks the session ENDED with its duration.
func (s *GormStore) EndCallSession(id string, endedAt time.Time, durationSec int) error {
	return s.db.Model(&CallSessionModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       string(domain.CallEnded),
			"ended_at":     endedAt,
			"duration_sec": durationSec,
			"updated_at":   time.Now().UTC(),
		}).Error
}

// CreateCallParticipant records a first join.
func (s *GormStore) CreateCallParticipant(p domain.CallParticipant) error {
	model := callParticipantToModel(p)
	return s.db.Create(&model).Error
}

// GetLatestCallParticipant returns the newest row for (session, user).
func (s *GormStore) GetLatestCallParticipant(sessionID, userID string) (domain.CallParticipant, bool, error) {
	var model CallParticipantModel
	err := s.db.Where("session_id = ? AND user_id = ?", sessionID, userID).
		Order("joined_at DESC").
		First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.CallParticipant{}, false, nil
		}
		return domain.CallParticipant{}, false, err
	}
	return callParticipantFromModel(model), true, nil
}

// RejoinCallParticipant refreshes a row for a reconnect.
func (s *GormStore) RejoinCallParticipant(id, providerUID string, joinedAt time.Time) error {
	updates := map[string]any{
		"joined_at": joinedAt,
		"left_at":   nil,
	}
	if providerUID != "" {
		updates["provider_uid"] = providerUID
	}
	return s.db.Model(&CallParticipantModel{}).Where("id = ?", id).Updates(updates).Error
}

// CloseOpenCallParticipants stamps left_at on every still-open row.
func (s *GormStore) CloseOpenCallParticipants(sessionID string, leftAt time.Time) error {
	return s.db.Model(&CallParticipantModel{}).
		Where("session_id = ? AND left_at IS NULL", sessionID).
		Update("left_at", leftAt).Error
}

// CloseCallParticipantByUID closes the open row matching a provider uid.
func (s *GormStore) CloseCallParticipantByUID(sessionID, providerUID string, leftAt time.Time) error {
	return s.db.Model(&CallParticipantModel{}).
		Where("session_id = ? AND provider_uid = ? AND left_at IS NULL", sessionID, providerUID).
		Update("left_at", leftAt).Error
}

// ── webhook ledger ──

// GetWebhookLog fetches the ledger row for (source, externalId).
func (s *GormStore) GetWebhookLog(source domain.VoipProvider, externalID string) (domain.WebhookLog, bool, error) {
	var model WebhookLogModel
	err := s.db.Where("source = ? AND external_id = ?", string(source), externalID).First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.WebhookLog{}, false, nil
		}
		return domain.WebhookLog{}, false, err
	}
	return webhookLogFromModel(model), true, nil
}

// UpsertWebhookLog inserts or refreshes the ledger row for an inbound event,
// leaving it PENDING. The unique (source, external_id) key makes concurrent
// deliveries of the same event converge on one row.
func (s *GormStore) UpsertWebhookLog(l domain.WebhookLog) (domain.WebhookLog, error) {
	model := webhookLogToModel(l)
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}, {Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "status", "updated_at"}),
	}).Create(&model).Error
	if err != nil {
		return domain.WebhookLog{}, err
	}
	stored, _, err := s.GetWebhookLog(l.Source, l.ExternalID)
	return stored, err
}

// SetWebhookLogStatus finalizes a ledger row as PROCESSED or FAILED.
func (s *GormStore) SetWebhookLogStatus(id string, status domain.WebhookStatus, errMsg string, processedAt *time.Time) error {
	return s.db.Model(&WebhookLogModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       string(status),
			"error":        errMsg,
			"processed_at": processedAt,
			"updated_at":   time.Now().UTC(),
		}).Error
}

// ── notifications ──

// CreateNotifications inserts a batch of notification rows.
func (s *GormStore) CreateNotifications(items []domain.Notification) error {
	if len(items) == 0 {
		return nil
	}
	models := make([]NotificationModel, 0, len(items))
	for _, n := range items {
		models = append(models, notificationToModel(n))
	}
	return s.db.Create(&models).Error
}

// ListNotifications returns recent notifications, newest first.
func (s *GormStore) ListNotifications(userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []NotificationModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(models))
	for _, m := range models {
		out = append(out, notificationFromModel(m))
	}
	return out, nil
}

// MarkNotificationsRead flags every unread row for the user.
func (s *GormStore) MarkNotificationsRead(userID string) error {
	return s.db.Model(&NotificationModel{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true).Error
}

// ── model mapping ──

func stringsToJSON(values []string) []byte {
	if values == nil {
		values = []string{}
	}
	raw, _ := json.Marshal(values)
	return raw
}

func stringsFromJSON(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return []string{}
	}
	return out
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:                u.ID,
		Email:             u.Email,
		PasswordHash:      u.PasswordHash,
		Name:              u.Name,
		Bio:               u.Bio,
		Location:          u.Location,
		AvatarKey:         u.AvatarKey,
		Tier:              string(u.Tier),
		TierExpiresAt:     u.TierExpiresAt,
		FavoriteGenres:    stringsToJSON(u.FavoriteGenres),
		FavoriteAuthors:   stringsToJSON(u.FavoriteAuthors),
		BooksReadThisYear: u.BooksReadThisYear,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
		DeletedAt:         u.DeletedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	tier := domain.Tier(m.Tier)
	if tier == "" {
		tier = domain.TierFree
	}
	return domain.User{
		ID:                m.ID,
		Email:             m.Email,
		PasswordHash:      m.PasswordHash,
		Name:              m.Name,
		Bio:               m.Bio,
		Location:          m.Location,
		AvatarKey:         m.AvatarKey,
		Tier:              tier,
		TierExpiresAt:     m.TierExpiresAt,
		FavoriteGenres:    stringsFromJSON(m.FavoriteGenres),
		FavoriteAuthors:   stringsFromJSON(m.FavoriteAuthors),
		BooksReadThisYear: m.BooksReadThisYear,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		DeletedAt:         m.DeletedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:        b.ID,
		Title:     b.Title,
		Author:    b.Author,
		Genre:     b.Genre,
		CoverURL:  b.CoverURL,
		CreatedAt: b.CreatedAt,
	}
}

func bookFromModel(m BookModel) domain.Book {
	return domain.Book{
		ID:        m.ID,
		Title:     m.Title,
		Author:    m.Author,
		Genre:     m.Genre,
		CoverURL:  m.CoverURL,
		CreatedAt: m.CreatedAt,
	}
}

func userBookToModel(ub domain.UserBook) UserBookModel {
	return UserBookModel{
		ID:        ub.ID,
		UserID:    ub.UserID,
		BookID:    ub.BookID,
		Status:    string(ub.Status),
		Progress:  ub.Progress,
		CreatedAt: ub.CreatedAt,
		UpdatedAt: ub.UpdatedAt,
	}
}

func userBookFromModel(m UserBookModel) domain.UserBook {
	return domain.UserBook{
		ID:        m.ID,
		UserID:    m.UserID,
		BookID:    m.BookID,
		Status:    domain.ReadingStatus(m.Status),
		Progress:  m.Progress,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func matchToModel(m domain.Match) MatchModel {
	return MatchModel{
		ID:          m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Status:      string(m.Status),
		Message:     m.Message,
		BookContext: m.BookContext,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func matchFromModel(m MatchModel) domain.Match {
	return domain.Match{
		ID:          m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		Status:      domain.MatchStatus(m.Status),
		Message:     m.Message,
		BookContext: m.BookContext,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func quotaFromModel(m MatchQuotaModel) domain.MatchQuota {
	return domain.MatchQuota{
		UserID:    m.UserID,
		UsedToday: m.UsedToday,
		ResetDate: m.ResetDate,
	}
}

func spaceToModel(s domain.Space) SpaceModel {
	return SpaceModel{
		ID:          s.ID,
		OwnerID:     s.OwnerID,
		BookID:      s.BookID,
		Name:        s.Name,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func spaceFromModel(m SpaceModel) domain.Space {
	return domain.Space{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		BookID:      m.BookID,
		Name:        m.Name,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func spaceMemberToModel(m domain.SpaceMember) SpaceMemberModel {
	return SpaceMemberModel{
		SpaceID:  m.SpaceID,
		UserID:   m.UserID,
		Role:     string(m.Role),
		JoinedAt: m.JoinedAt,
	}
}

func spaceMemberFromModel(m SpaceMemberModel) domain.SpaceMember {
	return domain.SpaceMember{
		SpaceID:  m.SpaceID,
		UserID:   m.UserID,
		Role:     domain.SpaceRole(m.Role),
		JoinedAt: m.JoinedAt,
	}
}

func messageToModel(m domain.Message) MessageModel {
	return MessageModel{
		ID:        m.ID,
		SpaceID:   m.SpaceID,
		UserID:    m.UserID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:        m.ID,
		SpaceID:   m.SpaceID,
		UserID:    m.UserID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

func callSessionToModel(cs domain.CallSession) CallSessionModel {
	var meta []byte
	if len(cs.ProviderMeta) > 0 {
		meta, _ = json.Marshal(cs.ProviderMeta)
	}
	return CallSessionModel{
		ID:              cs.ID,
		SpaceID:         cs.SpaceID,
		Provider:        string(cs.Provider),
		ProviderRoomID:  cs.ProviderRoomID,
		ProviderMeta:    meta,
		Status:          string(cs.Status),
		StartedAt:       cs.StartedAt,
		EndedAt:         cs.EndedAt,
		DurationSec:     cs.DurationSec,
		MaxParticipants: cs.MaxParticipants,
		CreatedAt:       cs.CreatedAt,
		UpdatedAt:       cs.UpdatedAt,
	}
}

func callSessionFromModel(m CallSessionModel) domain.CallSession {
	var meta map[string]string
	if len(m.ProviderMeta) > 0 {
		_ = json.Unmarshal(m.ProviderMeta, &meta)
	}
	return domain.CallSession{
		ID:              m.ID,
		SpaceID:         m.SpaceID,
		Provider:        domain.VoipProvider(m.Provider),
		ProviderRoomID:  m.ProviderRoomID,
		ProviderMeta:    meta,
		Status:          domain.CallStatus(m.Status),
		StartedAt:       m.StartedAt,
		EndedAt:         m.EndedAt,
		DurationSec:     m.DurationSec,
		MaxParticipants: m.MaxParticipants,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func callParticipantToModel(p domain.CallParticipant) CallParticipantModel {
	return CallParticipantModel{
		ID:          p.ID,
		SessionID:   p.SessionID,
		UserID:      p.UserID,
		ProviderUID: p.ProviderUID,
		Role:        string(p.Role),
		JoinedAt:    p.JoinedAt,
		LeftAt:      p.LeftAt,
	}
}

func callParticipantFromModel(m CallParticipantModel) domain.CallParticipant {
	return domain.CallParticipant{
		ID:          m.ID,
		SessionID:   m.SessionID,
		UserID:      m.UserID,
		ProviderUID: m.ProviderUID,
		Role:        domain.CallRole(m.Role),
		JoinedAt:    m.JoinedAt,
		LeftAt:      m.LeftAt,
	}
}

func webhookLogToModel(l domain.WebhookLog) WebhookLogModel {
	return WebhookLogModel{
		ID:          l.ID,
		Source:      string(l.Source),
		ExternalID:  l.ExternalID,
		EventType:   l.EventType,
		Payload:     l.Payload,
		Status:      string(l.Status),
		Error:       l.Error,
		ProcessedAt: l.ProcessedAt,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

func webhookLogFromModel(m WebhookLogModel) domain.WebhookLog {
	return domain.WebhookLog{
		ID:          m.ID,
		Source:      domain.VoipProvider(m.Source),
		ExternalID:  m.ExternalID,
		EventType:   m.EventType,
		Payload:     m.Payload,
		Status:      domain.WebhookStatus(m.Status),
		Error:       m.Error,
		ProcessedAt: m.ProcessedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func notificationToModel(n domain.Notification) NotificationModel {
	return NotificationModel{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      string(n.Type),
		Title:     n.Title,
		Body:      n.Body,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

func notificationFromModel(m NotificationModel) domain.Notification {
	return domain.Notification{
		ID:        m.ID,
		UserID:    m.UserID,
		Type:      domain.NotificationType(m.Type),
		Title:     m.Title,
		Body:      m.Body,
		Read:      m.Read,
		CreatedAt: m.CreatedAt,
	}
}
