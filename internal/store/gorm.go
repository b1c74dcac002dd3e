package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Timi0217/mixtapelive-sub000/internal/models"
)

// GormStores bundles the three stores over one gorm handle.
type GormStores struct {
	Sessions    *GormSessionStore
	Memberships *GormMembershipStore
	Chat        *GormChatStore
}

func NewGormStores(db *gorm.DB) *GormStores {
	return &GormStores{
		Sessions:    &GormSessionStore{db: db},
		Memberships: &GormMembershipStore{db: db},
		Chat:        &GormChatStore{db: db},
	}
}

// ---------------------------------------------------------
// Sessions
// ---------------------------------------------------------

type GormSessionStore struct {
	db *gorm.DB
}

func NewGormSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{db: db}
}

func (s *GormSessionStore) Create(ctx context.Context, session *models.Session) error {
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *GormSessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *GormSessionStore) ListLive(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("status = ?", models.StatusLive).
		Order("started_at ASC").
		Find(&sessions).Error
	return sessions, err
}

func (s *GormSessionStore) UpdateStatus(ctx context.Context, id, status string, endedAt *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if endedAt != nil {
		updates["ended_at"] = *endedAt
	}
	return s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *GormSessionStore) EndIfLive(ctx context.Context, id string, endedAt time.Time) (bool, error) {
	// Conditional transition: the WHERE clause is the exactly-once gate.
	res := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND status = ?", id, models.StatusLive).
		Updates(map[string]interface{}{
			"status":   models.StatusEnded,
			"ended_at": endedAt,
		})
	return res.RowsAffected > 0, res.Error
}

func (s *GormSessionStore) UpdateHeartbeat(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", id).
		Update("last_heartbeat_at", at).Error
}

func (s *GormSessionStore) BumpPeakListeners(ctx context.Context, id string, count int) error {
	// Conditional update: concurrent bumps can't push the peak down.
	return s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ? AND peak_listeners < ?", id, count).
		Update("peak_listeners", count).Error
}

func (s *GormSessionStore) SyncMessageCount(ctx context.Context, id string, total int) error {
	return s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", id).
		Update("total_messages", total).Error
}

// ---------------------------------------------------------
// Memberships
// ---------------------------------------------------------

type GormMembershipStore struct {
	db *gorm.DB
}

func NewGormMembershipStore(db *gorm.DB) *GormMembershipStore {
	return &GormMembershipStore{db: db}
}

// Upsert returns the existing active membership when the user rejoins,
// reopens a closed one, or creates the first row.
func (s *GormMembershipStore) Upsert(ctx context.Context, sessionID, userID string, at time.Time) (*models.Membership, error) {
	var m models.Membership
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		First(&m).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		m = models.Membership{
			SessionID: sessionID,
			UserID:    userID,
			JoinedAt:  at,
		}
		if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
			return nil, err
		}
		return &m, nil
	}
	if err != nil {
		return nil, err
	}

	if m.LeftAt == nil {
		return &m, nil // already active, idempotent join
	}

	// Rejoin after leaving: reopen the row
	m.JoinedAt = at
	m.LeftAt = nil
	if err := s.db.WithContext(ctx).Save(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *GormMembershipStore) Close(ctx context.Context, sessionID, userID string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("session_id = ? AND user_id = ? AND left_at IS NULL", sessionID, userID).
		Update("left_at", at).Error
}

func (s *GormMembershipStore) CloseAllForSession(ctx context.Context, sessionID string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("session_id = ? AND left_at IS NULL", sessionID).
		Update("left_at", at).Error
}

func (s *GormMembershipStore) ActiveCount(ctx context.Context, sessionID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("session_id = ? AND left_at IS NULL", sessionID).
		Count(&count).Error
	return int(count), err
}

// ---------------------------------------------------------
// Chat
// ---------------------------------------------------------

type GormChatStore struct {
	db *gorm.DB
}

func NewGormChatStore(db *gorm.DB) *GormChatStore {
	return &GormChatStore{db: db}
}

func (s *GormChatStore) Insert(ctx context.Context, msg *models.ChatMessage) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

func (s *GormChatStore) Get(ctx context.Context, id string) (*models.ChatMessage, error) {
	var msg models.ChatMessage
	err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *GormChatStore) Count(ctx context.Context, sessionID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return int(count), err
}

func (s *GormChatStore) ListRecent(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var msgs []models.ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

func (s *GormChatStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&models.ChatMessage{}, "id = ?", id).Error
}
