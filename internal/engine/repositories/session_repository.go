package repositories

import (
	"context"
	"fmt"
	"strings"

	"github.com/anhbaysgalan1/potledger/internal/database"
	"github.com/anhbaysgalan1/potledger/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionRepository persists session aggregates. Every write of an existing
// aggregate is version-checked: two writers racing on the same session
// cannot both commit against the same snapshot, so a lost update is
// impossible and the loser gets a conflict to retry.
type SessionRepository struct {
	db *database.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session aggregate. A unique-index violation on the
// join code is surfaced as-is so the caller can regenerate and retry.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID loads the full aggregate snapshot.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// GetActiveByCode finds the joinable session with the given code. Codes are
// stored uppercase; lookup is case-insensitive on the caller's side.
func (r *SessionRepository) GetActiveByCode(ctx context.Context, code string) (*models.Session, error) {
	var session models.Session
	err := r.db.WithContext(ctx).
		Where("code = ? AND status = ?", strings.ToUpper(code), models.SessionStatusActive).
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session by code: %w", err)
	}
	return &session, nil
}

// ListForUser returns every session the user administers or plays in,
// newest first. Membership is a jsonb containment check on the embedded
// player list.
func (r *SessionRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	var sessions []models.Session
	member := fmt.Sprintf(`[{"user_id":%q}]`, userID)
	err := r.db.WithContext(ctx).
		Where("admin_id = ? OR players @> ?::jsonb", userID, member).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Update commits a mutated aggregate against the version it was loaded at.
// Zero rows affected means another writer got there first; the in-memory
// version is rolled back and ErrConcurrencyConflict returned so the caller
// can reload and retry.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	expected := session.Version
	session.Version = expected + 1

	result := r.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND version = ?", session.ID, expected).
		Select("code", "name", "status", "players", "buy_in_requests",
			"total_buy_in", "total_stack", "is_valid", "version", "ended_at").
		Updates(session)

	if result.Error != nil {
		session.Version = expected
		return fmt.Errorf("failed to update session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		session.Version = expected
		return models.ErrConcurrencyConflict
	}
	return nil
}
