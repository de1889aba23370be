package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anhbaysgalan1/potledger/internal/database"
	"github.com/anhbaysgalan1/potledger/internal/engine"
	"github.com/anhbaysgalan1/potledger/internal/models"
	"github.com/google/uuid"
)

// SessionStore is the durable home of session aggregates. Update must be
// version-checked and report models.ErrConcurrencyConflict on a lost race.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetActiveByCode(ctx context.Context, code string) (*models.Session, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error)
	Update(ctx context.Context, session *models.Session) error
}

// SettlementCache holds computed settlement results for ended sessions.
type SettlementCache interface {
	Get(ctx context.Context, sessionID uuid.UUID) (*engine.SettlementResult, error)
	Set(ctx context.Context, sessionID uuid.UUID, result *engine.SettlementResult) error
}

// SessionService orchestrates session aggregate operations: load a
// snapshot, mutate it in memory through the aggregate's own rules, and
// commit with a version check, retrying on conflict. Different sessions
// share no state, so operations on them proceed independently.
type SessionService struct {
	store SessionStore
	cache SettlementCache
}

// NewSessionService creates a new session service. The cache may be nil,
// in which case settlements are always recomputed.
func NewSessionService(store SessionStore, cache SettlementCache) *SessionService {
	return &SessionService{store: store, cache: cache}
}

const (
	// How many times a version-checked write is retried before the
	// conflict is surfaced to the caller.
	maxWriteAttempts = 3

	// How many fresh join codes are tried when the store reports a
	// collision with another joinable session.
	maxCodeAttempts = 5
)

// CreateSession creates a new active session administered by the caller.
func (s *SessionService) CreateSession(ctx context.Context, name string, admin models.Identity) (*models.Session, error) {
	session := models.NewSession(name, admin)

	var err error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		if err = s.store.Create(ctx, session); err == nil {
			slog.Info("Session created", "session_id", session.ID, "code", session.Code, "admin_id", admin.UserID)
			return session, nil
		}
		if !database.IsCodeCollision(err) {
			return nil, err
		}
		session.Code = models.NewSessionCode()
	}
	return nil, fmt.Errorf("failed to allocate a unique session code: %w", err)
}

// GetSession loads one session snapshot.
func (s *SessionService) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	return s.store.GetByID(ctx, sessionID)
}

// ListSessionsForUser returns the sessions the user administers or plays
// in, newest first.
func (s *SessionService) ListSessionsForUser(ctx context.Context, userID uuid.UUID) ([]models.Session, error) {
	return s.store.ListForUser(ctx, userID)
}

// JoinSession adds the caller to the active session with the given code.
// Re-joining an existing member returns the session unchanged without a
// write.
func (s *SessionService) JoinSession(ctx context.Context, code string, identity models.Identity) (*models.Session, error) {
	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		session, err := s.store.GetActiveByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if !session.Join(identity, time.Now().UTC()) {
			return session, nil
		}
		if err := s.store.Update(ctx, session); err != nil {
			if errors.Is(err, models.ErrConcurrencyConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		slog.Info("Player joined session", "session_id", session.ID, "user_id", identity.UserID)
		return session, nil
	}
	return nil, lastErr
}

// RequestBuyIn queues a pending buy-in request for the caller.
func (s *SessionService) RequestBuyIn(ctx context.Context, sessionID uuid.UUID, identity models.Identity, amount int64) (*models.Session, error) {
	return s.mutate(ctx, sessionID, func(session *models.Session) (bool, error) {
		if _, err := session.AddBuyInRequest(identity, amount, time.Now().UTC()); err != nil {
			return false, err
		}
		return true, nil
	})
}

// ApproveBuyIn resolves a pending request into an approved buy-in,
// crediting the player's and session's totals exactly once. A retried
// approval of an already-resolved request fails with ErrRequestNotFound
// and leaves totals unchanged.
func (s *SessionService) ApproveBuyIn(ctx context.Context, sessionID, requestID uuid.UUID, approvedBy string) (*models.Session, error) {
	session, err := s.mutate(ctx, sessionID, func(session *models.Session) (bool, error) {
		if err := session.ApproveBuyInRequest(requestID, approvedBy, time.Now().UTC()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("Buy-in approved", "session_id", sessionID, "request_id", requestID, "approved_by", approvedBy)
	return session, nil
}

// RejectBuyIn removes a pending request with no ledger effect.
func (s *SessionService) RejectBuyIn(ctx context.Context, sessionID, requestID uuid.UUID) (*models.Session, error) {
	return s.mutate(ctx, sessionID, func(session *models.Session) (bool, error) {
		if err := session.RejectBuyInRequest(requestID); err != nil {
			return false, err
		}
		return true, nil
	})
}

// DismissBuyInRequest clears the caller's own rejected request from their
// view. Idempotent: dismissing an absent, still-pending, or someone else's
// request returns the session unchanged.
func (s *SessionService) DismissBuyInRequest(ctx context.Context, sessionID, requestID, userID uuid.UUID) (*models.Session, error) {
	return s.mutate(ctx, sessionID, func(session *models.Session) (bool, error) {
		return session.DismissBuyInRequest(requestID, userID), nil
	})
}

// UpdateStack records a player's current chip count.
func (s *SessionService) UpdateStack(ctx context.Context, sessionID, userID uuid.UUID, stack int64) (*models.Session, error) {
	return s.mutate(ctx, sessionID, func(session *models.Session) (bool, error) {
		if err := session.SetPlayerStack(userID, stack); err != nil {
			return false, err
		}
		return true, nil
	})
}

// EndSession moves the session to its terminal state and records the final
// balance verdict. Ending an already-ended session returns it unchanged.
func (s *SessionService) EndSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	session, err := s.mutate(ctx, sessionID, func(session *models.Session) (bool, error) {
		return session.End(time.Now().UTC()), nil
	})
	if err != nil {
		return nil, err
	}
	if !session.IsValid {
		slog.Warn("Session ended unbalanced",
			"session_id", session.ID,
			"total_buy_in", session.TotalBuyIn,
			"total_stack", session.TotalStack)
	}
	return session, nil
}

// ValidateSession runs the read-only balance check against the current
// snapshot. Callable at any time, not just at end.
func (s *SessionService) ValidateSession(ctx context.Context, sessionID uuid.UUID) (models.ValidationResult, error) {
	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return models.ValidationResult{}, err
	}
	return session.Validate(), nil
}

// Settlement computes who pays whom from the session's player snapshot.
// Results for ended sessions are cached: the state is terminal, so the
// cached answer can never drift. The validation result rides along so an
// unbalanced ledger is surfaced as a warning next to the best-effort
// transaction list.
func (s *SessionService) Settlement(ctx context.Context, sessionID uuid.UUID) (*engine.SettlementResult, models.ValidationResult, error) {
	session, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, models.ValidationResult{}, err
	}
	validation := session.Validate()

	if session.IsEnded() && s.cache != nil {
		cached, err := s.cache.Get(ctx, sessionID)
		if err != nil {
			slog.Warn("Settlement cache read failed", "session_id", sessionID, "error", err)
		} else if cached != nil {
			return cached, validation, nil
		}
	}

	players := make([]engine.PlayerResult, 0, len(session.Players))
	for _, p := range session.Players {
		players = append(players, engine.PlayerResult{
			UserID:       p.UserID,
			Name:         p.Name,
			TotalBuyIn:   p.TotalBuyIn,
			CurrentStack: p.CurrentStack,
		})
	}
	result := engine.Settle(players)

	if session.IsEnded() && s.cache != nil {
		if err := s.cache.Set(ctx, sessionID, &result); err != nil {
			slog.Warn("Settlement cache write failed", "session_id", sessionID, "error", err)
		}
	}

	return &result, validation, nil
}

// mutate runs one load-mutate-commit cycle with conflict retries. The
// mutation callback reports whether the aggregate changed; unchanged
// aggregates are returned without a write, which is what makes the
// idempotent operations cheap to retry. A failed mutation never reaches
// the store, so session state is left completely untouched.
func (s *SessionService) mutate(ctx context.Context, sessionID uuid.UUID, fn func(*models.Session) (bool, error)) (*models.Session, error) {
	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		session, err := s.store.GetByID(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		changed, err := fn(session)
		if err != nil {
			return nil, err
		}
		if !changed {
			return session, nil
		}
		if err := s.store.Update(ctx, session); err != nil {
			if errors.Is(err, models.ErrConcurrencyConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return session, nil
	}
	return nil, lastErr
}
