package models

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

type PlayerStatus string

const (
	PlayerStatusActive PlayerStatus = "active"
	PlayerStatusLeft   PlayerStatus = "left"
)

type BuyInStatus string

const (
	BuyInStatusPending  BuyInStatus = "pending"
	BuyInStatusApproved BuyInStatus = "approved"
	BuyInStatusRejected BuyInStatus = "rejected"
)

// BuyIn is an immutable audit record of an approved buy-in. Rejected
// requests never become BuyIn records.
type BuyIn struct {
	ID          uuid.UUID   `json:"id"`
	Amount      int64       `json:"amount"`
	Status      BuyInStatus `json:"status"`
	RequestedAt time.Time   `json:"requested_at"`
	ApprovedAt  time.Time   `json:"approved_at"`
	ApprovedBy  string      `json:"approved_by"`
}

// Player is owned by its Session and shares its lifetime.
type Player struct {
	UserID       uuid.UUID    `json:"user_id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	Picture      string       `json:"picture"`
	BuyIns       []BuyIn      `json:"buy_ins"`
	CurrentStack int64        `json:"current_stack"`
	TotalBuyIn   int64        `json:"total_buy_in"`
	ProfitLoss   int64        `json:"profit_loss"`
	Status       PlayerStatus `json:"status"`
	JoinedAt     time.Time    `json:"joined_at"`
}

// BuyInRequest sits in the session's request queue. Approval moves it onto
// the player as a BuyIn; rejection marks it rejected but keeps it in the
// queue so the owner sees the outcome and can clear it from their view.
type BuyInRequest struct {
	ID          uuid.UUID   `json:"id"`
	UserID      uuid.UUID   `json:"user_id"`
	UserName    string      `json:"user_name"`
	UserPicture string      `json:"user_picture"`
	Amount      int64       `json:"amount"`
	Status      BuyInStatus `json:"status"`
	RequestedAt time.Time   `json:"requested_at"`
}

// Session is the aggregate root for one cash-game night. Players and
// pending requests are embedded and persisted as jsonb, so a row read is
// always a consistent snapshot of the whole aggregate. The version column
// backs optimistic concurrency in the repository.
type Session struct {
	ID            uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Code          string         `json:"code" gorm:"not null;size:6;index"`
	Name          string         `json:"name" gorm:"not null;size:100"`
	AdminID       uuid.UUID      `json:"admin_id" gorm:"type:uuid;not null;index"`
	AdminName     string         `json:"admin_name" gorm:"not null;size:50"`
	Status        SessionStatus  `json:"status" gorm:"type:varchar(10);not null;default:'active';index"`
	Players       []Player       `json:"players" gorm:"type:jsonb;serializer:json"`
	BuyInRequests []BuyInRequest `json:"buy_in_requests" gorm:"type:jsonb;serializer:json"`
	TotalBuyIn    int64          `json:"total_buy_in" gorm:"not null;default:0"`
	TotalStack    int64          `json:"total_stack" gorm:"not null;default:0"`
	IsValid       bool           `json:"is_valid" gorm:"not null;default:false"`
	Version       int64          `json:"-" gorm:"not null;default:0"`
	CreatedAt     time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	EndedAt       *time.Time     `json:"ended_at,omitempty"`
}

// ValidationResult is the ledger balance check at a point in time. It is
// informational: an unbalanced session is a warning, never an error.
type ValidationResult struct {
	IsValid     bool   `json:"is_valid"`
	TotalBuyIns int64  `json:"total_buy_ins"`
	TotalStacks int64  `json:"total_stacks"`
	Difference  int64  `json:"difference"`
	Message     string `json:"message"`
}

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const codeLength = 6

// NewSessionCode returns a random 6-character join code over [A-Z0-9].
// Uniqueness among joinable sessions is enforced by the store; callers
// regenerate on collision.
func NewSessionCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("failed to read random bytes for session code: %v", err))
	}
	for i, b := range buf {
		buf[i] = codeCharset[int(b)%len(codeCharset)]
	}
	return string(buf)
}

// NewSession creates an active session with an empty ledger.
func NewSession(name string, admin Identity) *Session {
	return &Session{
		ID:            uuid.New(),
		Code:          NewSessionCode(),
		Name:          name,
		AdminID:       admin.UserID,
		AdminName:     admin.Name,
		Status:        SessionStatusActive,
		Players:       []Player{},
		BuyInRequests: []BuyInRequest{},
	}
}

// IsEnded reports whether the session reached its terminal state.
func (s *Session) IsEnded() bool {
	return s.Status == SessionStatusEnded
}

// FindPlayer returns the member with the given user id, or nil. The pointer
// aliases the session's own slice, so mutations through it are mutations of
// the aggregate.
func (s *Session) FindPlayer(userID uuid.UUID) *Player {
	for i := range s.Players {
		if s.Players[i].UserID == userID {
			return &s.Players[i]
		}
	}
	return nil
}

// HasPlayer reports whether the user is a member of the session.
func (s *Session) HasPlayer(userID uuid.UUID) bool {
	return s.FindPlayer(userID) != nil
}

// Join appends the user as a new player with a zeroed stack and buy-in.
// Joining twice is a no-op: the returned bool reports whether the aggregate
// changed, so callers can skip the write on a re-join.
func (s *Session) Join(identity Identity, now time.Time) bool {
	if s.HasPlayer(identity.UserID) {
		return false
	}
	s.Players = append(s.Players, Player{
		UserID:   identity.UserID,
		Name:     identity.Name,
		Email:    identity.Email,
		Picture:  identity.Picture,
		BuyIns:   []BuyIn{},
		Status:   PlayerStatusActive,
		JoinedAt: now,
	})
	return true
}

// AddBuyInRequest queues a pending buy-in request for a member. The amount
// must already be validated as positive by the transport layer.
func (s *Session) AddBuyInRequest(identity Identity, amount int64, now time.Time) (*BuyInRequest, error) {
	if s.IsEnded() {
		return nil, ErrSessionEnded
	}
	if !s.HasPlayer(identity.UserID) {
		return nil, ErrPlayerNotFound
	}
	request := BuyInRequest{
		ID:          uuid.New(),
		UserID:      identity.UserID,
		UserName:    identity.Name,
		UserPicture: identity.Picture,
		Amount:      amount,
		Status:      BuyInStatusPending,
		RequestedAt: now,
	}
	s.BuyInRequests = append(s.BuyInRequests, request)
	return &s.BuyInRequests[len(s.BuyInRequests)-1], nil
}

func (s *Session) findRequest(requestID uuid.UUID) (*BuyInRequest, bool) {
	for i := range s.BuyInRequests {
		if s.BuyInRequests[i].ID == requestID {
			return &s.BuyInRequests[i], true
		}
	}
	return nil, false
}

func (s *Session) removeRequest(requestID uuid.UUID) {
	kept := s.BuyInRequests[:0]
	for _, r := range s.BuyInRequests {
		if r.ID != requestID {
			kept = append(kept, r)
		}
	}
	s.BuyInRequests = kept
}

// ApproveBuyInRequest resolves a pending request into an approved BuyIn on
// the player and credits the request amount to the player's and session's
// totals. The whole transition is applied to the in-memory aggregate before
// anything is persisted, so partial application is never observable.
//
// A request whose player has left the session is left untouched in the
// queue and the call fails: crediting totals with no player row to carry
// the buy-in would make the ledger impossible to reconcile at end time.
func (s *Session) ApproveBuyInRequest(requestID uuid.UUID, approvedBy string, now time.Time) error {
	if s.IsEnded() {
		return ErrSessionEnded
	}
	request, ok := s.findRequest(requestID)
	if !ok || request.Status != BuyInStatusPending {
		// Already resolved or never existed; also shields against a
		// retried double-approval.
		return ErrRequestNotFound
	}
	player := s.FindPlayer(request.UserID)
	if player == nil || player.Status != PlayerStatusActive {
		return ErrPlayerNotInSession
	}

	player.BuyIns = append(player.BuyIns, BuyIn{
		ID:          request.ID,
		Amount:      request.Amount,
		Status:      BuyInStatusApproved,
		RequestedAt: request.RequestedAt,
		ApprovedAt:  now,
		ApprovedBy:  approvedBy,
	})
	player.TotalBuyIn += request.Amount
	s.removeRequest(requestID)
	s.Reconcile()
	return nil
}

// RejectBuyInRequest marks a pending request rejected with no ledger
// effect. The record stays in the queue until its owner dismisses it.
func (s *Session) RejectBuyInRequest(requestID uuid.UUID) error {
	if s.IsEnded() {
		return ErrSessionEnded
	}
	request, ok := s.findRequest(requestID)
	if !ok || request.Status != BuyInStatusPending {
		return ErrRequestNotFound
	}
	request.Status = BuyInStatusRejected
	return nil
}

// DismissBuyInRequest clears the caller's own rejected request from their
// view. It is cosmetic and idempotent: a pending request is never touched
// (only the admin resolves those), another player's request is left alone,
// and the ledger is never affected. The returned bool reports whether the
// aggregate changed.
func (s *Session) DismissBuyInRequest(requestID, userID uuid.UUID) bool {
	request, ok := s.findRequest(requestID)
	if !ok || request.Status != BuyInStatusRejected || request.UserID != userID {
		return false
	}
	s.removeRequest(requestID)
	return true
}

// SetPlayerStack records the player's current chip count and reconciles the
// ledger. Replaying the identical call yields an identical session.
func (s *Session) SetPlayerStack(userID uuid.UUID, stack int64) error {
	if s.IsEnded() {
		return ErrSessionEnded
	}
	player := s.FindPlayer(userID)
	if player == nil {
		return ErrPlayerNotFound
	}
	player.CurrentStack = stack
	s.Reconcile()
	return nil
}

// Reconcile recomputes every derived figure from the player list: each
// player's profit/loss and the session's cached totals. It is the only
// place totals are computed, and it runs after every mutation.
func (s *Session) Reconcile() {
	var totalBuyIn, totalStack int64
	for i := range s.Players {
		p := &s.Players[i]
		p.ProfitLoss = p.CurrentStack - p.TotalBuyIn
		totalBuyIn += p.TotalBuyIn
		totalStack += p.CurrentStack
	}
	s.TotalBuyIn = totalBuyIn
	s.TotalStack = totalStack
}

// Validate checks the balance invariant: chips on the table must equal
// money paid in. Callable at any time; only meaningful as a final verdict
// once the session has ended.
func (s *Session) Validate() ValidationResult {
	var totalBuyIns, totalStacks int64
	for i := range s.Players {
		totalBuyIns += s.Players[i].TotalBuyIn
		totalStacks += s.Players[i].CurrentStack
	}
	difference := totalBuyIns - totalStacks
	result := ValidationResult{
		IsValid:     difference == 0,
		TotalBuyIns: totalBuyIns,
		TotalStacks: totalStacks,
		Difference:  difference,
	}
	if result.IsValid {
		result.Message = "Session balances: total stacks match total buy-ins"
	} else {
		result.Message = fmt.Sprintf("Session does not balance: buy-ins and stacks differ by %d", difference)
	}
	return result
}

// End transitions the session to its terminal state, freezing the ledger
// and recording the final balance verdict. Ending an already-ended session
// is a no-op so client retries are harmless; the returned bool reports
// whether the aggregate changed.
func (s *Session) End(now time.Time) bool {
	if s.IsEnded() {
		return false
	}
	s.Reconcile()
	s.Status = SessionStatusEnded
	s.EndedAt = &now
	s.IsValid = s.Validate().IsValid
	return true
}
