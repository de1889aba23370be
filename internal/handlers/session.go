package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/anhbaysgalan1/potledger/internal/auth"
	"github.com/anhbaysgalan1/potledger/internal/models"
	"github.com/anhbaysgalan1/potledger/internal/services"
	"github.com/anhbaysgalan1/potledger/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type SessionHandler struct {
	sessionService *services.SessionService
	authService    *services.AuthService
}

func NewSessionHandler(sessionService *services.SessionService, authService *services.AuthService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		authService:    authService,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateSession)
	r.Get("/", h.ListSessions)
	r.Post("/join", h.JoinSession)
	r.Get("/{sessionID}", h.GetSession)
	r.Post("/{sessionID}/buyin", h.RequestBuyIn)
	r.Put("/{sessionID}/buyin/{requestID}/approve", h.ApproveBuyIn)
	r.Put("/{sessionID}/buyin/{requestID}/reject", h.RejectBuyIn)
	r.Put("/{sessionID}/buyin/{requestID}/dismiss", h.DismissBuyInRequest)
	r.Put("/{sessionID}/stack", h.UpdateStack)
	r.Get("/{sessionID}/validate", h.ValidateSession)
	r.Put("/{sessionID}/end", h.EndSession)
	r.Get("/{sessionID}/settlement", h.GetSettlement)

	return r
}

type CreateSessionRequest struct {
	Name string `json:"name" validate:"required,min=3,max=100"`
}

type JoinSessionRequest struct {
	Code string `json:"code" validate:"required,len=6,alphanum"`
}

type RequestBuyInRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type UpdateStackRequest struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
	Stack  int64     `json:"stack" validate:"gte=0"`
}

// CreateSession creates a new session administered by the caller
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validation.Validate(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.sessionService.CreateSession(r.Context(), req.Name, identity)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, session)
}

// ListSessions returns the sessions the caller administers or plays in
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	sessions, err := h.sessionService.ListSessionsForUser(r.Context(), userID)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to fetch sessions")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// JoinSession adds the caller to the active session with the given code
func (h *SessionHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}

	var req JoinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validation.Validate(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.sessionService.JoinSession(r.Context(), req.Code, identity)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			writeErrorResponse(w, http.StatusNotFound, "Session not found or ended")
			return
		}
		writeSessionError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, session)
}

// GetSession returns one session snapshot for the poll/refetch loop
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	_, session, ok := h.requireMember(w, r, sessionID)
	if !ok {
		return
	}

	writeJSONResponse(w, http.StatusOK, session)
}

// RequestBuyIn queues a pending buy-in request for the caller
func (h *SessionHandler) RequestBuyIn(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.callerIdentity(w, r)
	if !ok {
		return
	}

	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	var req RequestBuyInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validation.Validate(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.sessionService.RequestBuyIn(r.Context(), sessionID, identity, req.Amount)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, session)
}

// ApproveBuyIn resolves a pending request into an approved buy-in (admin only)
func (h *SessionHandler) ApproveBuyIn(w http.ResponseWriter, r *http.Request) {
	sessionID, requestID, admin, ok := h.adminRequestTarget(w, r)
	if !ok {
		return
	}

	session, err := h.sessionService.ApproveBuyIn(r.Context(), sessionID, requestID, admin.Name)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, session)
}

// RejectBuyIn removes a pending request with no ledger effect (admin only)
func (h *SessionHandler) RejectBuyIn(w http.ResponseWriter, r *http.Request) {
	sessionID, requestID, _, ok := h.adminRequestTarget(w, r)
	if !ok {
		return
	}

	session, err := h.sessionService.RejectBuyIn(r.Context(), sessionID, requestID)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, session)
}

// DismissBuyInRequest clears the caller's own rejected request; idempotent
func (h *SessionHandler) DismissBuyInRequest(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	requestID, ok := parseRequestID(w, r)
	if !ok {
		return
	}

	userID, _, ok := h.requireMember(w, r, sessionID)
	if !ok {
		return
	}

	session, err := h.sessionService.DismissBuyInRequest(r.Context(), sessionID, requestID, userID)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, session)
}

// UpdateStack records a player's current chip count (admin only)
func (h *SessionHandler) UpdateStack(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	if _, ok := h.requireAdmin(w, r, sessionID); !ok {
		return
	}

	var req UpdateStackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validation.Validate(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.sessionService.UpdateStack(r.Context(), sessionID, req.UserID, req.Stack)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, session)
}

// ValidateSession runs the read-only balance check
func (h *SessionHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	if _, _, ok := h.requireMember(w, r, sessionID); !ok {
		return
	}

	result, err := h.sessionService.ValidateSession(r.Context(), sessionID)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, result)
}

// EndSession moves the session to its terminal state (admin only, idempotent)
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	if _, ok := h.requireAdmin(w, r, sessionID); !ok {
		return
	}

	session, err := h.sessionService.EndSession(r.Context(), sessionID)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, session)
}

// GetSettlement computes who pays whom from the session's final stacks.
// Member-only: the payment graph names every player's net position.
func (h *SessionHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}
	if _, _, ok := h.requireMember(w, r, sessionID); !ok {
		return
	}

	result, validationResult, err := h.sessionService.Settlement(r.Context(), sessionID)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	response := map[string]interface{}{
		"session_id":        sessionID,
		"transactions":      result.Transactions,
		"unsettled_winners": result.UnsettledWinners,
		"unsettled_losers":  result.UnsettledLosers,
		"validation":        validationResult,
	}
	if !validationResult.IsValid {
		// Informational: the best-effort transaction list is still returned
		response["warning"] = validationResult.Message
	}

	writeJSONResponse(w, http.StatusOK, response)
}

// callerIdentity assembles the session-facing identity from the token
// claims and the account record (for the avatar).
func (h *SessionHandler) callerIdentity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "User not authenticated")
		return models.Identity{}, false
	}

	user, err := h.authService.GetUserByID(userID)
	if err != nil {
		writeErrorResponse(w, http.StatusUnauthorized, "User not found")
		return models.Identity{}, false
	}

	return models.IdentityFor(user), true
}

// requireMember loads the session and checks the caller plays in it or
// administers it. Every per-session read goes through this gate: session
// state names players and their money, which is nobody else's business.
func (h *SessionHandler) requireMember(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) (uuid.UUID, *models.Session, bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, nil, false
	}

	session, err := h.sessionService.GetSession(r.Context(), sessionID)
	if err != nil {
		writeSessionError(w, err)
		return uuid.Nil, nil, false
	}
	if session.AdminID != userID && !session.HasPlayer(userID) {
		writeErrorResponse(w, http.StatusForbidden, "Not a member of this session")
		return uuid.Nil, nil, false
	}
	return userID, session, true
}

// requireAdmin loads the session and checks the caller administers it
func (h *SessionHandler) requireAdmin(w http.ResponseWriter, r *http.Request, sessionID uuid.UUID) (*models.Session, bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "User not authenticated")
		return nil, false
	}

	session, err := h.sessionService.GetSession(r.Context(), sessionID)
	if err != nil {
		writeSessionError(w, err)
		return nil, false
	}
	if session.AdminID != userID {
		writeErrorResponse(w, http.StatusForbidden, "Only the session admin can do this")
		return nil, false
	}
	return session, true
}

// adminRequestTarget parses both path ids and checks the caller is admin
func (h *SessionHandler) adminRequestTarget(w http.ResponseWriter, r *http.Request) (sessionID, requestID uuid.UUID, admin models.Identity, ok bool) {
	sessionID, idOK := parseSessionID(w, r)
	if !idOK {
		return uuid.Nil, uuid.Nil, models.Identity{}, false
	}
	requestID, idOK = parseRequestID(w, r)
	if !idOK {
		return uuid.Nil, uuid.Nil, models.Identity{}, false
	}

	session, authOK := h.requireAdmin(w, r, sessionID)
	if !authOK {
		return uuid.Nil, uuid.Nil, models.Identity{}, false
	}

	return sessionID, requestID, models.Identity{UserID: session.AdminID, Name: session.AdminName}, true
}

func parseSessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid session ID")
		return uuid.Nil, false
	}
	return sessionID, true
}

func parseRequestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request ID")
		return uuid.Nil, false
	}
	return requestID, true
}

// writeSessionError maps domain failures to HTTP statuses. Conflicts are
// returned after the service has already retried; callers may retry again.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrRequestNotFound),
		errors.Is(err, models.ErrPlayerNotFound):
		writeErrorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrSessionEnded),
		errors.Is(err, models.ErrPlayerNotInSession):
		writeErrorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrConcurrencyConflict):
		writeErrorResponse(w, http.StatusConflict, "Session was modified concurrently, please retry")
	default:
		writeErrorResponse(w, http.StatusInternalServerError, "Something went wrong")
	}
}
