package models

import "errors"

// Domain failures returned by session operations. Handlers map these to
// HTTP statuses; everything else bubbles up as an internal error.
var (
	// ErrSessionNotFound means no session matches the id or join code.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRequestNotFound means the buy-in request is absent from the pending
	// queue: it never existed or was already resolved. Resolving a request
	// twice therefore fails here rather than double-counting.
	ErrRequestNotFound = errors.New("buy-in request not found")

	// ErrPlayerNotFound means no player with the given user id is a member.
	ErrPlayerNotFound = errors.New("player not found in session")

	// ErrSessionEnded means a mutation was attempted on an ended session.
	ErrSessionEnded = errors.New("session has ended")

	// ErrPlayerNotInSession means an approval targeted a player who left the
	// session. The request is left pending for manual resolution; totals are
	// never credited without a player row to carry the buy-in.
	ErrPlayerNotInSession = errors.New("player is no longer in the session")

	// ErrConcurrencyConflict means a version-checked write lost the race.
	// Callers may retry.
	ErrConcurrencyConflict = errors.New("session was modified concurrently")
)
