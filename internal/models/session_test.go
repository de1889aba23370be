package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIdentity(name string) Identity {
	return Identity{
		UserID:  uuid.New(),
		Name:    name,
		Email:   name + "@example.com",
		Picture: "https://example.com/" + name + ".png",
	}
}

func testSession(t *testing.T, memberNames ...string) (*Session, []Identity) {
	t.Helper()
	admin := testIdentity("admin")
	session := NewSession("Friday Night", admin)
	now := time.Now().UTC()

	identities := make([]Identity, 0, len(memberNames))
	for _, name := range memberNames {
		id := testIdentity(name)
		require.True(t, session.Join(id, now))
		identities = append(identities, id)
	}
	return session, identities
}

// approvedBuyIn pushes a request through the full lifecycle.
func approvedBuyIn(t *testing.T, session *Session, identity Identity, amount int64) {
	t.Helper()
	request, err := session.AddBuyInRequest(identity, amount, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, session.ApproveBuyInRequest(request.ID, "admin", time.Now().UTC()))
}

// assertTotalsReconciled checks the cached totals against the player list.
func assertTotalsReconciled(t *testing.T, session *Session) {
	t.Helper()
	var buyIns, stacks int64
	for _, p := range session.Players {
		buyIns += p.TotalBuyIn
		stacks += p.CurrentStack
		assert.Equal(t, p.CurrentStack-p.TotalBuyIn, p.ProfitLoss)
	}
	assert.Equal(t, buyIns, session.TotalBuyIn)
	assert.Equal(t, stacks, session.TotalStack)
}

func TestNewSession(t *testing.T) {
	admin := testIdentity("admin")
	session := NewSession("Friday Night", admin)

	assert.Equal(t, "Friday Night", session.Name)
	assert.Equal(t, admin.UserID, session.AdminID)
	assert.Equal(t, "admin", session.AdminName)
	assert.Equal(t, SessionStatusActive, session.Status)
	assert.Empty(t, session.Players)
	assert.Empty(t, session.BuyInRequests)
	assert.Zero(t, session.TotalBuyIn)
	assert.Zero(t, session.TotalStack)
	assert.Nil(t, session.EndedAt)

	require.Len(t, session.Code, 6)
	for _, ch := range session.Code {
		assert.Contains(t, codeCharset, string(ch))
	}
}

func TestSession_JoinIsIdempotent(t *testing.T) {
	session, members := testSession(t, "alice")
	alice := members[0]

	assert.False(t, session.Join(alice, time.Now().UTC()))
	require.Len(t, session.Players, 1)

	p := session.FindPlayer(alice.UserID)
	require.NotNil(t, p)
	assert.Equal(t, "alice", p.Name)
	assert.Equal(t, PlayerStatusActive, p.Status)
	assert.Zero(t, p.CurrentStack)
	assert.Zero(t, p.TotalBuyIn)
}

func TestSession_AddBuyInRequest(t *testing.T) {
	session, members := testSession(t, "alice")
	alice := members[0]

	request, err := session.AddBuyInRequest(alice, 5000, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, alice.UserID, request.UserID)
	assert.Equal(t, "alice", request.UserName)
	assert.Equal(t, int64(5000), request.Amount)
	assert.Equal(t, BuyInStatusPending, request.Status)
	require.Len(t, session.BuyInRequests, 1)

	// A request never touches the ledger until approval
	assert.Zero(t, session.TotalBuyIn)

	// Concurrent requests in the same tick must not collide
	other, err := session.AddBuyInRequest(alice, 5000, request.RequestedAt)
	require.NoError(t, err)
	assert.NotEqual(t, request.ID, other.ID)
}

func TestSession_AddBuyInRequest_NonMember(t *testing.T) {
	session, _ := testSession(t, "alice")

	_, err := session.AddBuyInRequest(testIdentity("stranger"), 5000, time.Now().UTC())
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestSession_ApproveBuyInRequest(t *testing.T) {
	session, members := testSession(t, "alice", "bob")
	alice := members[0]

	request, err := session.AddBuyInRequest(alice, 8000, time.Now().UTC())
	require.NoError(t, err)
	requestID := request.ID
	requestedAt := request.RequestedAt

	approvedAt := time.Now().UTC()
	require.NoError(t, session.ApproveBuyInRequest(requestID, "admin", approvedAt))

	// The request left the queue and lives on as a BuyIn on the player
	assert.Empty(t, session.BuyInRequests)
	p := session.FindPlayer(alice.UserID)
	require.Len(t, p.BuyIns, 1)
	buyIn := p.BuyIns[0]
	assert.Equal(t, requestID, buyIn.ID)
	assert.Equal(t, int64(8000), buyIn.Amount)
	assert.Equal(t, BuyInStatusApproved, buyIn.Status)
	assert.Equal(t, requestedAt, buyIn.RequestedAt)
	assert.Equal(t, approvedAt, buyIn.ApprovedAt)
	assert.Equal(t, "admin", buyIn.ApprovedBy)

	assert.Equal(t, int64(8000), p.TotalBuyIn)
	assert.Equal(t, int64(8000), session.TotalBuyIn)
	assert.Equal(t, int64(-8000), p.ProfitLoss)
	assertTotalsReconciled(t, session)
}

func TestSession_ApproveBuyInRequest_ExactlyOnce(t *testing.T) {
	session, members := testSession(t, "alice")

	request, err := session.AddBuyInRequest(members[0], 5000, time.Now().UTC())
	require.NoError(t, err)
	requestID := request.ID

	require.NoError(t, session.ApproveBuyInRequest(requestID, "admin", time.Now().UTC()))
	total := session.TotalBuyIn

	// A retried approval of the resolved request must not double-count
	err = session.ApproveBuyInRequest(requestID, "admin", time.Now().UTC())
	assert.ErrorIs(t, err, ErrRequestNotFound)
	assert.Equal(t, total, session.TotalBuyIn)
	require.Len(t, session.FindPlayer(members[0].UserID).BuyIns, 1)
}

func TestSession_ApproveBuyInRequest_PlayerLeft(t *testing.T) {
	session, members := testSession(t, "alice")
	alice := members[0]

	request, err := session.AddBuyInRequest(alice, 5000, time.Now().UTC())
	require.NoError(t, err)

	session.FindPlayer(alice.UserID).Status = PlayerStatusLeft

	err = session.ApproveBuyInRequest(request.ID, "admin", time.Now().UTC())
	assert.ErrorIs(t, err, ErrPlayerNotInSession)

	// Totals untouched, request still pending for manual resolution
	assert.Zero(t, session.TotalBuyIn)
	require.Len(t, session.BuyInRequests, 1)
	assert.Empty(t, session.FindPlayer(alice.UserID).BuyIns)
}

func TestSession_RejectBuyInRequest(t *testing.T) {
	session, members := testSession(t, "alice")

	request, err := session.AddBuyInRequest(members[0], 5000, time.Now().UTC())
	require.NoError(t, err)

	require.NoError(t, session.RejectBuyInRequest(request.ID))

	// The record stays in the queue, marked, with no ledger effect and no
	// BuyIn record
	require.Len(t, session.BuyInRequests, 1)
	assert.Equal(t, BuyInStatusRejected, session.BuyInRequests[0].Status)
	assert.Zero(t, session.TotalBuyIn)
	assert.Empty(t, session.FindPlayer(members[0].UserID).BuyIns)

	// A rejected request is resolved: neither re-rejection nor approval can
	// touch it
	assert.ErrorIs(t, session.RejectBuyInRequest(request.ID), ErrRequestNotFound)
	assert.ErrorIs(t, session.ApproveBuyInRequest(request.ID, "admin", time.Now().UTC()), ErrRequestNotFound)
	assert.Zero(t, session.TotalBuyIn)
}

func TestSession_DismissBuyInRequest(t *testing.T) {
	session, members := testSession(t, "alice", "bob")
	alice, bob := members[0], members[1]

	request, err := session.AddBuyInRequest(alice, 5000, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, session.RejectBuyInRequest(request.ID))

	// Only the owner can clear their rejected request
	assert.False(t, session.DismissBuyInRequest(request.ID, bob.UserID))
	require.Len(t, session.BuyInRequests, 1)

	assert.True(t, session.DismissBuyInRequest(request.ID, alice.UserID))
	assert.Empty(t, session.BuyInRequests)
	assert.Zero(t, session.TotalBuyIn)

	// Dismissing again is a harmless no-op
	assert.False(t, session.DismissBuyInRequest(request.ID, alice.UserID))
	assert.False(t, session.DismissBuyInRequest(uuid.New(), alice.UserID))
}

func TestSession_DismissBuyInRequest_PendingSurvives(t *testing.T) {
	session, members := testSession(t, "alice", "bob")
	alice, bob := members[0], members[1]

	request, err := session.AddBuyInRequest(alice, 5000, time.Now().UTC())
	require.NoError(t, err)

	// A pending request belongs to the admin's queue: neither its owner
	// nor another player can delete it out from under the approval path
	assert.False(t, session.DismissBuyInRequest(request.ID, bob.UserID))
	assert.False(t, session.DismissBuyInRequest(request.ID, alice.UserID))
	require.Len(t, session.BuyInRequests, 1)
	assert.Equal(t, BuyInStatusPending, session.BuyInRequests[0].Status)

	// The request is still approvable afterwards
	require.NoError(t, session.ApproveBuyInRequest(request.ID, "admin", time.Now().UTC()))
	assert.Equal(t, int64(5000), session.TotalBuyIn)
}

func TestSession_SetPlayerStack(t *testing.T) {
	session, members := testSession(t, "alice", "bob")
	alice, bob := members[0], members[1]
	approvedBuyIn(t, session, alice, 8000)
	approvedBuyIn(t, session, bob, 5000)

	require.NoError(t, session.SetPlayerStack(alice.UserID, 13000))
	p := session.FindPlayer(alice.UserID)
	assert.Equal(t, int64(13000), p.CurrentStack)
	assert.Equal(t, int64(5000), p.ProfitLoss)
	assert.Equal(t, int64(13000), session.TotalStack)
	assertTotalsReconciled(t, session)

	// Replaying the identical call yields an identical session
	before := *session
	require.NoError(t, session.SetPlayerStack(alice.UserID, 13000))
	assert.Equal(t, before.TotalStack, session.TotalStack)
	assert.Equal(t, before.Players, session.Players)

	assert.ErrorIs(t, session.SetPlayerStack(uuid.New(), 100), ErrPlayerNotFound)
}

func TestSession_TotalsInvariantAcrossOperations(t *testing.T) {
	session, members := testSession(t, "alice", "bob", "carol")
	alice, bob, carol := members[0], members[1], members[2]

	approvedBuyIn(t, session, alice, 8000)
	assertTotalsReconciled(t, session)

	approvedBuyIn(t, session, bob, 5000)
	assertTotalsReconciled(t, session)

	rejected, err := session.AddBuyInRequest(carol, 2000, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, session.RejectBuyInRequest(rejected.ID))
	assertTotalsReconciled(t, session)

	require.True(t, session.DismissBuyInRequest(rejected.ID, carol.UserID))
	assertTotalsReconciled(t, session)

	require.NoError(t, session.SetPlayerStack(alice.UserID, 13000))
	require.NoError(t, session.SetPlayerStack(bob.UserID, 0))
	assertTotalsReconciled(t, session)

	assert.Equal(t, int64(13000), session.TotalBuyIn)
	assert.Equal(t, int64(13000), session.TotalStack)
}

func TestSession_Validate(t *testing.T) {
	session, members := testSession(t, "alice", "bob")
	alice, bob := members[0], members[1]
	approvedBuyIn(t, session, alice, 8000)
	approvedBuyIn(t, session, bob, 5000)

	// Mid-session checks are allowed: stacks not yet entered
	result := session.Validate()
	assert.False(t, result.IsValid)
	assert.Equal(t, int64(13000), result.TotalBuyIns)
	assert.Equal(t, int64(0), result.TotalStacks)
	assert.Equal(t, int64(13000), result.Difference)
	assert.NotEmpty(t, result.Message)

	require.NoError(t, session.SetPlayerStack(alice.UserID, 13000))
	require.NoError(t, session.SetPlayerStack(bob.UserID, 0))

	result = session.Validate()
	assert.True(t, result.IsValid)
	assert.Zero(t, result.Difference)
}

func TestSession_End(t *testing.T) {
	session, members := testSession(t, "alice", "bob")
	alice, bob := members[0], members[1]
	approvedBuyIn(t, session, alice, 8000)
	approvedBuyIn(t, session, bob, 5000)
	require.NoError(t, session.SetPlayerStack(alice.UserID, 13000))

	endedAt := time.Now().UTC()
	require.True(t, session.End(endedAt))
	assert.Equal(t, SessionStatusEnded, session.Status)
	require.NotNil(t, session.EndedAt)
	assert.Equal(t, endedAt, *session.EndedAt)
	assert.True(t, session.IsValid) // 13000 in, 13000 on the table

	// Ending again is a no-op: endedAt is untouched
	assert.False(t, session.End(endedAt.Add(time.Hour)))
	assert.Equal(t, endedAt, *session.EndedAt)
}

func TestSession_End_RecordsImbalance(t *testing.T) {
	session, members := testSession(t, "alice")
	approvedBuyIn(t, session, members[0], 8000)
	require.NoError(t, session.SetPlayerStack(members[0].UserID, 5000))

	require.True(t, session.End(time.Now().UTC()))
	assert.False(t, session.IsValid)
}

func TestSession_EndedSessionRejectsMutation(t *testing.T) {
	session, members := testSession(t, "alice")
	alice := members[0]
	approvedBuyIn(t, session, alice, 5000)

	pending, err := session.AddBuyInRequest(alice, 1000, time.Now().UTC())
	require.NoError(t, err)

	require.True(t, session.End(time.Now().UTC()))

	_, err = session.AddBuyInRequest(alice, 2000, time.Now().UTC())
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.ErrorIs(t, session.ApproveBuyInRequest(pending.ID, "admin", time.Now().UTC()), ErrSessionEnded)
	assert.ErrorIs(t, session.RejectBuyInRequest(pending.ID), ErrSessionEnded)
	assert.ErrorIs(t, session.SetPlayerStack(alice.UserID, 9000), ErrSessionEnded)
}

func TestNewSessionCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := NewSessionCode()
		require.Len(t, code, 6)
		for _, ch := range code {
			assert.Contains(t, codeCharset, string(ch))
		}
		seen[code] = true
	}
	// 36^6 possibilities: 100 draws colliding would mean broken randomness
	assert.Greater(t, len(seen), 90)
}
