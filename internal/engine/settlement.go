// Package engine holds the pure computation core: turning a session's
// final stacks into the minimal set of settling payments. Nothing here
// touches storage or transport; callers pass a snapshot in and get a
// result out.
package engine

import "github.com/google/uuid"

// PlayerResult is one player's finalized ledger line: what they paid in
// and what they finished with. Amounts are whole currency units.
type PlayerResult struct {
	UserID       uuid.UUID `json:"user_id"`
	Name         string    `json:"name"`
	TotalBuyIn   int64     `json:"total_buy_in"`
	CurrentStack int64     `json:"current_stack"`
}

// Net is the player's position: positive means the table owes them money,
// negative means they owe the table.
func (p PlayerResult) Net() int64 {
	return p.CurrentStack - p.TotalBuyIn
}

// Transaction is a single settling payment from one player to another.
type Transaction struct {
	FromID uuid.UUID `json:"from_id"`
	From   string    `json:"from"`
	ToID   uuid.UUID `json:"to_id"`
	To     string    `json:"to"`
	Amount int64     `json:"amount"`
}

// Outstanding is a residual claim that found no counterparty because the
// session did not balance. It is reported, never paid.
type Outstanding struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Amount int64     `json:"amount"`
}

// SettlementResult is the full output of the netting algorithm. For a
// balanced input both unsettled lists are empty and applying every
// transaction zeroes every player's net.
type SettlementResult struct {
	Transactions     []Transaction `json:"transactions"`
	UnsettledWinners []Outstanding `json:"unsettled_winners"`
	UnsettledLosers  []Outstanding `json:"unsettled_losers"`
}

// Balanced reports whether every claim found a counterparty.
func (r SettlementResult) Balanced() bool {
	return len(r.UnsettledWinners) == 0 && len(r.UnsettledLosers) == 0
}

// party tracks one side of the netting while it still has money to move.
// order is the player's position in the input, used to break ties so that
// identical input always yields an identical transaction list.
type party struct {
	player    PlayerResult
	remaining int64
	order     int
}

// Settle nets the players' positions into pairwise payments using greedy
// largest-creditor/largest-debtor matching. Players with a zero net are
// excluded entirely. A balanced input (nets summing to zero) produces at
// most n-1 strictly positive transactions; an unbalanced input is matched
// as far as possible and the leftover side is reported as unsettled.
func Settle(players []PlayerResult) SettlementResult {
	var creditors, debtors []*party
	for i, p := range players {
		switch net := p.Net(); {
		case net > 0:
			creditors = append(creditors, &party{player: p, remaining: net, order: i})
		case net < 0:
			debtors = append(debtors, &party{player: p, remaining: -net, order: i})
		}
	}

	result := SettlementResult{
		Transactions:     []Transaction{},
		UnsettledWinners: []Outstanding{},
		UnsettledLosers:  []Outstanding{},
	}

	for len(creditors) > 0 && len(debtors) > 0 {
		creditor := largestRemaining(creditors)
		debtor := largestRemaining(debtors)

		amount := creditor.remaining
		if debtor.remaining < amount {
			amount = debtor.remaining
		}

		result.Transactions = append(result.Transactions, Transaction{
			FromID: debtor.player.UserID,
			From:   debtor.player.Name,
			ToID:   creditor.player.UserID,
			To:     creditor.player.Name,
			Amount: amount,
		})

		creditor.remaining -= amount
		debtor.remaining -= amount
		creditors = pruneSettled(creditors)
		debtors = pruneSettled(debtors)
	}

	// Whichever side survives had no counterparty left; the session was
	// not balanced. Report the residuals verbatim.
	for _, c := range creditors {
		result.UnsettledWinners = append(result.UnsettledWinners, Outstanding{
			UserID: c.player.UserID,
			Name:   c.player.Name,
			Amount: c.remaining,
		})
	}
	for _, d := range debtors {
		result.UnsettledLosers = append(result.UnsettledLosers, Outstanding{
			UserID: d.player.UserID,
			Name:   d.player.Name,
			Amount: d.remaining,
		})
	}

	return result
}

// largestRemaining picks the party with the most money left to move,
// breaking ties by input order.
func largestRemaining(parties []*party) *party {
	best := parties[0]
	for _, p := range parties[1:] {
		if p.remaining > best.remaining || (p.remaining == best.remaining && p.order < best.order) {
			best = p
		}
	}
	return best
}

func pruneSettled(parties []*party) []*party {
	kept := parties[:0]
	for _, p := range parties {
		if p.remaining > 0 {
			kept = append(kept, p)
		}
	}
	return kept
}
