package domain

import "math/big"

// Payout computes a participant's entitlement on the given bet if outcome
// were (or is) the winning side. It is a pure parimutuel split: winners
// divide the entire pool, both sides combined, in proportion to their share
// of the winning side's total stake.
//
// The division floors, so the per-participant payouts can sum to slightly
// less than the pool; that rounding dust is accepted and never swept. The
// statistics exposed through BetStats make the discrepancy visible for
// reconciliation.
func Payout(b Bet, p Position, outcome Side) *big.Int {
	total := b.Total()
	if total.Sign() == 0 {
		return new(big.Int)
	}

	winningPosition := p.OnSide(outcome)
	if winningPosition.Sign() == 0 {
		return new(big.Int)
	}

	winningPool := b.SideTotal(outcome)
	if winningPool.Sign() == 0 {
		// Unreachable while positions feed the totals, since a non-zero
		// position implies a non-zero pool. Kept because external callers
		// depend on this exact numeric path.
		return new(big.Int).Set(winningPosition)
	}

	out := new(big.Int).Mul(winningPosition, total)
	return out.Div(out, winningPool)
}
