package domain

import "math/big"

// SettlementFlags are the per-(bet, participant) one-way latches. Each flips
// false to true exactly once and is never reversed.
type SettlementFlags struct {
	Claimed  bool
	Refunded bool
}

// BetStats holds the cumulative settlement counters for a bet. They are
// write-only from the settlement path and exist purely for statistics and
// off-chain reconciliation; the payout formula never reads them.
type BetStats struct {
	BetID       int64
	ClaimedYes  *big.Int
	ClaimedNo   *big.Int
	RefundedYes *big.Int
	RefundedNo  *big.Int
}

// TotalClaimed returns ClaimedYes + ClaimedNo as a new big.Int.
func (s BetStats) TotalClaimed() *big.Int {
	return new(big.Int).Add(s.ClaimedYes, s.ClaimedNo)
}

// TotalRefunded returns RefundedYes + RefundedNo as a new big.Int.
func (s BetStats) TotalRefunded() *big.Int {
	return new(big.Int).Add(s.RefundedYes, s.RefundedNo)
}

// ZeroStats returns an all-zero stats record for the given bet.
func ZeroStats(betID int64) BetStats {
	return BetStats{
		BetID:       betID,
		ClaimedYes:  new(big.Int),
		ClaimedNo:   new(big.Int),
		RefundedYes: new(big.Int),
		RefundedNo:  new(big.Int),
	}
}

// AmountLeft returns the portion of a side's historical total that has not
// yet been claimed or refunded. Statistics only; never feeds back into the
// payout computation.
func AmountLeft(b Bet, s BetStats, side Side) *big.Int {
	left := new(big.Int).Set(b.SideTotal(side))
	if side == SideYes {
		left.Sub(left, s.ClaimedYes)
		left.Sub(left, s.RefundedYes)
	} else {
		left.Sub(left, s.ClaimedNo)
		left.Sub(left, s.RefundedNo)
	}
	return left
}
