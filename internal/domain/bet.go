package domain

import (
	"math/big"
	"time"
)

// Side identifies one of the two outcomes of a bet.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether s is one of the two recognised sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// ZeroAddress is the null participant identity. It is never a valid creator,
// resolver, or beneficiary.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

const (
	// RefundPeriod is the grace window after the deadline during which
	// resolution remains possible before refunds open up.
	RefundPeriod = 7 * 24 * time.Hour

	// MaxDeadlineHorizon bounds how far in the future a deadline may be set.
	MaxDeadlineHorizon = 365 * 24 * time.Hour
)

// Bet is a single binary-outcome proposition. It is a permanent historical
// record: YesTotal and NoTotal accumulate every stake ever deposited and are
// never decremented, even after claims or refunds drain the pool.
type Bet struct {
	ID       int64
	Creator  string // hex address
	Resolver string // hex address authorized to resolve; may equal Creator
	Question string
	Deadline time.Time

	YesTotal *big.Int
	NoTotal  *big.Int

	Resolved bool
	Outcome  Side // meaningful only when Resolved

	// RefundsStarted latches to true on the first successful refund and
	// permanently forbids resolution of this bet.
	RefundsStarted bool

	CreatedAt time.Time
}

// Total returns YesTotal + NoTotal as a new big.Int.
func (b Bet) Total() *big.Int {
	return new(big.Int).Add(b.YesTotal, b.NoTotal)
}

// SideTotal returns the historical deposit total for the given side.
func (b Bet) SideTotal(s Side) *big.Int {
	if s == SideYes {
		return b.YesTotal
	}
	return b.NoTotal
}

// Open reports whether the bet still accepts positions at the given instant.
func (b Bet) Open(now time.Time) bool {
	return now.Before(b.Deadline) && !b.Resolved
}

// RefundableAt returns the instant from which refunds become available.
func (b Bet) RefundableAt() time.Time {
	return b.Deadline.Add(RefundPeriod)
}
