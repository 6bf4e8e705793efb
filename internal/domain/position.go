package domain

import "math/big"

// NoteMaxLen is the byte cap for a per-position display note. Longer notes
// are truncated, not rejected.
const NoteMaxLen = 32

// Position is one participant's accumulated stake on a bet. Both amounts are
// monotonically non-decreasing; they record historical deposits, not the
// current reserve.
type Position struct {
	BetID   int64
	Address string // hex address
	Yes     *big.Int
	No      *big.Int
}

// Total returns Yes + No as a new big.Int.
func (p Position) Total() *big.Int {
	return new(big.Int).Add(p.Yes, p.No)
}

// OnSide returns the accumulated amount on the given side.
func (p Position) OnSide(s Side) *big.Int {
	if s == SideYes {
		return p.Yes
	}
	return p.No
}

// ZeroPosition returns an empty position for the given key. Stores return it
// when a participant has never staked on the bet.
func ZeroPosition(betID int64, addr string) Position {
	return Position{
		BetID:   betID,
		Address: addr,
		Yes:     new(big.Int),
		No:      new(big.Int),
	}
}
