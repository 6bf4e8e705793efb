// Package memory implements the domain store interfaces with mutex-guarded
// in-process maps. It backs the "memory" storage backend for local
// development and is the harness the service tests run against.
package memory

import (
	"context"
	"math/big"
	"sync"

	"github.com/openwager/betpool/internal/domain"
)

type posKey struct {
	betID int64
	addr  string
}

// Ledger implements domain.LedgerStore in memory.
type Ledger struct {
	mu        sync.RWMutex
	bets      map[int64]domain.Bet
	positions map[posKey]domain.Position
	flags     map[posKey]domain.SettlementFlags
	stats     map[int64]domain.BetStats
	notes     map[posKey]string
	nextID    int64
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		bets:      make(map[int64]domain.Bet),
		positions: make(map[posKey]domain.Position),
		flags:     make(map[posKey]domain.SettlementFlags),
		stats:     make(map[int64]domain.BetStats),
		notes:     make(map[posKey]string),
	}
}

// CreateBet inserts a new bet with zeroed totals and returns its id.
// Ids are sequential starting at 0.
func (l *Ledger) CreateBet(_ context.Context, b domain.Bet) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b.ID = l.nextID
	l.nextID++
	b.YesTotal = new(big.Int)
	b.NoTotal = new(big.Int)
	b.Resolved = false
	b.RefundsStarted = false

	l.bets[b.ID] = b
	l.stats[b.ID] = domain.ZeroStats(b.ID)
	return b.ID, nil
}

func (l *Ledger) Bet(_ context.Context, id int64) (domain.Bet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.bets[id]
	if !ok {
		return domain.Bet{}, domain.ErrBetNotFound
	}
	return copyBet(b), nil
}

func (l *Ledger) Bets(_ context.Context, ids []int64) ([]domain.Bet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Bet, 0, len(ids))
	for _, id := range ids {
		b, ok := l.bets[id]
		if !ok {
			return nil, domain.ErrBetNotFound
		}
		out = append(out, copyBet(b))
	}
	return out, nil
}

func (l *Ledger) Count(_ context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextID, nil
}

// AddPosition applies a stake to the position, the bet total, and the note in
// one critical section.
func (l *Ledger) AddPosition(_ context.Context, betID int64, addr string, side domain.Side, amount *big.Int, note string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.bets[betID]
	if !ok {
		return false, domain.ErrBetNotFound
	}

	key := posKey{betID, addr}
	p, exists := l.positions[key]
	if !exists {
		p = domain.ZeroPosition(betID, addr)
	}

	if side == domain.SideYes {
		p.Yes = new(big.Int).Add(p.Yes, amount)
		b.YesTotal = new(big.Int).Add(b.YesTotal, amount)
	} else {
		p.No = new(big.Int).Add(p.No, amount)
		b.NoTotal = new(big.Int).Add(b.NoTotal, amount)
	}

	l.positions[key] = p
	l.bets[betID] = b
	if note != "" {
		l.notes[key] = note
	}
	return !exists, nil
}

func (l *Ledger) Position(_ context.Context, betID int64, addr string) (domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.positions[posKey{betID, addr}]
	if !ok {
		return domain.ZeroPosition(betID, addr), nil
	}
	return copyPosition(p), nil
}

func (l *Ledger) Positions(_ context.Context, betIDs []int64, addr string) ([]domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Position, 0, len(betIDs))
	for _, id := range betIDs {
		p, ok := l.positions[posKey{id, addr}]
		if !ok {
			p = domain.ZeroPosition(id, addr)
		}
		out = append(out, copyPosition(p))
	}
	return out, nil
}

func (l *Ledger) MarkResolved(_ context.Context, betID int64, outcome domain.Side) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.bets[betID]
	if !ok {
		return domain.ErrBetNotFound
	}
	b.Resolved = true
	b.Outcome = outcome
	l.bets[betID] = b
	return nil
}

func (l *Ledger) Flags(_ context.Context, betID int64, addr string) (domain.SettlementFlags, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.flags[posKey{betID, addr}], nil
}

// MarkClaimed latches the claim flag and bumps the claimed counter. The
// latch check and the counter update share one critical section so a
// concurrent duplicate observes ErrAlreadyClaimed.
func (l *Ledger) MarkClaimed(_ context.Context, betID int64, addr string, side domain.Side, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := posKey{betID, addr}
	f := l.flags[key]
	if f.Claimed {
		return domain.ErrAlreadyClaimed
	}
	f.Claimed = true
	l.flags[key] = f

	s := l.statsLocked(betID)
	if side == domain.SideYes {
		s.ClaimedYes = new(big.Int).Add(s.ClaimedYes, amount)
	} else {
		s.ClaimedNo = new(big.Int).Add(s.ClaimedNo, amount)
	}
	l.stats[betID] = s
	return nil
}

// MarkRefunded latches the refund flag, bumps both refunded counters, and
// sets the bet's RefundsStarted latch.
func (l *Ledger) MarkRefunded(_ context.Context, betID int64, addr string, yes, no *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := posKey{betID, addr}
	f := l.flags[key]
	if f.Refunded {
		return domain.ErrAlreadyRefunded
	}
	f.Refunded = true
	l.flags[key] = f

	s := l.statsLocked(betID)
	s.RefundedYes = new(big.Int).Add(s.RefundedYes, yes)
	s.RefundedNo = new(big.Int).Add(s.RefundedNo, no)
	l.stats[betID] = s

	if b, ok := l.bets[betID]; ok {
		b.RefundsStarted = true
		l.bets[betID] = b
	}
	return nil
}

func (l *Ledger) Stats(_ context.Context, betID int64) (domain.BetStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.stats[betID]
	if !ok {
		return domain.ZeroStats(betID), nil
	}
	return domain.BetStats{
		BetID:       s.BetID,
		ClaimedYes:  new(big.Int).Set(s.ClaimedYes),
		ClaimedNo:   new(big.Int).Set(s.ClaimedNo),
		RefundedYes: new(big.Int).Set(s.RefundedYes),
		RefundedNo:  new(big.Int).Set(s.RefundedNo),
	}, nil
}

func (l *Ledger) Note(_ context.Context, betID int64, addr string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.notes[posKey{betID, addr}], nil
}

func (l *Ledger) Notes(_ context.Context, betID int64, addrs []string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(addrs))
	for i, addr := range addrs {
		out[i] = l.notes[posKey{betID, addr}]
	}
	return out, nil
}

func (l *Ledger) statsLocked(betID int64) domain.BetStats {
	s, ok := l.stats[betID]
	if !ok {
		s = domain.ZeroStats(betID)
	}
	return s
}

func copyBet(b domain.Bet) domain.Bet {
	b.YesTotal = new(big.Int).Set(b.YesTotal)
	b.NoTotal = new(big.Int).Set(b.NoTotal)
	return b
}

func copyPosition(p domain.Position) domain.Position {
	p.Yes = new(big.Int).Set(p.Yes)
	p.No = new(big.Int).Set(p.No)
	return p
}

// Compile-time interface check.
var _ domain.LedgerStore = (*Ledger)(nil)
