package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openwager/betpool/internal/domain"
)

// betLockTTL bounds how long a distributed per-bet lock may be held before
// Redis expires it. Mutations finish in milliseconds; the TTL only matters
// if an instance dies mid-operation.
const betLockTTL = 10 * time.Second

// BetLocks serializes mutating operations per bet within one process. The
// lifecycle and settlement services share a single instance so that no two
// mutations on the same bet ever interleave.
type BetLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewBetLocks creates an empty lock table.
func NewBetLocks() *BetLocks {
	return &BetLocks{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for the given bet and returns its unlock function.
func (bl *BetLocks) Lock(betID int64) func() {
	bl.mu.Lock()
	m, ok := bl.locks[betID]
	if !ok {
		m = &sync.Mutex{}
		bl.locks[betID] = m
	}
	bl.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// lockBet takes the in-process mutex for the bet and, when a distributed
// lock manager is configured, the cross-instance lock as well. The returned
// function releases both.
func lockBet(ctx context.Context, locks *BetLocks, dlock domain.LockManager, betID int64, logger *slog.Logger) (func(), error) {
	unlock := locks.Lock(betID)

	if dlock == nil {
		return unlock, nil
	}

	release, err := dlock.Acquire(ctx, fmt.Sprintf("bet:%d", betID), betLockTTL)
	if err != nil {
		unlock()
		if err == domain.ErrLockHeld {
			return nil, domain.ErrLockHeld
		}
		return nil, fmt.Errorf("service: acquire bet lock %d: %w", betID, err)
	}

	return func() {
		release()
		unlock()
	}, nil
}
