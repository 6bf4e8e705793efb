package service

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openwager/betpool/internal/domain"
	"github.com/openwager/betpool/internal/store/memory"
)

const (
	alice   = "0x00000000000000000000000000000000000000a1"
	bob     = "0x00000000000000000000000000000000000000b2"
	carol   = "0x00000000000000000000000000000000000000c3"
	referee = "0x00000000000000000000000000000000000000d4"
)

// fakeClock is a settable clock shared by the services under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// fixture wires the services against the in-memory backend with a fake
// clock and pre-funded accounts.
type fixture struct {
	ledger   *memory.Ledger
	index    *memory.Index
	treasury *memory.Treasury
	clock    *fakeClock
	life     *LifecycleService
	settle   *SettlementService
	disc     *DiscoveryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := newFakeClock()
	ledger := memory.NewLedger()
	index := memory.NewIndex()
	treasury := memory.NewTreasury()
	locks := NewBetLocks()

	life := NewLifecycleService(ledger, index, treasury, locks, nil, nil, nil, nil, logger)
	life.now = clock.Now
	settle := NewSettlementService(ledger, treasury, locks, nil, nil, nil, nil, logger)
	settle.now = clock.Now
	disc := NewDiscoveryService(ledger, index, nil, logger)
	disc.now = clock.Now

	ctx := context.Background()
	for _, addr := range []string{alice, bob, carol, referee} {
		require.NoError(t, treasury.Credit(ctx, addr, big.NewInt(1_000_000)))
	}

	return &fixture{
		ledger:   ledger,
		index:    index,
		treasury: treasury,
		clock:    clock,
		life:     life,
		settle:   settle,
		disc:     disc,
	}
}

// createBet opens a bet with a one-hour deadline resolved by referee.
func (f *fixture) createBet(t *testing.T, creator string) int64 {
	t.Helper()
	id, err := f.life.CreateBet(context.Background(), creator, "will it rain tomorrow?",
		f.clock.Now().Add(time.Hour), referee)
	require.NoError(t, err)
	return id
}

func (f *fixture) stake(t *testing.T, addr string, betID int64, side domain.Side, amount int64) {
	t.Helper()
	require.NoError(t, f.life.TakePosition(context.Background(), addr, betID, side, big.NewInt(amount), ""))
}

func (f *fixture) pastDeadline(t *testing.T, betID int64) {
	t.Helper()
	b, err := f.ledger.Bet(context.Background(), betID)
	require.NoError(t, err)
	f.clock.Set(b.Deadline.Add(time.Second))
}

func (f *fixture) resolve(t *testing.T, betID int64, outcome domain.Side) {
	t.Helper()
	f.pastDeadline(t, betID)
	require.NoError(t, f.life.Resolve(context.Background(), referee, betID, outcome))
}

func (f *fixture) balance(t *testing.T, addr string) int64 {
	t.Helper()
	bal, err := f.treasury.Balance(context.Background(), addr)
	require.NoError(t, err)
	return bal.Int64()
}
