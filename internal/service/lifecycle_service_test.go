package service

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwager/betpool/internal/domain"
)

func TestCreateBet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.life.CreateBet(ctx, alice, "first question", f.clock.Now().Add(time.Hour), referee)
	require.NoError(t, err)
	assert.Equal(t, int64(0), id, "ids start at zero")

	id2, err := f.life.CreateBet(ctx, bob, "second question", f.clock.Now().Add(2*time.Hour), referee)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id2, "ids are sequential")

	b, err := f.ledger.Bet(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, alice, b.Creator)
	assert.Equal(t, referee, b.Resolver)
	assert.Equal(t, "first question", b.Question)
	assert.False(t, b.Resolved)
	assert.False(t, b.RefundsStarted)
	assert.Zero(t, b.Total().Sign())

	// Creating a bet moves no value.
	assert.Equal(t, int64(1_000_000), f.balance(t, alice))

	all, err := f.index.All(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, all)

	mine, err := f.index.ByCreator(ctx, alice, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, mine)
}

func TestCreateBetValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()

	tests := []struct {
		name     string
		deadline time.Time
		resolver string
		want     error
	}{
		{"deadline in the past", now.Add(-time.Hour), referee, domain.ErrInvalidDeadline},
		{"deadline exactly now", now, referee, domain.ErrInvalidDeadline},
		{"deadline beyond horizon", now.Add(domain.MaxDeadlineHorizon + time.Hour), referee, domain.ErrInvalidDeadline},
		{"empty resolver", now.Add(time.Hour), "", domain.ErrInvalidResolver},
		{"zero resolver", now.Add(time.Hour), domain.ZeroAddress, domain.ErrInvalidResolver},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.life.CreateBet(ctx, alice, "q", tc.deadline, tc.resolver)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// The horizon bound itself is allowed.
	_, err := f.life.CreateBet(ctx, alice, "q", now.Add(domain.MaxDeadlineHorizon), referee)
	assert.NoError(t, err)
}

func TestTakePosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)

	f.stake(t, alice, id, domain.SideYes, 100)
	f.stake(t, bob, id, domain.SideNo, 40)
	f.stake(t, alice, id, domain.SideYes, 50)
	f.stake(t, alice, id, domain.SideNo, 10)

	b, err := f.ledger.Bet(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(150), b.YesTotal.Int64())
	assert.Equal(t, int64(50), b.NoTotal.Int64())
	assert.Equal(t, int64(200), b.Total().Int64())

	p, err := f.ledger.Position(ctx, id, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(150), p.Yes.Int64(), "repeat stakes on a side accumulate")
	assert.Equal(t, int64(10), p.No.Int64(), "both sides of one bet are allowed")

	assert.Equal(t, int64(1_000_000-160), f.balance(t, alice))
	assert.Equal(t, int64(1_000_000-40), f.balance(t, bob))

	// Each participant lands in the participant index exactly once.
	byAlice, err := f.index.ByParticipant(ctx, alice, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, byAlice)
}

func TestTakePositionZeroAmount(t *testing.T) {
	f := newFixture(t)
	id := f.createBet(t, alice)

	err := f.life.TakePosition(context.Background(), bob, id, domain.SideYes, big.NewInt(0), "")
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	err = f.life.TakePosition(context.Background(), bob, id, domain.SideYes, nil, "")
	assert.ErrorIs(t, err, domain.ErrZeroAmount)

	err = f.life.TakePosition(context.Background(), bob, id, domain.SideYes, big.NewInt(-5), "")
	assert.ErrorIs(t, err, domain.ErrZeroAmount)
}

func TestTakePositionUnknownBet(t *testing.T) {
	f := newFixture(t)

	err := f.life.TakePosition(context.Background(), bob, 99, domain.SideYes, big.NewInt(1), "")
	assert.ErrorIs(t, err, domain.ErrBetNotFound)
}

func TestTakePositionAtDeadline(t *testing.T) {
	f := newFixture(t)
	id := f.createBet(t, alice)

	b, err := f.ledger.Bet(context.Background(), id)
	require.NoError(t, err)
	f.clock.Set(b.Deadline)

	err = f.life.TakePosition(context.Background(), bob, id, domain.SideYes, big.NewInt(1), "")
	assert.ErrorIs(t, err, domain.ErrBettingClosed)
}

func TestTakePositionAfterResolution(t *testing.T) {
	f := newFixture(t)
	id := f.createBet(t, alice)
	f.stake(t, alice, id, domain.SideYes, 10)
	f.resolve(t, id, domain.SideYes)

	// The deadline check fires before the resolution check, so a late stake
	// on a resolved bet still reports the deadline.
	err := f.life.TakePosition(context.Background(), bob, id, domain.SideNo, big.NewInt(1), "")
	assert.ErrorIs(t, err, domain.ErrBettingClosed)
}

func TestTakePositionInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)

	err := f.life.TakePosition(ctx, bob, id, domain.SideYes, big.NewInt(2_000_000), "")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	b, err := f.ledger.Bet(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, b.Total().Sign(), "failed stake leaves totals untouched")
	assert.Equal(t, int64(1_000_000), f.balance(t, bob))
}

func TestTakePositionNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)

	long := strings.Repeat("x", domain.NoteMaxLen+8)
	require.NoError(t, f.life.TakePosition(ctx, bob, id, domain.SideYes, big.NewInt(5), long))

	note, err := f.ledger.Note(ctx, id, bob)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", domain.NoteMaxLen), note, "notes are truncated, not rejected")

	// A later stake with an empty note keeps the stored one.
	require.NoError(t, f.life.TakePosition(ctx, bob, id, domain.SideYes, big.NewInt(5), ""))
	note, err = f.ledger.Note(ctx, id, bob)
	require.NoError(t, err)
	assert.NotEmpty(t, note)
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)
	f.stake(t, alice, id, domain.SideYes, 10)
	f.stake(t, bob, id, domain.SideNo, 10)

	f.pastDeadline(t, id)
	require.NoError(t, f.life.Resolve(ctx, referee, id, domain.SideNo))

	b, err := f.ledger.Bet(ctx, id)
	require.NoError(t, err)
	assert.True(t, b.Resolved)
	assert.Equal(t, domain.SideNo, b.Outcome)
}

func TestResolveUnauthorized(t *testing.T) {
	f := newFixture(t)
	id := f.createBet(t, alice)
	f.pastDeadline(t, id)

	// Not even the creator may resolve; only the designated resolver.
	err := f.life.Resolve(context.Background(), alice, id, domain.SideYes)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestResolveBeforeDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)

	err := f.life.Resolve(ctx, referee, id, domain.SideYes)
	assert.ErrorIs(t, err, domain.ErrTooEarly)

	// Resolution opens strictly after the deadline, not at it.
	b, err := f.ledger.Bet(ctx, id)
	require.NoError(t, err)
	f.clock.Set(b.Deadline)
	err = f.life.Resolve(ctx, referee, id, domain.SideYes)
	assert.ErrorIs(t, err, domain.ErrTooEarly)

	f.clock.Set(b.Deadline.Add(time.Second))
	assert.NoError(t, f.life.Resolve(ctx, referee, id, domain.SideYes))
}

func TestResolveTwice(t *testing.T) {
	f := newFixture(t)
	id := f.createBet(t, alice)
	f.resolve(t, id, domain.SideYes)

	err := f.life.Resolve(context.Background(), referee, id, domain.SideNo)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	b, err := f.ledger.Bet(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.SideYes, b.Outcome, "outcome is immutable once set")
}

func TestResolveUnknownBet(t *testing.T) {
	f := newFixture(t)

	err := f.life.Resolve(context.Background(), referee, 7, domain.SideYes)
	assert.ErrorIs(t, err, domain.ErrBetNotFound)
}

func TestResolveAfterRefundsStarted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)
	f.stake(t, bob, id, domain.SideYes, 25)

	b, err := f.ledger.Bet(ctx, id)
	require.NoError(t, err)
	f.clock.Set(b.RefundableAt())

	_, err = f.settle.Refund(ctx, bob, id, nil)
	require.NoError(t, err)

	err = f.life.Resolve(ctx, referee, id, domain.SideYes)
	assert.ErrorIs(t, err, domain.ErrRefundsStarted)
}
