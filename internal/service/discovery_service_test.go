package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwager/betpool/internal/domain"
)

func betIDs(bets []domain.Bet) []int64 {
	ids := make([]int64, len(bets))
	for i, b := range bets {
		ids[i] = b.ID
	}
	return ids
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opts := domain.ListOpts{Limit: 10}

	open := f.createBet(t, alice) // deadline +1h
	awaiting, err := f.life.CreateBet(ctx, alice, "q", f.clock.Now().Add(10*time.Minute), referee)
	require.NoError(t, err)
	resolved, err := f.life.CreateBet(ctx, bob, "q", f.clock.Now().Add(10*time.Minute), referee)
	require.NoError(t, err)
	f.stake(t, carol, resolved, domain.SideYes, 1)

	f.clock.Advance(11 * time.Minute)
	require.NoError(t, f.life.Resolve(ctx, referee, resolved, domain.SideYes))

	bets, err := f.disc.List(ctx, ListQuery{Filter: FilterOpen, Opts: opts})
	require.NoError(t, err)
	assert.Equal(t, []int64{open}, betIDs(bets))

	bets, err = f.disc.List(ctx, ListQuery{Filter: FilterAwaiting, Opts: opts})
	require.NoError(t, err)
	assert.Equal(t, []int64{awaiting}, betIDs(bets))

	bets, err = f.disc.List(ctx, ListQuery{Filter: FilterResolved, Opts: opts})
	require.NoError(t, err)
	assert.Equal(t, []int64{resolved}, betIDs(bets))

	bets, err = f.disc.List(ctx, ListQuery{Filter: FilterAll, Opts: opts})
	require.NoError(t, err)
	assert.Len(t, bets, 3)
}

func TestListByCreatorAndParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opts := domain.ListOpts{Limit: 10}

	a := f.createBet(t, alice)
	b := f.createBet(t, bob)
	f.stake(t, carol, a, domain.SideYes, 2)
	f.stake(t, carol, b, domain.SideNo, 3)
	f.stake(t, alice, b, domain.SideYes, 1)

	bets, err := f.disc.List(ctx, ListQuery{Creator: alice, Opts: opts})
	require.NoError(t, err)
	assert.Equal(t, []int64{a}, betIDs(bets))

	bets, err = f.disc.List(ctx, ListQuery{Participant: carol, Opts: opts})
	require.NoError(t, err)
	assert.Equal(t, []int64{a, b}, betIDs(bets))
}

func TestListClaimable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opts := domain.ListOpts{Limit: 10}

	won := f.createBet(t, alice)
	lost, err := f.life.CreateBet(ctx, alice, "q", f.clock.Now().Add(time.Hour), referee)
	require.NoError(t, err)
	expired, err := f.life.CreateBet(ctx, alice, "q", f.clock.Now().Add(time.Hour), referee)
	require.NoError(t, err)

	f.stake(t, bob, won, domain.SideYes, 10)
	f.stake(t, carol, won, domain.SideNo, 10)
	f.stake(t, bob, lost, domain.SideNo, 10)
	f.stake(t, carol, lost, domain.SideYes, 10)
	f.stake(t, bob, expired, domain.SideYes, 10)

	f.clock.Advance(time.Hour + time.Second)
	require.NoError(t, f.life.Resolve(ctx, referee, won, domain.SideYes))
	require.NoError(t, f.life.Resolve(ctx, referee, lost, domain.SideYes))

	// Before the grace period elapses only the winning claim shows up.
	bets, err := f.disc.List(ctx, ListQuery{ClaimableBy: bob, Opts: opts})
	require.NoError(t, err)
	assert.Equal(t, []int64{won}, betIDs(bets))

	// Once refundable, the unresolved bet appears as well.
	f.clock.Advance(domain.RefundPeriod)
	bets, err = f.disc.List(ctx, ListQuery{ClaimableBy: bob, Opts: opts})
	require.NoError(t, err)
	assert.Equal(t, []int64{won, expired}, betIDs(bets))

	// Claiming and refunding drain the list.
	_, err = f.settle.Claim(ctx, bob, won, nil)
	require.NoError(t, err)
	_, err = f.settle.Refund(ctx, bob, expired, nil)
	require.NoError(t, err)

	bets, err = f.disc.List(ctx, ListQuery{ClaimableBy: bob, Opts: opts})
	require.NoError(t, err)
	assert.Empty(t, bets)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)

	f.stake(t, alice, id, domain.SideYes, 2)
	f.stake(t, bob, id, domain.SideYes, 1)
	f.stake(t, carol, id, domain.SideNo, 3)
	f.resolve(t, id, domain.SideYes)

	_, err := f.settle.Claim(ctx, alice, id, nil)
	require.NoError(t, err)

	sum, err := f.disc.Summary(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(6), sum.TotalDeposited.Int64())
	assert.Equal(t, int64(1), sum.YesLeft.Int64(), "only the unclaimed yes stake remains")
	assert.Equal(t, int64(3), sum.NoLeft.Int64())
	assert.Equal(t, int64(2), sum.TotalClaimed.Int64())
	assert.Zero(t, sum.TotalRefunded.Sign())
}
