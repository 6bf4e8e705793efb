package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwager/betpool/internal/domain"
)

// hookTreasury intercepts credits so tests can fail or reenter the
// settlement path mid-transfer.
type hookTreasury struct {
	domain.Treasury
	onCredit func(addr string, amount *big.Int) error
}

func (h *hookTreasury) Credit(ctx context.Context, addr string, amount *big.Int) error {
	if h.onCredit != nil {
		if err := h.onCredit(addr, amount); err != nil {
			return err
		}
	}
	return h.Treasury.Credit(ctx, addr, amount)
}

func TestClaimProportionalPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)

	f.stake(t, alice, id, domain.SideYes, 2)
	f.stake(t, bob, id, domain.SideYes, 1)
	f.stake(t, carol, id, domain.SideNo, 3)
	f.resolve(t, id, domain.SideYes)

	got, err := f.settle.Claim(ctx, alice, id, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Int64(), "2/3 of the yes pool earns 2/3 of 6")

	got, err = f.settle.Claim(ctx, bob, id, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Int64())

	assert.Equal(t, int64(1_000_000+2), f.balance(t, alice))
	assert.Equal(t, int64(1_000_000+1), f.balance(t, bob))
	assert.Equal(t, int64(1_000_000-3), f.balance(t, carol))

	stats, err := f.ledger.Stats(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.ClaimedYes.Int64(), "counters track settled stake, not payout")
	assert.Zero(t, stats.ClaimedNo.Sign())
}

func TestClaimDust(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)

	// Total 7, yes pool 3. Payouts floor to 4 and 2; one unit stays behind.
	f.stake(t, alice, id, domain.SideYes, 2)
	f.stake(t, bob, id, domain.SideYes, 1)
	f.stake(t, carol, id, domain.SideNo, 4)
	f.resolve(t, id, domain.SideYes)

	a, err := f.settle.Claim(ctx, alice, id, nil)
	require.NoError(t, err)
	b, err := f.settle.Claim(ctx, bob, id, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), a.Int64())
	assert.Equal(t, int64(2), b.Int64())
	assert.Less(t, a.Int64()+b.Int64(), int64(7), "rounding dust is never paid out")
}

func TestClaimExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)
	f.stake(t, alice, id, domain.SideYes, 10)
	f.stake(t, bob, id, domain.SideNo, 10)
	f.resolve(t, id, domain.SideYes)

	_, err := f.settle.Claim(ctx, alice, id, nil)
	require.NoError(t, err)

	_, err = f.settle.Claim(ctx, alice, id, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.Equal(t, int64(1_000_000+10), f.balance(t, alice), "repeat claim moves no value")
}

func TestClaimBeforeResolution(t *testing.T) {
	f := newFixture(t)
	id := f.createBet(t, alice)
	f.stake(t, alice, id, domain.SideYes, 10)

	_, err := f.settle.Claim(context.Background(), alice, id, nil)
	assert.ErrorIs(t, err, domain.ErrBetNotResolved)
}

func TestClaimNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)
	f.stake(t, alice, id, domain.SideYes, 10)
	f.stake(t, bob, id, domain.SideNo, 10)
	f.resolve(t, id, domain.SideYes)

	// Losers and non-participants have nothing to claim.
	_, err := f.settle.Claim(ctx, bob, id, nil)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)

	_, err = f.settle.Claim(ctx, carol, id, nil)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)
}

func TestClaimEmptyWinningPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)
	f.stake(t, alice, id, domain.SideNo, 10)
	f.stake(t, bob, id, domain.SideNo, 20)
	f.resolve(t, id, domain.SideYes)

	// Nobody backed the winning side; the pool is unreachable through
	// claims and, because the bet resolved, through refunds too.
	_, err := f.settle.Claim(ctx, alice, id, nil)
	assert.ErrorIs(t, err, domain.ErrNothingToClaim)

	f.clock.Advance(domain.RefundPeriod + time.Hour)
	_, err = f.settle.Refund(ctx, alice, id, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestClaimUnknownBet(t *testing.T) {
	f := newFixture(t)

	_, err := f.settle.Claim(context.Background(), alice, 42, nil)
	assert.ErrorIs(t, err, domain.ErrBetNotFound)
}

func TestClaimForBeneficiary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)
	f.stake(t, alice, id, domain.SideYes, 10)
	f.stake(t, bob, id, domain.SideNo, 10)
	f.resolve(t, id, domain.SideYes)

	ben := alice
	got, err := f.settle.Claim(ctx, carol, id, &ben)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.Int64())

	// The value goes to the beneficiary, and the latch binds them too.
	assert.Equal(t, int64(1_000_000+10), f.balance(t, alice))
	assert.Equal(t, int64(1_000_000), f.balance(t, carol))

	_, err = f.settle.Claim(ctx, alice, id, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestClaimZeroBeneficiaryMeansCaller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)
	f.stake(t, alice, id, domain.SideYes, 10)
	f.resolve(t, id, domain.SideYes)

	zero := domain.ZeroAddress
	got, err := f.settle.Claim(ctx, alice, id, &zero)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Int64())
	assert.Equal(t, int64(1_000_000+10), f.balance(t, alice))
}

func TestClaimConservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)

	f.stake(t, alice, id, domain.SideYes, 17)
	f.stake(t, bob, id, domain.SideYes, 29)
	f.stake(t, carol, id, domain.SideNo, 53)
	f.resolve(t, id, domain.SideYes)

	paid := new(big.Int)
	for _, addr := range []string{alice, bob} {
		got, err := f.settle.Claim(ctx, addr, id, nil)
		require.NoError(t, err)
		paid.Add(paid, got)
	}

	total := int64(17 + 29 + 53)
	assert.LessOrEqual(t, paid.Int64(), total, "claims never exceed the pool")
	assert.Greater(t, paid.Int64(), total-2, "floor rounding loses less than one unit per claimant")
}

func TestRefundWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)
	f.stake(t, bob, id, domain.SideYes, 30)
	f.stake(t, bob, id, domain.SideNo, 12)

	b, err := f.ledger.Bet(ctx, id)
	require.NoError(t, err)

	// Still inside the grace period.
	f.clock.Set(b.RefundableAt().Add(-time.Second))
	_, err = f.settle.Refund(ctx, bob, id, nil)
	assert.ErrorIs(t, err, domain.ErrRefundTooEarly)

	// The boundary instant itself is refundable.
	f.clock.Set(b.RefundableAt())
	got, err := f.settle.Refund(ctx, bob, id, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Int64(), "refund returns both sides of the stake")
	assert.Equal(t, int64(1_000_000), f.balance(t, bob))

	stats, err := f.ledger.Stats(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(30), stats.RefundedYes.Int64())
	assert.Equal(t, int64(12), stats.RefundedNo.Int64())
}

func TestRefundExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)
	f.stake(t, bob, id, domain.SideYes, 30)
	f.clock.Advance(time.Hour + domain.RefundPeriod)

	_, err := f.settle.Refund(ctx, bob, id, nil)
	require.NoError(t, err)

	_, err = f.settle.Refund(ctx, bob, id, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyRefunded)
	assert.Equal(t, int64(1_000_000), f.balance(t, bob))
}

func TestRefundNonParticipant(t *testing.T) {
	f := newFixture(t)
	id := f.createBet(t, alice)
	f.stake(t, bob, id, domain.SideYes, 30)
	f.clock.Advance(time.Hour + domain.RefundPeriod)

	_, err := f.settle.Refund(context.Background(), carol, id, nil)
	assert.ErrorIs(t, err, domain.ErrNothingToRefund)
}

func TestRefundResolvedBet(t *testing.T) {
	f := newFixture(t)
	id := f.createBet(t, alice)
	f.stake(t, bob, id, domain.SideYes, 30)
	f.resolve(t, id, domain.SideYes)
	f.clock.Advance(domain.RefundPeriod + time.Hour)

	// A resolved bet can never be refunded, however late.
	_, err := f.settle.Refund(context.Background(), bob, id, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestRefundForBeneficiary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)
	f.stake(t, bob, id, domain.SideNo, 30)
	f.clock.Advance(time.Hour + domain.RefundPeriod)

	ben := bob
	got, err := f.settle.Refund(ctx, carol, id, &ben)
	require.NoError(t, err)
	assert.Equal(t, int64(30), got.Int64())
	assert.Equal(t, int64(1_000_000), f.balance(t, bob))
	assert.Equal(t, int64(1_000_000), f.balance(t, carol))
}

func TestClaimReentrantCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)
	f.stake(t, alice, id, domain.SideYes, 10)
	f.stake(t, bob, id, domain.SideNo, 10)
	f.resolve(t, id, domain.SideYes)

	// A credit that turns around and claims again must observe the latch
	// rather than double paying or deadlocking on the per-bet lock.
	var inner error
	hooked := &hookTreasury{Treasury: f.treasury}
	hooked.onCredit = func(addr string, amount *big.Int) error {
		_, inner = f.settle.Claim(ctx, alice, id, nil)
		return nil
	}
	f.settle.treasury = hooked

	got, err := f.settle.Claim(ctx, alice, id, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.Int64())
	assert.ErrorIs(t, inner, domain.ErrAlreadyClaimed)
	assert.Equal(t, int64(1_000_000+10), f.balance(t, alice), "paid exactly once")
}

func TestClaimTransferFailureKeepsLatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)
	f.stake(t, alice, id, domain.SideYes, 10)
	f.resolve(t, id, domain.SideYes)

	boom := errors.New("treasury offline")
	f.settle.treasury = &hookTreasury{
		Treasury: f.treasury,
		onCredit: func(string, *big.Int) error { return boom },
	}

	_, err := f.settle.Claim(ctx, alice, id, nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1_000_000-10), f.balance(t, alice))

	// The latch stays set; the retry reports the claim as spent.
	f.settle.treasury = f.treasury
	_, err = f.settle.Claim(ctx, alice, id, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	flags, err := f.ledger.Flags(ctx, id, alice)
	require.NoError(t, err)
	assert.True(t, flags.Claimed)
}

func TestRefundStartsMutualExclusion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createBet(t, alice)
	f.stake(t, alice, id, domain.SideYes, 5)
	f.stake(t, bob, id, domain.SideNo, 5)
	f.clock.Advance(time.Hour + domain.RefundPeriod)

	_, err := f.settle.Refund(ctx, alice, id, nil)
	require.NoError(t, err)

	b, err := f.ledger.Bet(ctx, id)
	require.NoError(t, err)
	assert.True(t, b.RefundsStarted)

	// Resolution is forbidden forever, and the other participant still
	// gets their refund.
	err = f.life.Resolve(ctx, referee, id, domain.SideYes)
	assert.ErrorIs(t, err, domain.ErrRefundsStarted)

	got, err := f.settle.Refund(ctx, bob, id, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Int64())
}
