package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openwager/betpool/internal/domain"
)

const (
	addrA = "0x00000000000000000000000000000000000000a1"
	addrB = "0x00000000000000000000000000000000000000b2"
)

func newBet(t *testing.T, l *Ledger) int64 {
	t.Helper()
	id, err := l.CreateBet(context.Background(), domain.Bet{
		Creator:  addrA,
		Resolver: addrB,
		Question: "will it ship",
		Deadline: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return id
}

func TestLedgerSequentialIDs(t *testing.T) {
	l := NewLedger()
	require.Equal(t, int64(0), newBet(t, l))
	require.Equal(t, int64(1), newBet(t, l))

	n, err := l.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	_, err = l.Bet(context.Background(), 99)
	require.ErrorIs(t, err, domain.ErrBetNotFound)
}

func TestAddPositionAccumulates(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	id := newBet(t, l)

	first, err := l.AddPosition(ctx, id, addrA, domain.SideYes, big.NewInt(5), "early")
	require.NoError(t, err)
	require.True(t, first)

	first, err = l.AddPosition(ctx, id, addrA, domain.SideNo, big.NewInt(3), "")
	require.NoError(t, err)
	require.False(t, first)

	p, err := l.Position(ctx, id, addrA)
	require.NoError(t, err)
	require.Equal(t, "5", p.Yes.String())
	require.Equal(t, "3", p.No.String())

	// An empty note on a later stake keeps the stored one.
	note, err := l.Note(ctx, id, addrA)
	require.NoError(t, err)
	require.Equal(t, "early", note)

	b, err := l.Bet(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "5", b.YesTotal.String())
	require.Equal(t, "3", b.NoTotal.String())

	_, err = l.AddPosition(ctx, 99, addrA, domain.SideYes, big.NewInt(1), "")
	require.ErrorIs(t, err, domain.ErrBetNotFound)
}

func TestMarkClaimedLatch(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	id := newBet(t, l)

	require.NoError(t, l.MarkClaimed(ctx, id, addrA, domain.SideYes, big.NewInt(7)))

	err := l.MarkClaimed(ctx, id, addrA, domain.SideYes, big.NewInt(7))
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	// The counter reflects exactly one claim.
	s, err := l.Stats(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "7", s.ClaimedYes.String())
	require.Equal(t, "0", s.ClaimedNo.String())

	f, err := l.Flags(ctx, id, addrA)
	require.NoError(t, err)
	require.True(t, f.Claimed)
	require.False(t, f.Refunded)

	// Another address latches independently.
	require.NoError(t, l.MarkClaimed(ctx, id, addrB, domain.SideYes, big.NewInt(2)))
	s, err = l.Stats(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "9", s.ClaimedYes.String())
}

func TestMarkRefundedLatch(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	id := newBet(t, l)

	require.NoError(t, l.MarkRefunded(ctx, id, addrA, big.NewInt(4), big.NewInt(6)))

	err := l.MarkRefunded(ctx, id, addrA, big.NewInt(4), big.NewInt(6))
	require.ErrorIs(t, err, domain.ErrAlreadyRefunded)

	s, err := l.Stats(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "4", s.RefundedYes.String())
	require.Equal(t, "6", s.RefundedNo.String())

	// The first refund permanently latches the bet.
	b, err := l.Bet(ctx, id)
	require.NoError(t, err)
	require.True(t, b.RefundsStarted)
}

func TestTreasuryConditionalDebit(t *testing.T) {
	ctx := context.Background()
	tr := NewTreasury()

	require.NoError(t, tr.Credit(ctx, addrA, big.NewInt(10)))

	err := tr.Debit(ctx, addrA, big.NewInt(11))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	bal, err := tr.Balance(ctx, addrA)
	require.NoError(t, err)
	require.Equal(t, "10", bal.String())

	require.NoError(t, tr.Debit(ctx, addrA, big.NewInt(10)))
	bal, err = tr.Balance(ctx, addrA)
	require.NoError(t, err)
	require.Equal(t, "0", bal.String())

	err = tr.Debit(ctx, addrB, big.NewInt(1))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestIndexPagination(t *testing.T) {
	ctx := context.Background()
	ix := NewIndex()

	for i := int64(0); i < 5; i++ {
		require.NoError(t, ix.AppendAll(ctx, i))
	}

	ids, err := ix.All(ctx, domain.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, ids)

	ids, err = ix.All(ctx, domain.ListOpts{Limit: 10, Offset: 4})
	require.NoError(t, err)
	require.Equal(t, []int64{4}, ids)

	ids, err = ix.All(ctx, domain.ListOpts{Limit: 10, Offset: 10})
	require.NoError(t, err)
	require.Empty(t, ids)

	require.NoError(t, ix.AppendCreator(ctx, addrA, 3))
	ids, err = ix.ByCreator(ctx, addrA, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, []int64{3}, ids)

	ids, err = ix.ByParticipant(ctx, addrB, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Empty(t, ids)
}
