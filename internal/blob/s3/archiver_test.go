package s3blob

import (
	"bytes"
	"context"
	"io"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwager/betpool/internal/domain"
	"github.com/openwager/betpool/internal/store/memory"
)

// memWriter records uploads in memory.
type memWriter struct {
	objects map[string][]byte
}

func newMemWriter() *memWriter {
	return &memWriter{objects: make(map[string][]byte)}
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(data); err != nil {
		return err
	}
	w.objects[path] = buf.Bytes()
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "")
}

func TestArchiveSettledBets(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	index := memory.NewIndex()
	audit := memory.NewAuditLog()
	writer := newMemWriter()

	deadline := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	mkBet := func(question string) int64 {
		id, err := ledger.CreateBet(ctx, domain.Bet{
			Creator:   "0x00000000000000000000000000000000000000a1",
			Resolver:  "0x00000000000000000000000000000000000000d4",
			Question:  question,
			Deadline:  deadline,
			CreatedAt: deadline.Add(-time.Hour),
		})
		require.NoError(t, err)
		require.NoError(t, index.AppendAll(ctx, id))
		return id
	}

	settled := mkBet("resolved bet")
	_, err := ledger.AddPosition(ctx, settled, "0x00000000000000000000000000000000000000b2", domain.SideYes, big.NewInt(5), "")
	require.NoError(t, err)
	require.NoError(t, ledger.MarkResolved(ctx, settled, domain.SideYes))

	open := mkBet("still open")
	_ = open

	cutoff := deadline.Add(30 * 24 * time.Hour)
	count, err := NewArchiver(writer, ledger, index, audit).ArchiveSettledBets(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "only the settled bet is archived")

	data, ok := writer.objects["archive/bets/2025-02.jsonl"]
	require.True(t, ok)
	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, `"resolved bet"`)
	assert.Contains(t, line, `"yes_total":"5"`)
	assert.NotContains(t, line, "still open")
}

func TestArchiveAuditLog(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	index := memory.NewIndex()
	audit := memory.NewAuditLog()
	writer := newMemWriter()

	require.NoError(t, audit.Log(ctx, "bet_created", map[string]any{"bet_id": int64(0)}))
	require.NoError(t, audit.Log(ctx, "bet_resolved", map[string]any{"bet_id": int64(0)}))

	count, err := NewArchiver(writer, ledger, index, audit).ArchiveAuditLog(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Len(t, writer.objects, 1)
}

func TestArchiveNothingToDo(t *testing.T) {
	ctx := context.Background()
	a := NewArchiver(newMemWriter(), memory.NewLedger(), memory.NewIndex(), memory.NewAuditLog())

	count, err := a.ArchiveSettledBets(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
}
