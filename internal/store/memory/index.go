package memory

import (
	"context"
	"sync"

	"github.com/openwager/betpool/internal/domain"
)

// Index implements domain.Index with append-only in-memory slices.
type Index struct {
	mu        sync.RWMutex
	all       []int64
	byCreator map[string][]int64
	byAddr    map[string][]int64
}

// NewIndex creates an empty in-memory discovery index.
func NewIndex() *Index {
	return &Index{
		byCreator: make(map[string][]int64),
		byAddr:    make(map[string][]int64),
	}
}

func (ix *Index) AppendAll(_ context.Context, betID int64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.all = append(ix.all, betID)
	return nil
}

func (ix *Index) AppendCreator(_ context.Context, creator string, betID int64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.byCreator[creator] = append(ix.byCreator[creator], betID)
	return nil
}

func (ix *Index) AppendParticipant(_ context.Context, addr string, betID int64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.byAddr[addr] = append(ix.byAddr[addr], betID)
	return nil
}

func (ix *Index) All(_ context.Context, opts domain.ListOpts) ([]int64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return paginate(ix.all, opts), nil
}

func (ix *Index) ByCreator(_ context.Context, creator string, opts domain.ListOpts) ([]int64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return paginate(ix.byCreator[creator], opts), nil
}

func (ix *Index) ByParticipant(_ context.Context, addr string, opts domain.ListOpts) ([]int64, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return paginate(ix.byAddr[addr], opts), nil
}

func paginate(ids []int64, opts domain.ListOpts) []int64 {
	start := opts.Offset
	if start > len(ids) {
		start = len(ids)
	}
	end := len(ids)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	out := make([]int64, end-start)
	copy(out, ids[start:end])
	return out
}

// Compile-time interface check.
var _ domain.Index = (*Index)(nil)
