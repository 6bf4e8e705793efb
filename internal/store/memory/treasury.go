package memory

import (
	"context"
	"math/big"
	"sync"

	"github.com/openwager/betpool/internal/domain"
)

// Treasury implements domain.Treasury with in-memory balances.
type Treasury struct {
	mu       sync.Mutex
	balances map[string]*big.Int
}

// NewTreasury creates an empty in-memory treasury.
func NewTreasury() *Treasury {
	return &Treasury{balances: make(map[string]*big.Int)}
}

func (t *Treasury) Credit(_ context.Context, addr string, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal, ok := t.balances[addr]
	if !ok {
		bal = new(big.Int)
	}
	t.balances[addr] = new(big.Int).Add(bal, amount)
	return nil
}

func (t *Treasury) Debit(_ context.Context, addr string, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal, ok := t.balances[addr]
	if !ok || bal.Cmp(amount) < 0 {
		return domain.ErrInsufficientFunds
	}
	t.balances[addr] = new(big.Int).Sub(bal, amount)
	return nil
}

func (t *Treasury) Balance(_ context.Context, addr string) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal, ok := t.balances[addr]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(bal), nil
}

// Compile-time interface check.
var _ domain.Treasury = (*Treasury)(nil)
