package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openwager/betpool/internal/domain"
)

// Treasury implements domain.Treasury on the balances table. Debits are a
// single conditional UPDATE, so concurrent debits can never drive a balance
// negative.
type Treasury struct {
	pool *pgxpool.Pool
}

var _ domain.Treasury = (*Treasury)(nil)

// NewTreasury creates a Treasury backed by the given connection pool.
func NewTreasury(pool *pgxpool.Pool) *Treasury {
	return &Treasury{pool: pool}
}

// Credit adds amount to the address's balance, creating the account if
// needed.
func (s *Treasury) Credit(ctx context.Context, addr string, amount *big.Int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO balances (addr, balance)
		VALUES ($1, $2::numeric)
		ON CONFLICT (addr) DO UPDATE SET
			balance = balances.balance + EXCLUDED.balance,
			updated_at = NOW()`,
		addr, amount.String())
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", addr, err)
	}
	return nil
}

// Debit subtracts amount from the address's balance, failing with
// ErrInsufficientFunds when the balance cannot cover it.
func (s *Treasury) Debit(ctx context.Context, addr string, amount *big.Int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE balances SET
			balance = balance - $2::numeric,
			updated_at = NOW()
		WHERE addr = $1 AND balance >= $2::numeric`,
		addr, amount.String())
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", addr, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// Balance returns the address's balance, zero for unknown accounts.
func (s *Treasury) Balance(ctx context.Context, addr string) (*big.Int, error) {
	var bal string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::text FROM balances WHERE addr = $1`, addr,
	).Scan(&bal)
	if err != nil {
		if err == pgx.ErrNoRows {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("postgres: balance %s: %w", addr, err)
	}
	return scanAmount(bal)
}
