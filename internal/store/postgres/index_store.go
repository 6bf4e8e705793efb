package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openwager/betpool/internal/domain"
)

// Index scope labels in the bet_index table.
const (
	scopeAll         = "all"
	scopeCreator     = "creator"
	scopeParticipant = "participant"
)

// Index implements domain.Index on a single append-only bet_index table.
// Appends are idempotent per (scope, key, bet_id); reads come back in
// append order.
type Index struct {
	pool *pgxpool.Pool
}

var _ domain.Index = (*Index)(nil)

// NewIndex creates an Index backed by the given connection pool.
func NewIndex(pool *pgxpool.Pool) *Index {
	return &Index{pool: pool}
}

func (s *Index) append(ctx context.Context, scope, key string, betID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bet_index (scope, key, bet_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (scope, key, bet_id) DO NOTHING`,
		scope, key, betID)
	if err != nil {
		return fmt.Errorf("postgres: append %s index for bet %d: %w", scope, betID, err)
	}
	return nil
}

// AppendAll records a bet in the global index.
func (s *Index) AppendAll(ctx context.Context, betID int64) error {
	return s.append(ctx, scopeAll, "", betID)
}

// AppendCreator records a bet in its creator's index.
func (s *Index) AppendCreator(ctx context.Context, creator string, betID int64) error {
	return s.append(ctx, scopeCreator, creator, betID)
}

// AppendParticipant records a bet in a participant's index.
func (s *Index) AppendParticipant(ctx context.Context, addr string, betID int64) error {
	return s.append(ctx, scopeParticipant, addr, betID)
}

func (s *Index) list(ctx context.Context, scope, key string, opts domain.ListOpts) ([]int64, error) {
	query := `SELECT bet_id FROM bet_index WHERE scope = $1 AND key = $2 ORDER BY seq`
	args := []any{scope, key}
	argIdx := 3

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s index: %w", scope, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan %s index: %w", scope, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list %s index rows: %w", scope, err)
	}
	return ids, nil
}

// All returns the global index in creation order.
func (s *Index) All(ctx context.Context, opts domain.ListOpts) ([]int64, error) {
	return s.list(ctx, scopeAll, "", opts)
}

// ByCreator returns a creator's bets in creation order.
func (s *Index) ByCreator(ctx context.Context, creator string, opts domain.ListOpts) ([]int64, error) {
	return s.list(ctx, scopeCreator, creator, opts)
}

// ByParticipant returns the bets an address staked on, in first-stake order.
func (s *Index) ByParticipant(ctx context.Context, addr string, opts domain.ListOpts) ([]int64, error) {
	return s.list(ctx, scopeParticipant, addr, opts)
}
