package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openwager/betpool/internal/domain"
)

// Ledger implements domain.LedgerStore using PostgreSQL. Amount columns are
// NUMERIC(78,0) and cross the wire as decimal strings.
type Ledger struct {
	pool *pgxpool.Pool
}

var _ domain.LedgerStore = (*Ledger)(nil)

// NewLedger creates a Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// scanAmount parses a NUMERIC value rendered as text.
func scanAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: bad numeric value %q", s)
	}
	return n, nil
}

const betCols = `id, creator, resolver, question, deadline,
	yes_total::text, no_total::text, resolved, outcome, refunds_started, created_at`

func scanBet(row pgx.Row) (domain.Bet, error) {
	var (
		b        domain.Bet
		yes, no  string
		outcome  string
	)
	err := row.Scan(
		&b.ID, &b.Creator, &b.Resolver, &b.Question, &b.Deadline,
		&yes, &no, &b.Resolved, &outcome, &b.RefundsStarted, &b.CreatedAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	if b.YesTotal, err = scanAmount(yes); err != nil {
		return domain.Bet{}, err
	}
	if b.NoTotal, err = scanAmount(no); err != nil {
		return domain.Bet{}, err
	}
	b.Outcome = domain.Side(outcome)
	return b, nil
}

// CreateBet inserts a bet with zero totals and its stats row, returning the
// assigned sequential id.
func (s *Ledger) CreateBet(ctx context.Context, b domain.Bet) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin create bet: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO bets (creator, resolver, question, deadline, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		b.Creator, b.Resolver, b.Question, b.Deadline, b.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create bet: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO bet_stats (bet_id) VALUES ($1)`, id,
	); err != nil {
		return 0, fmt.Errorf("postgres: create bet stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit create bet: %w", err)
	}
	return id, nil
}

// Bet retrieves a bet by id.
func (s *Ledger) Bet(ctx context.Context, id int64) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betCols+` FROM bets WHERE id = $1`, id)
	b, err := scanBet(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Bet{}, domain.ErrBetNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %d: %w", id, err)
	}
	return b, nil
}

// Bets retrieves bets by id, in the order requested. A missing id fails the
// whole call with ErrBetNotFound.
func (s *Ledger) Bets(ctx context.Context, ids []int64) ([]domain.Bet, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: get bets: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]domain.Bet, len(ids))
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		byID[b.ID] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get bets rows: %w", err)
	}

	out := make([]domain.Bet, 0, len(ids))
	for _, id := range ids {
		b, ok := byID[id]
		if !ok {
			return nil, domain.ErrBetNotFound
		}
		out = append(out, b)
	}
	return out, nil
}

// Count returns the total number of bets ever created.
func (s *Ledger) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count bets: %w", err)
	}
	return count, nil
}

// AddPosition adds amount to the participant's position and the bet's side
// total, and overwrites the display note when one is given, in a single
// transaction. It reports whether this was the participant's first stake.
func (s *Ledger) AddPosition(ctx context.Context, betID int64, addr string, side domain.Side, amount *big.Int, note string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: begin add position: %w", err)
	}
	defer tx.Rollback(ctx)

	totalCol := "yes_total"
	if side == domain.SideNo {
		totalCol = "no_total"
	}
	tag, err := tx.Exec(ctx,
		`UPDATE bets SET `+totalCol+` = `+totalCol+` + $2::numeric WHERE id = $1`,
		betID, amount.String(),
	)
	if err != nil {
		return false, fmt.Errorf("postgres: bump bet %d total: %w", betID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, domain.ErrBetNotFound
	}

	var first bool
	err = tx.QueryRow(ctx,
		`SELECT NOT EXISTS(SELECT 1 FROM positions WHERE bet_id = $1 AND addr = $2)`,
		betID, addr,
	).Scan(&first)
	if err != nil {
		return false, fmt.Errorf("postgres: check position bet %d: %w", betID, err)
	}

	yes, no := amount.String(), "0"
	if side == domain.SideNo {
		yes, no = "0", amount.String()
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO positions (bet_id, addr, yes_amount, no_amount)
		VALUES ($1, $2, $3::numeric, $4::numeric)
		ON CONFLICT (bet_id, addr) DO UPDATE SET
			yes_amount = positions.yes_amount + EXCLUDED.yes_amount,
			no_amount  = positions.no_amount + EXCLUDED.no_amount,
			updated_at = NOW()`,
		betID, addr, yes, no,
	); err != nil {
		return false, fmt.Errorf("postgres: upsert position bet %d: %w", betID, err)
	}

	if note != "" {
		if _, err := tx.Exec(ctx,
			`UPDATE positions SET note = $3 WHERE bet_id = $1 AND addr = $2`,
			betID, addr, note,
		); err != nil {
			return false, fmt.Errorf("postgres: set note bet %d: %w", betID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres: commit add position: %w", err)
	}
	return first, nil
}

// Position returns the participant's accumulated stakes, zero if they never
// staked.
func (s *Ledger) Position(ctx context.Context, betID int64, addr string) (domain.Position, error) {
	var yes, no string
	err := s.pool.QueryRow(ctx,
		`SELECT yes_amount::text, no_amount::text FROM positions WHERE bet_id = $1 AND addr = $2`,
		betID, addr,
	).Scan(&yes, &no)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ZeroPosition(betID, addr), nil
		}
		return domain.Position{}, fmt.Errorf("postgres: get position bet %d: %w", betID, err)
	}

	p := domain.Position{BetID: betID, Address: addr}
	if p.Yes, err = scanAmount(yes); err != nil {
		return domain.Position{}, err
	}
	if p.No, err = scanAmount(no); err != nil {
		return domain.Position{}, err
	}
	return p, nil
}

// Positions batch-fetches one participant's positions across bets, in the
// order requested, zero-filled for bets they never staked on.
func (s *Ledger) Positions(ctx context.Context, betIDs []int64, addr string) ([]domain.Position, error) {
	if len(betIDs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT bet_id, yes_amount::text, no_amount::text
		 FROM positions WHERE bet_id = ANY($1) AND addr = $2`,
		betIDs, addr)
	if err != nil {
		return nil, fmt.Errorf("postgres: get positions: %w", err)
	}
	defer rows.Close()

	byBet := make(map[int64]domain.Position, len(betIDs))
	for rows.Next() {
		var (
			p       domain.Position
			yes, no string
		)
		if err := rows.Scan(&p.BetID, &yes, &no); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		p.Address = addr
		if p.Yes, err = scanAmount(yes); err != nil {
			return nil, err
		}
		if p.No, err = scanAmount(no); err != nil {
			return nil, err
		}
		byBet[p.BetID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get positions rows: %w", err)
	}

	out := make([]domain.Position, 0, len(betIDs))
	for _, id := range betIDs {
		p, ok := byBet[id]
		if !ok {
			p = domain.ZeroPosition(id, addr)
		}
		out = append(out, p)
	}
	return out, nil
}

// MarkResolved sets resolved and records the outcome.
func (s *Ledger) MarkResolved(ctx context.Context, betID int64, outcome domain.Side) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET resolved = TRUE, outcome = $2 WHERE id = $1`,
		betID, string(outcome))
	if err != nil {
		return fmt.Errorf("postgres: resolve bet %d: %w", betID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBetNotFound
	}
	return nil
}

// Flags returns the settlement latches for a (bet, participant) pair, zero
// if none were ever set.
func (s *Ledger) Flags(ctx context.Context, betID int64, addr string) (domain.SettlementFlags, error) {
	var f domain.SettlementFlags
	err := s.pool.QueryRow(ctx,
		`SELECT claimed, refunded FROM settlements WHERE bet_id = $1 AND addr = $2`,
		betID, addr,
	).Scan(&f.Claimed, &f.Refunded)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.SettlementFlags{}, nil
		}
		return domain.SettlementFlags{}, fmt.Errorf("postgres: get flags bet %d: %w", betID, err)
	}
	return f, nil
}

// MarkClaimed latches claimed for (betID, addr) and adds amount to the
// winning side's claimed counter. The conditional upsert returns no row when
// the latch was already set.
func (s *Ledger) MarkClaimed(ctx context.Context, betID int64, addr string, side domain.Side, amount *big.Int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin mark claimed: %w", err)
	}
	defer tx.Rollback(ctx)

	var latched bool
	err = tx.QueryRow(ctx, `
		INSERT INTO settlements (bet_id, addr, claimed)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (bet_id, addr) DO UPDATE SET
			claimed = TRUE, updated_at = NOW()
		WHERE settlements.claimed = FALSE
		RETURNING claimed`,
		betID, addr,
	).Scan(&latched)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ErrAlreadyClaimed
		}
		return fmt.Errorf("postgres: latch claim bet %d: %w", betID, err)
	}

	counterCol := "claimed_yes"
	if side == domain.SideNo {
		counterCol = "claimed_no"
	}
	tag, err := tx.Exec(ctx,
		`UPDATE bet_stats SET `+counterCol+` = `+counterCol+` + $2::numeric WHERE bet_id = $1`,
		betID, amount.String())
	if err != nil {
		return fmt.Errorf("postgres: bump claimed counter bet %d: %w", betID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBetNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit mark claimed: %w", err)
	}
	return nil
}

// MarkRefunded latches refunded for (betID, addr), adds the stake amounts to
// the refunded counters, and sets the bet's refunds_started latch.
func (s *Ledger) MarkRefunded(ctx context.Context, betID int64, addr string, yes, no *big.Int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin mark refunded: %w", err)
	}
	defer tx.Rollback(ctx)

	var latched bool
	err = tx.QueryRow(ctx, `
		INSERT INTO settlements (bet_id, addr, refunded)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (bet_id, addr) DO UPDATE SET
			refunded = TRUE, updated_at = NOW()
		WHERE settlements.refunded = FALSE
		RETURNING refunded`,
		betID, addr,
	).Scan(&latched)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ErrAlreadyRefunded
		}
		return fmt.Errorf("postgres: latch refund bet %d: %w", betID, err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bet_stats SET
			refunded_yes = refunded_yes + $2::numeric,
			refunded_no  = refunded_no + $3::numeric
		WHERE bet_id = $1`,
		betID, yes.String(), no.String())
	if err != nil {
		return fmt.Errorf("postgres: bump refunded counters bet %d: %w", betID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBetNotFound
	}

	if _, err := tx.Exec(ctx,
		`UPDATE bets SET refunds_started = TRUE WHERE id = $1`, betID,
	); err != nil {
		return fmt.Errorf("postgres: set refunds started bet %d: %w", betID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit mark refunded: %w", err)
	}
	return nil
}

// Stats returns the settlement counters for a bet, zero if the bet has no
// stats row.
func (s *Ledger) Stats(ctx context.Context, betID int64) (domain.BetStats, error) {
	var cy, cn, ry, rn string
	err := s.pool.QueryRow(ctx, `
		SELECT claimed_yes::text, claimed_no::text, refunded_yes::text, refunded_no::text
		FROM bet_stats WHERE bet_id = $1`,
		betID,
	).Scan(&cy, &cn, &ry, &rn)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ZeroStats(betID), nil
		}
		return domain.BetStats{}, fmt.Errorf("postgres: get stats bet %d: %w", betID, err)
	}

	st := domain.BetStats{BetID: betID}
	if st.ClaimedYes, err = scanAmount(cy); err != nil {
		return domain.BetStats{}, err
	}
	if st.ClaimedNo, err = scanAmount(cn); err != nil {
		return domain.BetStats{}, err
	}
	if st.RefundedYes, err = scanAmount(ry); err != nil {
		return domain.BetStats{}, err
	}
	if st.RefundedNo, err = scanAmount(rn); err != nil {
		return domain.BetStats{}, err
	}
	return st, nil
}

// Note returns the participant's display note, empty if none was set.
func (s *Ledger) Note(ctx context.Context, betID int64, addr string) (string, error) {
	var note string
	err := s.pool.QueryRow(ctx,
		`SELECT note FROM positions WHERE bet_id = $1 AND addr = $2`,
		betID, addr,
	).Scan(&note)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("postgres: get note bet %d: %w", betID, err)
	}
	return note, nil
}

// Notes batch-fetches display notes for several participants of one bet, in
// the order requested, empty for participants without a note.
func (s *Ledger) Notes(ctx context.Context, betID int64, addrs []string) ([]string, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT addr, note FROM positions WHERE bet_id = $1 AND addr = ANY($2)`,
		betID, addrs)
	if err != nil {
		return nil, fmt.Errorf("postgres: get notes bet %d: %w", betID, err)
	}
	defer rows.Close()

	byAddr := make(map[string]string, len(addrs))
	for rows.Next() {
		var addr, note string
		if err := rows.Scan(&addr, &note); err != nil {
			return nil, fmt.Errorf("postgres: scan note: %w", err)
		}
		byAddr[addr] = note
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get notes rows: %w", err)
	}

	out := make([]string, len(addrs))
	for i, addr := range addrs {
		out[i] = byAddr[addr]
	}
	return out, nil
}
