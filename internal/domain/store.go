package domain

import (
	"context"
	"math/big"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// LedgerStore persists bets, positions, settlement latches, counters, and
// display notes. Every method is a single atomic commit: a call either fully
// applies or leaves no trace. Callers (the services) serialize mutating
// calls per bet, so implementations do not need cross-call ordering beyond
// the conditional latch semantics documented on MarkClaimed / MarkRefunded.
type LedgerStore interface {
	// CreateBet inserts a new bet and returns its sequential id (first bet
	// gets id 0). Totals start at zero regardless of the argument's fields.
	CreateBet(ctx context.Context, b Bet) (int64, error)

	Bet(ctx context.Context, id int64) (Bet, error)
	Bets(ctx context.Context, ids []int64) ([]Bet, error)
	Count(ctx context.Context) (int64, error)

	// AddPosition adds amount to the participant's position on side and to
	// the bet's side total, and overwrites the display note, in one commit.
	// It reports whether this was the participant's first stake on the bet.
	AddPosition(ctx context.Context, betID int64, addr string, side Side, amount *big.Int, note string) (first bool, err error)

	Position(ctx context.Context, betID int64, addr string) (Position, error)
	Positions(ctx context.Context, betIDs []int64, addr string) ([]Position, error)

	// MarkResolved sets resolved=true and records the outcome. It fails with
	// ErrBetNotFound if the bet does not exist; state preconditions are the
	// caller's responsibility.
	MarkResolved(ctx context.Context, betID int64, outcome Side) error

	Flags(ctx context.Context, betID int64, addr string) (SettlementFlags, error)

	// MarkClaimed latches claimed=true for (betID, addr) and adds amount to
	// the winning side's claimed counter in one commit. It fails with
	// ErrAlreadyClaimed when the latch was already set.
	MarkClaimed(ctx context.Context, betID int64, addr string, side Side, amount *big.Int) error

	// MarkRefunded latches refunded=true for (betID, addr), adds the yes/no
	// amounts to the refunded counters, and sets the bet's RefundsStarted
	// latch, in one commit. It fails with ErrAlreadyRefunded when the latch
	// was already set.
	MarkRefunded(ctx context.Context, betID int64, addr string, yes, no *big.Int) error

	Stats(ctx context.Context, betID int64) (BetStats, error)

	Note(ctx context.Context, betID int64, addr string) (string, error)
	Notes(ctx context.Context, betID int64, addrs []string) ([]string, error)
}

// Index is the discovery-layer contract: append-only lists of bet ids keyed
// globally, by creator, and by participant. The lifecycle service issues
// explicit append calls as a side effect of bet creation and first stakes;
// the discovery service traverses the lists read-only.
type Index interface {
	AppendAll(ctx context.Context, betID int64) error
	AppendCreator(ctx context.Context, creator string, betID int64) error
	AppendParticipant(ctx context.Context, addr string, betID int64) error

	All(ctx context.Context, opts ListOpts) ([]int64, error)
	ByCreator(ctx context.Context, creator string, opts ListOpts) ([]int64, error)
	ByParticipant(ctx context.Context, addr string, opts ListOpts) ([]int64, error)
}

// Treasury is the custodial balance ledger that stakes are debited from and
// payouts are credited to. Credit must be the last effect of any settlement
// operation; the settlement latches are committed before it runs.
type Treasury interface {
	// Credit adds amount to the address's balance, creating the account if
	// needed.
	Credit(ctx context.Context, addr string, amount *big.Int) error

	// Debit subtracts amount from the address's balance. It fails with
	// ErrInsufficientFunds when the balance cannot cover the amount.
	Debit(ctx context.Context, addr string, amount *big.Int) error

	Balance(ctx context.Context, addr string) (*big.Int, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	ListBefore(ctx context.Context, before time.Time, opts ListOpts) ([]AuditEntry, error)
}
