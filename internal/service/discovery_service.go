package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/openwager/betpool/internal/domain"
)

// BetFilter selects a lifecycle slice of the index for listing.
type BetFilter string

const (
	FilterAll BetFilter = "all"
	// FilterOpen lists bets still accepting positions.
	FilterOpen BetFilter = "open"
	// FilterAwaiting lists bets past their deadline but not yet resolved
	// and with no refunds started.
	FilterAwaiting BetFilter = "awaiting"
	FilterResolved BetFilter = "resolved"
)

// ListQuery describes a discovery listing. Exactly one of Creator,
// Participant, or ClaimableBy may be set; all empty means the global index.
type ListQuery struct {
	Filter      BetFilter
	Creator     string
	Participant string
	ClaimableBy string
	Opts        domain.ListOpts
}

// BetSummary pairs a bet with its settlement statistics and the derived
// aggregate figures the read side exposes.
type BetSummary struct {
	Bet            domain.Bet
	Stats          domain.BetStats
	TotalDeposited *big.Int
	YesLeft        *big.Int
	NoLeft         *big.Int
	TotalClaimed   *big.Int
	TotalRefunded  *big.Int
}

// DiscoveryService is the read side: it traverses the append-only indices
// and the ledger without any settlement logic. Bet reads go through the
// cache when one is configured.
type DiscoveryService struct {
	ledger domain.LedgerStore
	index  domain.Index
	cache  domain.BetCache

	now    func() time.Time
	logger *slog.Logger
}

// NewDiscoveryService creates a DiscoveryService. cache may be nil.
func NewDiscoveryService(ledger domain.LedgerStore, index domain.Index, cache domain.BetCache, logger *slog.Logger) *DiscoveryService {
	return &DiscoveryService{
		ledger: ledger,
		index:  index,
		cache:  cache,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Bet fetches a single bet, read-through the cache.
func (s *DiscoveryService) Bet(ctx context.Context, id int64) (domain.Bet, error) {
	if s.cache != nil {
		if b, err := s.cache.Get(ctx, id); err == nil {
			return b, nil
		}
	}

	b, err := s.ledger.Bet(ctx, id)
	if err != nil {
		return domain.Bet{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, b); err != nil {
			s.logger.WarnContext(ctx, "discovery: cache set failed",
				slog.Int64("bet_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return b, nil
}

// Bets batch-fetches bet records by id.
func (s *DiscoveryService) Bets(ctx context.Context, ids []int64) ([]domain.Bet, error) {
	return s.ledger.Bets(ctx, ids)
}

// Count returns the total number of bets ever created.
func (s *DiscoveryService) Count(ctx context.Context) (int64, error) {
	return s.ledger.Count(ctx)
}

// Position returns a participant's accumulated stakes on one bet.
func (s *DiscoveryService) Position(ctx context.Context, betID int64, addr string) (domain.Position, error) {
	return s.ledger.Position(ctx, betID, addr)
}

// Positions batch-fetches one participant's positions across bets.
func (s *DiscoveryService) Positions(ctx context.Context, betIDs []int64, addr string) ([]domain.Position, error) {
	return s.ledger.Positions(ctx, betIDs, addr)
}

// Flags returns the settlement latches for a (bet, participant) pair.
func (s *DiscoveryService) Flags(ctx context.Context, betID int64, addr string) (domain.SettlementFlags, error) {
	return s.ledger.Flags(ctx, betID, addr)
}

// Note returns a participant's display note for one bet.
func (s *DiscoveryService) Note(ctx context.Context, betID int64, addr string) (string, error) {
	return s.ledger.Note(ctx, betID, addr)
}

// Notes batch-fetches display notes for several participants of one bet.
func (s *DiscoveryService) Notes(ctx context.Context, betID int64, addrs []string) ([]string, error) {
	return s.ledger.Notes(ctx, betID, addrs)
}

// Summary returns a bet together with its settlement statistics and derived
// totals: total ever deposited, per-side amount left, total claimed, total
// refunded.
func (s *DiscoveryService) Summary(ctx context.Context, betID int64) (BetSummary, error) {
	b, err := s.Bet(ctx, betID)
	if err != nil {
		return BetSummary{}, err
	}
	stats, err := s.ledger.Stats(ctx, betID)
	if err != nil {
		return BetSummary{}, fmt.Errorf("discovery: stats for bet %d: %w", betID, err)
	}

	return BetSummary{
		Bet:            b,
		Stats:          stats,
		TotalDeposited: b.Total(),
		YesLeft:        domain.AmountLeft(b, stats, domain.SideYes),
		NoLeft:         domain.AmountLeft(b, stats, domain.SideNo),
		TotalClaimed:   stats.TotalClaimed(),
		TotalRefunded:  stats.TotalRefunded(),
	}, nil
}

// List traverses the selected index slice and returns the matching bets.
// With ClaimableBy set it returns the bets on which that address can still
// extract value: a positive unclaimed payout on a resolved bet, or an
// unrefunded stake on an expired one.
func (s *DiscoveryService) List(ctx context.Context, q ListQuery) ([]domain.Bet, error) {
	if q.ClaimableBy != "" {
		return s.listClaimable(ctx, q.ClaimableBy, q.Opts)
	}

	var (
		ids []int64
		err error
	)
	switch {
	case q.Creator != "":
		ids, err = s.index.ByCreator(ctx, q.Creator, q.Opts)
	case q.Participant != "":
		ids, err = s.index.ByParticipant(ctx, q.Participant, q.Opts)
	default:
		ids, err = s.index.All(ctx, q.Opts)
	}
	if err != nil {
		return nil, fmt.Errorf("discovery: list index: %w", err)
	}

	bets, err := s.ledger.Bets(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("discovery: fetch bets: %w", err)
	}

	if q.Filter == "" || q.Filter == FilterAll {
		return bets, nil
	}

	now := s.now()
	out := bets[:0]
	for _, b := range bets {
		switch q.Filter {
		case FilterOpen:
			if b.Open(now) {
				out = append(out, b)
			}
		case FilterAwaiting:
			if !b.Resolved && !b.RefundsStarted && !now.Before(b.Deadline) {
				out = append(out, b)
			}
		case FilterResolved:
			if b.Resolved {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func (s *DiscoveryService) listClaimable(ctx context.Context, addr string, opts domain.ListOpts) ([]domain.Bet, error) {
	ids, err := s.index.ByParticipant(ctx, addr, opts)
	if err != nil {
		return nil, fmt.Errorf("discovery: participant index: %w", err)
	}

	now := s.now()
	var out []domain.Bet
	for _, id := range ids {
		b, err := s.ledger.Bet(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("discovery: fetch bet %d: %w", id, err)
		}
		flags, err := s.ledger.Flags(ctx, id, addr)
		if err != nil {
			return nil, fmt.Errorf("discovery: flags for bet %d: %w", id, err)
		}
		pos, err := s.ledger.Position(ctx, id, addr)
		if err != nil {
			return nil, fmt.Errorf("discovery: position for bet %d: %w", id, err)
		}

		switch {
		case b.Resolved:
			if !flags.Claimed && domain.Payout(b, pos, b.Outcome).Sign() > 0 {
				out = append(out, b)
			}
		case !now.Before(b.RefundableAt()):
			if !flags.Refunded && pos.Total().Sign() > 0 {
				out = append(out, b)
			}
		}
	}
	return out, nil
}
