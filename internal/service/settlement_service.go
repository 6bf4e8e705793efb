package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/openwager/betpool/internal/domain"
)

// SettlementService orchestrates claims and refunds: it looks up the
// entitlement, enforces exactly-once semantics through the store latches,
// updates the settlement counters, and releases value from the treasury.
//
// The latch is committed, and the per-bet lock released, strictly before the
// treasury credit runs. A duplicate call racing with (or triggered from) the
// transfer therefore observes the latch already set and fails with the
// corresponding "already" error. The flip side is deliberate: if the credit
// itself fails, the latch stays set and the beneficiary cannot retry through
// this path; the failure is recorded in the audit log instead.
type SettlementService struct {
	ledger   domain.LedgerStore
	treasury domain.Treasury
	locks    *BetLocks

	// Optional collaborators; any of these may be nil.
	dlock domain.LockManager
	bus   domain.SignalBus
	audit domain.AuditStore
	cache domain.BetCache

	now    func() time.Time
	logger *slog.Logger
}

// NewSettlementService creates a SettlementService. locks must be the same
// instance handed to the lifecycle service. dlock, bus, audit, and cache are
// optional and may be nil.
func NewSettlementService(
	ledger domain.LedgerStore,
	treasury domain.Treasury,
	locks *BetLocks,
	dlock domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	cache domain.BetCache,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		ledger:   ledger,
		treasury: treasury,
		locks:    locks,
		dlock:    dlock,
		bus:      bus,
		audit:    audit,
		cache:    cache,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Claim pays out a winning position on a resolved bet. A nil or empty
// beneficiary means the caller claims for themself; any caller may trigger a
// claim for any beneficiary, and the value always moves to the beneficiary.
// It returns the amount credited.
func (s *SettlementService) Claim(ctx context.Context, caller string, betID int64, beneficiary *string) (*big.Int, error) {
	ben := resolveBeneficiary(caller, beneficiary)

	payout, err := s.latchClaim(ctx, betID, ben)
	if err != nil {
		return nil, err
	}

	// Latch committed and lock released; the credit is the last effect.
	if err := s.treasury.Credit(ctx, ben, payout); err != nil {
		s.recordTransferFailure(ctx, betID, ben, "claim", payout, err)
		return nil, fmt.Errorf("settlement: claim transfer for bet %d: %w", betID, err)
	}

	s.invalidate(ctx, betID)
	s.publish(ctx, domain.EventClaimPaid, map[string]any{
		"bet_id":      betID,
		"beneficiary": ben,
		"caller":      caller,
		"amount":      payout.String(),
	})

	s.logger.InfoContext(ctx, "settlement: claim paid",
		slog.Int64("bet_id", betID),
		slog.String("beneficiary", ben),
		slog.String("amount", payout.String()),
	)

	return payout, nil
}

// latchClaim validates the claim and commits the exactly-once latch under
// the per-bet lock, returning the payout to credit.
func (s *SettlementService) latchClaim(ctx context.Context, betID int64, ben string) (*big.Int, error) {
	unlock, err := lockBet(ctx, s.locks, s.dlock, betID, s.logger)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.ledger.Bet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if !b.Resolved {
		return nil, domain.ErrBetNotResolved
	}

	flags, err := s.ledger.Flags(ctx, betID, ben)
	if err != nil {
		return nil, fmt.Errorf("settlement: flags for bet %d: %w", betID, err)
	}
	if flags.Claimed {
		return nil, domain.ErrAlreadyClaimed
	}

	pos, err := s.ledger.Position(ctx, betID, ben)
	if err != nil {
		return nil, fmt.Errorf("settlement: position for bet %d: %w", betID, err)
	}

	payout := domain.Payout(b, pos, b.Outcome)
	if payout.Sign() == 0 {
		return nil, domain.ErrNothingToClaim
	}

	// The claimed counter records the winning-side stake that was settled,
	// not the payout, so "amount left" statistics stay in deposit units.
	if err := s.ledger.MarkClaimed(ctx, betID, ben, b.Outcome, pos.OnSide(b.Outcome)); err != nil {
		return nil, err
	}

	return payout, nil
}

// Refund returns a participant's original stakes on a bet that missed its
// resolution window. Symmetric to Claim: any caller may trigger it for any
// beneficiary. The first successful refund permanently forbids resolution.
// It returns the amount credited.
func (s *SettlementService) Refund(ctx context.Context, caller string, betID int64, beneficiary *string) (*big.Int, error) {
	ben := resolveBeneficiary(caller, beneficiary)

	total, err := s.latchRefund(ctx, betID, ben)
	if err != nil {
		return nil, err
	}

	if err := s.treasury.Credit(ctx, ben, total); err != nil {
		s.recordTransferFailure(ctx, betID, ben, "refund", total, err)
		return nil, fmt.Errorf("settlement: refund transfer for bet %d: %w", betID, err)
	}

	s.invalidate(ctx, betID)
	s.publish(ctx, domain.EventRefundPaid, map[string]any{
		"bet_id":      betID,
		"beneficiary": ben,
		"caller":      caller,
		"amount":      total.String(),
	})

	s.logger.InfoContext(ctx, "settlement: refund paid",
		slog.Int64("bet_id", betID),
		slog.String("beneficiary", ben),
		slog.String("amount", total.String()),
	)

	return total, nil
}

// latchRefund validates the refund and commits the exactly-once latch under
// the per-bet lock, returning the stake total to credit.
func (s *SettlementService) latchRefund(ctx context.Context, betID int64, ben string) (*big.Int, error) {
	unlock, err := lockBet(ctx, s.locks, s.dlock, betID, s.logger)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.ledger.Bet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if b.Resolved {
		return nil, domain.ErrAlreadyResolved
	}
	if s.now().Before(b.RefundableAt()) {
		return nil, domain.ErrRefundTooEarly
	}

	flags, err := s.ledger.Flags(ctx, betID, ben)
	if err != nil {
		return nil, fmt.Errorf("settlement: flags for bet %d: %w", betID, err)
	}
	if flags.Refunded {
		return nil, domain.ErrAlreadyRefunded
	}

	pos, err := s.ledger.Position(ctx, betID, ben)
	if err != nil {
		return nil, fmt.Errorf("settlement: position for bet %d: %w", betID, err)
	}

	total := pos.Total()
	if total.Sign() == 0 {
		return nil, domain.ErrNothingToRefund
	}

	if err := s.ledger.MarkRefunded(ctx, betID, ben, pos.Yes, pos.No); err != nil {
		return nil, err
	}

	return total, nil
}

func resolveBeneficiary(caller string, beneficiary *string) string {
	if beneficiary == nil || *beneficiary == "" || *beneficiary == domain.ZeroAddress {
		return caller
	}
	return *beneficiary
}

// recordTransferFailure documents a post-latch credit failure. The latch is
// intentionally left set; the audit entry is what operators reconcile from.
func (s *SettlementService) recordTransferFailure(ctx context.Context, betID int64, ben, op string, amount *big.Int, cause error) {
	s.logger.ErrorContext(ctx, "settlement: transfer failed after latch",
		slog.Int64("bet_id", betID),
		slog.String("beneficiary", ben),
		slog.String("op", op),
		slog.String("amount", amount.String()),
		slog.String("error", cause.Error()),
	)
	if s.audit != nil {
		if err := s.audit.Log(ctx, domain.EventTransferFailed, map[string]any{
			"bet_id":      betID,
			"beneficiary": ben,
			"op":          op,
			"amount":      amount.String(),
			"error":       cause.Error(),
		}); err != nil {
			s.logger.WarnContext(ctx, "settlement: audit log failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *SettlementService) publish(ctx context.Context, event string, detail map[string]any) {
	if s.bus != nil {
		payload, _ := json.Marshal(withEvent(event, detail))
		if err := s.bus.Publish(ctx, domain.ChannelSettlements, payload); err != nil {
			s.logger.WarnContext(ctx, "settlement: publish event failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, event, detail); err != nil {
			s.logger.WarnContext(ctx, "settlement: audit log failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *SettlementService) invalidate(ctx context.Context, betID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, betID); err != nil {
		s.logger.WarnContext(ctx, "settlement: cache invalidate failed",
			slog.Int64("bet_id", betID),
			slog.String("error", err.Error()),
		)
	}
}
