// Package service implements the settlement core: the bet lifecycle state
// machine, the settlement engine with its exactly-once latches, and the
// read-only discovery queries. All mutating operations on one bet are
// serialized through a shared BetLocks table (plus the distributed lock
// manager when one is configured), so every operation observes and commits a
// consistent snapshot.
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

// LifecycleService creates bets, accepts stakes, and resolves outcomes. It
// enforces all timing and authorization rules; value accounting is delegated
// to the treasury and the ledger store.
type LifecycleService struct {
	ledger   domain.LedgerStore
	index    domain.Index
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

// NewLifecycleService creates a LifecycleService. locks must be the same
// instance handed to the settlement service. dlock, bus, audit, and cache
// are optional and may be nil.
func NewLifecycleService(
	ledger domain.LedgerStore,
	index domain.Index,
	treasury domain.Treasury,
	locks *BetLocks,
	dlock domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	cache domain.BetCache,
	logger *slog.Logger,
) *LifecycleService {
	return &LifecycleService{
		ledger:   ledger,
		index:    index,
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

// CreateBet opens a new proposition and returns its id. The deadline must be
// strictly in the future and at most MaxDeadlineHorizon away; the resolver
// must be a real address.
func (s *LifecycleService) CreateBet(ctx context.Context, creator, question string, deadline time.Time, resolver string) (int64, error) {
	now := s.now()

	if !deadline.After(now) || deadline.After(now.Add(domain.MaxDeadlineHorizon)) {
		return 0, domain.ErrInvalidDeadline
	}
	if resolver == "" || resolver == domain.ZeroAddress {
		return 0, domain.ErrInvalidResolver
	}

	id, err := s.ledger.CreateBet(ctx, domain.Bet{
		Creator:   creator,
		Resolver:  resolver,
		Question:  question,
		Deadline:  deadline,
		CreatedAt: now,
	})
	if err != nil {
		return 0, fmt.Errorf("lifecycle: create bet: %w", err)
	}

	// Discovery index maintenance is an explicit side effect of creation.
	if err := s.index.AppendAll(ctx, id); err != nil {
		return 0, fmt.Errorf("lifecycle: index bet %d: %w", id, err)
	}
	if err := s.index.AppendCreator(ctx, creator, id); err != nil {
		return 0, fmt.Errorf("lifecycle: index bet %d for creator: %w", id, err)
	}

	s.publish(ctx, domain.ChannelBets, domain.EventBetCreated, map[string]any{
		"bet_id":   id,
		"creator":  creator,
		"resolver": resolver,
		"deadline": deadline.UTC().Format(time.RFC3339),
	})

	s.logger.InfoContext(ctx, "lifecycle: bet created",
		slog.Int64("bet_id", id),
		slog.String("creator", creator),
		slog.Time("deadline", deadline),
	)

	return id, nil
}

// TakePosition stakes amount of the caller's balance on the chosen side. The
// check order is fixed: amount, existence, deadline, resolved. A resolved
// bet past its deadline therefore reports ErrBettingClosed, not
// ErrAlreadyResolved.
func (s *LifecycleService) TakePosition(ctx context.Context, caller string, betID int64, side domain.Side, amount *big.Int, note string) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrZeroAmount
	}

	unlock, err := lockBet(ctx, s.locks, s.dlock, betID, s.logger)
	if err != nil {
		return err
	}
	defer unlock()

	b, err := s.ledger.Bet(ctx, betID)
	if err != nil {
		return err
	}
	if !s.now().Before(b.Deadline) {
		return domain.ErrBettingClosed
	}
	if b.Resolved {
		return domain.ErrAlreadyResolved
	}

	note = truncateNote(note)

	// The stake is the value attached to the call: debit it up front.
	if err := s.treasury.Debit(ctx, caller, amount); err != nil {
		return err
	}

	first, err := s.ledger.AddPosition(ctx, betID, caller, side, amount, note)
	if err != nil {
		// Return the stake; the position was not recorded.
		if cerr := s.treasury.Credit(ctx, caller, amount); cerr != nil {
			s.logger.ErrorContext(ctx, "lifecycle: stake compensation failed",
				slog.Int64("bet_id", betID),
				slog.String("address", caller),
				slog.String("error", cerr.Error()),
			)
		}
		return fmt.Errorf("lifecycle: add position: %w", err)
	}

	if first {
		if err := s.index.AppendParticipant(ctx, caller, betID); err != nil {
			// The stake is committed; the participant index is eventually
			// repairable from positions, so log rather than fail the call.
			s.logger.ErrorContext(ctx, "lifecycle: participant index append failed",
				slog.Int64("bet_id", betID),
				slog.String("address", caller),
				slog.String("error", err.Error()),
			)
		}
	}

	s.invalidate(ctx, betID)
	s.publish(ctx, domain.ChannelBets, domain.EventPositionTaken, map[string]any{
		"bet_id":  betID,
		"address": caller,
		"side":    string(side),
		"amount":  amount.String(),
	})

	s.logger.InfoContext(ctx, "lifecycle: position taken",
		slog.Int64("bet_id", betID),
		slog.String("address", caller),
		slog.String("side", string(side)),
		slog.String("amount", amount.String()),
	)

	return nil
}

// Resolve records the outcome of a bet. Only the designated resolver may
// call it, only strictly after the deadline, and never once any refund has
// been paid.
func (s *LifecycleService) Resolve(ctx context.Context, caller string, betID int64, outcome domain.Side) error {
	unlock, err := lockBet(ctx, s.locks, s.dlock, betID, s.logger)
	if err != nil {
		return err
	}
	defer unlock()

	b, err := s.ledger.Bet(ctx, betID)
	if err != nil {
		return err
	}
	if caller != b.Resolver {
		return domain.ErrUnauthorized
	}
	if !s.now().After(b.Deadline) {
		return domain.ErrTooEarly
	}
	if b.Resolved {
		return domain.ErrAlreadyResolved
	}
	if b.RefundsStarted {
		return domain.ErrRefundsStarted
	}

	if err := s.ledger.MarkResolved(ctx, betID, outcome); err != nil {
		return fmt.Errorf("lifecycle: resolve bet %d: %w", betID, err)
	}

	s.invalidate(ctx, betID)
	s.publish(ctx, domain.ChannelSettlements, domain.EventBetResolved, map[string]any{
		"bet_id":  betID,
		"outcome": string(outcome),
	})

	s.logger.InfoContext(ctx, "lifecycle: bet resolved",
		slog.Int64("bet_id", betID),
		slog.String("outcome", string(outcome)),
	)

	return nil
}

// publish emits an event on the signal bus and mirrors it into the audit
// log. Both are best effort.
func (s *LifecycleService) publish(ctx context.Context, channel, event string, detail map[string]any) {
	if s.bus != nil {
		payload, _ := json.Marshal(withEvent(event, detail))
		if err := s.bus.Publish(ctx, channel, payload); err != nil {
			s.logger.WarnContext(ctx, "lifecycle: publish event failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.audit != nil {
		if err := s.audit.Log(ctx, event, detail); err != nil {
			s.logger.WarnContext(ctx, "lifecycle: audit log failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *LifecycleService) invalidate(ctx context.Context, betID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, betID); err != nil {
		s.logger.WarnContext(ctx, "lifecycle: cache invalidate failed",
			slog.Int64("bet_id", betID),
			slog.String("error", err.Error()),
		)
	}
}

// truncateNote caps a display note at NoteMaxLen bytes. Notes are cosmetic;
// silent truncation mirrors fixed-width storage.
func truncateNote(note string) string {
	if len(note) <= domain.NoteMaxLen {
		return note
	}
	return note[:domain.NoteMaxLen]
}

// withEvent copies detail and adds the event name, so bus payloads are
// self-describing.
func withEvent(event string, detail map[string]any) map[string]any {
	out := make(map[string]any, len(detail)+1)
	for k, v := range detail {
		out[k] = v
	}
	out["event"] = event
	return out
}
