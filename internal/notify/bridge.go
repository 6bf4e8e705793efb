package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openwager/betpool/internal/domain"
)

// Bridge consumes settlement events from the signal bus and forwards them to
// the notifier. It runs until the context is cancelled.
type Bridge struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewBridge creates a Bridge.
func NewBridge(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Bridge {
	return &Bridge{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_bridge")),
	}
}

// Run subscribes to the bets and settlements channels and forwards each
// event through the notifier's filter. Individual delivery failures are
// logged, not fatal.
func (b *Bridge) Run(ctx context.Context) error {
	bets, err := b.bus.Subscribe(ctx, domain.ChannelBets)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", domain.ChannelBets, err)
	}
	settlements, err := b.bus.Subscribe(ctx, domain.ChannelSettlements)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", domain.ChannelSettlements, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-bets:
			if !ok {
				return nil
			}
			b.forward(ctx, msg)
		case msg, ok := <-settlements:
			if !ok {
				return nil
			}
			b.forward(ctx, msg)
		}
	}
}

func (b *Bridge) forward(ctx context.Context, payload []byte) {
	var detail map[string]any
	if err := json.Unmarshal(payload, &detail); err != nil {
		b.logger.WarnContext(ctx, "bad event payload", slog.String("error", err.Error()))
		return
	}

	event, _ := detail["event"].(string)
	if event == "" {
		return
	}

	if err := b.notifier.Notify(ctx, event, title(event), format(event, detail)); err != nil {
		b.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// title maps an event name to a human headline.
func title(event string) string {
	switch event {
	case domain.EventBetCreated:
		return "New bet"
	case domain.EventPositionTaken:
		return "Position taken"
	case domain.EventBetResolved:
		return "Bet resolved"
	case domain.EventClaimPaid:
		return "Claim paid"
	case domain.EventRefundPaid:
		return "Refund paid"
	case domain.EventTransferFailed:
		return "TRANSFER FAILED"
	default:
		return event
	}
}

// format renders the event detail as a compact human-readable body.
func format(event string, detail map[string]any) string {
	betID := detail["bet_id"]
	switch event {
	case domain.EventBetCreated:
		return fmt.Sprintf("bet %v by %v (deadline %v)", betID, detail["creator"], detail["deadline"])
	case domain.EventPositionTaken:
		return fmt.Sprintf("bet %v: %v staked %v on %v", betID, detail["address"], detail["amount"], detail["side"])
	case domain.EventBetResolved:
		return fmt.Sprintf("bet %v resolved %v", betID, detail["outcome"])
	case domain.EventClaimPaid, domain.EventRefundPaid:
		return fmt.Sprintf("bet %v: %v to %v", betID, detail["amount"], detail["beneficiary"])
	case domain.EventTransferFailed:
		return fmt.Sprintf("bet %v: %v credit of %v failed: %v", betID, detail["op"], detail["amount"], detail["error"])
	default:
		data, _ := json.Marshal(detail)
		return string(data)
	}
}
