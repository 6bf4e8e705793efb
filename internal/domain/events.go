package domain

// Pub/sub channels used on the SignalBus.
const (
	ChannelBets        = "bets"
	ChannelSettlements = "settlements"
)

// Event names published on the SignalBus and recorded in the audit log.
const (
	EventBetCreated      = "bet_created"
	EventPositionTaken   = "position_taken"
	EventBetResolved     = "bet_resolved"
	EventClaimPaid       = "claim_paid"
	EventRefundPaid      = "refund_paid"
	EventTransferFailed  = "transfer_failed"
	EventArchiveComplete = "archive_complete"
)
