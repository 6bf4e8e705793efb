package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/openwager/betpool/internal/domain"
)

// Resolver defines the resolution method the settlement handler requires.
type Resolver interface {
	Resolve(ctx context.Context, caller string, betID int64, outcome domain.Side) error
}

// Settler defines the payout methods the settlement handler requires.
type Settler interface {
	Claim(ctx context.Context, caller string, betID int64, beneficiary *string) (*big.Int, error)
	Refund(ctx context.Context, caller string, betID int64, beneficiary *string) (*big.Int, error)
}

// SettlementHandler serves resolve, claim, and refund endpoints.
type SettlementHandler struct {
	resolver Resolver
	settler  Settler
	logger   *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler with the given services and logger.
func NewSettlementHandler(resolver Resolver, settler Settler, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{
		resolver: resolver,
		settler:  settler,
		logger:   logHandler(logger, "settlement"),
	}
}

// resolveRequest is the JSON body for resolving a bet.
type resolveRequest struct {
	From    string `json:"from"`
	Outcome string `json:"outcome"`
}

// Resolve records the outcome of a bet. Only the designated resolver may
// call it, and only after the deadline.
// POST /api/bets/{id}/resolve
func (h *SettlementHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := betIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	outcome := domain.Side(req.Outcome)
	if !outcome.Valid() {
		writeError(w, http.StatusBadRequest, "outcome must be yes or no")
		return
	}

	if err := h.resolver.Resolve(r.Context(), caller, id, outcome); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bet_id":  id,
		"outcome": outcome,
	})
}

// settleRequest is the JSON body shared by claim and refund. Beneficiary is
// optional; when absent the caller settles for themself.
type settleRequest struct {
	From        string `json:"from"`
	Beneficiary string `json:"beneficiary"`
}

// Claim pays out the caller's (or the named beneficiary's) winning position.
// POST /api/bets/{id}/claim
func (h *SettlementHandler) Claim(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, "claim", h.settler.Claim)
}

// Refund returns the caller's (or the named beneficiary's) stake after the
// refund window opens on an unresolved bet.
// POST /api/bets/{id}/refund
func (h *SettlementHandler) Refund(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, "refund", h.settler.Refund)
}

func (h *SettlementHandler) settle(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(ctx context.Context, caller string, betID int64, beneficiary *string) (*big.Int, error),
) {
	id, err := betIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}

	var beneficiary *string
	if req.Beneficiary != "" {
		ben, err := parseAddress(req.Beneficiary)
		if err != nil {
			writeError(w, http.StatusBadRequest, "beneficiary: "+err.Error())
			return
		}
		beneficiary = &ben
	}

	amount, err := fn(r.Context(), caller, id, beneficiary)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	paidTo := caller
	if beneficiary != nil {
		paidTo = *beneficiary
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bet_id":      id,
		"op":          op,
		"beneficiary": paidTo,
		"amount":      amount.String(),
	})
}
