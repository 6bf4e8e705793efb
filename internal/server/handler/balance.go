package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/openwager/betpool/internal/domain"
)

// BalanceHandler serves the custodial balance endpoints.
type BalanceHandler struct {
	treasury domain.Treasury
	logger   *slog.Logger
}

// NewBalanceHandler creates a BalanceHandler with the given treasury and logger.
func NewBalanceHandler(treasury domain.Treasury, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{
		treasury: treasury,
		logger:   logHandler(logger, "balance"),
	}
}

// GetBalance returns the custodial balance of an address. Unknown addresses
// report zero.
// GET /api/balances/{addr}
func (h *BalanceHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(r.PathValue("addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "addr: "+err.Error())
		return
	}

	balance, err := h.treasury.Balance(r.Context(), addr)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"address": addr,
		"balance": balance.String(),
	})
}

// depositRequest is the JSON body for funding an account.
type depositRequest struct {
	Amount string `json:"amount"`
}

// Deposit credits an address's custodial balance.
// POST /api/balances/{addr}/deposit
func (h *BalanceHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(r.PathValue("addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "addr: "+err.Error())
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount: "+err.Error())
		return
	}

	if err := h.treasury.Credit(r.Context(), addr, amount); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	balance, err := h.treasury.Balance(r.Context(), addr)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"address": addr,
		"balance": balance.String(),
	})
}
