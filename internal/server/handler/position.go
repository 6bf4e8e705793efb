package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/openwager/betpool/internal/domain"
)

// PositionTaker defines the write-side method the position handler requires.
type PositionTaker interface {
	TakePosition(ctx context.Context, caller string, betID int64, side domain.Side, amount *big.Int, note string) error
}

// PositionReader defines the read-side methods the position handler requires.
type PositionReader interface {
	Position(ctx context.Context, betID int64, addr string) (domain.Position, error)
	Flags(ctx context.Context, betID int64, addr string) (domain.SettlementFlags, error)
	Note(ctx context.Context, betID int64, addr string) (string, error)
}

// PositionHandler serves position endpoints.
type PositionHandler struct {
	lifecycle PositionTaker
	discovery PositionReader
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given services and logger.
func NewPositionHandler(lifecycle PositionTaker, discovery PositionReader, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		lifecycle: lifecycle,
		discovery: discovery,
		logger:    logHandler(logger, "position"),
	}
}

// takePositionRequest is the JSON body for staking on a bet.
type takePositionRequest struct {
	From   string `json:"from"`
	Side   string `json:"side"`
	Amount string `json:"amount"`
	Note   string `json:"note"`
}

// TakePosition stakes an amount on one side of an open bet.
// POST /api/bets/{id}/positions
func (h *PositionHandler) TakePosition(w http.ResponseWriter, r *http.Request) {
	id, err := betIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req takePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller, err := parseAddress(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	side := domain.Side(req.Side)
	if !side.Valid() {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount: "+err.Error())
		return
	}

	if err := h.lifecycle.TakePosition(r.Context(), caller, id, side, amount, req.Note); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"bet_id":  id,
		"address": caller,
		"side":    side,
		"amount":  amount.String(),
	})
}

// positionResponse reports one participant's accumulated position on a bet.
type positionResponse struct {
	BetID    int64  `json:"bet_id"`
	Address  string `json:"address"`
	Yes      string `json:"yes"`
	No       string `json:"no"`
	Note     string `json:"note,omitempty"`
	Claimed  bool   `json:"claimed"`
	Refunded bool   `json:"refunded"`
}

// GetPosition returns a participant's position, note, and settlement flags.
// GET /api/bets/{id}/positions/{addr}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := betIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	addr, err := parseAddress(r.PathValue("addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "addr: "+err.Error())
		return
	}

	pos, err := h.discovery.Position(r.Context(), id, addr)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	flags, err := h.discovery.Flags(r.Context(), id, addr)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	note, err := h.discovery.Note(r.Context(), id, addr)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, positionResponse{
		BetID:    id,
		Address:  addr,
		Yes:      pos.Yes.String(),
		No:       pos.No.String(),
		Note:     note,
		Claimed:  flags.Claimed,
		Refunded: flags.Refunded,
	})
}
