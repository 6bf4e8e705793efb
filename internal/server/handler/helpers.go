package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openwager/betpool/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the sentinel errors from the service layer to HTTP
// status codes. Unknown errors are logged and reported as a generic 500 so
// internal detail never leaks to clients.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrBetNotFound), errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "bet not found")
	case errors.Is(err, domain.ErrInvalidDeadline),
		errors.Is(err, domain.ErrInvalidResolver),
		errors.Is(err, domain.ErrZeroAmount):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrBettingClosed),
		errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrTooEarly),
		errors.Is(err, domain.ErrRefundsStarted),
		errors.Is(err, domain.ErrBetNotResolved),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrAlreadyRefunded),
		errors.Is(err, domain.ErrNothingToClaim),
		errors.Is(err, domain.ErrNothingToRefund),
		errors.Is(err, domain.ErrRefundTooEarly):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusServiceUnavailable, "bet is busy, retry")
	default:
		logger.ErrorContext(r.Context(), "handler: request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// betIDParam extracts the {id} path parameter as a bet id.
func betIDParam(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, errors.New("invalid bet id")
	}
	return id, nil
}

// parseAddress validates a hex account address and normalizes it to its
// checksummed form. The zero address is rejected.
func parseAddress(raw string) (string, error) {
	if !common.IsHexAddress(raw) {
		return "", errors.New("invalid address")
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return "", errors.New("zero address not allowed")
	}
	return addr.Hex(), nil
}

// parseAmount parses a positive decimal-string amount.
func parseAmount(raw string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, errors.New("invalid amount")
	}
	if n.Sign() <= 0 {
		return nil, domain.ErrZeroAmount
	}
	return n, nil
}

// betView is the JSON representation of a bet. Amounts travel as decimal
// strings so they survive arbitrary precision.
type betView struct {
	ID             int64  `json:"id"`
	Creator        string `json:"creator"`
	Resolver       string `json:"resolver"`
	Question       string `json:"question"`
	Deadline       string `json:"deadline"`
	YesTotal       string `json:"yes_total"`
	NoTotal        string `json:"no_total"`
	Resolved       bool   `json:"resolved"`
	Outcome        string `json:"outcome,omitempty"`
	RefundsStarted bool   `json:"refunds_started"`
	RefundableAt   string `json:"refundable_at"`
	CreatedAt      string `json:"created_at"`
}

func toBetView(b domain.Bet) betView {
	v := betView{
		ID:             b.ID,
		Creator:        b.Creator,
		Resolver:       b.Resolver,
		Question:       b.Question,
		Deadline:       b.Deadline.UTC().Format(time.RFC3339),
		YesTotal:       b.YesTotal.String(),
		NoTotal:        b.NoTotal.String(),
		Resolved:       b.Resolved,
		RefundsStarted: b.RefundsStarted,
		RefundableAt:   b.RefundableAt().UTC().Format(time.RFC3339),
		CreatedAt:      b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.Resolved {
		v.Outcome = string(b.Outcome)
	}
	return v
}

func toBetViews(bets []domain.Bet) []betView {
	views := make([]betView, 0, len(bets))
	for _, b := range bets {
		views = append(views, toBetView(b))
	}
	return views
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
