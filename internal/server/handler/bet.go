package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/openwager/betpool/internal/domain"
	"github.com/openwager/betpool/internal/service"
)

// BetLifecycle defines the write-side methods the bet handler requires. It
// is declared locally so the handler package does not depend on the concrete
// service implementation.
type BetLifecycle interface {
	CreateBet(ctx context.Context, creator, question string, deadline time.Time, resolver string) (int64, error)
}

// BetDiscovery defines the read-side methods the bet handler requires.
type BetDiscovery interface {
	Bet(ctx context.Context, id int64) (domain.Bet, error)
	List(ctx context.Context, q service.ListQuery) ([]domain.Bet, error)
	Summary(ctx context.Context, betID int64) (service.BetSummary, error)
}

// BetHandler serves bet lifecycle and discovery endpoints.
type BetHandler struct {
	lifecycle BetLifecycle
	discovery BetDiscovery
	logger    *slog.Logger
}

// NewBetHandler creates a BetHandler with the given services and logger.
func NewBetHandler(lifecycle BetLifecycle, discovery BetDiscovery, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		lifecycle: lifecycle,
		discovery: discovery,
		logger:    logHandler(logger, "bet"),
	}
}

// createBetRequest is the JSON body for bet creation. The caller identity is
// the from field; deadline is RFC 3339.
type createBetRequest struct {
	From     string `json:"from"`
	Question string `json:"question"`
	Deadline string `json:"deadline"`
	Resolver string `json:"resolver"`
}

// CreateBet opens a new bet and returns its id.
// POST /api/bets
func (h *BetHandler) CreateBet(w http.ResponseWriter, r *http.Request) {
	var req createBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	creator, err := parseAddress(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	resolver, err := parseAddress(req.Resolver)
	if err != nil {
		writeError(w, http.StatusBadRequest, "resolver: "+err.Error())
		return
	}
	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		writeError(w, http.StatusBadRequest, "deadline must be RFC 3339")
		return
	}

	id, err := h.lifecycle.CreateBet(r.Context(), creator, req.Question, deadline, resolver)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// listBetsResponse wraps the list endpoint output with metadata.
type listBetsResponse struct {
	Bets   []betView `json:"bets"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

// ListBets returns bets filtered by lifecycle status and party.
// GET /api/bets?status=open|awaiting|resolved&creator=0x..&participant=0x..&claimable_by=0x..&limit=50&offset=0
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := service.ListQuery{
		Filter: service.FilterAll,
		Opts:   parseListOpts(r),
	}

	switch status := q.Get("status"); status {
	case "", "all":
	case "open":
		query.Filter = service.FilterOpen
	case "awaiting":
		query.Filter = service.FilterAwaiting
	case "resolved":
		query.Filter = service.FilterResolved
	default:
		writeError(w, http.StatusBadRequest, "status must be one of all, open, awaiting, resolved")
		return
	}

	// At most one party filter may be set.
	set := 0
	for _, v := range []string{q.Get("creator"), q.Get("participant"), q.Get("claimable_by")} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		writeError(w, http.StatusBadRequest, "creator, participant, and claimable_by are mutually exclusive")
		return
	}

	var err error
	if raw := q.Get("creator"); raw != "" {
		if query.Creator, err = parseAddress(raw); err != nil {
			writeError(w, http.StatusBadRequest, "creator: "+err.Error())
			return
		}
	}
	if raw := q.Get("participant"); raw != "" {
		if query.Participant, err = parseAddress(raw); err != nil {
			writeError(w, http.StatusBadRequest, "participant: "+err.Error())
			return
		}
	}
	if raw := q.Get("claimable_by"); raw != "" {
		if query.ClaimableBy, err = parseAddress(raw); err != nil {
			writeError(w, http.StatusBadRequest, "claimable_by: "+err.Error())
			return
		}
	}

	bets, err := h.discovery.List(r.Context(), query)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, listBetsResponse{
		Bets:   toBetViews(bets),
		Limit:  query.Opts.Limit,
		Offset: query.Opts.Offset,
	})
}

// GetBet returns a single bet by its id.
// GET /api/bets/{id}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	id, err := betIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bet, err := h.discovery.Bet(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toBetView(bet))
}

// betStatsResponse reports the cumulative settlement counters and derived
// aggregates for one bet.
type betStatsResponse struct {
	Bet            betView `json:"bet"`
	TotalDeposited string  `json:"total_deposited"`
	YesLeft        string  `json:"yes_left"`
	NoLeft         string  `json:"no_left"`
	ClaimedYes     string  `json:"claimed_yes"`
	ClaimedNo      string  `json:"claimed_no"`
	RefundedYes    string  `json:"refunded_yes"`
	RefundedNo     string  `json:"refunded_no"`
	TotalClaimed   string  `json:"total_claimed"`
	TotalRefunded  string  `json:"total_refunded"`
}

// GetStats returns settlement statistics for a bet.
// GET /api/bets/{id}/stats
func (h *BetHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	id, err := betIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sum, err := h.discovery.Summary(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, betStatsResponse{
		Bet:            toBetView(sum.Bet),
		TotalDeposited: sum.TotalDeposited.String(),
		YesLeft:        sum.YesLeft.String(),
		NoLeft:         sum.NoLeft.String(),
		ClaimedYes:     sum.Stats.ClaimedYes.String(),
		ClaimedNo:      sum.Stats.ClaimedNo.String(),
		RefundedYes:    sum.Stats.RefundedYes.String(),
		RefundedNo:     sum.Stats.RefundedNo.String(),
		TotalClaimed:   sum.TotalClaimed.String(),
		TotalRefunded:  sum.TotalRefunded.String(),
	})
}
