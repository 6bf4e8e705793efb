package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/openwager/betpool/internal/server/handler"
	"github.com/openwager/betpool/internal/service"
	"github.com/openwager/betpool/internal/store/memory"
)

var (
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1").Hex()
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b2").Hex()
	referee = common.HexToAddress("0x00000000000000000000000000000000000000d4").Hex()
)

type env struct {
	ts       *httptest.Server
	treasury *memory.Treasury
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := memory.NewLedger()
	index := memory.NewIndex()
	treasury := memory.NewTreasury()
	locks := service.NewBetLocks()

	life := service.NewLifecycleService(ledger, index, treasury, locks, nil, nil, nil, nil, logger)
	settle := service.NewSettlementService(ledger, treasury, locks, nil, nil, nil, nil, logger)
	disc := service.NewDiscoveryService(ledger, index, nil, logger)

	handlers := Handlers{
		Health:     handler.NewHealthHandler(logger),
		Bets:       handler.NewBetHandler(life, disc, logger),
		Positions:  handler.NewPositionHandler(life, disc, logger),
		Settlement: handler.NewSettlementHandler(life, settle, logger),
		Balances:   handler.NewBalanceHandler(treasury, logger),
		Archive:    handler.NewArchiveHandler(logger),
	}

	srv := NewServer(cfg, handlers, nil, logger)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)

	ctx := context.Background()
	for _, addr := range []string{alice, bob, referee} {
		require.NoError(t, treasury.Credit(ctx, addr, big.NewInt(1_000_000)))
	}

	return &env{ts: ts, treasury: treasury}
}

func (e *env) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, buf)
	require.NoError(t, err)
	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (e *env) createBet(t *testing.T) int64 {
	t.Helper()
	resp, out := e.do(t, http.MethodPost, "/api/bets", map[string]any{
		"from":     alice,
		"question": "will it rain tomorrow",
		"deadline": time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
		"resolver": referee,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return int64(out["id"].(float64))
}

func TestHealth(t *testing.T) {
	e := newEnv(t, Config{})
	resp, out := e.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", out["status"])
}

func TestCreateBetEndpoint(t *testing.T) {
	e := newEnv(t, Config{})

	id := e.createBet(t)
	require.Equal(t, int64(0), id)

	resp, out := e.do(t, http.MethodGet, fmt.Sprintf("/api/bets/%d", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, alice, out["creator"])
	require.Equal(t, referee, out["resolver"])
	require.Equal(t, "0", out["yes_total"])
	require.Equal(t, false, out["resolved"])
}

func TestCreateBetValidationErrors(t *testing.T) {
	e := newEnv(t, Config{})

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad from", map[string]any{
			"from": "not-an-address", "deadline": time.Now().Add(time.Hour).Format(time.RFC3339), "resolver": referee,
		}},
		{"zero resolver", map[string]any{
			"from": alice, "deadline": time.Now().Add(time.Hour).Format(time.RFC3339),
			"resolver": "0x0000000000000000000000000000000000000000",
		}},
		{"bad deadline", map[string]any{
			"from": alice, "deadline": "tomorrow", "resolver": referee,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := e.do(t, http.MethodPost, "/api/bets", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	// Past deadline passes parsing but fails domain validation.
	resp, _ := e.do(t, http.MethodPost, "/api/bets", map[string]any{
		"from": alice, "deadline": time.Now().UTC().Add(-time.Hour).Format(time.RFC3339), "resolver": referee,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTakePositionEndpoint(t *testing.T) {
	e := newEnv(t, Config{})
	id := e.createBet(t)

	resp, _ := e.do(t, http.MethodPost, fmt.Sprintf("/api/bets/%d/positions", id), map[string]any{
		"from": bob, "side": "yes", "amount": "250", "note": "sunny bias",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, out := e.do(t, http.MethodGet, fmt.Sprintf("/api/bets/%d/positions/%s", id, bob), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "250", out["yes"])
	require.Equal(t, "0", out["no"])
	require.Equal(t, "sunny bias", out["note"])
	require.Equal(t, false, out["claimed"])

	resp, out = e.do(t, http.MethodGet, "/api/balances/"+bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "999750", out["balance"])
}

func TestTakePositionErrors(t *testing.T) {
	e := newEnv(t, Config{})
	id := e.createBet(t)

	resp, _ := e.do(t, http.MethodPost, fmt.Sprintf("/api/bets/%d/positions", id), map[string]any{
		"from": bob, "side": "maybe", "amount": "10",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/bets/%d/positions", id), map[string]any{
		"from": bob, "side": "yes", "amount": "-5",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/bets/%d/positions", id), map[string]any{
		"from": bob, "side": "yes", "amount": "2000000",
	})
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/bets/99/positions", map[string]any{
		"from": bob, "side": "yes", "amount": "10",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResolveEndpointConflicts(t *testing.T) {
	e := newEnv(t, Config{})
	id := e.createBet(t)

	// Wrong caller.
	resp, _ := e.do(t, http.MethodPost, fmt.Sprintf("/api/bets/%d/resolve", id), map[string]any{
		"from": alice, "outcome": "yes",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Right caller, deadline not yet passed.
	resp, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/bets/%d/resolve", id), map[string]any{
		"from": referee, "outcome": "yes",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestClaimBeforeResolutionEndpoint(t *testing.T) {
	e := newEnv(t, Config{})
	id := e.createBet(t)

	resp, _ := e.do(t, http.MethodPost, fmt.Sprintf("/api/bets/%d/claim", id), map[string]any{
		"from": bob,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestListBetsEndpoint(t *testing.T) {
	e := newEnv(t, Config{})
	e.createBet(t)
	e.createBet(t)

	resp, out := e.do(t, http.MethodGet, "/api/bets?status=open", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out["bets"], 2)

	resp, out = e.do(t, http.MethodGet, "/api/bets?status=resolved", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out["bets"], 0)

	resp, _ = e.do(t, http.MethodGet, "/api/bets?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/api/bets?creator="+alice+"&participant="+bob, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, out = e.do(t, http.MethodGet, "/api/bets?creator="+alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out["bets"], 2)
}

func TestStatsEndpoint(t *testing.T) {
	e := newEnv(t, Config{})
	id := e.createBet(t)

	resp, _ := e.do(t, http.MethodPost, fmt.Sprintf("/api/bets/%d/positions", id), map[string]any{
		"from": bob, "side": "no", "amount": "40",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, out := e.do(t, http.MethodGet, fmt.Sprintf("/api/bets/%d/stats", id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "40", out["total_deposited"])
	require.Equal(t, "40", out["no_left"])
	require.Equal(t, "0", out["total_claimed"])
}

func TestDepositEndpoint(t *testing.T) {
	e := newEnv(t, Config{})

	resp, out := e.do(t, http.MethodPost, "/api/balances/"+bob+"/deposit", map[string]any{
		"amount": "500",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "1000500", out["balance"])

	resp, _ = e.do(t, http.MethodPost, "/api/balances/"+bob+"/deposit", map[string]any{
		"amount": "0",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	e := newEnv(t, Config{APIKey: "sekrit"})

	resp, _ := e.do(t, http.MethodGet, "/api/bets", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, e.ts.URL+"/api/bets", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sekrit")
	authed, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer authed.Body.Close()
	require.Equal(t, http.StatusOK, authed.StatusCode)

	req, err = http.NewRequest(http.MethodGet, e.ts.URL+"/api/bets", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "wrong")
	denied, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer denied.Body.Close()
	require.Equal(t, http.StatusUnauthorized, denied.StatusCode)
}

// denyLimiter rejects every request.
type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return false, nil
}

func TestRateLimitExceeded(t *testing.T) {
	e := newEnv(t, Config{Limiter: denyLimiter{}, RateLimitPerMinute: 1})

	resp, _ := e.do(t, http.MethodGet, "/api/bets", nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
