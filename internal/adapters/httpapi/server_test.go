package httpapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/adapters/httpapi"
	"github.com/alejandrodnm/shortsbot/internal/application/engine"
	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/alejandrodnm/shortsbot/internal/instrumentation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fake engine ---

type fakeEngine struct {
	snap    *engine.Snapshot
	err     error
	lastReq engine.PlaceRequest
}

func (f *fakeEngine) Place(_ context.Context, req engine.PlaceRequest) (domain.OpenPosition, error) {
	f.lastReq = req
	if f.err != nil {
		return domain.OpenPosition{}, f.err
	}
	return domain.OpenPosition{
		ID:         "btc-1m-1772366400000-3f2a9c1e-0000-4000-8000-000000000000",
		MarketKey:  req.MarketKey,
		RoundID:    "btc-1m-1772366400000",
		Direction:  req.Direction,
		Stake:      req.Stake,
		EntryPrice: 64000,
	}, nil
}

func (f *fakeEngine) Snapshot() *engine.Snapshot { return f.snap }

var at = time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)

func fixture() *engine.Snapshot {
	open := 64000.0
	round := domain.DeriveRound("btc-1m", time.Minute, 10*time.Second, at, &open)
	return &engine.Snapshot{
		At: at,
		Markets: []engine.MarketSnapshot{{
			Market:      domain.Market{Key: "btc-1m", Asset: "BTC", Duration: time.Minute},
			Round:       round,
			Phase:       domain.PhaseOpen,
			Progress:    0.5,
			Remaining:   30 * time.Second,
			LatestPrice: 64005,
			HasPrice:    true,
			Feed:        domain.FeedLive,
			Probability: 0.55,
			Quote:       domain.Quote{Up: 0.55, Down: 0.45, UpCents: 55, DownCents: 45},
			Book:        domain.MarketBook{UpStake: 30, DownStake: 10},
			Activity:    []domain.Activity{{Side: domain.DirectionUp, Amount: 10, Trader: "bot-0001", At: at}},
		}},
		Pending: []domain.PendingSettlement{{RoundID: "eth-1m-1772366340000"}},
		Recent:  []string{"btc-1m-1772366340000"},
		Balance: decimal.RequireFromString("1000"),
		Feeds:   map[string]domain.FeedStatus{"BTC": domain.FeedLive},
		Stakes:  []decimal.Decimal{decimal.NewFromInt(10), decimal.NewFromInt(50)},
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

// --- reads ---

func TestServer_Health(t *testing.T) {
	srv := httpapi.NewServer(&fakeEngine{snap: fixture()}, nil)
	code, body := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Health_NoSnapshot(t *testing.T) {
	srv := httpapi.NewServer(&fakeEngine{}, nil)
	code, _ := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestServer_Snapshot(t *testing.T) {
	srv := httpapi.NewServer(&fakeEngine{snap: fixture()}, nil)
	code, body := do(t, srv, http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, "1000.00", body["balance"])
	assert.Equal(t, []any{"10", "50"}, body["stakes"])
	assert.Equal(t, []any{"eth-1m-1772366340000"}, body["pending"])

	markets := body["markets"].([]any)
	require.Len(t, markets, 1)
	m := markets[0].(map[string]any)
	assert.Equal(t, "btc-1m", m["key"])
	assert.Equal(t, "OPEN", m["phase"])
	assert.Equal(t, "live", m["feed"])
	assert.Equal(t, 64005.0, m["latest_price"])
	assert.Equal(t, 30000.0, m["remaining_ms"])

	round := m["round"].(map[string]any)
	assert.Equal(t, 64000.0, round["open_price"])
	assert.NotNil(t, round["lock"])

	quote := m["quote"].(map[string]any)
	assert.Equal(t, 55.0, quote["up_cents"])

	activity := m["activity"].([]any)
	require.Len(t, activity, 1)
	assert.Equal(t, "bot-0001", activity[0].(map[string]any)["trader"])
}

func TestServer_Market(t *testing.T) {
	srv := httpapi.NewServer(&fakeEngine{snap: fixture()}, nil)

	code, body := do(t, srv, http.MethodGet, "/api/markets/btc-1m", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "BTC", body["asset"])
	assert.InDelta(t, 0.5, body["imbalance"], 1e-12)

	code, body = do(t, srv, http.MethodGet, "/api/markets/doge-1m", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "unknown_market", body["reason"])
}

func TestServer_Markets(t *testing.T) {
	srv := httpapi.NewServer(&fakeEngine{snap: fixture()}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "btc-1m", out[0]["key"])
}

func TestServer_RoundPhase(t *testing.T) {
	snap := fixture()
	srv := httpapi.NewServer(&fakeEngine{snap: snap}, nil)

	tests := []struct {
		id    string
		code  int
		phase string
	}{
		{snap.Markets[0].Round.ID, http.StatusOK, "OPEN"},
		{"eth-1m-1772366340000", http.StatusOK, "SETTLING"},
		{"btc-1m-1772366340000", http.StatusOK, "SETTLED"},
		{"btc-1m-1", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			code, body := do(t, srv, http.MethodGet, "/api/rounds/"+tt.id, "")
			assert.Equal(t, tt.code, code)
			if tt.phase != "" {
				assert.Equal(t, tt.phase, body["phase"])
			}
		})
	}
}

// --- place ---

func TestServer_Place_OK(t *testing.T) {
	fe := &fakeEngine{snap: fixture()}
	srv := httpapi.NewServer(fe, nil)

	code, body := do(t, srv, http.MethodPost, "/api/positions",
		`{"market":"btc-1m","direction":"UP","stake":"50"}`)
	require.Equal(t, http.StatusCreated, code)

	assert.Equal(t, "btc-1m", fe.lastReq.MarketKey)
	assert.Equal(t, domain.DirectionUp, fe.lastReq.Direction)
	assert.True(t, decimal.NewFromInt(50).Equal(fe.lastReq.Stake))

	assert.Equal(t, "50.00", body["stake"])
	assert.Equal(t, "up", body["direction"])
	assert.Equal(t, "btc-1m-1772366400000", body["round"])
}

func TestServer_Place_NumericStake(t *testing.T) {
	fe := &fakeEngine{snap: fixture()}
	srv := httpapi.NewServer(fe, nil)

	code, _ := do(t, srv, http.MethodPost, "/api/positions",
		`{"market":"btc-1m","direction":"down","stake":10}`)
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, decimal.NewFromInt(10).Equal(fe.lastReq.Stake))
	assert.Equal(t, domain.DirectionDown, fe.lastReq.Direction)
}

func TestServer_Place_BadBody(t *testing.T) {
	srv := httpapi.NewServer(&fakeEngine{snap: fixture()}, nil)

	code, body := do(t, srv, http.MethodPost, "/api/positions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "bad_request", body["reason"])

	code, _ = do(t, srv, http.MethodPost, "/api/positions", `{"market":"btc-1m","direction":"up"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_Place_Rejections(t *testing.T) {
	tests := []struct {
		err    error
		code   int
		reason string
	}{
		{domain.ErrUnknownMarket, http.StatusNotFound, "unknown_market"},
		{domain.ErrInvalidDirection, http.StatusUnprocessableEntity, "invalid_direction"},
		{domain.ErrStakeNotAllowed, http.StatusUnprocessableEntity, "stake_not_allowed"},
		{domain.ErrFeedNotLive, http.StatusConflict, "feed_not_live"},
		{domain.ErrRoundNotOpen, http.StatusConflict, "round_not_open"},
		{domain.ErrRoundLocked, http.StatusConflict, "round_locked"},
		{domain.ErrInsufficientBalance, http.StatusConflict, "insufficient_balance"},
		{domain.ErrEngineStopped, http.StatusServiceUnavailable, "engine_stopped"},
		{assert.AnError, http.StatusInternalServerError, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			fe := &fakeEngine{snap: fixture(), err: fmt.Errorf("engine.place: %w", tt.err)}
			srv := httpapi.NewServer(fe, nil)

			code, body := do(t, srv, http.MethodPost, "/api/positions",
				`{"market":"btc-1m","direction":"up","stake":"50"}`)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.reason, body["reason"])
		})
	}
}

// --- metrics ---

func TestServer_Metrics(t *testing.T) {
	m := instrumentation.NewMetrics()
	m.RecordRoundOpened("btc-1m")

	srv := httpapi.NewServer(&fakeEngine{snap: fixture()}, m.Registry)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `shorts_rounds_opened_total{market="btc-1m"} 1`)
}

func TestServer_ListenAndServe_StopsOnCancel(t *testing.T) {
	srv := httpapi.NewServer(&fakeEngine{snap: fixture()}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
