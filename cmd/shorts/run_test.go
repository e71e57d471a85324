package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/shortsbot/config"
	"github.com/alejandrodnm/shortsbot/internal/adapters/ledger"
	"github.com/alejandrodnm/shortsbot/internal/adapters/storage"
	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_SimulatedRoundsReachJournal(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end run")
	}

	cfg, err := config.Parse([]byte(`
engine:
  tick_ms: 10
  flush_ms: 5
  status_interval_seconds: 60
feeds:
  simulate: true
  sim_interval_ms: 5
  sim_seed: 7
bots:
  enabled: true
markets:
  - {key: btc-fast, asset: BTC, duration_seconds: 0.2, sim_start_price: 64000}
  - {key: eth-fast, asset: ETH, duration_seconds: 0.3, sim_start_price: 3100}
`))
	require.NoError(t, err)

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	require.NoError(t, run(ctx, cfg, store, runOptions{}))

	stats, err := store.GetStats(context.Background())
	require.NoError(t, err)
	assert.Positive(t, stats.Rounds, "simulated rounds should settle and be journaled")
	assert.Zero(t, stats.Positions, "nobody placed a position")
}

type fakeJournal struct {
	mu      sync.Mutex
	batches []domain.SettlementBatch
}

func (f *fakeJournal) SaveSettlements(_ context.Context, b domain.SettlementBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
	return nil
}

func (f *fakeJournal) GetSettlements(context.Context, time.Time, time.Time) ([]domain.SettledPosition, error) {
	return nil, nil
}

func (f *fakeJournal) GetStats(context.Context) (domain.SettlementStats, error) {
	return domain.SettlementStats{}, nil
}

func (f *fakeJournal) Close() error { return nil }

type countingNotifier struct{ n int }

func (c *countingNotifier) NotifySettlement(context.Context, domain.SettlementBatch) error {
	c.n++
	return nil
}

func TestConsumeSettlements_DrainsOnCancel(t *testing.T) {
	events := make(chan domain.SettlementBatch, 4)
	for i := 0; i < 3; i++ {
		events <- domain.SettlementBatch{At: time.Now()}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	j := &fakeJournal{}
	n := &countingNotifier{}
	consumeSettlements(ctx, events, j, n)

	assert.Len(t, j.batches, 3)
	assert.Equal(t, 3, n.n)
	assert.Empty(t, events)
}

func TestLogWallet(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	w := ledger.NewMemory(decimal.NewFromInt(100))
	require.NoError(t, w.Debit(decimal.NewFromInt(50)))
	require.NoError(t, w.Debit(decimal.NewFromInt(10)))
	w.Credit(decimal.NewFromInt(95))

	logWallet(w)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "wallet: session closed", line["msg"])
	assert.Equal(t, "135", line["balance"])
	assert.Equal(t, "60", line["staked"])
	assert.Equal(t, "95", line["paid_out"])
	assert.Equal(t, "35", line["net"])
}
