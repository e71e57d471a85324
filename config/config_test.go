package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/shortsbot/config"
	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
markets:
  - key: btc-1m
    asset: btc
    duration_seconds: 60
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, 200*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, 250*time.Millisecond, cfg.FlushInterval())
	assert.Equal(t, 10*time.Second, cfg.StaleAfter())
	assert.Equal(t, "fixed-rate", cfg.Engine.PayoutModel)
	assert.True(t, decimal.NewFromInt(1000).Equal(cfg.StartBalance()))
	assert.Equal(t, "shorts.db", cfg.Storage.DSN)
	assert.Equal(t, 30*24*time.Hour, cfg.Retention())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	// asset en mayúsculas, símbolo derivado
	require.Len(t, cfg.Markets, 1)
	assert.Equal(t, "BTC", cfg.Markets[0].Asset)
	assert.Equal(t, "BTCUSDT", cfg.Markets[0].Symbol)
}

func TestParse_EngineConfig(t *testing.T) {
	cfg, err := config.Parse([]byte(`
engine:
  lock_window_seconds: 5
  payout_model: per-share
  payout_per_share: 1
  push_epsilon: 0.01
  stake_sizes: [10, 0.5]
quote:
  sensitivity: 4
  release_window_seconds: 20
bots:
  enabled: true
  max_per_tick: 3
markets:
  - {key: btc-1m, asset: BTC, duration_seconds: 60}
  - {key: eth-15s, asset: ETH, symbol: ethusdt, duration_seconds: 15}
`))
	require.NoError(t, err)

	ec := cfg.EngineConfig()
	require.NoError(t, ec.Validate())

	assert.Equal(t, 5*time.Second, ec.LockWindow)
	assert.Equal(t, domain.PayoutPerShare, ec.Payout.Model)
	assert.Equal(t, 0.01, ec.PushEpsilon)
	require.Len(t, ec.StakeSizes, 2)
	assert.Equal(t, "0.5", ec.StakeSizes[1].String())

	assert.Equal(t, 4.0, ec.Quote.Sensitivity)
	assert.Equal(t, 20*time.Second, ec.Quote.ReleaseWindow)
	assert.Equal(t, domain.DefaultQuoteParams().VirtualLiquidity, ec.Quote.VirtualLiquidity)

	assert.True(t, ec.Bots.Enabled)
	assert.Equal(t, 3, ec.Bots.MaxPerTick)

	require.Len(t, ec.Markets, 2)
	assert.Equal(t, 15*time.Second, ec.Markets[1].Duration)
	assert.Equal(t, "ETHUSDT", ec.Markets[1].Symbol)

	assert.Equal(t, []string{"BTC", "ETH"}, cfg.Assets())
	assert.Equal(t, map[string]string{"BTCUSDT": "BTC", "ETHUSDT": "ETH"}, cfg.Symbols())
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no markets", `log: {level: info}`},
		{"empty key", `markets: [{key: "", asset: BTC, duration_seconds: 60}]`},
		{"duplicate key", `markets: [{key: a, asset: BTC, duration_seconds: 60}, {key: a, asset: ETH, duration_seconds: 60}]`},
		{"no asset", `markets: [{key: a, duration_seconds: 60}]`},
		{"zero duration", `markets: [{key: a, asset: BTC}]`},
		{"negative duration", `markets: [{key: a, asset: BTC, duration_seconds: -1}]`},
		{"bad payout model", "engine: {payout_model: martingale}\n" + minimal},
		{"bad stake", "engine: {stake_sizes: [10, -1]}\n" + minimal},
		{"negative epsilon", "engine: {push_epsilon: -0.1}\n" + minimal},
		{"lock window equals duration", "engine: {lock_window_seconds: 60}\n" + `markets: [{key: a, asset: BTC, duration_seconds: 60}]`},
		{"lock window longer than one market", "engine: {lock_window_seconds: 90}\n" +
			`markets: [{key: a, asset: BTC, duration_seconds: 300}, {key: b, asset: ETH, duration_seconds: 60}]`},
		{"bad log level", "log: {level: verbose}\n" + minimal},
		{"bad log format", "log: {format: xml}\n" + minimal},
		{"bad yaml", "markets: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_LockWindowShorterThanDuration(t *testing.T) {
	cfg, err := config.Parse([]byte("engine: {lock_window_seconds: 59.5}\n" +
		`markets: [{key: a, asset: BTC, duration_seconds: 60}]`))
	require.NoError(t, err)
	assert.Equal(t, 59500*time.Millisecond, cfg.EngineConfig().LockWindow)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("SHORTS_START_BALANCE", "250.5")
	t.Setenv("SHORTS_HTTP_ADDR", ":9090")
	t.Setenv("SHORTS_DSN", ":memory:")

	cfg, err := config.Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "250.5", cfg.StartBalance().String())
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
}

func TestParse_EnvOverrides_BadBalance(t *testing.T) {
	t.Setenv("SHORTS_START_BALANCE", "lots")
	_, err := config.Parse([]byte(minimal))
	assert.Error(t, err)
}

func TestSimStartPrices(t *testing.T) {
	cfg, err := config.Parse([]byte(`
markets:
  - {key: btc-1m, asset: BTC, duration_seconds: 60, sim_start_price: 64000}
  - {key: btc-5m, asset: BTC, duration_seconds: 300}
  - {key: eth-1m, asset: ETH, duration_seconds: 60}
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"BTC": 64000, "ETH": 0}, cfg.SimStartPrices())
}

func TestLoad_RepoConfig(t *testing.T) {
	cfg, err := config.Load("config.yaml")
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Markets)
	require.NoError(t, cfg.EngineConfig().Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
