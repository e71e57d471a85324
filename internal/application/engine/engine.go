package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/alejandrodnm/shortsbot/internal/instrumentation"
	"github.com/alejandrodnm/shortsbot/internal/ports"
	"github.com/shopspring/decimal"
)

const (
	DefaultTickInterval     = 200 * time.Millisecond
	DefaultSettledRetention = 100
	defaultRecentRounds     = 512
	defaultInboxSize        = 64
	defaultEventBuffer      = 64
)

// Config holds the engine tunables. Markets are fixed for the process lifetime.
type Config struct {
	Markets      []domain.Market
	TickInterval time.Duration
	// LockWindow cierra la ronda a nuevas posiciones antes de End. 0 lo desactiva.
	LockWindow       time.Duration
	Payout           domain.PayoutConfig
	PushEpsilon      float64
	SettledRetention int
	RecentRounds     int // ids de rondas liquidadas que se recuerdan
	StakeSizes       []decimal.Decimal
	Quote            domain.QuoteParams
	Bots             BotConfig
	ActivityCap      int
	EventBuffer      int
}

// Validate checks that the config describes a usable engine.
func (c Config) Validate() error {
	if len(c.Markets) == 0 {
		return fmt.Errorf("engine: no markets configured")
	}
	seen := make(map[string]bool, len(c.Markets))
	for _, m := range c.Markets {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		if seen[m.Key] {
			return fmt.Errorf("engine: duplicate market key %q", m.Key)
		}
		seen[m.Key] = true
	}
	if err := c.Payout.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if len(c.StakeSizes) == 0 {
		return fmt.Errorf("engine: no stake sizes configured")
	}
	for _, s := range c.StakeSizes {
		if !s.IsPositive() {
			return fmt.Errorf("engine: stake size %s must be > 0", s)
		}
	}
	if c.PushEpsilon < 0 {
		return fmt.Errorf("engine: push epsilon %v must be >= 0", c.PushEpsilon)
	}
	if c.LockWindow < 0 {
		return fmt.Errorf("engine: lock window %s must be >= 0", c.LockWindow)
	}
	for _, m := range c.Markets {
		if c.LockWindow > 0 && c.LockWindow >= m.Duration {
			return fmt.Errorf("engine: lock window %s must be shorter than market %q duration %s",
				c.LockWindow, m.Key, m.Duration)
		}
	}
	return nil
}

// marketState es el estado mutable de un mercado. Solo lo toca el loop.
type marketState struct {
	market domain.Market
	round  domain.Round
	book   *domain.MarketBook
	prob   float64
	quote  domain.Quote
}

type command struct {
	place *PlaceRequest
	reply chan placeResult
}

type placeResult struct {
	pos domain.OpenPosition
	err error
}

// Engine owns rounds, positions and the pending settlement queue. All state is
// mutated by the Run goroutine; readers use Snapshot.
type Engine struct {
	cfg     Config
	oracle  ports.PriceOracle
	ledger  ports.Ledger
	metrics *instrumentation.Metrics
	now     func() time.Time
	rng     *rand.Rand

	markets []*marketState
	byKey   map[string]*marketState

	open       []domain.OpenPosition
	settled    []domain.SettledPosition
	pending    []domain.PendingSettlement
	pendingIDs map[string]bool
	recent     *recentSet

	inbox  chan command
	events chan domain.SettlementBatch
	snap   atomic.Pointer[Snapshot]
	done   chan struct{}
}

// Option configures optional Engine dependencies.
type Option func(*Engine)

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRand injects the random source used by the bot simulation.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// New creates an engine. The current round of every market is derived
// immediately; open prices are captured by the first ticks.
func New(cfg Config, oracle ports.PriceOracle, ledger ports.Ledger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.SettledRetention <= 0 {
		cfg.SettledRetention = DefaultSettledRetention
	}
	if cfg.RecentRounds <= 0 {
		cfg.RecentRounds = defaultRecentRounds
	}
	if cfg.ActivityCap <= 0 {
		cfg.ActivityCap = domain.DefaultActivityCap
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.Quote == (domain.QuoteParams{}) {
		cfg.Quote = domain.DefaultQuoteParams()
	}
	cfg.Bots = cfg.Bots.withDefaults()

	e := &Engine{
		cfg:        cfg,
		oracle:     oracle,
		ledger:     ledger,
		now:        time.Now,
		byKey:      make(map[string]*marketState, len(cfg.Markets)),
		pendingIDs: make(map[string]bool),
		recent:     newRecentSet(cfg.RecentRounds),
		inbox:      make(chan command, defaultInboxSize),
		events:     make(chan domain.SettlementBatch, cfg.EventBuffer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}

	now := e.now()
	for _, m := range cfg.Markets {
		r := domain.DeriveRound(m.Key, m.Duration, cfg.LockWindow, now, nil)
		ms := &marketState{
			market: m,
			round:  r,
			book:   domain.NewMarketBook(r.ID, cfg.ActivityCap),
			prob:   0.5,
			quote:  domain.FairQuote(),
		}
		e.markets = append(e.markets, ms)
		e.byKey[m.Key] = ms
	}
	e.publish(now)
	return e, nil
}

// Run drives the engine until ctx is cancelled. It must be called once.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	slog.Info("engine: started",
		"markets", len(e.markets),
		"tick", e.cfg.TickInterval,
		"payout", e.cfg.Payout.Model,
		"lock_window", e.cfg.LockWindow,
	)

	e.safeTick(e.now())
	for {
		select {
		case <-ctx.Done():
			slog.Info("engine: stopping", "open", len(e.open), "pending", len(e.pending))
			return nil
		case <-ticker.C:
			e.safeTick(e.now())
		case cmd := <-e.inbox:
			e.handle(cmd)
		}
	}
}

// Place submits a position intent to the loop and waits for the result.
func (e *Engine) Place(ctx context.Context, req PlaceRequest) (domain.OpenPosition, error) {
	cmd := command{place: &req, reply: make(chan placeResult, 1)}
	select {
	case e.inbox <- cmd:
	case <-ctx.Done():
		return domain.OpenPosition{}, ctx.Err()
	case <-e.done:
		return domain.OpenPosition{}, fmt.Errorf("engine.Place: %w", domain.ErrEngineStopped)
	}
	select {
	case res := <-cmd.reply:
		return res.pos, res.err
	case <-ctx.Done():
		return domain.OpenPosition{}, ctx.Err()
	case <-e.done:
		return domain.OpenPosition{}, fmt.Errorf("engine.Place: %w", domain.ErrEngineStopped)
	}
}

// Snapshot returns the last published state. Never blocks.
func (e *Engine) Snapshot() *Snapshot {
	return e.snap.Load()
}

// Events delivers one batch per tick that settled at least one round.
func (e *Engine) Events() <-chan domain.SettlementBatch {
	return e.events
}

// Markets returns the configured markets in config order.
func (e *Engine) Markets() []domain.Market {
	return append([]domain.Market(nil), e.cfg.Markets...)
}

// StakeSizes returns the allowed stake amounts.
func (e *Engine) StakeSizes() []decimal.Decimal {
	return append([]decimal.Decimal(nil), e.cfg.StakeSizes...)
}

func (e *Engine) handle(cmd command) {
	if cmd.place == nil {
		return
	}
	now := e.now()
	pos, err := e.place(*cmd.place, now)
	e.publish(now)
	cmd.reply <- placeResult{pos: pos, err: err}
}

// safeTick runs one tick; a panic outside per-market isolation is logged and
// the loop keeps going.
func (e *Engine) safeTick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: tick panic", "panic", r)
			e.metrics.RecordFault("_engine")
		}
	}()
	e.tick(now)
}

// tick es un paso completo del loop: rollover, liquidación, bots, quotes.
func (e *Engine) tick(now time.Time) {
	started := time.Now()

	for _, ms := range e.markets {
		e.advanceMarket(ms, now)
	}
	e.sweepOrphans(now)

	if ready := e.drainPending(now); len(ready) > 0 {
		e.settle(ready, now)
	}

	e.simulateBots(now)
	e.refreshQuotes(now)
	e.publish(now)

	e.metrics.RecordTick(
		float64(time.Since(started).Microseconds())/1000,
		len(e.pending),
		len(e.open),
		e.ledger.Balance().InexactFloat64(),
	)
}

// emit entrega el batch sin bloquear el loop.
func (e *Engine) emit(batch domain.SettlementBatch) {
	select {
	case e.events <- batch:
	default:
		slog.Warn("engine: events channel full, batch dropped",
			"rounds", len(batch.Rounds), "positions", len(batch.Positions))
	}
}

// stakeAllowed compara exacto: 10.004 no es 10.
func (e *Engine) stakeAllowed(d decimal.Decimal) bool {
	for _, s := range e.cfg.StakeSizes {
		if s.Equal(d) {
			return true
		}
	}
	return false
}

// IsRejection reports whether err is one of the placement rejections.
func IsRejection(err error) bool {
	for _, target := range []error{
		domain.ErrUnknownMarket,
		domain.ErrInvalidDirection,
		domain.ErrStakeNotAllowed,
		domain.ErrFeedNotLive,
		domain.ErrRoundNotOpen,
		domain.ErrRoundLocked,
		domain.ErrInsufficientBalance,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
