package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/shortsbot/config"
	"github.com/alejandrodnm/shortsbot/internal/adapters/feed"
	"github.com/alejandrodnm/shortsbot/internal/adapters/httpapi"
	"github.com/alejandrodnm/shortsbot/internal/adapters/ledger"
	"github.com/alejandrodnm/shortsbot/internal/adapters/notify"
	"github.com/alejandrodnm/shortsbot/internal/application/engine"
	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/alejandrodnm/shortsbot/internal/instrumentation"
	"github.com/alejandrodnm/shortsbot/internal/ports"
	"golang.org/x/sync/errgroup"
)

// drainTimeout acota cuánto se espera al journal al apagar.
const drainTimeout = 3 * time.Second

type runOptions struct {
	table bool
}

// run arranca oráculo, feeds, engine, API y consumidores, y espera a que ctx
// se cancele o alguno falle.
func run(ctx context.Context, cfg *config.Config, journal ports.SettlementJournal, opts runOptions) error {
	metrics := instrumentation.NewMetrics()
	oracle := feed.NewOracle(cfg.StaleAfter(), feed.WithMetrics(metrics))
	wallet := ledger.NewMemory(cfg.StartBalance())
	console := notify.NewConsole(cfg.Engine.Sound)

	eng, err := engine.New(cfg.EngineConfig(), oracle, wallet, engine.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("main.run: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return oracle.Run(gctx, cfg.FlushInterval(), cfg.Assets()) })
	startFeeds(gctx, g, cfg, oracle, metrics)
	g.Go(func() error { return eng.Run(gctx) })

	if cfg.HTTP.Enabled {
		api := httpapi.NewServer(eng, metrics.Registry)
		g.Go(func() error { return api.ListenAndServe(gctx, cfg.HTTP.Addr) })
	}

	g.Go(func() error {
		consumeSettlements(gctx, eng.Events(), journal, console)
		return nil
	})
	g.Go(func() error {
		printStatus(gctx, eng, console, cfg.StatusInterval(), opts.table)
		return nil
	})

	err = g.Wait()
	logWallet(wallet)
	return err
}

// logWallet deja en el log el resumen de la sesión.
func logWallet(w *ledger.Memory) {
	debits, credits := w.Totals()
	slog.Info("wallet: session closed",
		"balance", w.Balance().String(),
		"staked", debits.String(),
		"paid_out", credits.String(),
		"net", credits.Sub(debits).String(),
	)
}

// startFeeds lanza las fuentes de precio configuradas.
func startFeeds(ctx context.Context, g *errgroup.Group, cfg *config.Config, sink ports.PriceSink, m *instrumentation.Metrics) {
	if cfg.Feeds.Simulate {
		sim := feed.NewSimFeed(cfg.SimStartPrices(), cfg.Feeds.SimVolatility, cfg.Feeds.SimSeed, sink)
		g.Go(func() error { return sim.Run(ctx, cfg.SimInterval()) })
		slog.Info("feed: simulated prices", "assets", cfg.Assets())
		return
	}

	if cfg.Feeds.BinanceWS.Enabled {
		w := feed.NewWSWorker(feed.NewBinanceStream(cfg.Feeds.BinanceWS.URL, cfg.Symbols(), sink, m))
		g.Go(func() error { return w.Run(ctx) })
	}
	if cfg.Feeds.CoinbaseWS.Enabled {
		w := feed.NewWSWorker(feed.NewCoinbaseStream(cfg.Feeds.CoinbaseWS.URL, cfg.Assets(), sink, m))
		g.Go(func() error { return w.Run(ctx) })
	}
	if cfg.Feeds.BinanceREST.Enabled {
		p := feed.NewRESTPoller(cfg.Feeds.BinanceREST.URL, cfg.Symbols(), sink, m)
		g.Go(func() error { return p.Run(ctx, cfg.RESTInterval()) })
	}
}

// consumeSettlements persiste y muestra cada batch. Al cancelar ctx vacía lo
// que quede en el canal.
func consumeSettlements(ctx context.Context, events <-chan domain.SettlementBatch, journal ports.SettlementJournal, n ports.Notifier) {
	handle := func(ctx context.Context, batch domain.SettlementBatch) {
		if err := journal.SaveSettlements(ctx, batch); err != nil {
			slog.Warn("journal: save failed", "err", err, "rounds", len(batch.Rounds))
		}
		if err := n.NotifySettlement(ctx, batch); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}

	for {
		select {
		case batch := <-events:
			handle(ctx, batch)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			for {
				select {
				case batch := <-events:
					handle(drainCtx, batch)
				default:
					return
				}
			}
		}
	}
}

// printStatus imprime el estado del engine cada interval.
func printStatus(ctx context.Context, eng *engine.Engine, console *notify.Console, interval time.Duration, table bool) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if table {
				console.PrintSnapshot(eng.Snapshot())
			} else {
				console.PrintStatus(eng.Snapshot())
			}
		}
	}
}
