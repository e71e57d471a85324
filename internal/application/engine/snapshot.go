package engine

import (
	"sort"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/shopspring/decimal"
)

// activityShown es cuántas entradas de actividad lleva cada snapshot.
const activityShown = 20

// MarketSnapshot is the display state of one market.
type MarketSnapshot struct {
	Market      domain.Market
	Round       domain.Round
	Phase       domain.RoundPhase
	Progress    float64
	Remaining   time.Duration
	LatestPrice float64
	HasPrice    bool
	Feed        domain.FeedStatus
	Probability float64
	Quote       domain.Quote
	Book        domain.MarketBook
	Activity    []domain.Activity // newest first
}

// Snapshot is an immutable view of the engine. Safe to share across goroutines.
type Snapshot struct {
	At      time.Time
	Markets []MarketSnapshot
	Open    []domain.OpenPosition    // por RoundEnd ascendente
	Settled []domain.SettledPosition // newest first
	Pending []domain.PendingSettlement
	Recent  []string // rondas liquidadas, newest first
	Balance decimal.Decimal
	Feeds   map[string]domain.FeedStatus
	Stakes  []decimal.Decimal
}

// Market returns the snapshot of the given market.
func (s *Snapshot) Market(key string) (MarketSnapshot, bool) {
	for _, m := range s.Markets {
		if m.Market.Key == key {
			return m, true
		}
	}
	return MarketSnapshot{}, false
}

// PhaseOf classifies any round id the engine still knows about.
func (s *Snapshot) PhaseOf(roundID string) (domain.RoundPhase, bool) {
	for _, m := range s.Markets {
		if m.Round.ID == roundID {
			return m.Phase, true
		}
	}
	for _, p := range s.Pending {
		if p.RoundID == roundID {
			return domain.PhaseSettling, true
		}
	}
	for _, id := range s.Recent {
		if id == roundID {
			return domain.PhaseSettled, true
		}
	}
	return "", false
}

// OpenStake returns the sum of all open stakes.
func (s *Snapshot) OpenStake() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Open {
		total = total.Add(p.Stake)
	}
	return total
}

// publish construye y publica el snapshot de now.
func (e *Engine) publish(now time.Time) {
	snap := &Snapshot{
		At:      now,
		Markets: make([]MarketSnapshot, 0, len(e.markets)),
		Open:    append([]domain.OpenPosition(nil), e.open...),
		Settled: append([]domain.SettledPosition(nil), e.settled...),
		Pending: append([]domain.PendingSettlement(nil), e.pending...),
		Recent:  e.recent.List(),
		Balance: e.ledger.Balance(),
		Feeds:   make(map[string]domain.FeedStatus),
		Stakes:  append([]decimal.Decimal(nil), e.cfg.StakeSizes...),
	}
	sort.SliceStable(snap.Open, func(i, j int) bool {
		return snap.Open[i].RoundEnd.Before(snap.Open[j].RoundEnd)
	})

	for _, ms := range e.markets {
		m := e.marketSnapshot(ms, now)
		snap.Feeds[ms.market.Asset] = m.Feed
		snap.Markets = append(snap.Markets, m)
	}
	e.snap.Store(snap)
}

// marketSnapshot lee el oráculo; si falla, el mercado sale sin precio.
func (e *Engine) marketSnapshot(ms *marketState, now time.Time) (m MarketSnapshot) {
	m = MarketSnapshot{
		Market:      ms.market,
		Round:       ms.round,
		Phase:       ms.round.Phase(now),
		Progress:    ms.round.Progress(now),
		Remaining:   ms.round.Remaining(now),
		Feed:        domain.FeedConnecting,
		Probability: ms.prob,
		Quote:       ms.quote,
		Book:        ms.book.Clone(),
		Activity:    ms.book.Recent(activityShown),
	}
	defer func() {
		if r := recover(); r != nil {
			m.Feed, m.LatestPrice, m.HasPrice = domain.FeedOffline, 0, false
		}
	}()
	m.Feed = e.oracle.Status(ms.market.Asset, now)
	if sample, ok := e.oracle.LatestPrice(ms.market.Asset); ok {
		m.LatestPrice, m.HasPrice = sample.Price, true
	}
	return m
}
