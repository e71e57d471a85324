package engine

import (
	"log/slog"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/domain"
)

// advanceMarket aplica rollover o captura del precio de apertura a un mercado.
// Un panic deja el estado anterior del mercado intacto y no afecta al resto.
func (e *Engine) advanceMarket(ms *marketState, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: market fault", "market", ms.market.Key, "round", ms.round.ID, "panic", r)
			e.metrics.RecordFault(ms.market.Key)
		}
	}()

	next, ended := e.nextRound(ms, now)

	// commit: nada de lo anterior tocó ms
	if ended != nil {
		e.enqueue(*ended)
		ms.book.Reset(next.ID)
		ms.prob = 0.5
		ms.quote = domain.FairQuote()
		e.metrics.RecordRoundOpened(ms.market.Key)
		slog.Debug("engine: round rolled over", "market", ms.market.Key, "prev", ended.RoundID, "round", next.ID)
	} else if next.HasOpenPrice() && !ms.round.HasOpenPrice() {
		e.metrics.RecordOpenPrice(ms.market.Key)
		slog.Debug("engine: open price captured", "market", ms.market.Key, "round", next.ID, "price", *next.OpenPrice)
	}
	ms.round = next
}

// nextRound calcula el siguiente estado de la ronda sin mutar nada. Si la
// ronda cambió devuelve además la anterior como pendiente de liquidar.
func (e *Engine) nextRound(ms *marketState, now time.Time) (domain.Round, *domain.PendingSettlement) {
	cur := ms.round
	m := ms.market
	derived := domain.DeriveRound(m.Key, m.Duration, e.cfg.LockWindow, now, nil)

	if derived.ID != cur.ID {
		if derived.Start.Before(cur.Start) {
			// reloj hacia atrás: nunca reabrimos una ronda anterior
			return cur, nil
		}
		return derived, &domain.PendingSettlement{
			RoundID:   cur.ID,
			MarketKey: m.Key,
			Asset:     m.Asset,
			RoundEnd:  cur.End,
			QueuedAt:  now,
		}
	}

	if cur.HasOpenPrice() || e.oracle.Status(m.Asset, now) != domain.FeedLive {
		return cur, nil
	}
	sample, ok := e.oracle.LatestPrice(m.Asset)
	// una muestra anterior a Start es de la ronda previa
	if !ok || !sample.Valid() || sample.Timestamp.Before(cur.Start) {
		return cur, nil
	}
	price := sample.Price
	cur.OpenPrice = &price
	return cur, nil
}

// refreshQuotes recalcula probabilidad y quote de cada mercado para la UI
// y para los bots del próximo tick.
func (e *Engine) refreshQuotes(now time.Time) {
	for _, ms := range e.markets {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("engine: quote fault", "market", ms.market.Key, "panic", r)
					e.metrics.RecordFault(ms.market.Key)
				}
			}()
			prob, quote := e.currentQuote(ms, now)
			ms.prob, ms.quote = prob, quote
		}()
	}
}

// currentQuote devuelve la probabilidad up y el quote del book para ms en now.
func (e *Engine) currentQuote(ms *marketState, now time.Time) (float64, domain.Quote) {
	prob := 0.5
	if ms.round.HasOpenPrice() {
		if sample, ok := e.oracle.LatestPrice(ms.market.Asset); ok {
			prob = domain.UpProbability(e.cfg.Quote, *ms.round.OpenPrice, sample.Price,
				ms.round.Progress(now), ms.round.Duration(), 0)
		}
	}
	return prob, domain.BookQuote(e.cfg.Quote, prob, ms.book.UpStake, ms.book.DownStake)
}
