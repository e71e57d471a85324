package engine

import (
	"log/slog"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/shopspring/decimal"
)

// readyRound es una ronda pendiente que ya tiene precio de cierre.
type readyRound struct {
	domain.PendingSettlement
	SettlePrice float64
}

// enqueue añade una ronda terminada a la cola, deduplicando por id.
// Rondas ya liquidadas se ignoran.
func (e *Engine) enqueue(p domain.PendingSettlement) bool {
	if p.RoundID == "" || e.pendingIDs[p.RoundID] || e.recent.Has(p.RoundID) {
		return false
	}
	e.pending = append(e.pending, p)
	e.pendingIDs[p.RoundID] = true
	return true
}

// sweepOrphans encola las rondas terminadas que todavía tienen posiciones
// abiertas y no están en la cola. Pasa si un fallo de mercado cortó el
// rollover.
func (e *Engine) sweepOrphans(now time.Time) {
	for _, pos := range e.open {
		if now.Before(pos.RoundEnd) || e.pendingIDs[pos.RoundID] {
			continue
		}
		// saltamos recent: quedan posiciones abiertas y liquidar es idempotente
		e.pending = append(e.pending, domain.PendingSettlement{
			RoundID:   pos.RoundID,
			MarketKey: pos.MarketKey,
			Asset:     pos.Asset,
			RoundEnd:  pos.RoundEnd,
			QueuedAt:  now,
		})
		e.pendingIDs[pos.RoundID] = true
		slog.Warn("engine: orphan round queued", "round", pos.RoundID, "market", pos.MarketKey)
	}
}

// drainPending separa las rondas que ya tienen un precio con timestamp en o
// después de su final. El resto queda en cola para el próximo tick.
func (e *Engine) drainPending(now time.Time) []readyRound {
	if len(e.pending) == 0 {
		return nil
	}
	var ready []readyRound
	keep := make([]domain.PendingSettlement, 0, len(e.pending))
	for _, p := range e.pending {
		price, ok := e.closePrice(p)
		if !ok {
			keep = append(keep, p)
			continue
		}
		ready = append(ready, readyRound{PendingSettlement: p, SettlePrice: price})
		delete(e.pendingIDs, p.RoundID)
	}
	e.pending = keep
	return ready
}

// closePrice busca el precio de cierre de p. El status del feed no importa:
// un feed offline bloquea posiciones nuevas, no la liquidación.
func (e *Engine) closePrice(p domain.PendingSettlement) (price float64, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("engine: close price fault", "round", p.RoundID, "panic", r)
			e.metrics.RecordFault(p.MarketKey)
			price, ok = 0, false
		}
	}()
	sample, found := e.oracle.LatestPrice(p.Asset)
	if !found || !sample.Valid() || sample.Timestamp.Before(p.RoundEnd) {
		return 0, false
	}
	return sample.Price, true
}

// settle liquida todas las posiciones abiertas de las rondas listas y aplica
// el payout agregado al ledger con un único Credit.
func (e *Engine) settle(ready []readyRound, now time.Time) domain.SettlementBatch {
	batch := domain.SettlementBatch{
		At:     now,
		Rounds: make(map[string]float64, len(ready)),
	}
	prices := make(map[string]float64, len(ready))
	for _, r := range ready {
		prices[r.RoundID] = r.SettlePrice
		batch.Rounds[r.RoundID] = r.SettlePrice
	}

	credit := decimal.Zero
	remaining := make([]domain.OpenPosition, 0, len(e.open))
	for _, pos := range e.open {
		price, ok := prices[pos.RoundID]
		if !ok {
			remaining = append(remaining, pos)
			continue
		}
		sp := domain.Settle(pos, price, e.cfg.Payout, e.cfg.PushEpsilon, now)
		credit = credit.Add(sp.Payout)
		batch.Positions = append(batch.Positions, sp)
	}

	if credit.IsPositive() {
		e.ledger.Credit(credit)
	}
	e.open = remaining
	batch.Credit = credit
	batch.Balance = e.ledger.Balance()

	for _, r := range ready {
		e.recent.Add(r.RoundID)
	}
	e.prependSettled(batch.Positions)

	for _, sp := range batch.Positions {
		e.metrics.RecordSettled(sp.MarketKey, string(sp.Outcome))
	}
	if len(batch.Positions) > 0 {
		slog.Info("engine: settled",
			"rounds", len(batch.Rounds),
			"positions", len(batch.Positions),
			"wins", batch.Wins(),
			"credit", credit.StringFixed(domain.MoneyPlaces),
			"balance", batch.Balance.StringFixed(domain.MoneyPlaces),
		)
	}
	e.emit(batch)
	return batch
}

// prependSettled pone el batch al principio (newest first) y recorta la cola.
func (e *Engine) prependSettled(batch []domain.SettledPosition) {
	if len(batch) == 0 {
		return
	}
	out := make([]domain.SettledPosition, 0, len(batch)+len(e.settled))
	for i := len(batch) - 1; i >= 0; i-- {
		out = append(out, batch[i])
	}
	out = append(out, e.settled...)
	if len(out) > e.cfg.SettledRetention {
		out = out[:e.cfg.SettledRetention]
	}
	e.settled = out
}

// recentSet es un conjunto acotado de ids; al llenarse olvida el más viejo.
type recentSet struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newRecentSet(capacity int) *recentSet {
	return &recentSet{
		ids:  make(map[string]struct{}, capacity),
		ring: make([]string, capacity),
	}
}

func (s *recentSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *recentSet) Add(id string) {
	if s.Has(id) {
		return
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.ids, old)
	}
	s.ring[s.next] = id
	s.ids[id] = struct{}{}
	s.next = (s.next + 1) % len(s.ring)
}

func (s *recentSet) Len() int {
	return len(s.ids)
}

// List devuelve los ids, el más reciente primero.
func (s *recentSet) List() []string {
	out := make([]string, 0, len(s.ids))
	for i := 1; i <= len(s.ring); i++ {
		id := s.ring[(s.next-i+len(s.ring))%len(s.ring)]
		if id == "" {
			break
		}
		out = append(out, id)
	}
	return out
}
