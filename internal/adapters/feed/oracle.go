package feed

// oracle.go — último precio conocido por activo.
//
// Los workers upstream escriben en un buffer (Push) a la velocidad que llegan
// los mensajes; Flush publica el buffer a intervalos fijos. El engine solo lee
// lo publicado, así un burst de trades no le cambia el precio a mitad de tick.

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/alejandrodnm/shortsbot/internal/instrumentation"
)

const (
	DefaultFlushInterval = 250 * time.Millisecond
	DefaultStaleAfter    = 10 * time.Second

	// unrankedSource es el rango de cualquier fuente que no esté en la tabla.
	unrankedSource = 100
)

// DefaultSourceRanks ordena las fuentes por autoridad, menor es mejor.
// Binance WS y REST comparten rango: son el mismo par USDT del mismo venue.
// Coinbase cotiza contra USD y solo se usa si Binance está stale.
var DefaultSourceRanks = map[string]int{
	SourceBinance:  0,
	SourceREST:     0,
	SourceCoinbase: 1,
	SourceSim:      2,
}

// assetState es lo publicado para una fuente de un activo.
type assetState struct {
	sample     domain.PriceSample
	receivedAt time.Time // reloj local, para staleness (independiente del reloj del exchange)
}

// sources son los estados de un activo, uno por fuente.
type sources map[string]assetState

// Oracle implementa ports.PriceOracle y ports.PriceSink.
//
// Cada fuente tiene su propio slot por activo. LatestPrice devuelve la muestra
// de la fuente live de mejor rango, así apertura y cierre de una ronda salen
// del mismo venue mientras ese venue siga vivo.
type Oracle struct {
	mu        sync.RWMutex
	published map[string]sources
	buffer    map[string]sources

	ranks      map[string]int
	staleAfter time.Duration
	now        func() time.Time
	metrics    *instrumentation.Metrics
}

// Option configura un Oracle.
type Option func(*Oracle)

// WithClock reemplaza time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) { o.now = now }
}

// WithMetrics registra métricas de liveness.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *Oracle) { o.metrics = m }
}

// WithSourceRanks reemplaza DefaultSourceRanks.
func WithSourceRanks(ranks map[string]int) Option {
	return func(o *Oracle) { o.ranks = ranks }
}

// NewOracle crea un oráculo vacío. staleAfter <= 0 usa DefaultStaleAfter.
func NewOracle(staleAfter time.Duration, opts ...Option) *Oracle {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	o := &Oracle{
		published:  make(map[string]sources),
		buffer:     make(map[string]sources),
		ranks:      DefaultSourceRanks,
		staleAfter: staleAfter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Push guarda una muestra en el buffer de su fuente. Si esa fuente ya tiene
// una más nueva para el activo, se conserva la más nueva. Muestras inválidas
// se descartan.
func (o *Oracle) Push(asset string, sample domain.PriceSample) {
	if asset == "" || !sample.Valid() {
		o.metrics.RecordFeedDropped(sample.Source)
		return
	}
	received := o.now()

	o.mu.Lock()
	defer o.mu.Unlock()
	buf, ok := o.buffer[asset]
	if !ok {
		buf = make(sources)
		o.buffer[asset] = buf
	}
	prev, ok := buf[sample.Source]
	if ok && prev.sample.Timestamp.After(sample.Timestamp) {
		// más vieja que lo que ya tenemos, pero el feed sigue vivo
		prev.receivedAt = received
		buf[sample.Source] = prev
		return
	}
	buf[sample.Source] = assetState{sample: sample, receivedAt: received}
}

// Flush publica el buffer. Devuelve cuántos slots (activo, fuente) cambiaron
// de precio.
func (o *Oracle) Flush() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := 0
	for asset, buf := range o.buffer {
		pub, ok := o.published[asset]
		if !ok {
			pub = make(sources)
			o.published[asset] = pub
		}
		for src, st := range buf {
			cur, ok := pub[src]
			if ok && cur.sample.Timestamp.After(st.sample.Timestamp) {
				cur.receivedAt = st.receivedAt
				pub[src] = cur
			} else {
				pub[src] = st
				n++
			}
		}
		delete(o.buffer, asset)
	}
	return n
}

// LatestPrice devuelve la muestra publicada de la fuente autoritativa: la live
// de mejor rango, o si ninguna está live, la de mejor rango.
func (o *Oracle) LatestPrice(asset string) (domain.PriceSample, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st, _, ok := o.pick(asset, o.now())
	if !ok {
		return domain.PriceSample{}, false
	}
	return st.sample, true
}

// Status devuelve connecting si nunca llegó nada, offline si ninguna fuente
// tuvo updates dentro de staleAfter, live en otro caso.
func (o *Oracle) Status(asset string, now time.Time) domain.FeedStatus {
	o.mu.RLock()
	_, live, ok := o.pick(asset, now)
	o.mu.RUnlock()
	switch {
	case !ok:
		return domain.FeedConnecting
	case !live:
		return domain.FeedOffline
	}
	return domain.FeedLive
}

// Statuses devuelve el estado de todos los activos dados.
func (o *Oracle) Statuses(assets []string, now time.Time) map[string]domain.FeedStatus {
	out := make(map[string]domain.FeedStatus, len(assets))
	for _, a := range assets {
		out[a] = o.Status(a, now)
	}
	return out
}

// pick elige la fuente de asset en now. Requiere o.mu tomado.
func (o *Oracle) pick(asset string, now time.Time) (best assetState, live, ok bool) {
	bestRank := 0
	for src, st := range o.published[asset] {
		stLive := now.Sub(st.receivedAt) <= o.staleAfter
		rank := o.rank(src)
		better := !ok ||
			(stLive && !live) ||
			(stLive == live && rank < bestRank) ||
			(stLive == live && rank == bestRank && st.sample.Timestamp.After(best.sample.Timestamp))
		if better {
			best, live, ok, bestRank = st, stLive, true, rank
		}
	}
	return best, live, ok
}

func (o *Oracle) rank(source string) int {
	if r, ok := o.ranks[source]; ok {
		return r
	}
	return unrankedSource
}

// Run hace Flush cada interval hasta que ctx se cancele.
func (o *Oracle) Run(ctx context.Context, interval time.Duration, assets []string) error {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastStatus := make(map[string]domain.FeedStatus, len(assets))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.Flush()
			for a, st := range o.Statuses(assets, o.now()) {
				o.metrics.RecordFeedStatus(a, st == domain.FeedLive)
				if prev, ok := lastStatus[a]; ok && prev != st {
					slog.Info("feed: status changed", "asset", a, "from", prev, "to", st)
				}
				lastStatus[a] = st
			}
		}
	}
}
