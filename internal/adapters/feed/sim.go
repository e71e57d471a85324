package feed

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/domain"
	"github.com/alejandrodnm/shortsbot/internal/ports"
)

// SimFeed genera un random walk por activo. Sirve para correr sin red.
type SimFeed struct {
	prices     map[string]float64
	volatility float64 // desviación por paso, fracción del precio
	rng        *rand.Rand
	sink       ports.PriceSink
	now        func() time.Time
}

// NewSimFeed crea el feed con los precios iniciales dados.
func NewSimFeed(start map[string]float64, volatility float64, seed uint64, sink ports.PriceSink) *SimFeed {
	prices := make(map[string]float64, len(start))
	for a, p := range start {
		if p <= 0 {
			p = 100
		}
		prices[a] = p
	}
	if volatility <= 0 {
		volatility = 0.0005
	}
	return &SimFeed{
		prices:     prices,
		volatility: volatility,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		sink:       sink,
		now:        time.Now,
	}
}

// Step avanza un paso todos los activos y los empuja al sink.
func (s *SimFeed) Step() {
	now := s.now()
	for asset, p := range s.prices {
		p *= math.Exp(s.rng.NormFloat64() * s.volatility)
		p = math.Round(p*100) / 100
		if p <= 0 {
			p = 0.01
		}
		s.prices[asset] = p
		s.sink.Push(asset, domain.PriceSample{Price: p, Timestamp: now, Source: SourceSim})
	}
}

// Run llama a Step cada interval hasta que ctx se cancele.
func (s *SimFeed) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Step()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Step()
		}
	}
}
