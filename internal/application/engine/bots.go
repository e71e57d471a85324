package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/domain"
)

// BotConfig controla la simulación de otros traders. Solo afecta al book
// mostrado y al quote, nunca al balance del usuario.
type BotConfig struct {
	Enabled    bool
	MaxPerTick int       // máximo de bots que apuestan por mercado y tick
	Sizes      []float64 // tamaños posibles de stake
	Weights    []float64 // peso de cada tamaño; los pequeños pesan más
	Noise      float64   // desviación del sesgo de cada bot respecto al quote
	LateBoost  float64   // cuánto suben los tamaños grandes al final de la ronda
}

func (c BotConfig) withDefaults() BotConfig {
	if c.MaxPerTick <= 0 {
		c.MaxPerTick = 2
	}
	if len(c.Sizes) == 0 {
		c.Sizes = []float64{1, 5, 10, 25, 50, 100}
	}
	if len(c.Weights) != len(c.Sizes) {
		c.Weights = make([]float64, len(c.Sizes))
		for i := range c.Sizes {
			c.Weights[i] = 1 / float64(i+1)
		}
	}
	if c.Noise <= 0 {
		c.Noise = 0.1
	}
	if c.LateBoost < 0 {
		c.LateBoost = 0
	}
	return c
}

// simulateBots añade actividad sintética a los mercados abiertos.
func (e *Engine) simulateBots(now time.Time) {
	if !e.cfg.Bots.Enabled {
		return
	}
	for _, ms := range e.markets {
		if ms.round.Phase(now) != domain.PhaseOpen {
			continue
		}
		n := e.rng.IntN(e.cfg.Bots.MaxPerTick + 1)
		progress := ms.round.Progress(now)
		for i := 0; i < n; i++ {
			side := e.botSide(ms.quote.Up)
			ms.book.Record(domain.Activity{
				Side:   side,
				Amount: e.botSize(progress),
				Quote:  ms.quote.Side(side),
				At:     now,
				Trader: fmt.Sprintf("bot-%04d", e.rng.IntN(10000)),
			})
		}
	}
}

// botSide elige lado con sesgo hacia el favorito más ruido por bot.
func (e *Engine) botSide(upQuote float64) domain.Direction {
	bias := upQuote + e.rng.NormFloat64()*e.cfg.Bots.Noise
	bias = math.Min(math.Max(bias, 0.05), 0.95)
	if e.rng.Float64() < bias {
		return domain.DirectionUp
	}
	return domain.DirectionDown
}

// botSize elige un tamaño ponderado. Con el progreso los tamaños grandes
// ganan peso.
func (e *Engine) botSize(progress float64) float64 {
	sizes, weights := e.cfg.Bots.Sizes, e.cfg.Bots.Weights
	adj := make([]float64, len(weights))
	total := 0.0
	for i, w := range weights {
		rank := float64(i) / float64(max(len(weights)-1, 1))
		adj[i] = w * (1 + e.cfg.Bots.LateBoost*progress*rank)
		total += adj[i]
	}
	if total <= 0 {
		return sizes[0]
	}
	r := e.rng.Float64() * total
	for i, w := range adj {
		if r < w {
			return sizes[i]
		}
		r -= w
	}
	return sizes[len(sizes)-1]
}
