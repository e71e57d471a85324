package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// --- UpProbability ---

func TestUpProbability_DegenerateInputs(t *testing.T) {
	p := DefaultQuoteParams()
	assert.Equal(t, 0.5, UpProbability(p, 0, 100, 0.5, time.Minute, 0))
	assert.Equal(t, 0.5, UpProbability(p, -1, 100, 0.5, time.Minute, 0))
	assert.Equal(t, 0.5, UpProbability(p, 100, 0, 0.5, time.Minute, 0))
	assert.Equal(t, 0.5, UpProbability(p, math.NaN(), 100, 0.5, time.Minute, 0))
	assert.Equal(t, 0.5, UpProbability(p, 100, 100, math.NaN(), time.Minute, 0))
}

func TestUpProbability_NoMoveIsFair(t *testing.T) {
	p := DefaultQuoteParams()
	assert.InDelta(t, 0.5, UpProbability(p, 100, 100, 0.3, time.Minute, 0), 1e-12)
}

func TestUpProbability_Direction(t *testing.T) {
	p := DefaultQuoteParams()
	up := UpProbability(p, 100, 100.01, 0.2, time.Minute, 0)
	down := UpProbability(p, 100, 99.99, 0.2, time.Minute, 0)
	assert.Greater(t, up, 0.5)
	assert.Less(t, down, 0.5)
	assert.InDelta(t, 1-up, down, 1e-9)
}

func TestUpProbability_UrgencyGrowsWithProgress(t *testing.T) {
	p := DefaultQuoteParams()
	early := UpProbability(p, 100, 100.01, 0.1, time.Hour, 0)
	late := UpProbability(p, 100, 100.01, 0.9, time.Hour, 0)
	assert.Greater(t, late, early)
}

func TestUpProbability_ClampedToBaseBounds(t *testing.T) {
	p := DefaultQuoteParams()
	assert.Equal(t, 0.8, UpProbability(p, 100, 150, 0.1, time.Hour, 0))
	assert.Equal(t, 0.2, UpProbability(p, 100, 50, 0.1, time.Hour, 0))
}

func TestUpProbability_ReleaseWindowWidensBounds(t *testing.T) {
	p := DefaultQuoteParams()
	// al final de la ronda la ventana llega a [0.15, 0.85]
	assert.InDelta(t, 0.85, UpProbability(p, 100, 150, 1, time.Minute, 0), 1e-9)
	assert.InDelta(t, 0.15, UpProbability(p, 100, 50, 1, time.Minute, 0), 1e-9)
}

func TestUpProbability_Deterministic(t *testing.T) {
	p := DefaultQuoteParams()
	a := UpProbability(p, 64000, 64010, 0.42, time.Minute, 0.01)
	b := UpProbability(p, 64000, 64010, 0.42, time.Minute, 0.01)
	assert.Equal(t, a, b)
}

func TestUpProbability_AlwaysBounded(t *testing.T) {
	p := DefaultQuoteParams()
	for _, latest := range []float64{1, 50, 99.9, 100, 100.1, 200, 1e9} {
		for _, prog := range []float64{-1, 0, 0.25, 0.5, 0.9, 1, 2} {
			for _, noise := range []float64{-1, 0, 1} {
				v := UpProbability(p, 100, latest, prog, time.Minute, noise)
				assert.GreaterOrEqual(t, v, 0.15)
				assert.LessOrEqual(t, v, 0.85)
			}
		}
	}
}

// --- ProbabilityBounds ---

func TestProbabilityBounds(t *testing.T) {
	p := DefaultQuoteParams()

	lo, hi := ProbabilityBounds(p, 0.5, time.Minute) // quedan 30s > 15s
	assert.Equal(t, 0.2, lo)
	assert.Equal(t, 0.8, hi)

	lo, hi = ProbabilityBounds(p, 1, time.Minute)
	assert.InDelta(t, 0.15, lo, 1e-9)
	assert.InDelta(t, 0.85, hi, 1e-9)

	// mitad de la ventana: eased = 0.5^2
	lo, hi = ProbabilityBounds(p, 52.5/60, time.Minute)
	assert.InDelta(t, 0.2-0.05*0.25, lo, 1e-9)
	assert.InDelta(t, 0.8+0.05*0.25, hi, 1e-9)

	p.ReleaseWindow = 0
	lo, hi = ProbabilityBounds(p, 1, time.Minute)
	assert.Equal(t, 0.2, lo)
	assert.Equal(t, 0.8, hi)
}

// --- BookQuote ---

func TestBookQuote_EmptyBookFollowsProbability(t *testing.T) {
	p := DefaultQuoteParams()
	q := BookQuote(p, 0.63, 0, 0)
	assert.Equal(t, 63, q.UpCents)
	assert.Equal(t, 37, q.DownCents)
	assert.InDelta(t, 1, q.Up+q.Down, 1e-12)
}

func TestBookQuote_ImbalanceMovesQuote(t *testing.T) {
	p := DefaultQuoteParams()
	q := BookQuote(p, 0.5, 500, 0)
	// (500 + 250) / 1000
	assert.Equal(t, 75, q.UpCents)
	assert.Equal(t, 0.75, q.Side(DirectionUp))
	assert.Equal(t, 0.25, q.Side(DirectionDown))
}

func TestBookQuote_ClampedToMinCents(t *testing.T) {
	p := DefaultQuoteParams()
	q := BookQuote(p, 0.85, 1e9, 0)
	assert.Equal(t, 95, q.UpCents)
	assert.Equal(t, 5, q.DownCents)

	q = BookQuote(p, 0.15, 0, 1e9)
	assert.Equal(t, 5, q.UpCents)
}

func TestBookQuote_SumsToOne(t *testing.T) {
	p := DefaultQuoteParams()
	for _, prob := range []float64{math.NaN(), 0, 0.123, 0.5, 0.777, 1} {
		for _, up := range []float64{-10, 0, 33, 1000} {
			q := BookQuote(p, prob, up, 250)
			assert.Equal(t, 100, q.UpCents+q.DownCents)
			assert.GreaterOrEqual(t, q.UpCents, p.MinCents)
			assert.LessOrEqual(t, q.UpCents, 100-p.MinCents)
		}
	}
}

func TestFairQuote(t *testing.T) {
	q := FairQuote()
	assert.Equal(t, 50, q.UpCents)
	assert.Equal(t, 0.5, q.Down)
}
