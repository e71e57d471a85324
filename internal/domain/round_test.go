package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DeriveRound ---

func TestDeriveRound_AlignedToGrid(t *testing.T) {
	now := time.UnixMilli(1_700_000_071_234)
	r := DeriveRound("btc-1m", time.Minute, 0, now, nil)

	assert.Equal(t, int64(1_700_000_040_000), r.Start.UnixMilli())
	assert.Equal(t, int64(1_700_000_100_000), r.End.UnixMilli())
	assert.Equal(t, "btc-1m-1700000040000", r.ID)
	assert.Zero(t, r.Start.UnixMilli()%time.Minute.Milliseconds())
	assert.True(t, r.Lock.IsZero())
	assert.False(t, r.HasOpenPrice())
}

func TestDeriveRound_SameBucketSameID(t *testing.T) {
	a := DeriveRound("eth-5m", 5*time.Minute, 0, time.UnixMilli(1_700_000_100_000), nil)
	b := DeriveRound("eth-5m", 5*time.Minute, 0, time.UnixMilli(1_700_000_399_999), nil)
	c := DeriveRound("eth-5m", 5*time.Minute, 0, time.UnixMilli(1_700_000_400_000), nil)

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, b.ID, c.ID)
	assert.Equal(t, b.End, c.Start)
}

func TestDeriveRound_ExactBoundaryStartsNewRound(t *testing.T) {
	r := DeriveRound("k", time.Minute, 0, time.UnixMilli(120_000), nil)
	assert.Equal(t, int64(120_000), r.Start.UnixMilli())
}

func TestDeriveRound_NegativeTimeFloors(t *testing.T) {
	r := DeriveRound("k", time.Minute, 0, time.UnixMilli(-1), nil)
	assert.Equal(t, int64(-60_000), r.Start.UnixMilli())
	assert.Equal(t, "k--60000", r.ID)
}

func TestDeriveRound_CopiesOpenPrice(t *testing.T) {
	p := 100.0
	r := DeriveRound("k", time.Minute, 0, time.UnixMilli(0), &p)
	p = 200
	require.True(t, r.HasOpenPrice())
	assert.Equal(t, 100.0, *r.OpenPrice)
}

func TestDeriveRound_LockWindow(t *testing.T) {
	r := DeriveRound("k", time.Minute, 10*time.Second, time.UnixMilli(5_000), nil)
	assert.Equal(t, int64(50_000), r.Lock.UnixMilli())
	assert.Equal(t, r.Lock, r.CutoffTime())

	// una ventana >= duración no bloquea
	r = DeriveRound("k", time.Minute, time.Minute, time.UnixMilli(5_000), nil)
	assert.True(t, r.Lock.IsZero())
	assert.Equal(t, r.End, r.CutoffTime())
}

// --- Phase ---

func TestRound_Phase(t *testing.T) {
	p := 100.0
	start := time.UnixMilli(60_000)
	pending := DeriveRound("k", time.Minute, 10*time.Second, start, nil)
	open := DeriveRound("k", time.Minute, 10*time.Second, start, &p)

	assert.Equal(t, PhasePendingOpen, pending.Phase(start.Add(time.Second)))
	assert.Equal(t, PhaseOpen, open.Phase(start.Add(time.Second)))
	assert.Equal(t, PhaseLocked, open.Phase(start.Add(50*time.Second)))
	assert.Equal(t, PhaseClosed, open.Phase(start.Add(time.Minute)))
	assert.Equal(t, PhaseClosed, pending.Phase(start.Add(2*time.Minute)))
}

func TestRound_AcceptsPositions(t *testing.T) {
	p := 100.0
	start := time.UnixMilli(60_000)
	r := DeriveRound("k", time.Minute, 0, start, &p)

	assert.True(t, r.AcceptsPositions(start))
	assert.True(t, r.AcceptsPositions(start.Add(59*time.Second)))
	assert.False(t, r.AcceptsPositions(start.Add(time.Minute)))
	assert.False(t, r.AcceptsPositions(start.Add(-time.Millisecond)))

	r.OpenPrice = nil
	assert.False(t, r.AcceptsPositions(start.Add(time.Second)))
}

func TestRound_ProgressAndRemaining(t *testing.T) {
	start := time.UnixMilli(60_000)
	r := DeriveRound("k", time.Minute, 0, start, nil)

	assert.Equal(t, 0.0, r.Progress(start.Add(-time.Second)))
	assert.InDelta(t, 0.5, r.Progress(start.Add(30*time.Second)), 1e-9)
	assert.Equal(t, 1.0, r.Progress(start.Add(2*time.Minute)))

	assert.Equal(t, 45*time.Second, r.Remaining(start.Add(15*time.Second)))
	assert.Zero(t, r.Remaining(start.Add(time.Minute)))
}

func TestParseRoundID(t *testing.T) {
	key, ms, ok := ParseRoundID("btc-1m-1700000040000")
	require.True(t, ok)
	assert.Equal(t, "btc-1m", key)
	assert.Equal(t, int64(1700000040000), ms)

	key, ms, ok = ParseRoundID(DeriveRound("k", time.Minute, 0, time.UnixMilli(-1), nil).ID)
	require.True(t, ok)
	assert.Equal(t, "k", key)
	assert.Equal(t, int64(-60000), ms)

	for _, bad := range []string{"", "nodash", "-123", "k-", "k-abc"} {
		_, _, ok := ParseRoundID(bad)
		assert.False(t, ok, bad)
	}
}
