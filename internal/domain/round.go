package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RoundPhase es el estado de una ronda en su ciclo de vida.
type RoundPhase string

const (
	PhasePendingOpen RoundPhase = "PENDING_OPEN" // creada, sin precio de apertura
	PhaseOpen        RoundPhase = "OPEN"
	PhaseLocked      RoundPhase = "LOCKED" // dentro de la ventana de bloqueo
	PhaseClosed      RoundPhase = "CLOSED" // terminó, todavía sin liquidar
	PhaseSettling    RoundPhase = "SETTLING"
	PhaseSettled     RoundPhase = "SETTLED"
)

// Round es una ventana de apuestas de duración fija para un mercado.
// La identidad es {MarketKey, Start}; el resto se deriva.
type Round struct {
	ID        string
	MarketKey string
	Start     time.Time
	End       time.Time
	Lock      time.Time // cero si el mercado no bloquea apuestas antes del final
	OpenPrice *float64  // nil hasta el primer precio live tras Start
}

// DeriveRound calcula la ronda canónica vigente en now.
//
// Start se alinea a una rejilla global múltiplo de duration desde el epoch, no
// al momento en que arrancó el proceso: dos clientes con el mismo reloj derivan
// el mismo ID sin coordinarse. Es una función pura.
func DeriveRound(marketKey string, duration, lockWindow time.Duration, now time.Time, openPrice *float64) Round {
	durMs := duration.Milliseconds()
	if durMs <= 0 {
		durMs = 1
	}
	nowMs := now.UnixMilli()
	startMs := floorDiv(nowMs, durMs) * durMs

	start := time.UnixMilli(startMs).UTC()
	end := start.Add(time.Duration(durMs) * time.Millisecond)

	r := Round{
		ID:        RoundID(marketKey, startMs),
		MarketKey: marketKey,
		Start:     start,
		End:       end,
	}
	if lockWindow > 0 && lockWindow < end.Sub(start) {
		r.Lock = end.Add(-lockWindow)
	}
	if openPrice != nil {
		p := *openPrice
		r.OpenPrice = &p
	}
	return r
}

// RoundID construye el ID determinista "{marketKey}-{startMillis}".
func RoundID(marketKey string, startMillis int64) string {
	return fmt.Sprintf("%s-%d", marketKey, startMillis)
}

// HasOpenPrice indica si la ronda ya capturó su precio de apertura.
func (r Round) HasOpenPrice() bool {
	return r.OpenPrice != nil
}

// Duration devuelve End - Start.
func (r Round) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// CutoffTime es el instante a partir del cual no se aceptan posiciones:
// Lock si el mercado bloquea, End en caso contrario.
func (r Round) CutoffTime() time.Time {
	if !r.Lock.IsZero() {
		return r.Lock
	}
	return r.End
}

// AcceptsPositions indica si en now se pueden abrir posiciones contra la ronda.
func (r Round) AcceptsPositions(now time.Time) bool {
	return r.HasOpenPrice() && !now.Before(r.Start) && now.Before(r.CutoffTime())
}

// Progress devuelve la fracción transcurrida de la ronda, acotada a [0,1].
func (r Round) Progress(now time.Time) float64 {
	d := r.Duration()
	if d <= 0 {
		return 1
	}
	p := float64(now.Sub(r.Start)) / float64(d)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Remaining devuelve el tiempo hasta End (cero si ya pasó).
func (r Round) Remaining(now time.Time) time.Duration {
	if !now.Before(r.End) {
		return 0
	}
	return r.End.Sub(now)
}

// Phase clasifica la ronda según el reloj. SETTLING y SETTLED los asigna el
// engine, que es quien conoce la cola de liquidación.
func (r Round) Phase(now time.Time) RoundPhase {
	switch {
	case !now.Before(r.End):
		return PhaseClosed
	case !r.HasOpenPrice():
		return PhasePendingOpen
	case !r.Lock.IsZero() && !now.Before(r.Lock):
		return PhaseLocked
	default:
		return PhaseOpen
	}
}

// floorDiv es la división entera con redondeo hacia -inf.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// ParseRoundID separa un ID "{marketKey}-{startMillis}" en sus partes.
func ParseRoundID(id string) (marketKey string, startMillis int64, ok bool) {
	i := strings.LastIndexByte(id, '-')
	if i <= 0 || i == len(id)-1 {
		return "", 0, false
	}
	key, num := id[:i], id[i+1:]
	if strings.HasSuffix(key, "-") {
		// start negativo: "{key}--{ms}"
		key, num = key[:len(key)-1], "-"+num
	}
	ms, err := strconv.ParseInt(num, 10, 64)
	if err != nil || key == "" {
		return "", 0, false
	}
	return key, ms, true
}
