package domain

// quote.go — probabilidad implícita de cada lado de una ronda.
//
// El precio de cada lado depende solo de (open, latest, progreso, book); no
// tiene estado. Lo usan tanto el pricing real como la simulación de bots, y
// ambos tienen que ver el mismo mercado.

import (
	"math"
	"time"
)

// QuoteParams son las constantes de configuración del quote engine.
type QuoteParams struct {
	Sensitivity float64 // escala del cambio porcentual open→latest
	UrgencyMin  float64 // multiplicador al inicio de la ronda
	UrgencyMax  float64 // multiplicador al final de la ronda
	UrgencyExp  float64 // curvatura del crecimiento de urgencia con el progreso

	BaseMin float64 // cota inferior fuera de la ventana de release
	BaseMax float64 // cota superior fuera de la ventana de release
	// ReleaseMin/ReleaseMax son las cotas al vencimiento. Dentro de
	// ReleaseWindow antes del final la ventana se abre de Base* a Release*.
	ReleaseMin    float64
	ReleaseMax    float64
	ReleaseWindow time.Duration
	RampExp       float64

	VirtualLiquidity float64 // stake virtual que ancla el book a la probabilidad
	MinCents         int     // el quote nunca baja de MinCents ni sube de 100-MinCents
}

// DefaultQuoteParams devuelve los valores usados en producción.
func DefaultQuoteParams() QuoteParams {
	return QuoteParams{
		Sensitivity:      8,
		UrgencyMin:       1,
		UrgencyMax:       3,
		UrgencyExp:       2,
		BaseMin:          0.20,
		BaseMax:          0.80,
		ReleaseMin:       0.15,
		ReleaseMax:       0.85,
		ReleaseWindow:    15 * time.Second,
		RampExp:          2,
		VirtualLiquidity: 500,
		MinCents:         5,
	}
}

// Quote es el precio (0–1) de cada lado. Up + Down == 1.
type Quote struct {
	Up        float64
	Down      float64
	UpCents   int
	DownCents int
}

// Side devuelve el precio del lado dado.
func (q Quote) Side(d Direction) float64 {
	if d == DirectionDown {
		return q.Down
	}
	return q.Up
}

// FairQuote es el quote 50/50 que se muestra cuando no hay datos.
func FairQuote() Quote {
	return Quote{Up: 0.5, Down: 0.5, UpCents: 50, DownCents: 50}
}

// UpProbability devuelve la probabilidad de que la ronda termine por encima
// del precio de apertura. Entradas degeneradas (sin precio, open <= 0) dan
// exactamente 0.5.
func UpProbability(p QuoteParams, openPrice, latestPrice, progress float64, duration time.Duration, noise float64) float64 {
	if !validPrice(openPrice) || !validPrice(latestPrice) || math.IsNaN(progress) {
		return 0.5
	}
	progress = clamp(progress, 0, 1)

	pct := (latestPrice - openPrice) / openPrice * 100
	urgency := p.UrgencyMin + (p.UrgencyMax-p.UrgencyMin)*math.Pow(progress, p.UrgencyExp)
	prob := logistic(pct*p.Sensitivity*urgency) + noise
	if math.IsNaN(prob) {
		return 0.5
	}

	lo, hi := ProbabilityBounds(p, progress, duration)
	return clamp(prob, lo, hi)
}

// ProbabilityBounds devuelve la ventana [lo, hi] permitida para un progreso
// dado. Fuera de la ventana de release es [BaseMin, BaseMax]; dentro se abre
// hacia [ReleaseMin, ReleaseMax] con una rampa t^RampExp.
func ProbabilityBounds(p QuoteParams, progress float64, duration time.Duration) (lo, hi float64) {
	lo, hi = p.BaseMin, p.BaseMax
	if p.ReleaseWindow <= 0 || duration <= 0 {
		return lo, hi
	}
	remaining := time.Duration((1 - clamp(progress, 0, 1)) * float64(duration))
	if remaining >= p.ReleaseWindow {
		return lo, hi
	}
	t := 1 - float64(remaining)/float64(p.ReleaseWindow)
	eased := math.Pow(clamp(t, 0, 1), p.RampExp)
	lo = p.BaseMin - (p.BaseMin-p.ReleaseMin)*eased
	hi = p.BaseMax + (p.ReleaseMax-p.BaseMax)*eased
	return lo, hi
}

// BookQuote mezcla la probabilidad con el desequilibrio del book usando
// liquidez virtual y la convierte a centavos enteros.
func BookQuote(p QuoteParams, prob, upStake, downStake float64) Quote {
	if math.IsNaN(prob) {
		prob = 0.5
	}
	upStake = math.Max(upStake, 0)
	downStake = math.Max(downStake, 0)

	blended := prob
	if denom := upStake + downStake + p.VirtualLiquidity; denom > 0 {
		blended = (upStake + p.VirtualLiquidity*prob) / denom
	}

	minCents := p.MinCents
	if minCents < 1 {
		minCents = 1
	}
	if minCents > 49 {
		minCents = 49
	}
	upCents := int(math.Round(blended * 100))
	if upCents < minCents {
		upCents = minCents
	}
	if upCents > 100-minCents {
		upCents = 100 - minCents
	}
	downCents := 100 - upCents
	return Quote{
		Up:        float64(upCents) / 100,
		Down:      float64(downCents) / 100,
		UpCents:   upCents,
		DownCents: downCents,
	}
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
