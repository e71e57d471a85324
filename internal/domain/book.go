package domain

import "time"

// DefaultActivityCap es el máximo de entradas de actividad por book.
const DefaultActivityCap = 50

// Activity es una entrada del feed de actividad de una ronda.
type Activity struct {
	Side   Direction
	Amount float64
	Quote  float64
	At     time.Time
	Trader string
	IsSelf bool // true si la puso el usuario, false si es un bot
}

// MarketBook agrega el stake de una ronda de un mercado.
// Solo alimenta el quote y la UI: nunca se consulta para mover dinero.
type MarketBook struct {
	RoundID   string
	UpStake   float64
	DownStake float64
	UpCount   int
	DownCount int

	activity    []Activity // orden de llegada, el más antiguo primero
	activityCap int
}

// NewMarketBook crea un book vacío para la ronda dada.
func NewMarketBook(roundID string, activityCap int) *MarketBook {
	if activityCap <= 0 {
		activityCap = DefaultActivityCap
	}
	return &MarketBook{
		RoundID:     roundID,
		activity:    make([]Activity, 0, activityCap),
		activityCap: activityCap,
	}
}

// Reset vacía el book y lo asocia a una nueva ronda.
func (b *MarketBook) Reset(roundID string) {
	b.RoundID = roundID
	b.UpStake, b.DownStake = 0, 0
	b.UpCount, b.DownCount = 0, 0
	b.activity = b.activity[:0]
}

// Record suma una entrada al book y al log de actividad (acotado).
func (b *MarketBook) Record(a Activity) {
	if a.Amount <= 0 {
		return
	}
	switch a.Side {
	case DirectionUp:
		b.UpStake += a.Amount
		b.UpCount++
	case DirectionDown:
		b.DownStake += a.Amount
		b.DownCount++
	default:
		return
	}
	if len(b.activity) >= b.activityCap {
		n := copy(b.activity, b.activity[len(b.activity)-b.activityCap+1:])
		b.activity = b.activity[:n]
	}
	b.activity = append(b.activity, a)
}

// Recent devuelve hasta n entradas, la más reciente primero.
// n <= 0 devuelve todas.
func (b *MarketBook) Recent(n int) []Activity {
	if n <= 0 || n > len(b.activity) {
		n = len(b.activity)
	}
	out := make([]Activity, 0, n)
	for i := len(b.activity) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, b.activity[i])
	}
	return out
}

// ActivityLen devuelve cuántas entradas hay en el log.
func (b *MarketBook) ActivityLen() int {
	return len(b.activity)
}

// TotalStake devuelve up + down.
func (b *MarketBook) TotalStake() float64 {
	return b.UpStake + b.DownStake
}

// Imbalance devuelve (up - down) / total en [-1, 1]; 0 si el book está vacío.
func (b *MarketBook) Imbalance() float64 {
	total := b.TotalStake()
	if total == 0 {
		return 0
	}
	return (b.UpStake - b.DownStake) / total
}

// Clone devuelve una copia independiente, para snapshots.
func (b *MarketBook) Clone() MarketBook {
	c := *b
	c.activity = append([]Activity(nil), b.activity...)
	return c
}
