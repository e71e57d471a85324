package domain

import "time"

// FeedStatus es el estado de liveness del oráculo para un activo.
type FeedStatus string

const (
	FeedConnecting FeedStatus = "connecting" // todavía no llegó ningún precio
	FeedLive       FeedStatus = "live"
	FeedOffline    FeedStatus = "offline" // sin updates dentro de la ventana de staleness
)

// PriceSample es lo único que el engine ve de un feed upstream.
type PriceSample struct {
	Price     float64
	Timestamp time.Time
	Source    string // "binance", "coinbase", "rest", "sim"
}

// Valid indica si la muestra tiene un precio usable.
func (s PriceSample) Valid() bool {
	return validPrice(s.Price) && !s.Timestamp.IsZero()
}
