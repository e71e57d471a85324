package domain

import (
	"fmt"
	"time"
)

// Market representa un mercado de rondas up/down sobre un activo.
// Se carga una vez desde config y no cambia durante la ejecución.
type Market struct {
	Key      string        // identificador estable, ej. "btc-1m"
	Asset    string        // código del subyacente, ej. "BTC"
	Symbol   string        // par del exchange, ej. "BTCUSDT"
	Duration time.Duration // duración fija de cada ronda
}

// Validate devuelve un error si la definición del mercado no es usable.
func (m Market) Validate() error {
	if m.Key == "" {
		return fmt.Errorf("market: empty key")
	}
	if m.Asset == "" {
		return fmt.Errorf("market %q: empty asset", m.Key)
	}
	if m.Duration < time.Millisecond {
		return fmt.Errorf("market %q: duration %s too small", m.Key, m.Duration)
	}
	return nil
}

// Direction es el lado de la apuesta.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ParseDirection acepta "up"/"down" (también "UP"/"DOWN").
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "up", "UP", "Up":
		return DirectionUp, true
	case "down", "DOWN", "Down":
		return DirectionDown, true
	}
	return "", false
}

// Opposite devuelve el lado contrario.
func (d Direction) Opposite() Direction {
	if d == DirectionUp {
		return DirectionDown
	}
	return DirectionUp
}

// TruncateLabel recorta un texto a maxLen caracteres añadiendo "...".
func TruncateLabel(s string, maxLen int) string {
	if maxLen <= 3 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
