package ports

import (
	"time"

	"github.com/alejandrodnm/shortsbot/internal/domain"
)

// PriceOracle expone el último precio conocido por activo y su liveness.
// Las lecturas no bloquean: "último valor o nada".
type PriceOracle interface {
	// LatestPrice devuelve la última muestra publicada del activo.
	LatestPrice(asset string) (domain.PriceSample, bool)

	// Status devuelve connecting | live | offline para el activo en now.
	Status(asset string, now time.Time) domain.FeedStatus
}

// PriceSink recibe muestras crudas de un feed upstream.
type PriceSink interface {
	Push(asset string, sample domain.PriceSample)
}
