package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/shortsbot/internal/domain"
)

// SettlementJournal guarda el histórico de rondas y posiciones liquidadas.
// Es solo para reporting: el engine no restaura estado desde aquí.
type SettlementJournal interface {
	// SaveSettlements persiste un batch completo en una transacción.
	SaveSettlements(ctx context.Context, batch domain.SettlementBatch) error

	// GetSettlements devuelve las posiciones liquidadas en el rango dado,
	// la más reciente primero.
	GetSettlements(ctx context.Context, from, to time.Time) ([]domain.SettledPosition, error)

	// GetStats agrega todo el journal.
	GetStats(ctx context.Context) (domain.SettlementStats, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
