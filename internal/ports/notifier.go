package ports

import (
	"context"

	"github.com/alejandrodnm/shortsbot/internal/domain"
)

// Notifier presenta las liquidaciones al usuario.
type Notifier interface {
	// NotifySettlement se llama una vez por batch liquidado.
	// En la implementación de consola imprime el resultado y suena en los wins.
	NotifySettlement(ctx context.Context, batch domain.SettlementBatch) error
}
