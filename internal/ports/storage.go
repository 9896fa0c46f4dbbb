package ports

import (
	"context"

	"github.com/alejandrodnm/smcbot/internal/domain"
)

// Journal persiste órdenes, transiciones, alertas, señales y ciclos.
type Journal interface {
	// SaveOrder hace upsert del registro completo.
	SaveOrder(ctx context.Context, rec domain.OrderRecord) error

	// SaveTransition agrega una transición al historial de la orden.
	SaveTransition(ctx context.Context, t domain.OrderTransition) error

	// ActiveOrders devuelve las órdenes no archivadas que siguen vivas en el broker.
	ActiveOrders(ctx context.Context) ([]domain.OrderRecord, error)

	SaveAlert(ctx context.Context, alert domain.Alert) error
	SaveSignal(ctx context.Context, sig domain.SignalRecord) error
	SaveCycle(ctx context.Context, c domain.CycleSummary) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
