package ports

import (
	"context"

	"github.com/alejandrodnm/smcbot/internal/domain"
)

// Notifier entrega las alertas del motor a un sink (consola, websocket, redis).
// Es fire-and-forget: un error se loguea, nunca frena el ciclo.
type Notifier interface {
	Alert(ctx context.Context, alert domain.Alert) error
}

// StatePublisher recibe cada RuntimeState confirmado al final de un ciclo.
type StatePublisher interface {
	PublishState(ctx context.Context, state domain.RuntimeState) error
}

// ProposalSource entrega las acciones propuestas desde fuera (webhook).
type ProposalSource interface {
	// Drain devuelve y vacía las propuestas pendientes, en orden de llegada.
	Drain() []domain.Proposal
}
