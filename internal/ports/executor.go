package ports

import (
	"context"

	"github.com/alejandrodnm/smcbot/internal/domain"
)

// OrderExecutor is the order side of the brokerage terminal. The live broker
// session, the paper simulator and any test fake implement it; the lifecycle
// manager only ever talks to this interface.
type OrderExecutor interface {
	// AccountInfo returns balance, equity and today's realized P&L.
	AccountInfo(ctx context.Context) (domain.AccountSnapshot, error)

	// SubmitOrder sends a market order and returns the broker ticket.
	// Fails with domain.ErrTimeout, domain.ErrDisconnected or *domain.RejectedError.
	SubmitOrder(ctx context.Context, req domain.OrderRequest) (string, error)

	// Positions returns all positions the broker currently reports open.
	Positions(ctx context.Context) ([]domain.Position, error)

	// ClosePosition closes a position by ticket.
	ClosePosition(ctx context.Context, ticket string) error
}

// Broker is the full brokerage collaborator: market data plus execution.
type Broker interface {
	MarketProvider
	OrderExecutor
}
