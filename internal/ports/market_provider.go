package ports

import (
	"context"

	"github.com/alejandrodnm/smcbot/internal/domain"
)

// MarketProvider obtiene datos de mercado del terminal del broker.
type MarketProvider interface {
	// Connect abre (o reabre) la sesión con el terminal.
	Connect(ctx context.Context) error

	// Quote devuelve el bid/ask actual del símbolo.
	Quote(ctx context.Context, symbol string) (domain.Quote, error)

	// Indicators calcula el snapshot de indicadores para el símbolo y la temporalidad.
	Indicators(ctx context.Context, symbol, timeframe string) (domain.IndicatorSnapshot, error)

	// Instrument devuelve las restricciones de volumen del símbolo.
	Instrument(ctx context.Context, symbol string) (domain.Instrument, error)
}
