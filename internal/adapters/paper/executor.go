package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/smcbot/internal/domain"
)

// QuoteSource supplies marks for open paper positions.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
}

// Executor simulates the broker locally: orders fill at the requested price,
// positions close when the mark crosses stop or target, and the account
// tracks balance, equity and today's realized P&L. P&L is size × price move.
type Executor struct {
	quotes QuoteSource
	now    func() time.Time

	mu         sync.Mutex
	balance    float64
	day        string
	dailyPnL   float64
	peakEquity float64
	maxDD      float64
	next       int64
	positions  map[string]*domain.Position
}

// NewExecutor creates a paper executor with initialBalance. clock may be nil.
func NewExecutor(quotes QuoteSource, initialBalance float64, clock func() time.Time) *Executor {
	if clock == nil {
		clock = time.Now
	}
	return &Executor{
		quotes:     quotes,
		now:        clock,
		balance:    initialBalance,
		peakEquity: initialBalance,
		positions:  make(map[string]*domain.Position),
	}
}

// AccountInfo implements ports.OrderExecutor.
func (e *Executor) AccountInfo(ctx context.Context) (domain.AccountSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollDay()

	equity := e.balance
	for _, p := range e.positions {
		equity += pnl(*p, p.CurrentPrice)
	}
	if equity > e.peakEquity {
		e.peakEquity = equity
	}
	if e.peakEquity > 0 {
		if dd := (e.peakEquity - equity) / e.peakEquity; dd > e.maxDD {
			e.maxDD = dd
		}
	}
	return domain.AccountSnapshot{
		Balance:     e.balance,
		Equity:      equity,
		DailyPnL:    e.dailyPnL,
		MaxDrawdown: e.maxDD,
		TakenAt:     e.now().UTC(),
	}, nil
}

// SubmitOrder implements ports.OrderExecutor.
func (e *Executor) SubmitOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	switch {
	case req.Symbol == "":
		return "", &domain.RejectedError{Code: "invalid", Reason: "empty symbol"}
	case !req.Direction.Valid():
		return "", &domain.RejectedError{Code: "invalid", Reason: fmt.Sprintf("bad side %q", req.Direction)}
	case !(req.Volume > 0):
		return "", &domain.RejectedError{Code: "invalid_volume", Reason: "volume must be positive"}
	case !(req.Price > 0):
		return "", &domain.RejectedError{Code: "invalid_price", Reason: "price must be positive"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	ticket := fmt.Sprintf("P%06d", e.next)
	e.positions[ticket] = &domain.Position{
		Ticket:       ticket,
		ClientID:     req.ClientID,
		Symbol:       req.Symbol,
		Direction:    req.Direction,
		Volume:       req.Volume,
		OpenPrice:    req.Price,
		CurrentPrice: req.Price,
		Stop:         req.Stop,
		Target:       req.Target,
	}
	slog.Info("paper: filled", "ticket", ticket, "symbol", req.Symbol, "side", req.Direction,
		"volume", req.Volume, "price", req.Price)
	return ticket, nil
}

// Positions marks every position to market, closes the ones whose stop or
// target was crossed, and returns the rest.
func (e *Executor) Positions(ctx context.Context) ([]domain.Position, error) {
	marks := e.marks(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rollDay()

	out := make([]domain.Position, 0, len(e.positions))
	for ticket, p := range e.positions {
		price, ok := marks[p.Symbol]
		if !ok {
			out = append(out, *p)
			continue
		}
		p.CurrentPrice = price
		if exit, hit := crossed(*p, price); hit {
			e.realize(ticket, exit)
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// ClosePosition implements ports.OrderExecutor.
func (e *Executor) ClosePosition(ctx context.Context, ticket string) error {
	e.mu.Lock()
	p, ok := e.positions[ticket]
	var symbol string
	if ok {
		symbol = p.Symbol
	}
	e.mu.Unlock()
	if !ok {
		return &domain.RejectedError{Code: "unknown_ticket", Reason: "no open position " + ticket}
	}

	price := 0.0
	if e.quotes != nil {
		if q, err := e.quotes.Quote(ctx, symbol); err == nil {
			price = q.Mid()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok = e.positions[ticket]
	if !ok {
		return nil
	}
	if price <= 0 {
		price = p.CurrentPrice
	}
	e.rollDay()
	e.realize(ticket, price)
	return nil
}

// marks fetches one quote per symbol with open positions.
func (e *Executor) marks(ctx context.Context) map[string]float64 {
	e.mu.Lock()
	symbols := make(map[string]struct{})
	for _, p := range e.positions {
		symbols[p.Symbol] = struct{}{}
	}
	e.mu.Unlock()

	out := make(map[string]float64, len(symbols))
	if e.quotes == nil {
		return out
	}
	for s := range symbols {
		q, err := e.quotes.Quote(ctx, s)
		if err != nil || q.Mid() <= 0 {
			slog.Debug("paper: no mark", "symbol", s, "err", err)
			continue
		}
		out[s] = q.Mid()
	}
	return out
}

// realize closes ticket at price. Caller holds mu.
func (e *Executor) realize(ticket string, price float64) {
	p := e.positions[ticket]
	delete(e.positions, ticket)
	gain := pnl(*p, price)
	e.balance += gain
	e.dailyPnL += gain
	slog.Info("paper: closed", "ticket", ticket, "symbol", p.Symbol, "price", price, "pnl", gain)
}

// rollDay resets today's P&L at the UTC date boundary. Caller holds mu.
func (e *Executor) rollDay() {
	today := e.now().UTC().Format("2006-01-02")
	if e.day != today {
		e.day = today
		e.dailyPnL = 0
	}
}

func pnl(p domain.Position, price float64) float64 {
	if p.Direction == domain.DirectionSell {
		return (p.OpenPrice - price) * p.Volume
	}
	return (price - p.OpenPrice) * p.Volume
}

// crossed reports whether price went through stop or target; the exit is
// the level itself.
func crossed(p domain.Position, price float64) (float64, bool) {
	switch p.Direction {
	case domain.DirectionBuy:
		if p.Stop > 0 && price <= p.Stop {
			return p.Stop, true
		}
		if p.Target > 0 && price >= p.Target {
			return p.Target, true
		}
	case domain.DirectionSell:
		if p.Stop > 0 && price >= p.Stop {
			return p.Stop, true
		}
		if p.Target > 0 && price <= p.Target {
			return p.Target, true
		}
	}
	return 0, false
}
