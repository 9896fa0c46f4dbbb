package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/alejandrodnm/smcbot/internal/observability"
	"github.com/alejandrodnm/smcbot/internal/ports"
	"github.com/cenkalti/backoff/v4"
)

const defaultCallTimeout = 10 * time.Second

// Config holds the session limits.
type Config struct {
	CallTimeout time.Duration
	Reads       RetryPolicy
	Reconnect   ReconnectPolicy
}

// Session owns the single logical connection to the brokerage terminal.
// Every call takes the session lock, so submissions and verification polls
// from different symbol workers never race on the same handle. Each call is
// bounded by CallTimeout. Reads are retried with the read policy; SubmitOrder
// and ClosePosition are single attempts so the caller can account for retries.
type Session struct {
	broker    ports.Broker
	cfg       Config
	metrics   *observability.Metrics
	mu        sync.Mutex
	connected atomic.Bool
}

// New wraps broker in a serialized session.
func New(broker ports.Broker, cfg Config, metrics *observability.Metrics) *Session {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.Reads.MaxAttempts <= 0 {
		cfg.Reads = DefaultRetryPolicy()
	}
	if cfg.Reconnect.MaxAttempts <= 0 {
		cfg.Reconnect = DefaultReconnectPolicy()
	}
	return &Session{broker: broker, cfg: cfg, metrics: metrics}
}

// Connected reports whether the last connect succeeded and no call has since
// failed with ErrDisconnected.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// call runs fn under the session lock with a per-call timeout.
func (s *Session) call(ctx context.Context, op string, fn func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	err := fn(cctx)
	if err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && !domain.IsTransient(err) {
		err = fmt.Errorf("%s: %w after %s", op, domain.ErrTimeout, s.cfg.CallTimeout)
	}
	if errors.Is(err, domain.ErrDisconnected) {
		s.connected.Store(false)
	}
	s.metrics.RecordBrokerCall(op, time.Since(start), err)
	return err
}

// read runs a read-only call under the read retry policy.
func (s *Session) read(ctx context.Context, op string, fn func(context.Context) error) error {
	return s.cfg.Reads.DoNotify(ctx, func(ctx context.Context) error {
		return s.call(ctx, op, fn)
	}, func(attempt int, err error) {
		slog.Debug("session: retrying read", "op", op, "attempt", attempt, "err", err)
	})
}

// Connect opens the terminal session once.
func (s *Session) Connect(ctx context.Context) error {
	err := s.call(ctx, "connect", s.broker.Connect)
	if err == nil {
		s.connected.Store(true)
	}
	return err
}

// Reconnect retries Connect within the reconnect budget.
func (s *Session) Reconnect(ctx context.Context) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := s.Connect(ctx)
		s.metrics.RecordReconnect(err == nil)
		return err
	}, s.cfg.Reconnect.backOff(ctx), func(err error, next time.Duration) {
		slog.Warn("session: reconnect failed", "attempt", attempt, "next_in", next, "err", err)
	})
	if err != nil {
		return fmt.Errorf("session.Reconnect: %d attempts: %w", attempt, err)
	}
	slog.Info("session: reconnected", "attempts", attempt)
	return nil
}

// AccountInfo implements ports.OrderExecutor.
func (s *Session) AccountInfo(ctx context.Context) (domain.AccountSnapshot, error) {
	var out domain.AccountSnapshot
	err := s.read(ctx, "account", func(ctx context.Context) error {
		var err error
		out, err = s.broker.AccountInfo(ctx)
		return err
	})
	return out, err
}

// Quote implements ports.MarketProvider.
func (s *Session) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	var out domain.Quote
	err := s.read(ctx, "quote", func(ctx context.Context) error {
		var err error
		out, err = s.broker.Quote(ctx, symbol)
		return err
	})
	return out, err
}

// Indicators implements ports.MarketProvider.
func (s *Session) Indicators(ctx context.Context, symbol, timeframe string) (domain.IndicatorSnapshot, error) {
	var out domain.IndicatorSnapshot
	err := s.read(ctx, "indicators", func(ctx context.Context) error {
		var err error
		out, err = s.broker.Indicators(ctx, symbol, timeframe)
		return err
	})
	return out, err
}

// Instrument implements ports.MarketProvider.
func (s *Session) Instrument(ctx context.Context, symbol string) (domain.Instrument, error) {
	var out domain.Instrument
	err := s.read(ctx, "instrument", func(ctx context.Context) error {
		var err error
		out, err = s.broker.Instrument(ctx, symbol)
		return err
	})
	return out, err
}

// Positions implements ports.OrderExecutor.
func (s *Session) Positions(ctx context.Context) ([]domain.Position, error) {
	var out []domain.Position
	err := s.read(ctx, "positions", func(ctx context.Context) error {
		var err error
		out, err = s.broker.Positions(ctx)
		return err
	})
	return out, err
}

// SubmitOrder implements ports.OrderExecutor. Single attempt.
func (s *Session) SubmitOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	var ticket string
	err := s.call(ctx, "submit", func(ctx context.Context) error {
		var err error
		ticket, err = s.broker.SubmitOrder(ctx, req)
		return err
	})
	return ticket, err
}

// ClosePosition implements ports.OrderExecutor. Single attempt.
func (s *Session) ClosePosition(ctx context.Context, ticket string) error {
	return s.call(ctx, "close", func(ctx context.Context) error {
		return s.broker.ClosePosition(ctx, ticket)
	})
}
