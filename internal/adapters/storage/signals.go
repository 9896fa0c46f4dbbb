package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/smcbot/internal/domain"
)

// ─── Signals ─────────────────────────────────────────────────────────────────

// SaveSignal guarda lo que vio el clasificador para un símbolo en un ciclo.
func (s *SQLiteStorage) SaveSignal(ctx context.Context, r domain.SignalRecord) error {
	v := r.Verdict
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signals
			(cycle, symbol, timeframe, mode, structure, liquidity, zone, momentum, histogram,
			 moving_average, strength, volatility, score, rsi, macd_hist, adx, atr, price,
			 planned, note, at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.Cycle, r.Symbol, r.Timeframe, string(v.Mode), string(v.Structure), string(v.Liquidity),
		string(v.Zone), string(v.Momentum), string(v.Histogram), string(v.MovingAverage),
		string(v.Strength), string(v.Volatility), v.Score, r.RSI, r.MACDHist, r.ADX, r.ATR, r.Price,
		boolToInt(r.Planned), r.Note, r.At.UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveSignal: %s: %w", r.Symbol, err)
	}
	return nil
}

// SignalsFor devuelve las últimas limit señales de symbol, las más recientes primero.
func (s *SQLiteStorage) SignalsFor(ctx context.Context, symbol string, limit int) ([]domain.SignalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle, symbol, timeframe, mode, structure, liquidity, zone, momentum, histogram,
		       moving_average, strength, volatility, score, rsi, macd_hist, adx, atr, price,
		       planned, note, at
		FROM signals WHERE symbol = ? ORDER BY at DESC, id DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.SignalsFor: query: %w", err)
	}
	defer rows.Close()

	var out []domain.SignalRecord
	for rows.Next() {
		var r domain.SignalRecord
		var mode, structure, liquidity, zone, momentum, histogram, ma, strength, volatility string
		var planned int
		if err := rows.Scan(&r.Cycle, &r.Symbol, &r.Timeframe, &mode, &structure, &liquidity,
			&zone, &momentum, &histogram, &ma, &strength, &volatility, &r.Verdict.Score,
			&r.RSI, &r.MACDHist, &r.ADX, &r.ATR, &r.Price, &planned, &r.Note, &r.At); err != nil {
			return nil, fmt.Errorf("storage.SignalsFor: scan: %w", err)
		}
		r.Verdict.Symbol = r.Symbol
		r.Verdict.Mode = domain.Mode(mode)
		r.Verdict.Structure = domain.Structure(structure)
		r.Verdict.Liquidity = domain.Liquidity(liquidity)
		r.Verdict.Zone = domain.PricingZone(zone)
		r.Verdict.Momentum = domain.Bias(momentum)
		r.Verdict.Histogram = domain.Bias(histogram)
		r.Verdict.MovingAverage = domain.Bias(ma)
		r.Verdict.Strength = domain.TrendStrength(strength)
		r.Verdict.Volatility = domain.Volatility(volatility)
		r.Planned = planned != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// ─── Cycles ──────────────────────────────────────────────────────────────────

// SaveCycle guarda el resumen de un ciclo del scheduler.
func (s *SQLiteStorage) SaveCycle(ctx context.Context, c domain.CycleSummary) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles
			(cycle, started_at, duration_ms, mode, execution, processed, skipped, failed,
			 orders, closed, aborted, abort_reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.Cycle, c.StartedAt.UTC(), c.Duration.Milliseconds(), string(c.Mode), string(c.Execution),
		c.Processed, c.Skipped, c.Failed, c.Orders, c.Closed, boolToInt(c.Aborted), c.AbortReason)
	if err != nil {
		return fmt.Errorf("storage.SaveCycle: %d: %w", c.Cycle, err)
	}
	return nil
}

// RecentCycles devuelve los últimos limit ciclos, los más recientes primero.
func (s *SQLiteStorage) RecentCycles(ctx context.Context, limit int) ([]domain.CycleSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle, started_at, duration_ms, mode, execution, processed, skipped, failed,
		       orders, closed, aborted, abort_reason
		FROM cycles ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentCycles: query: %w", err)
	}
	defer rows.Close()

	var out []domain.CycleSummary
	for rows.Next() {
		var c domain.CycleSummary
		var ms int64
		var mode, execution string
		var aborted int
		if err := rows.Scan(&c.Cycle, &c.StartedAt, &ms, &mode, &execution, &c.Processed,
			&c.Skipped, &c.Failed, &c.Orders, &c.Closed, &aborted, &c.AbortReason); err != nil {
			return nil, fmt.Errorf("storage.RecentCycles: scan: %w", err)
		}
		c.Duration = time.Duration(ms) * time.Millisecond
		c.Mode = domain.Mode(mode)
		c.Execution = domain.ExecutionMode(execution)
		c.Aborted = aborted != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats agrega el histórico completo del journal.
func (s *SQLiteStorage) Stats(ctx context.Context) (domain.JournalStats, error) {
	stats := domain.JournalStats{ByOutcome: make(map[domain.OrderState]int)}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(retries), 0) FROM orders`).Scan(&stats.Orders, &stats.Retries)
	if err != nil {
		return stats, fmt.Errorf("storage.Stats: orders: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE state IN (?,?,?)`,
		string(domain.StateSubmitting), string(domain.StateConfirmed), string(domain.StateOpen),
	).Scan(&stats.Active)
	if err != nil {
		return stats, fmt.Errorf("storage.Stats: active: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM orders WHERE outcome != '' GROUP BY outcome`)
	if err != nil {
		return stats, fmt.Errorf("storage.Stats: outcomes: %w", err)
	}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			rows.Close()
			return stats, fmt.Errorf("storage.Stats: scan outcome: %w", err)
		}
		stats.ByOutcome[domain.OrderState(outcome)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("storage.Stats: outcomes: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(planned), 0) FROM signals`).Scan(&stats.Signals, &stats.Planned)
	if err != nil {
		return stats, fmt.Errorf("storage.Stats: signals: %w", err)
	}

	var first, last sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(aborted), 0), MIN(started_at), MAX(started_at) FROM cycles`,
	).Scan(&stats.Cycles, &stats.Aborted, &first, &last)
	if err != nil {
		return stats, fmt.Errorf("storage.Stats: cycles: %w", err)
	}
	if t := parseTime(first); t != nil {
		stats.FirstCycle = *t
	}
	if t := parseTime(last); t != nil {
		stats.LastCycle = *t
	}
	return stats, nil
}
