package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alejandrodnm/smcbot/internal/domain"
)

// ─── Orders ──────────────────────────────────────────────────────────────────

// SaveOrder hace upsert del registro completo.
func (s *SQLiteStorage) SaveOrder(ctx context.Context, o domain.OrderRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders
			(id, symbol, direction, size, entry, stop, target, ticket, state, outcome,
			 retries, last_error, execution, fill_price, last_price,
			 created_at, updated_at, archived_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.Symbol, string(o.Direction), o.Size, o.Entry, o.Stop, o.Target, o.Ticket,
		string(o.State), string(o.Outcome), o.Retries, o.LastError, string(o.Execution),
		o.FillPrice, o.LastPrice, o.CreatedAt.UTC(), o.UpdatedAt.UTC(), nullTime(o.ArchivedAt))
	if err != nil {
		return fmt.Errorf("storage.SaveOrder: %s: %w", o.ID, err)
	}
	return nil
}

// ActiveOrders devuelve las órdenes que siguen vivas en el broker
// (Submitting, Confirmed, Open), las más antiguas primero.
func (s *SQLiteStorage) ActiveOrders(ctx context.Context) ([]domain.OrderRecord, error) {
	orders, err := s.queryOrders(ctx, `WHERE state IN (?,?,?) ORDER BY created_at ASC`,
		string(domain.StateSubmitting), string(domain.StateConfirmed), string(domain.StateOpen))
	if err != nil {
		return nil, fmt.Errorf("storage.ActiveOrders: %w", err)
	}
	return orders, nil
}

// RecentOrders devuelve las últimas limit órdenes, las más recientes primero.
func (s *SQLiteStorage) RecentOrders(ctx context.Context, limit int) ([]domain.OrderRecord, error) {
	orders, err := s.queryOrders(ctx, `ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentOrders: %w", err)
	}
	return orders, nil
}

// Order devuelve una orden por ID. sql.ErrNoRows si no existe.
func (s *SQLiteStorage) Order(ctx context.Context, id string) (domain.OrderRecord, error) {
	orders, err := s.queryOrders(ctx, `WHERE id = ?`, id)
	if err != nil {
		return domain.OrderRecord{}, fmt.Errorf("storage.Order: %w", err)
	}
	if len(orders) == 0 {
		return domain.OrderRecord{}, fmt.Errorf("storage.Order: %s: %w", id, sql.ErrNoRows)
	}
	return orders[0], nil
}

func (s *SQLiteStorage) queryOrders(ctx context.Context, tail string, args ...any) ([]domain.OrderRecord, error) {
	q := `SELECT id, symbol, direction, size, entry, stop, target, ticket, state, outcome,
		         retries, last_error, execution, fill_price, last_price,
		         created_at, updated_at, archived_at
		  FROM orders ` + tail

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.OrderRecord
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func scanOrder(rows *sql.Rows) (domain.OrderRecord, error) {
	var o domain.OrderRecord
	var direction, state, outcome, execution string
	var archivedAt sql.NullString

	err := rows.Scan(
		&o.ID, &o.Symbol, &direction, &o.Size, &o.Entry, &o.Stop, &o.Target, &o.Ticket,
		&state, &outcome, &o.Retries, &o.LastError, &execution, &o.FillPrice, &o.LastPrice,
		&o.CreatedAt, &o.UpdatedAt, &archivedAt,
	)
	if err != nil {
		return o, err
	}
	o.Direction = domain.Direction(direction)
	o.State = domain.OrderState(state)
	o.Outcome = domain.OrderState(outcome)
	o.Execution = domain.ExecutionMode(execution)
	o.ArchivedAt = parseTime(archivedAt)
	return o, nil
}

// ─── Transitions ─────────────────────────────────────────────────────────────

// SaveTransition agrega una transición al historial.
func (s *SQLiteStorage) SaveTransition(ctx context.Context, t domain.OrderTransition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO order_events (order_id, from_state, to_state, detail, at) VALUES (?,?,?,?,?)`,
		t.OrderID, string(t.From), string(t.To), t.Detail, t.At.UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveTransition: %s: %w", t.OrderID, err)
	}
	return nil
}

// Transitions devuelve el historial de una orden en orden de inserción.
func (s *SQLiteStorage) Transitions(ctx context.Context, orderID string) ([]domain.OrderTransition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT order_id, from_state, to_state, detail, at FROM order_events WHERE order_id = ? ORDER BY id ASC`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("storage.Transitions: query: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderTransition
	for rows.Next() {
		var t domain.OrderTransition
		var from, to string
		if err := rows.Scan(&t.OrderID, &from, &to, &t.Detail, &t.At); err != nil {
			return nil, fmt.Errorf("storage.Transitions: scan: %w", err)
		}
		t.From = domain.OrderState(from)
		t.To = domain.OrderState(to)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ─── Alerts ──────────────────────────────────────────────────────────────────

// SaveAlert guarda una copia de la alerta emitida.
func (s *SQLiteStorage) SaveAlert(ctx context.Context, a domain.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (order_id, symbol, direction, entry, stop, target, size, ticket, outcome, detail, at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		a.OrderID, a.Symbol, string(a.Direction), a.Entry, a.Stop, a.Target, a.Size,
		nullString(a.Ticket), a.Outcome, a.Detail, a.At.UTC())
	if err != nil {
		return fmt.Errorf("storage.SaveAlert: %s %s: %w", a.Symbol, a.Outcome, err)
	}
	return nil
}

// RecentAlerts devuelve las últimas limit alertas, las más recientes primero.
func (s *SQLiteStorage) RecentAlerts(ctx context.Context, limit int) ([]domain.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, symbol, direction, entry, stop, target, size, ticket, outcome, detail, at
		FROM alerts ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentAlerts: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var direction string
		var ticket sql.NullString
		if err := rows.Scan(&a.OrderID, &a.Symbol, &direction, &a.Entry, &a.Stop, &a.Target,
			&a.Size, &ticket, &a.Outcome, &a.Detail, &a.At); err != nil {
			return nil, fmt.Errorf("storage.RecentAlerts: scan: %w", err)
		}
		a.Direction = domain.Direction(direction)
		if ticket.Valid {
			t := ticket.String
			a.Ticket = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
