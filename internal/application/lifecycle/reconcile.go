package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/smcbot/internal/domain"
)

// Restore reloads the journal's active records so a restarted engine keeps
// tracking positions it opened before. Records caught mid-submission are
// resolved on the next Reconcile.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.journal == nil {
		return 0, nil
	}
	recs, err := m.journal.ActiveOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("lifecycle.Restore: %w", err)
	}
	m.mu.Lock()
	for i := range recs {
		r := recs[i]
		m.open[r.ID] = &r
	}
	n := len(m.open)
	m.mu.Unlock()
	m.metrics.SetActiveOrders(n)
	if len(recs) > 0 {
		slog.Info("orders: restored active records", "count", len(recs))
	}
	return len(recs), nil
}

// Reconcile compares the open records against the broker's positions. A
// record whose position disappeared is closed with the reason inferred from
// the last known price, then archived. Returns how many records closed.
func (m *Manager) Reconcile(ctx context.Context) (int, error) {
	if m.exec == nil {
		return 0, nil
	}
	active := m.activeRecords()
	if len(active) == 0 {
		return 0, nil
	}

	positions, err := m.exec.Positions(ctx)
	if err != nil {
		return 0, fmt.Errorf("lifecycle.Reconcile: positions: %w", err)
	}
	byTicket := make(map[string]domain.Position, len(positions))
	byClient := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		byTicket[p.Ticket] = p
		if p.ClientID != "" {
			byClient[p.ClientID] = p
		}
	}

	closed := 0
	for _, rec := range active {
		snap := m.snapshot(rec)
		switch snap.State {
		case domain.StateOpen:
			if pos, ok := byTicket[snap.Ticket]; ok {
				m.update(rec, func(r *domain.OrderRecord) { r.LastPrice = pos.CurrentPrice })
				continue
			}
			m.closeRecord(ctx, rec, m.lastPrice(ctx, snap))
			closed++

		case domain.StateSubmitting, domain.StateConfirmed:
			m.recoverPending(ctx, rec, snap, byTicket, byClient)
		}
	}
	return closed, nil
}

// Close closes a position on request. A tracked record ends ClosedManually;
// an untracked ticket is still closed at the broker.
func (m *Manager) Close(ctx context.Context, ticket string) error {
	if m.exec == nil {
		return fmt.Errorf("lifecycle.Close: %s: no executor in %s mode", ticket, m.cfg.Execution)
	}
	ctx = context.WithoutCancel(ctx)

	if err := m.exec.ClosePosition(ctx, ticket); err != nil {
		return fmt.Errorf("lifecycle.Close: %s: %w", ticket, err)
	}

	rec := m.byTicket(ticket)
	if rec == nil {
		slog.Warn("orders: closed untracked ticket", "ticket", ticket)
		return nil
	}
	snap := m.snapshot(rec)
	price := m.lastPrice(ctx, snap)
	m.update(rec, func(r *domain.OrderRecord) { r.LastPrice = price })
	m.finish(ctx, rec, domain.StateClosedManually, "closed on request")
	return nil
}

func (m *Manager) closeRecord(ctx context.Context, rec *domain.OrderRecord, price float64) {
	snap := m.snapshot(rec)
	if price > 0 {
		snap.LastPrice = price
		m.update(rec, func(r *domain.OrderRecord) { r.LastPrice = price })
	}
	reason := domain.InferCloseReason(snap, snap.LastPrice, m.cfg.CloseTolerance)
	m.finish(ctx, rec, reason, fmt.Sprintf("position gone, last price %.5f", snap.LastPrice))
}

// recoverPending resolves a record restored in Submitting/Confirmed: adopt
// the broker position if it exists, otherwise reject it.
func (m *Manager) recoverPending(ctx context.Context, rec *domain.OrderRecord, snap domain.OrderRecord, byTicket, byClient map[string]domain.Position) {
	pos, ok := byTicket[snap.Ticket]
	if !ok || snap.Ticket == "" {
		pos, ok = byClient[snap.ID]
	}
	if !ok {
		err := &domain.MismatchError{Ticket: snap.Ticket, Detail: "not found at broker after restart"}
		m.setError(rec, err)
		m.finish(ctx, rec, domain.StateRejected, err.Error())
		return
	}

	m.update(rec, func(r *domain.OrderRecord) {
		r.Ticket = pos.Ticket
		r.FillPrice = pos.OpenPrice
		r.LastPrice = pos.CurrentPrice
	})
	if snap.State == domain.StateSubmitting {
		if err := m.transition(ctx, rec, domain.StateConfirmed, "recovered ticket "+pos.Ticket); err != nil {
			return
		}
	}
	if detail := mismatch(m.snapshot(rec), pos, m.cfg.VolumeTolerance, m.cfg.SlippageTolerance); detail != "" {
		err := &domain.MismatchError{Ticket: pos.Ticket, Detail: detail}
		m.setError(rec, err)
		m.finish(ctx, rec, domain.StateRejected, err.Error())
		return
	}
	if err := m.transition(ctx, rec, domain.StateOpen, "recovered after restart"); err != nil {
		slog.Warn("orders: recovered record not reopened", "order", rec.ID, "ticket", pos.Ticket, "err", err)
	}
}

// lastPrice prefers a fresh quote and falls back to the last price seen on
// the open position.
func (m *Manager) lastPrice(ctx context.Context, rec domain.OrderRecord) float64 {
	if m.quotes != nil {
		q, err := m.quotes.Quote(ctx, rec.Symbol)
		if err == nil && q.Mid() > 0 {
			return q.Mid()
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Debug("orders: quote for close inference failed", "symbol", rec.Symbol, "err", err)
		}
	}
	return rec.LastPrice
}

func (m *Manager) activeRecords() []*domain.OrderRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.OrderRecord, 0, len(m.open))
	for _, r := range m.open {
		out = append(out, r)
	}
	return out
}

func (m *Manager) byTicket(ticket string) *domain.OrderRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.open {
		if r.Ticket == ticket && r.State == domain.StateOpen {
			return r
		}
	}
	return nil
}
