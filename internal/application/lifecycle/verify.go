package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/smcbot/internal/domain"
)

// verify polls the broker until the confirmed ticket shows up as a position
// that matches what was sent. Any disagreement, or a ticket still missing
// after the configured polls, is a *domain.MismatchError.
func (m *Manager) verify(ctx context.Context, rec *domain.OrderRecord) (domain.Position, error) {
	want := m.snapshot(rec)

	var lastErr error
	for poll := 1; poll <= m.cfg.VerifyPolls; poll++ {
		if poll > 1 && m.cfg.VerifyDelay > 0 {
			time.Sleep(m.cfg.VerifyDelay)
		}

		positions, err := m.exec.Positions(ctx)
		if err != nil {
			lastErr = err
			slog.Debug("orders: verification poll failed", "order", want.ID, "poll", poll, "err", err)
			continue
		}
		pos, found := findTicket(positions, want.Ticket)
		if !found {
			continue
		}
		if detail := mismatch(want, pos, m.cfg.VolumeTolerance, m.cfg.SlippageTolerance); detail != "" {
			return pos, &domain.MismatchError{Ticket: want.Ticket, Detail: detail}
		}
		return pos, nil
	}

	detail := fmt.Sprintf("ticket missing after %d polls", m.cfg.VerifyPolls)
	if lastErr != nil {
		detail += ": " + lastErr.Error()
	}
	return domain.Position{}, &domain.MismatchError{Ticket: want.Ticket, Detail: detail}
}

func findTicket(positions []domain.Position, ticket string) (domain.Position, bool) {
	for _, p := range positions {
		if p.Ticket == ticket {
			return p, true
		}
	}
	return domain.Position{}, false
}

// mismatch compares the broker position against the record. Empty means match.
func mismatch(rec domain.OrderRecord, pos domain.Position, volTol, slipTol float64) string {
	if pos.Symbol != rec.Symbol {
		return fmt.Sprintf("symbol %s, sent %s", pos.Symbol, rec.Symbol)
	}
	if pos.Direction != rec.Direction {
		return fmt.Sprintf("side %s, sent %s", pos.Direction, rec.Direction)
	}
	if math.Abs(pos.Volume-rec.Size) > volTol {
		return fmt.Sprintf("volume %g, sent %g", pos.Volume, rec.Size)
	}
	if pos.OpenPrice > 0 && rec.Entry > 0 {
		slip := math.Abs(pos.OpenPrice-rec.Entry) / rec.Entry
		if slip > slipTol {
			return fmt.Sprintf("fill %.5f slipped %.4f%% from %.5f", pos.OpenPrice, slip*100, rec.Entry)
		}
	}
	return ""
}
