package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/smcbot/internal/domain"
)

// errTransient marca un paso del pipeline que falló por el broker.
type errTransient struct{ err error }

func (e errTransient) Error() string { return e.err.Error() }
func (e errTransient) Unwrap() error { return e.err }

// runSymbol corre el pipeline de un símbolo y escribe su slot del estado.
// Con proposal != nil la dirección viene forzada desde fuera y no se aplican
// los filtros de confirmación ni de volatilidad mínima.
func (s *Scheduler) runSymbol(ctx context.Context, symbol string, acct domain.AccountSnapshot, proposal *domain.Proposal) symbolResult {
	gen := s.generation()
	slot := domain.SymbolState{}
	res := symbolResult{symbol: symbol}

	err := s.pipeline(ctx, symbol, acct, proposal, &slot, &res)
	if err != nil {
		res.status = statusFailed
		slot.Note = err.Error()
		var te errTransient
		if errors.As(err, &te) {
			// el símbolo no se repite: si la sesión vuelve, el ciclo sigue por el siguiente
			if !s.recoverSession(ctx, symbol, gen, te.err) {
				res.halt = true
			}
		}
		slog.Warn("scheduler: symbol failed", "symbol", symbol, "err", err)
	}
	s.deps.Metrics.RecordSymbol(res.status)

	slot.Orders = s.deps.Orders.Summaries(symbol)
	slot.UpdatedAt = s.now()
	s.deps.State.SetSymbol(symbol, slot)
	return res
}

func (s *Scheduler) pipeline(
	ctx context.Context,
	symbol string,
	acct domain.AccountSnapshot,
	proposal *domain.Proposal,
	slot *domain.SymbolState,
	res *symbolResult,
) error {
	prof := s.cfg.Profile

	snap, err := s.deps.Market.Indicators(ctx, symbol, prof.Timeframe)
	if err != nil {
		return brokerErr("indicators", err)
	}
	if snap.Mode == "" {
		snap.Mode = prof.Mode
	}
	// un snapshot inválido puede traer NaN: no entra al estado publicado
	verdict, err := domain.Classify(snap, prof.Thresholds)
	if err != nil {
		res.status = statusSkipped
		slot.Note = err.Error()
		slog.Debug("scheduler: invalid snapshot", "symbol", symbol, "err", err)
		return nil
	}
	slot.Snapshot = &snap
	slot.Verdict = &verdict

	plan, price, note, err := s.plan(ctx, snap, verdict, acct, proposal)
	if err != nil {
		return err
	}
	planned := plan != nil
	if planned {
		slot.Plan = plan
		note, err = s.submit(ctx, *plan, price, acct, res)
		if err != nil {
			return err
		}
	}
	slot.Note = note
	if res.status == "" {
		res.status = statusProcessed
	}

	s.saveSignal(ctx, snap, verdict, planned, note)
	return nil
}

// plan aplica los filtros del modo y calcula zonas y tamaño. Devuelve el
// precio de mercado usado para la entrada; sin plan devuelve nil y el motivo.
func (s *Scheduler) plan(
	ctx context.Context,
	snap domain.IndicatorSnapshot,
	verdict domain.SignalVerdict,
	acct domain.AccountSnapshot,
	proposal *domain.Proposal,
) (*domain.TradePlan, float64, string, error) {
	prof := s.cfg.Profile

	var dir domain.Direction
	if proposal != nil {
		dir = proposal.Direction
	} else {
		d, ok := verdict.Direction()
		if !ok {
			return nil, 0, "no plan: " + domain.NoPlanRange, nil
		}
		dir = d
		if prof.MinATR > 0 && snap.ATR < prof.MinATR {
			return nil, 0, fmt.Sprintf("atr %.5f below minimum %.5f", snap.ATR, prof.MinATR), nil
		}
		if prof.ConfirmTimeframe != "" {
			agree, note, err := s.confirm(ctx, snap.Symbol, dir)
			if err != nil {
				return nil, 0, "", err
			}
			if !agree {
				return nil, 0, note, nil
			}
		}
	}

	zones, ok := domain.PlanZonesFor(dir, snap, s.cfg.StopATRMultiplier)
	if !ok {
		return nil, 0, "no plan: " + zones.Reason, nil
	}

	price := snap.Price
	if price <= 0 {
		q, err := s.deps.Market.Quote(ctx, snap.Symbol)
		if err != nil {
			return nil, 0, "", brokerErr("quote", err)
		}
		price = q.Mid()
	}
	entry := zones.EntryFor(price)

	inst, err := s.deps.Market.Instrument(ctx, snap.Symbol)
	if err != nil {
		return nil, 0, "", brokerErr("instrument", err)
	}
	size, err := domain.SizePosition(acct.Equity, s.cfg.RiskFraction, entry, zones.Stop, inst)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientRiskBudget) || domain.IsValidation(err) {
			return nil, 0, err.Error(), nil
		}
		return nil, 0, "", fmt.Errorf("size: %w", err)
	}

	plan := domain.NewTradePlan(verdict, zones, entry, size)
	plan.Symbol = snap.Symbol
	if proposal != nil {
		plan.Comment = proposal.Comment
	}
	return &plan, price, "", nil
}

// confirm exige que la media de la temporalidad mayor vaya en la misma dirección.
func (s *Scheduler) confirm(ctx context.Context, symbol string, dir domain.Direction) (bool, string, error) {
	tf := s.cfg.Profile.ConfirmTimeframe
	higher, err := s.deps.Market.Indicators(ctx, symbol, tf)
	if err != nil {
		if domain.IsTransient(err) {
			return false, "", brokerErr("confirm "+tf, err)
		}
		return false, fmt.Sprintf("%s confirmation unavailable: %v", tf, err), nil
	}
	hv, err := domain.Classify(higher, s.cfg.Profile.Thresholds)
	if err != nil {
		return false, fmt.Sprintf("%s confirmation invalid: %v", tf, err), nil
	}
	want := domain.BiasBullish
	if dir == domain.DirectionSell {
		want = domain.BiasBearish
	}
	if hv.MovingAverage != want {
		return false, fmt.Sprintf("%s trend %s disagrees", tf, hv.MovingAverage), nil
	}
	return true, "", nil
}

// submit pasa el plan al gestor de órdenes si el precio está en zona y el
// símbolo no tiene ya una orden viva. Fuera de zona el plan solo se publica.
func (s *Scheduler) submit(
	ctx context.Context,
	plan domain.TradePlan,
	price float64,
	acct domain.AccountSnapshot,
	res *symbolResult,
) (string, error) {
	if !plan.Zones.Contains(price) {
		return fmt.Sprintf("waiting: price %.5f outside entry zone", price), nil
	}
	if s.deps.Orders.HasActive(plan.Symbol) {
		return "active order on symbol", nil
	}

	sum, err := s.deps.Orders.Execute(ctx, plan, acct)
	if sum.ID != "" {
		res.orders++
	}
	if err != nil {
		if domain.IsTransient(err) {
			return "", errTransient{err: err}
		}
		return "", err
	}
	state := sum.State
	if state == domain.StateArchived && sum.Outcome != "" {
		state = sum.Outcome
	}
	slog.Info("scheduler: order executed",
		"symbol", plan.Symbol,
		"direction", plan.Direction,
		"size", plan.Size,
		"state", state,
		"ticket", sum.Ticket,
	)
	return "order " + string(state), nil
}

func (s *Scheduler) saveSignal(ctx context.Context, snap domain.IndicatorSnapshot, v domain.SignalVerdict, planned bool, note string) {
	if s.deps.Journal == nil {
		return
	}
	rec := domain.NewSignalRecord(s.cycle, snap, v, planned, note, s.now())
	if err := s.deps.Journal.SaveSignal(context.WithoutCancel(ctx), rec); err != nil {
		slog.Warn("scheduler: save signal", "symbol", snap.Symbol, "err", err)
	}
}

// brokerErr envuelve un fallo del broker; los transitorios disparan la reconexión.
func brokerErr(step string, err error) error {
	wrapped := fmt.Errorf("%s: %w", step, err)
	if domain.IsTransient(err) {
		return errTransient{err: wrapped}
	}
	return wrapped
}
