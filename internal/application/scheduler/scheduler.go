// Package scheduler conduce el motor: un ciclo por intervalo del modo, y en
// cada ciclo el pipeline clasificar → zonas → tamaño → orden para cada
// símbolo configurado, con reconexión al broker si la sesión se cae.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/alejandrodnm/smcbot/internal/application/lifecycle"
	"github.com/alejandrodnm/smcbot/internal/application/state"
	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/alejandrodnm/smcbot/internal/observability"
	"github.com/alejandrodnm/smcbot/internal/ports"
)

// DefaultStopFile es el archivo que, si existe en el directorio de trabajo,
// detiene el bot entre ciclos.
const DefaultStopFile = "STOP_SMCBOT"

// Config contiene la configuración del scheduler.
type Config struct {
	Symbols           []string
	Profile           domain.ModeProfile
	RiskFraction      float64
	StopATRMultiplier float64 // k de las zonas; 0 = domain.DefaultStopATRMultiplier
	Workers           int     // pipelines de símbolo en paralelo (0 = 1)
	Once              bool    // un solo ciclo y salir
	StopFile          string
	HFT               HFTGate
}

// AccountSource da la foto de la cuenta al inicio de cada ciclo.
type AccountSource interface {
	AccountInfo(ctx context.Context) (domain.AccountSnapshot, error)
}

// Connector es la sesión del broker vista desde el scheduler.
type Connector interface {
	Connected() bool
	Reconnect(ctx context.Context) error
}

// Deps son los colaboradores del scheduler. Conn, Journal, Proposals y
// Metrics pueden ser nil.
type Deps struct {
	Market    ports.MarketProvider
	Account   AccountSource
	Orders    *lifecycle.Manager
	State     *state.Store
	Conn      Connector
	Journal   ports.Journal
	Proposals ports.ProposalSource
	Metrics   *observability.Metrics
}

// Scheduler es el loop principal del motor.
type Scheduler struct {
	cfg  Config
	deps Deps
	now  func() time.Time

	cycle int64

	// reconexión compartida por los workers de un ciclo
	connMu  sync.Mutex
	connGen int64
	abort   *cycleAbort
}

type cycleAbort struct {
	symbol string
	reason string
}

// New valida la config y crea el scheduler. En modo HFT verifica la doble
// confirmación una sola vez y se niega a arrancar si no pasa.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("scheduler.New: no symbols configured")
	}
	if deps.Market == nil || deps.Account == nil || deps.Orders == nil || deps.State == nil {
		return nil, errors.New("scheduler.New: market, account, orders and state are required")
	}
	if !(cfg.RiskFraction > 0) {
		return nil, fmt.Errorf("scheduler.New: risk fraction %v must be positive", cfg.RiskFraction)
	}
	if cfg.Profile.Mode == "" {
		cfg.Profile = domain.DefaultProfile(domain.ModeStandard)
	}
	if cfg.Profile.Mode == domain.ModeHFT {
		if err := VerifyHFTGate(cfg.HFT); err != nil {
			return nil, err
		}
		slog.Warn("scheduler: HFT mode unlocked", "symbol_delay", cfg.Profile.SymbolDelay)
	}
	if cfg.Profile.CycleInterval <= 0 {
		cfg.Profile.CycleInterval = domain.DefaultProfile(cfg.Profile.Mode).CycleInterval
	}
	if cfg.StopATRMultiplier <= 0 {
		cfg.StopATRMultiplier = domain.DefaultStopATRMultiplier
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.StopFile == "" {
		cfg.StopFile = DefaultStopFile
	}
	return &Scheduler{
		cfg:  cfg,
		deps: deps,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run ejecuta ciclos hasta que ctx se cancele, aparezca el stop file o, con
// Once, después del primero. Al salir publica el estado final (Running=false).
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler: starting",
		"mode", s.cfg.Profile.Mode,
		"execution", s.deps.Orders.Execution(),
		"interval", s.cfg.Profile.CycleInterval,
		"symbols", len(s.cfg.Symbols),
		"workers", s.cfg.Workers,
	)
	defer s.deps.State.Flush(context.WithoutCancel(ctx))

	if s.stopRequested() {
		return nil
	}
	s.RunCycle(ctx)
	if s.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(s.cfg.Profile.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler: stopped")
			return nil
		case <-ticker.C:
			if s.stopRequested() {
				return nil
			}
			s.RunCycle(ctx)
		}
	}
}

// stopRequested consume el stop file si existe.
func (s *Scheduler) stopRequested() bool {
	if _, err := os.Stat(s.cfg.StopFile); err != nil {
		return false
	}
	slog.Info("scheduler: stop file found, stopping", "file", s.cfg.StopFile)
	if err := os.Remove(s.cfg.StopFile); err != nil {
		slog.Warn("scheduler: remove stop file", "file", s.cfg.StopFile, "err", err)
	}
	return true
}

// RunCycle ejecuta un ciclo completo y devuelve su resumen. Los errores por
// símbolo nunca cortan el ciclo; solo lo corta un broker que no vuelve.
func (s *Scheduler) RunCycle(ctx context.Context) domain.CycleSummary {
	s.cycle++
	start := s.now()
	sum := domain.CycleSummary{
		Cycle:     s.cycle,
		StartedAt: start,
		Mode:      s.cfg.Profile.Mode,
		Execution: s.deps.Orders.Execution(),
	}
	s.connMu.Lock()
	s.abort = nil
	s.connMu.Unlock()

	s.deps.State.Update(func(st *domain.RuntimeState) {
		st.Cycle = s.cycle
		st.Aborted = false
	})

	acct, ok := s.refreshAccount(ctx)
	if ok {
		s.reconcile(ctx, &sum)
		// aborted toma connMu: espera a que termine una reconexión en curso
		proceed := func() bool { return s.aborted() == nil }
		results := runSymbols(ctx, s.cfg.Symbols, s.cfg.Workers, s.cfg.Profile.SymbolDelay, proceed,
			func(ctx context.Context, symbol string) symbolResult {
				return s.runSymbol(ctx, symbol, acct, nil)
			})
		for _, r := range results {
			switch r.status {
			case statusProcessed:
				sum.Processed++
			case statusSkipped:
				sum.Skipped++
			default:
				sum.Failed++
			}
			sum.Orders += r.orders
		}
	}

	if ab := s.aborted(); ab != nil {
		sum.Aborted = true
		sum.AbortReason = ab.reason
		slog.Error("scheduler: cycle aborted", "cycle", s.cycle, "symbol", ab.symbol, "reason", ab.reason)
		s.deps.Orders.Alert(ctx, domain.CycleAbortAlert(ab.symbol, ab.reason, s.now()))
	} else if ctx.Err() == nil {
		// las propuestas pendientes esperan al siguiente ciclo si este se cortó
		s.runProposals(ctx, acct, &sum)
	}

	sum.Duration = s.now().Sub(start)
	s.finishCycle(ctx, sum, acct)
	return sum
}

func (s *Scheduler) refreshAccount(ctx context.Context) (domain.AccountSnapshot, bool) {
	acct, err := s.deps.Account.AccountInfo(ctx)
	if err != nil && domain.IsTransient(err) && s.recoverSession(ctx, "", s.generation(), err) {
		acct, err = s.deps.Account.AccountInfo(ctx)
	}
	if err != nil {
		s.setAbort("", "account: "+err.Error())
		return domain.AccountSnapshot{}, false
	}
	if acct.TakenAt.IsZero() {
		acct.TakenAt = s.now()
	}
	s.deps.State.Update(func(st *domain.RuntimeState) {
		a := acct
		st.Account = &a
	})
	return acct, true
}

func (s *Scheduler) reconcile(ctx context.Context, sum *domain.CycleSummary) {
	gen := s.generation()
	closed, err := s.deps.Orders.Reconcile(ctx)
	if err != nil {
		slog.Warn("scheduler: reconcile failed", "err", err)
		if domain.IsTransient(err) {
			s.recoverSession(ctx, "", gen, err)
		}
	}
	sum.Closed = closed
}

func (s *Scheduler) finishCycle(ctx context.Context, sum domain.CycleSummary, acct domain.AccountSnapshot) {
	// el resumen se guarda aunque el stop ya esté señalado
	jctx := context.WithoutCancel(ctx)
	if s.deps.Journal != nil {
		if err := s.deps.Journal.SaveCycle(jctx, sum); err != nil {
			slog.Warn("scheduler: save cycle", "cycle", sum.Cycle, "err", err)
		}
	}

	result := "ok"
	if sum.Aborted {
		result = "aborted"
	}
	s.deps.Metrics.RecordCycle(result, sum.Duration)

	s.deps.State.Update(func(st *domain.RuntimeState) {
		st.Aborted = sum.Aborted
	})
	s.deps.State.Commit(ctx)

	slog.Info("scheduler: cycle complete",
		"cycle", sum.Cycle,
		"processed", sum.Processed,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"orders", sum.Orders,
		"closed", sum.Closed,
		"equity", acct.Equity,
		"duration", sum.Duration.Round(time.Millisecond),
	)
}

// ─── Reconexión ──────────────────────────────────────────────────────────────

func (s *Scheduler) generation() int64 {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.connGen
}

// recoverSession intenta recuperar el broker tras un error transitorio visto
// en la generación gen. Si otro worker ya reconectó desde entonces no vuelve
// a hacerlo. Devuelve false (y marca el ciclo como abortado) si no hay
// reconexión posible.
func (s *Scheduler) recoverSession(ctx context.Context, symbol string, gen int64, cause error) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.abort != nil {
		return false
	}
	if s.connGen != gen {
		return true
	}
	if s.deps.Conn == nil {
		s.abort = &cycleAbort{symbol: symbol, reason: cause.Error()}
		return false
	}

	slog.Warn("scheduler: broker lost, reconnecting", "symbol", symbol, "err", cause)
	if err := s.deps.Conn.Reconnect(ctx); err != nil {
		s.abort = &cycleAbort{symbol: symbol, reason: err.Error()}
		return false
	}
	s.connGen++
	return true
}

func (s *Scheduler) setAbort(symbol, reason string) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.abort == nil {
		s.abort = &cycleAbort{symbol: symbol, reason: reason}
	}
}

func (s *Scheduler) aborted() *cycleAbort {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.abort
}

// ─── Propuestas externas ─────────────────────────────────────────────────────

func (s *Scheduler) runProposals(ctx context.Context, acct domain.AccountSnapshot, sum *domain.CycleSummary) {
	if s.deps.Proposals == nil {
		return
	}
	for _, p := range s.deps.Proposals.Drain() {
		switch p.Action {
		case domain.ActionClosePosition:
			if err := s.deps.Orders.Close(ctx, p.Ticket); err != nil {
				slog.Warn("scheduler: close proposal failed", "ticket", p.Ticket, "err", err)
				continue
			}
			sum.Closed++

		case domain.ActionOrderSend:
			if !s.configured(p.Symbol) {
				slog.Warn("scheduler: proposal for unconfigured symbol", "symbol", p.Symbol)
				continue
			}
			res := s.runSymbol(ctx, p.Symbol, acct, &p)
			sum.Orders += res.orders
			slog.Info("scheduler: proposal handled",
				"symbol", p.Symbol, "direction", p.Direction, "status", res.status)
		}
	}
}

func (s *Scheduler) configured(symbol string) bool {
	for _, sym := range s.cfg.Symbols {
		if sym == symbol {
			return true
		}
	}
	return false
}
