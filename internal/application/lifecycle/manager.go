// Package lifecycle owns every OrderRecord from plan to archive: risk gate,
// submission with bounded retries, verification against the broker and
// close detection.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alejandrodnm/smcbot/internal/application/session"
	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/alejandrodnm/smcbot/internal/observability"
	"github.com/alejandrodnm/smcbot/internal/ports"
	"github.com/google/uuid"
)

const (
	defaultSubmitAttempts  = 3
	defaultSubmitDelay     = time.Second
	defaultVerifyPolls     = 3
	defaultVerifyDelay     = 500 * time.Millisecond
	defaultSlippage        = 0.002
	defaultVolumeTolerance = 1e-6
	defaultCloseTolerance  = 0.10
	recentPerSymbol        = 5
)

// Config holds the lifecycle limits.
type Config struct {
	Execution    domain.ExecutionMode
	MaxDailyLoss float64 // fraction of opening balance, inclusive
	MinEquity    float64

	SubmitAttempts int
	SubmitDelay    time.Duration

	VerifyPolls       int
	VerifyDelay       time.Duration
	SlippageTolerance float64 // |fill-entry|/entry
	VolumeTolerance   float64 // absolute lots
	CloseTolerance    float64 // fraction of |entry-stop|
}

func (c *Config) setDefaults() {
	if c.Execution == "" {
		c.Execution = domain.ExecDryRun
	}
	if c.SubmitAttempts <= 0 {
		c.SubmitAttempts = defaultSubmitAttempts
	}
	if c.SubmitDelay < 0 {
		c.SubmitDelay = defaultSubmitDelay
	}
	if c.VerifyPolls <= 0 {
		c.VerifyPolls = defaultVerifyPolls
	}
	if c.VerifyDelay < 0 {
		c.VerifyDelay = defaultVerifyDelay
	}
	if c.SlippageTolerance <= 0 {
		c.SlippageTolerance = defaultSlippage
	}
	if c.VolumeTolerance <= 0 {
		c.VolumeTolerance = defaultVolumeTolerance
	}
	if c.CloseTolerance <= 0 {
		c.CloseTolerance = defaultCloseTolerance
	}
}

// QuoteSource gives the last market price of a symbol for close inference.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
}

// Manager drives the order state machine. Execution mode is a routing
// decision: exec is the live session or the paper simulator, and in dry-run
// it is never called.
type Manager struct {
	exec     ports.OrderExecutor
	quotes   QuoteSource
	journal  ports.Journal
	notifier ports.Notifier
	metrics  *observability.Metrics
	cfg      Config
	now      func() time.Time

	mu       sync.Mutex
	open     map[string]*domain.OrderRecord // by order ID
	inflight map[string]int                 // symbol → submissions in progress
	recent   map[string][]domain.OrderSummary
}

// New creates a lifecycle manager. journal, notifier, quotes and metrics may be nil.
func New(
	exec ports.OrderExecutor,
	quotes QuoteSource,
	journal ports.Journal,
	notifier ports.Notifier,
	metrics *observability.Metrics,
	cfg Config,
) *Manager {
	cfg.setDefaults()
	return &Manager{
		exec:     exec,
		quotes:   quotes,
		journal:  journal,
		notifier: notifier,
		metrics:  metrics,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		open:     make(map[string]*domain.OrderRecord),
		inflight: make(map[string]int),
		recent:   make(map[string][]domain.OrderSummary),
	}
}

// Execution returns the routing mode.
func (m *Manager) Execution() domain.ExecutionMode {
	return m.cfg.Execution
}

// Execute takes a plan through Planned → … → Open or an archived outcome.
// The returned summary is the record's final state for this call. The error
// is non-nil only for an invalid plan or when submission exhausted its
// retries on a transient broker error, so the caller can trigger a reconnect.
//
// Submission ignores ctx cancellation: an order that reached the broker is
// always tracked to an outcome.
func (m *Manager) Execute(ctx context.Context, plan domain.TradePlan, acct domain.AccountSnapshot) (domain.OrderSummary, error) {
	if err := validatePlan(plan); err != nil {
		return domain.OrderSummary{}, fmt.Errorf("lifecycle.Execute: %w", err)
	}
	ctx = context.WithoutCancel(ctx)

	rec := domain.NewOrderRecord(uuid.NewString(), plan, m.cfg.Execution, m.now())
	m.saveOrder(ctx, *rec)

	if refused, reason := acct.RiskGate(m.cfg.MaxDailyLoss, m.cfg.MinEquity); refused {
		m.finish(ctx, rec, domain.StateSkippedRiskLimit, reason)
		return m.summary(rec), nil
	}
	if m.cfg.Execution == domain.ExecDryRun || m.exec == nil {
		m.finish(ctx, rec, domain.StateDryRun, "dry-run: not submitted")
		return m.summary(rec), nil
	}

	m.reserve(rec.Symbol)
	defer m.release(rec.Symbol)

	if err := m.transition(ctx, rec, domain.StateSubmitting, ""); err != nil {
		return m.summary(rec), fmt.Errorf("lifecycle.Execute: %w", err)
	}

	ticket, err := m.submit(ctx, rec, plan.Comment)
	if err != nil {
		m.setError(rec, err)
		m.finish(ctx, rec, domain.StateRejected, err.Error())
		if domain.IsTransient(err) {
			return m.summary(rec), fmt.Errorf("lifecycle.Execute: submit %s: %w", rec.Symbol, err)
		}
		return m.summary(rec), nil
	}

	m.update(rec, func(r *domain.OrderRecord) { r.Ticket = ticket })
	if err := m.transition(ctx, rec, domain.StateConfirmed, "ticket "+ticket); err != nil {
		return m.summary(rec), fmt.Errorf("lifecycle.Execute: %w", err)
	}

	pos, err := m.verify(ctx, rec)
	if err != nil {
		m.setError(rec, err)
		m.finish(ctx, rec, domain.StateRejected, err.Error())
		return m.summary(rec), nil
	}

	m.update(rec, func(r *domain.OrderRecord) {
		r.FillPrice = pos.OpenPrice
		r.LastPrice = pos.CurrentPrice
	})
	if err := m.transition(ctx, rec, domain.StateOpen, fmt.Sprintf("fill %.5f", pos.OpenPrice)); err != nil {
		return m.summary(rec), fmt.Errorf("lifecycle.Execute: %w", err)
	}
	m.register(rec)
	return m.summary(rec), nil
}

func validatePlan(p domain.TradePlan) error {
	switch {
	case p.Symbol == "":
		return &domain.ValidationError{Field: "symbol", Reason: "empty"}
	case !p.Direction.Valid():
		return &domain.ValidationError{Field: "direction", Reason: fmt.Sprintf("invalid %q", p.Direction)}
	case !(p.Size > 0):
		return &domain.ValidationError{Field: "size", Reason: "must be positive"}
	case !(p.Entry > 0) || !(p.Stop > 0):
		return &domain.ValidationError{Field: "entry", Reason: "entry and stop must be positive"}
	}
	return nil
}

// submit sends the order with the bounded transient retry. Before every retry,
// and once more when the retries run out on a transient error, it looks for a
// position already carrying our client id: a submission that timed out after
// reaching the broker is adopted instead of duplicated or orphaned.
func (m *Manager) submit(ctx context.Context, rec *domain.OrderRecord, comment string) (string, error) {
	policy := session.RetryPolicy{
		MaxAttempts: m.cfg.SubmitAttempts,
		Delay:       m.cfg.SubmitDelay,
		Retryable:   domain.IsTransient,
	}
	snap := m.snapshot(rec)
	req := snap.Request(comment)

	var ticket string
	attempt := 0
	err := policy.DoNotify(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			if t, ok := m.findByClientID(ctx, req.ClientID); ok {
				slog.Info("orders: adopted position from timed-out submit", "order", rec.ID, "ticket", t)
				ticket = t
				return nil
			}
		}
		var err error
		ticket, err = m.exec.SubmitOrder(ctx, req)
		return err
	}, func(attempt int, err error) {
		m.update(rec, func(r *domain.OrderRecord) {
			r.Retries++
			r.LastError = err.Error()
		})
		m.metrics.RecordSubmitRetry()
		slog.Warn("orders: submit failed, retrying",
			"order", rec.ID, "symbol", rec.Symbol, "attempt", attempt, "err", err)
	})
	if err != nil {
		if domain.IsTransient(err) {
			if t, ok := m.findByClientID(ctx, req.ClientID); ok {
				slog.Info("orders: adopted position after submit retries ran out", "order", rec.ID, "ticket", t)
				return t, nil
			}
		}
		return "", err
	}
	if ticket == "" {
		return "", &domain.RejectedError{Reason: "broker returned an empty ticket"}
	}
	return ticket, nil
}

func (m *Manager) findByClientID(ctx context.Context, clientID string) (string, bool) {
	positions, err := m.exec.Positions(ctx)
	if err != nil {
		return "", false
	}
	for _, p := range positions {
		if p.ClientID == clientID && p.Ticket != "" {
			return p.Ticket, true
		}
	}
	return "", false
}

// ─── Bookkeeping ─────────────────────────────────────────────────────────────

// transition applies one state change and journals, meters and alerts it.
func (m *Manager) transition(ctx context.Context, rec *domain.OrderRecord, to domain.OrderState, detail string) error {
	m.mu.Lock()
	t, err := rec.Transition(to, m.now(), detail)
	snap := *rec
	m.mu.Unlock()
	if err != nil {
		slog.Error("orders: illegal transition", "order", rec.ID, "err", err)
		return err
	}

	m.metrics.RecordTransition(string(to))
	if m.journal != nil {
		if err := m.journal.SaveTransition(ctx, t); err != nil {
			slog.Warn("orders: journal transition failed", "order", snap.ID, "err", err)
		}
	}
	m.saveOrder(ctx, snap)

	slog.Info("orders: transition",
		"order", snap.ID, "symbol", snap.Symbol, "from", t.From, "to", to, "detail", detail)

	if alertWorthy(to) {
		m.alert(ctx, domain.AlertFromRecord(&snap, detail, t.At))
	}
	return nil
}

func alertWorthy(s domain.OrderState) bool {
	switch s {
	case domain.StateConfirmed, domain.StateRejected, domain.StateSkippedRiskLimit, domain.StateDryRun:
		return true
	}
	return s.Closed()
}

// finish moves rec to an outcome state and archives it.
func (m *Manager) finish(ctx context.Context, rec *domain.OrderRecord, outcome domain.OrderState, detail string) {
	if err := m.transition(ctx, rec, outcome, detail); err != nil {
		return
	}
	if err := m.transition(ctx, rec, domain.StateArchived, ""); err != nil {
		return
	}
	m.mu.Lock()
	delete(m.open, rec.ID)
	m.remember(rec.Symbol, rec.Summary())
	n := len(m.open)
	m.mu.Unlock()
	m.metrics.SetActiveOrders(n)
}

func (m *Manager) alert(ctx context.Context, a domain.Alert) {
	if m.journal != nil {
		if err := m.journal.SaveAlert(ctx, a); err != nil {
			slog.Warn("orders: journal alert failed", "symbol", a.Symbol, "err", err)
		}
	}
	if m.notifier != nil {
		if err := m.notifier.Alert(ctx, a); err != nil {
			slog.Warn("orders: notify failed", "symbol", a.Symbol, "outcome", a.Outcome, "err", err)
		}
	}
}

// Alert forwards an engine-level alert (e.g. cycle abort) to the same sinks.
func (m *Manager) Alert(ctx context.Context, a domain.Alert) {
	m.alert(ctx, a)
}

func (m *Manager) saveOrder(ctx context.Context, rec domain.OrderRecord) {
	if m.journal == nil {
		return
	}
	if err := m.journal.SaveOrder(ctx, rec); err != nil {
		slog.Warn("orders: journal order failed", "order", rec.ID, "err", err)
	}
}

func (m *Manager) update(rec *domain.OrderRecord, fn func(*domain.OrderRecord)) {
	m.mu.Lock()
	fn(rec)
	m.mu.Unlock()
}

func (m *Manager) setError(rec *domain.OrderRecord, err error) {
	m.update(rec, func(r *domain.OrderRecord) { r.LastError = err.Error() })
}

func (m *Manager) snapshot(rec *domain.OrderRecord) domain.OrderRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *rec
}

func (m *Manager) summary(rec *domain.OrderRecord) domain.OrderSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return rec.Summary()
}

func (m *Manager) register(rec *domain.OrderRecord) {
	m.mu.Lock()
	m.open[rec.ID] = rec
	n := len(m.open)
	m.mu.Unlock()
	m.metrics.SetActiveOrders(n)
}

func (m *Manager) reserve(symbol string) {
	m.mu.Lock()
	m.inflight[symbol]++
	m.mu.Unlock()
}

func (m *Manager) release(symbol string) {
	m.mu.Lock()
	if m.inflight[symbol] <= 1 {
		delete(m.inflight, symbol)
	} else {
		m.inflight[symbol]--
	}
	m.mu.Unlock()
}

// remember keeps the last archived summaries per symbol. Caller holds mu.
func (m *Manager) remember(symbol string, s domain.OrderSummary) {
	list := append(m.recent[symbol], s)
	if len(list) > recentPerSymbol {
		list = list[len(list)-recentPerSymbol:]
	}
	m.recent[symbol] = list
}

// ─── Read side ───────────────────────────────────────────────────────────────

// HasActive reports whether symbol has an open or in-flight order.
func (m *Manager) HasActive(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[symbol] > 0 {
		return true
	}
	for _, r := range m.open {
		if r.Symbol == symbol {
			return true
		}
	}
	return false
}

// ActiveCount returns the number of open records.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

// Summaries returns the open orders of symbol followed by its most recent
// archived ones, oldest first within each group.
func (m *Manager) Summaries(symbol string) []domain.OrderSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.OrderSummary
	for _, r := range m.open {
		if r.Symbol == symbol {
			out = append(out, r.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return append(out, m.recent[symbol]...)
}
