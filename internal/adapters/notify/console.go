package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implementa ports.Notifier y ports.StatePublisher sobre stdout.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout. table=true imprime
// la tabla completa del ciclo; si no, una línea compacta.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Alert imprime una línea por alerta.
func (c *Console) Alert(_ context.Context, a domain.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	at := a.At
	if at.IsZero() {
		at = time.Now()
	}
	if a.Outcome == domain.OutcomeCycleAborted {
		fmt.Fprintf(c.out, "[%s] ⚠ %s at %s: %s\n", at.Format("15:04:05"), a.Outcome, a.Symbol, a.Detail)
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s %s %s size=%s entry=%s sl=%s tp=%s ticket=%s",
		at.Format("15:04:05"), outcomeIcon(a.Outcome), a.Outcome, sideSymbol(a.Direction, a.Symbol),
		fmtNum(a.Size), fmtNum(a.Entry), fmtNum(a.Stop), fmtNum(a.Target), a.TicketString())
	if a.Detail != "" {
		fmt.Fprintf(&sb, " (%s)", a.Detail)
	}
	fmt.Fprintln(c.out, sb.String())
	return nil
}

// PublishState imprime el resumen del ciclo confirmado.
func (c *Console) PublishState(_ context.Context, st domain.RuntimeState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.table {
		c.printFull(st)
	} else {
		c.printCompact(st)
	}
	return nil
}

// printCompact imprime lo esencial en una línea.
func (c *Console) printCompact(st domain.RuntimeState) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] cycle %d %s/%s", st.UpdatedAt.Format("15:04:05"), st.Cycle, st.Mode, st.Execution)
	if st.Account != nil {
		fmt.Fprintf(&sb, " eq=%.2f pnl=%.2f", st.Account.Equity, st.Account.DailyPnL)
	}
	if st.Aborted {
		sb.WriteString(" ABORTED")
	}

	for _, sym := range sortedSymbols(st) {
		s := st.Symbols[sym]
		if s.Verdict == nil {
			fmt.Fprintf(&sb, " | %s -", sym)
			continue
		}
		fmt.Fprintf(&sb, " | %s %s %.1f", sym, structureIcon(s.Verdict.Structure), s.Verdict.Score)
		if s.Plan != nil {
			fmt.Fprintf(&sb, " %s@%s", s.Plan.Direction, fmtNum(s.Plan.Entry))
		}
		if n := activeOrders(s.Orders); n > 0 {
			fmt.Fprintf(&sb, " [%d open]", n)
		}
	}
	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla por símbolo.
func (c *Console) printFull(st domain.RuntimeState) {
	fmt.Fprintf(c.out, "\n[%s] cycle %d — mode %s, execution %s\n",
		st.UpdatedAt.Format("15:04:05"), st.Cycle, st.Mode, st.Execution)
	if st.Account != nil {
		fmt.Fprintf(c.out, "  balance $%.2f | equity $%.2f | today $%.2f (%.2f%%)\n",
			st.Account.Balance, st.Account.Equity, st.Account.DailyPnL, -st.Account.DailyLossFraction()*100)
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Symbol", "Structure", "Score", "Zone", "Liquidity", "ADX", "Plan", "Orders", "Note")
	for _, sym := range sortedSymbols(st) {
		s := st.Symbols[sym]
		structure, score, zone, liq, adx := "-", "-", "-", "-", "-"
		if s.Verdict != nil {
			structure = string(s.Verdict.Structure)
			score = fmt.Sprintf("%.1f", s.Verdict.Score)
			zone = string(s.Verdict.Zone)
			liq = string(s.Verdict.Liquidity)
		}
		if s.Snapshot != nil {
			adx = fmt.Sprintf("%.1f", s.Snapshot.ADX)
		}
		plan := "-"
		if s.Plan != nil {
			plan = fmt.Sprintf("%s %s sl %s tp %s x%s", s.Plan.Direction, fmtNum(s.Plan.Entry),
				fmtNum(s.Plan.Stop), fmtNum(s.Plan.Target), fmtNum(s.Plan.Size))
		}
		table.Append(sym, structure, score, zone, liq, adx, plan, ordersLabel(s.Orders), truncate(s.Note, 30))
	}
	table.Render()

	if st.Aborted {
		fmt.Fprintln(c.out, "  ⚠ cycle aborted: broker connection lost, remaining symbols skipped")
	}
}

// --- helpers ---

func sortedSymbols(st domain.RuntimeState) []string {
	out := make([]string, 0, len(st.Symbols))
	for k := range st.Symbols {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func activeOrders(orders []domain.OrderSummary) int {
	n := 0
	for _, o := range orders {
		if o.State.Active() {
			n++
		}
	}
	return n
}

func ordersLabel(orders []domain.OrderSummary) string {
	if len(orders) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		label := string(o.State)
		if o.State == domain.StateArchived && o.Outcome != "" {
			label = string(o.Outcome)
		}
		if o.Ticket != "" {
			label += "#" + o.Ticket
		}
		parts = append(parts, label)
	}
	if len(parts) > 2 {
		parts = append(parts[:2], fmt.Sprintf("+%d", len(orders)-2))
	}
	return strings.Join(parts, " ")
}

func outcomeIcon(outcome string) string {
	switch domain.OrderState(outcome) {
	case domain.StateConfirmed, domain.StateOpen:
		return "▶"
	case domain.StateClosedByTarget:
		return "✓"
	case domain.StateClosedByStop:
		return "✗"
	case domain.StateRejected, domain.StateSkippedRiskLimit:
		return "!"
	case domain.StateDryRun:
		return "·"
	}
	return "-"
}

func structureIcon(s domain.Structure) string {
	switch s {
	case domain.StructureBullish:
		return "▲"
	case domain.StructureBearish:
		return "▼"
	}
	return "="
}

func sideSymbol(d domain.Direction, symbol string) string {
	if d == "" {
		return symbol
	}
	return string(d) + " " + symbol
}

// fmtNum imprime precios y tamaños sin ceros de sobra.
func fmtNum(v float64) string {
	s := fmt.Sprintf("%.5f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
