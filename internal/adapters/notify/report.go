package notify

import (
	"fmt"
	"sort"
	"time"

	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// ReportInput agrupa los datos necesarios para imprimir el reporte del journal.
type ReportInput struct {
	Stats        domain.JournalStats
	Cycles       []domain.CycleSummary
	ActiveOrders []domain.OrderRecord
	Alerts       []domain.Alert
}

// PrintReport imprime el informe completo del journal.
func (c *Console) PrintReport(in ReportInput) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║                      SMCBOT JOURNAL REPORT                   ║\n")
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════════════════════╝\n\n")

	stats := in.Stats
	if !stats.FirstCycle.IsZero() {
		fmt.Fprintf(c.out, "  Period:   %s → %s\n",
			stats.FirstCycle.Format("2006-01-02 15:04"), stats.LastCycle.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(c.out, "  Cycles:   %d (%d aborted)\n", stats.Cycles, stats.Aborted)
	fmt.Fprintf(c.out, "  Signals:  %d classified, %d planned\n", stats.Signals, stats.Planned)
	fmt.Fprintf(c.out, "  Orders:   %d total, %d active, %d submit retries\n", stats.Orders, stats.Active, stats.Retries)
	fmt.Fprintf(c.out, "  Win rate: %.0f%% (target vs stop)\n", stats.WinRate()*100)

	fmt.Fprintf(c.out, "\n── OUTCOMES ──\n")
	if len(stats.ByOutcome) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	} else {
		outcomes := make([]string, 0, len(stats.ByOutcome))
		for o := range stats.ByOutcome {
			outcomes = append(outcomes, string(o))
		}
		sort.Strings(outcomes)
		for _, o := range outcomes {
			fmt.Fprintf(c.out, "  %-20s %6d\n", o, stats.ByOutcome[domain.OrderState(o)])
		}
	}

	fmt.Fprintf(c.out, "\n── ACTIVE ORDERS (%d) ──\n", len(in.ActiveOrders))
	if len(in.ActiveOrders) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("Symbol", "Side", "State", "Ticket", "Size", "Entry", "SL", "TP", "Last", "Age")
		for _, o := range in.ActiveOrders {
			ticket := o.Ticket
			if ticket == "" {
				ticket = "-"
			}
			table.Append(o.Symbol, string(o.Direction), string(o.State), ticket,
				fmtNum(o.Size), fmtNum(o.Entry), fmtNum(o.Stop), fmtNum(o.Target), fmtNum(o.LastPrice),
				time.Since(o.CreatedAt).Truncate(time.Minute).String())
		}
		table.Render()
	} else {
		fmt.Fprintln(c.out, "  (none)")
	}

	fmt.Fprintf(c.out, "\n── RECENT CYCLES ──\n")
	if len(in.Cycles) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("#", "Started", "Took", "Mode", "Exec", "Done", "Skip", "Fail", "Orders", "Closed", "Note")
		for _, cy := range in.Cycles {
			note := ""
			if cy.Aborted {
				note = "ABORTED " + truncate(cy.AbortReason, 30)
			}
			table.Append(fmt.Sprintf("%d", cy.Cycle), cy.StartedAt.Local().Format("01-02 15:04:05"),
				cy.Duration.Truncate(time.Millisecond).String(), string(cy.Mode), string(cy.Execution),
				fmt.Sprintf("%d", cy.Processed), fmt.Sprintf("%d", cy.Skipped), fmt.Sprintf("%d", cy.Failed),
				fmt.Sprintf("%d", cy.Orders), fmt.Sprintf("%d", cy.Closed), note)
		}
		table.Render()
	} else {
		fmt.Fprintln(c.out, "  (none)")
	}

	fmt.Fprintf(c.out, "\n── RECENT ALERTS ──\n")
	if len(in.Alerts) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("At", "Outcome", "Symbol", "Side", "Entry", "SL", "TP", "Size", "Ticket", "Detail")
		for _, a := range in.Alerts {
			table.Append(a.At.Local().Format("01-02 15:04:05"), a.Outcome, a.Symbol, string(a.Direction),
				fmtNum(a.Entry), fmtNum(a.Stop), fmtNum(a.Target), fmtNum(a.Size), a.TicketString(),
				truncate(a.Detail, 40))
		}
		table.Render()
	} else {
		fmt.Fprintln(c.out, "  (none)")
	}
	fmt.Fprintln(c.out)
}
