package domain

import "time"

// OutcomeCycleAborted marca la alerta terminal de un ciclo cortado por desconexión.
const OutcomeCycleAborted = "CYCLE_ABORTED"

// Alert es el payload estructurado que se emite en cada transición relevante.
// La entrega a sinks concretos queda fuera del motor.
type Alert struct {
	OrderID   string    `json:"order_id,omitempty"`
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction,omitempty"`
	Entry     float64   `json:"entry"`
	Stop      float64   `json:"stop"`
	Target    float64   `json:"target"`
	Size      float64   `json:"size"`
	Ticket    *string   `json:"ticket"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// AlertFromRecord arma la alerta para el estado actual del registro.
func AlertFromRecord(r *OrderRecord, detail string, now time.Time) Alert {
	a := Alert{
		OrderID:   r.ID,
		Symbol:    r.Symbol,
		Direction: r.Direction,
		Entry:     r.Entry,
		Stop:      r.Stop,
		Target:    r.Target,
		Size:      r.Size,
		Outcome:   string(r.State),
		Detail:    detail,
		At:        now,
	}
	if r.Ticket != "" {
		t := r.Ticket
		a.Ticket = &t
	}
	return a
}

// CycleAbortAlert es la alerta terminal cuando el ciclo termina antes de tiempo.
func CycleAbortAlert(symbol, detail string, now time.Time) Alert {
	return Alert{Symbol: symbol, Outcome: OutcomeCycleAborted, Detail: detail, At: now}
}

// TicketString devuelve el ticket o "-" si es nulo.
func (a Alert) TicketString() string {
	if a.Ticket == nil {
		return "-"
	}
	return *a.Ticket
}
