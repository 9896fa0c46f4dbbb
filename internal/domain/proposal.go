package domain

import (
	"fmt"
	"time"
)

// ProposalAction es la acción pedida desde fuera (webhook).
type ProposalAction string

const (
	ActionOrderSend     ProposalAction = "order_send"
	ActionClosePosition ProposalAction = "close_position"
)

// Proposal es una acción propuesta que el scheduler ejecuta al final del ciclo.
type Proposal struct {
	Action     ProposalAction `json:"action"`
	Symbol     string         `json:"symbol,omitempty"`
	Direction  Direction      `json:"direction,omitempty"`
	Ticket     string         `json:"ticket,omitempty"`
	Comment    string         `json:"comment,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Validate comprueba que la propuesta tenga los campos de su acción.
func (p Proposal) Validate() error {
	switch p.Action {
	case ActionOrderSend:
		if p.Symbol == "" {
			return &ValidationError{Field: "symbol", Reason: "required for order_send"}
		}
		if !p.Direction.Valid() {
			return &ValidationError{Field: "direction", Reason: fmt.Sprintf("invalid %q", p.Direction)}
		}
	case ActionClosePosition:
		if p.Ticket == "" {
			return &ValidationError{Field: "ticket", Reason: "required for close_position"}
		}
	default:
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("unknown %q", p.Action)}
	}
	return nil
}
