package domain

import (
	"fmt"
	"math"
	"time"
)

// OrderState is the lifecycle state of an OrderRecord.
type OrderState string

const (
	StatePlanned          OrderState = "PLANNED"
	StateSubmitting       OrderState = "SUBMITTING"
	StateConfirmed        OrderState = "CONFIRMED"
	StateRejected         OrderState = "REJECTED"
	StateOpen             OrderState = "OPEN"
	StateClosedByStop     OrderState = "CLOSED_BY_STOP"
	StateClosedByTarget   OrderState = "CLOSED_BY_TARGET"
	StateClosedManually   OrderState = "CLOSED_MANUALLY"
	StateSkippedRiskLimit OrderState = "SKIPPED_RISK_LIMIT"
	StateDryRun           OrderState = "DRY_RUN"
	StateArchived         OrderState = "ARCHIVED"
)

var orderTransitions = map[OrderState][]OrderState{
	StatePlanned:          {StateSubmitting, StateSkippedRiskLimit, StateDryRun},
	StateSubmitting:       {StateConfirmed, StateRejected},
	StateConfirmed:        {StateOpen, StateRejected},
	StateOpen:             {StateClosedByStop, StateClosedByTarget, StateClosedManually},
	StateRejected:         {StateArchived},
	StateClosedByStop:     {StateArchived},
	StateClosedByTarget:   {StateArchived},
	StateClosedManually:   {StateArchived},
	StateSkippedRiskLimit: {StateArchived},
	StateDryRun:           {StateArchived},
}

// CanTransition reports whether s → to is a legal edge.
func (s OrderState) CanTransition(to OrderState) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Outcome reports whether s is a terminal outcome that is archived next.
func (s OrderState) Outcome() bool {
	return s.CanTransition(StateArchived)
}

// Active reports whether the record still needs broker reconciliation.
func (s OrderState) Active() bool {
	return s == StateSubmitting || s == StateConfirmed || s == StateOpen
}

// Closed reports whether s is one of the Closed* states.
func (s OrderState) Closed() bool {
	return s == StateClosedByStop || s == StateClosedByTarget || s == StateClosedManually
}

// OrderRequest is what gets sent to the broker.
type OrderRequest struct {
	ClientID  string    `json:"client_id"`
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"side"`
	Volume    float64   `json:"volume"`
	Price     float64   `json:"price"`
	Stop      float64   `json:"sl"`
	Target    float64   `json:"tp"`
	Comment   string    `json:"comment,omitempty"`
}

// Position is an open position as reported by the broker.
type Position struct {
	Ticket       string    `json:"ticket"`
	ClientID     string    `json:"client_id,omitempty"`
	Symbol       string    `json:"symbol"`
	Direction    Direction `json:"side"`
	Volume       float64   `json:"volume"`
	OpenPrice    float64   `json:"price_open"`
	CurrentPrice float64   `json:"price_current"`
	Stop         float64   `json:"sl"`
	Target       float64   `json:"tp"`
}

// OrderRecord tracks one plan from submission to archive. It is owned by the
// lifecycle manager; everyone else sees OrderSummary copies.
type OrderRecord struct {
	ID         string // UUID (local tracking, also the broker client id)
	Symbol     string
	Direction  Direction
	Size       float64
	Entry      float64
	Stop       float64
	Target     float64
	Ticket     string // empty until confirmed
	State      OrderState
	Outcome    OrderState // last outcome state, kept after archive
	Retries    int
	LastError  string
	Execution  ExecutionMode
	FillPrice  float64
	LastPrice  float64 // last price seen while open
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ArchivedAt *time.Time
}

// OrderTransition is one journaled state change.
type OrderTransition struct {
	OrderID string
	From    OrderState
	To      OrderState
	At      time.Time
	Detail  string
}

// NewOrderRecord creates a Planned record for the plan.
func NewOrderRecord(id string, plan TradePlan, exec ExecutionMode, now time.Time) *OrderRecord {
	return &OrderRecord{
		ID:        id,
		Symbol:    plan.Symbol,
		Direction: plan.Direction,
		Size:      plan.Size,
		Entry:     plan.Entry,
		Stop:      plan.Stop,
		Target:    plan.Target,
		State:     StatePlanned,
		Execution: exec,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the record to the next state, rejecting illegal edges.
func (r *OrderRecord) Transition(to OrderState, now time.Time, detail string) (OrderTransition, error) {
	if !r.State.CanTransition(to) {
		return OrderTransition{}, fmt.Errorf("order %s: illegal transition %s -> %s", r.ID, r.State, to)
	}
	t := OrderTransition{OrderID: r.ID, From: r.State, To: to, At: now, Detail: detail}
	r.State = to
	r.UpdatedAt = now
	if to.Outcome() {
		r.Outcome = to
	}
	if to == StateArchived {
		at := now
		r.ArchivedAt = &at
	}
	return t, nil
}

// Request builds the broker request for this record.
func (r *OrderRecord) Request(comment string) OrderRequest {
	return OrderRequest{
		ClientID:  r.ID,
		Symbol:    r.Symbol,
		Direction: r.Direction,
		Volume:    r.Size,
		Price:     r.Entry,
		Stop:      r.Stop,
		Target:    r.Target,
		Comment:   comment,
	}
}

// OrderSummary is the read-only view published in the runtime state.
type OrderSummary struct {
	ID        string     `json:"id"`
	Ticket    string     `json:"ticket,omitempty"`
	Direction Direction  `json:"direction"`
	State     OrderState `json:"state"`
	Outcome   OrderState `json:"outcome,omitempty"`
	Size      float64    `json:"size"`
	Entry     float64    `json:"entry"`
	Stop      float64    `json:"stop"`
	Target    float64    `json:"target"`
	Retries   int        `json:"retries"`
	LastError string     `json:"last_error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Summary returns the read-only view of the record.
func (r *OrderRecord) Summary() OrderSummary {
	return OrderSummary{
		ID:        r.ID,
		Ticket:    r.Ticket,
		Direction: r.Direction,
		State:     r.State,
		Outcome:   r.Outcome,
		Size:      r.Size,
		Entry:     r.Entry,
		Stop:      r.Stop,
		Target:    r.Target,
		Retries:   r.Retries,
		LastError: r.LastError,
		UpdatedAt: r.UpdatedAt,
	}
}

// InferCloseReason decides why a position disappeared from the broker.
// tolerance is a fraction of the entry-stop distance.
func InferCloseReason(r OrderRecord, lastPrice, tolerance float64) OrderState {
	if lastPrice <= 0 {
		return StateClosedManually
	}
	tol := tolerance * math.Abs(r.Entry-r.Stop)
	switch r.Direction {
	case DirectionBuy:
		if lastPrice <= r.Stop+tol {
			return StateClosedByStop
		}
		if lastPrice >= r.Target-tol {
			return StateClosedByTarget
		}
	case DirectionSell:
		if lastPrice >= r.Stop-tol {
			return StateClosedByStop
		}
		if lastPrice <= r.Target+tol {
			return StateClosedByTarget
		}
	}
	return StateClosedManually
}
