package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientRiskBudget: el tamaño redondeado queda por debajo del mínimo del instrumento.
	ErrInsufficientRiskBudget = errors.New("insufficient risk budget")
	// ErrRiskLimit: rechazo por política (pérdida diaria, equity mínima), no del broker.
	ErrRiskLimit = errors.New("risk limit refusal")
	// ErrTimeout y ErrDisconnected son los fallos transitorios del broker.
	ErrTimeout      = errors.New("broker timeout")
	ErrDisconnected = errors.New("broker disconnected")
	// ErrNoPlan: no hay zonas operables para el veredicto.
	ErrNoPlan = errors.New("no plan")
)

// ValidationError indica un snapshot o input mal formado.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// RejectedError es un rechazo semántico del broker (volumen, margen, mercado cerrado).
// Nunca se reintenta.
type RejectedError struct {
	Code   string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Code == "" {
		return "broker rejected: " + e.Reason
	}
	return fmt.Sprintf("broker rejected (%s): %s", e.Code, e.Reason)
}

// MismatchError indica que la verificación contra el broker no coincide con lo enviado.
type MismatchError struct {
	Ticket string
	Detail string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("reconciliation mismatch for ticket %q: %s", e.Ticket, e.Detail)
}

// IsTransient devuelve true para Timeout/Disconnected (reintentables).
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrDisconnected)
}

// IsRejected devuelve true si err contiene un rechazo semántico del broker.
func IsRejected(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej)
}

// IsValidation devuelve true si err es un ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
