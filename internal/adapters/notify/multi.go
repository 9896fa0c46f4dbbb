package notify

import (
	"context"
	"errors"

	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/alejandrodnm/smcbot/internal/ports"
)

// Multi reparte cada alerta entre varios sinks. Un sink que falla no frena
// al resto; los errores se devuelven juntos.
type Multi struct {
	sinks []ports.Notifier
}

// NewMulti ignora los sinks nil.
func NewMulti(sinks ...ports.Notifier) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Add agrega un sink.
func (m *Multi) Add(s ports.Notifier) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

// Alert implementa ports.Notifier.
func (m *Multi) Alert(ctx context.Context, a domain.Alert) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Alert(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
