package redisstate_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/smcbot/internal/adapters/redisstate"
	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/alejandrodnm/smcbot/internal/ports"
	"github.com/stretchr/testify/assert"
)

var (
	_ ports.StatePublisher = (*redisstate.Mirror)(nil)
	_ ports.Notifier       = (*redisstate.Mirror)(nil)
)

// Sin servidor: el mirror arranca degradado y nunca bloquea al llamador.
func TestMirror_DegradedWithoutServer(t *testing.T) {
	m := redisstate.New(redisstate.Config{Addr: "127.0.0.1:1"})
	defer m.Close()

	assert.False(t, m.Available())

	start := time.Now()
	err := m.PublishState(context.Background(), domain.RuntimeState{Cycle: 1})
	assert.ErrorIs(t, err, redisstate.ErrUnavailable)

	err = m.Alert(context.Background(), domain.Alert{Symbol: "EURUSD"})
	assert.ErrorIs(t, err, redisstate.ErrUnavailable)

	_, err = m.Latest(context.Background())
	assert.ErrorIs(t, err, redisstate.ErrUnavailable)
	assert.Less(t, time.Since(start), time.Second, "degraded writes must be skipped, not attempted")
}

func TestMirror_KeysUsePrefix(t *testing.T) {
	m := redisstate.New(redisstate.Config{Addr: "127.0.0.1:1", Prefix: "desk1"})
	defer m.Close()

	assert.Equal(t, "desk1:state", m.StateKey())
	assert.Equal(t, "desk1:alerts", m.AlertsKey())
}
