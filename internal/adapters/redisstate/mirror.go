// Package redisstate refleja el RuntimeState y las alertas en Redis para
// consumidores externos (dashboards, otros bots).
package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable se devuelve mientras Redis está marcado como caído.
var ErrUnavailable = errors.New("redis unavailable")

const maxRecentAlerts = 100

// Config de la conexión. Prefix agrupa las claves (por defecto "smcbot").
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration // caducidad de la clave de estado; 0 = sin caducidad
}

// Mirror implementa ports.StatePublisher y ports.Notifier.
//
// Claves:
//
//	<prefix>:state          último RuntimeState (JSON)
//	<prefix>:alerts         últimas alertas (LIST, más reciente primero)
//	<prefix>:state:updates  canal PUBLISH con cada foto
//	<prefix>:alerts:stream  canal PUBLISH con cada alerta
//
// Con Redis caído el mirror entra en modo degradado: las escrituras se saltan
// y cada checkInterval se vuelve a probar con PING.
type Mirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	mu            sync.RWMutex
	healthy       bool
	failures      int
	maxFailures   int
	lastCheck     time.Time
	checkInterval time.Duration
}

// New conecta y verifica con PING. Si falla devuelve el mirror en modo
// degradado, nunca un error: Redis es opcional.
func New(cfg Config) *Mirror {
	if cfg.Prefix == "" {
		cfg.Prefix = "smcbot"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	m := &Mirror{
		client:        client,
		prefix:        cfg.Prefix,
		ttl:           cfg.TTL,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	m.lastCheck = time.Now()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis: initial connection failed, running degraded", "addr", cfg.Addr, "err", err)
		return m
	}
	m.healthy = true
	slog.Info("redis: connected", "addr", cfg.Addr, "prefix", cfg.Prefix)
	return m
}

// Available indica si Redis se considera accesible.
func (m *Mirror) Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy
}

// StateKey devuelve la clave del último estado.
func (m *Mirror) StateKey() string { return m.prefix + ":state" }

// AlertsKey devuelve la clave de la lista de alertas.
func (m *Mirror) AlertsKey() string { return m.prefix + ":alerts" }

func (m *Mirror) stateChannel() string { return m.prefix + ":state:updates" }
func (m *Mirror) alertChannel() string { return m.prefix + ":alerts:stream" }

// PublishState guarda la foto y la publica en el canal de updates.
func (m *Mirror) PublishState(ctx context.Context, st domain.RuntimeState) error {
	if !m.ready(ctx) {
		return ErrUnavailable
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redisstate.PublishState: marshal: %w", err)
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, m.StateKey(), data, m.ttl)
	pipe.Publish(ctx, m.stateChannel(), data)
	if _, err := pipe.Exec(ctx); err != nil {
		m.recordFailure()
		return fmt.Errorf("redisstate.PublishState: %w", err)
	}
	m.recordSuccess()
	return nil
}

// Alert agrega la alerta a la lista acotada y la publica.
func (m *Mirror) Alert(ctx context.Context, a domain.Alert) error {
	if !m.ready(ctx) {
		return ErrUnavailable
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("redisstate.Alert: marshal: %w", err)
	}

	pipe := m.client.TxPipeline()
	pipe.LPush(ctx, m.AlertsKey(), data)
	pipe.LTrim(ctx, m.AlertsKey(), 0, maxRecentAlerts-1)
	pipe.Publish(ctx, m.alertChannel(), data)
	if _, err := pipe.Exec(ctx); err != nil {
		m.recordFailure()
		return fmt.Errorf("redisstate.Alert: %w", err)
	}
	m.recordSuccess()
	return nil
}

// Latest lee la última foto guardada.
func (m *Mirror) Latest(ctx context.Context) (domain.RuntimeState, error) {
	var st domain.RuntimeState
	if !m.ready(ctx) {
		return st, ErrUnavailable
	}
	data, err := m.client.Get(ctx, m.StateKey()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			m.recordFailure()
		}
		return st, fmt.Errorf("redisstate.Latest: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("redisstate.Latest: decode: %w", err)
	}
	return st, nil
}

// Close cierra el cliente.
func (m *Mirror) Close() error {
	return m.client.Close()
}

// ready devuelve true si se puede escribir; en modo degradado reintenta un
// PING como mucho una vez por checkInterval.
func (m *Mirror) ready(ctx context.Context) bool {
	m.mu.RLock()
	healthy := m.healthy
	due := time.Since(m.lastCheck) >= m.checkInterval
	m.mu.RUnlock()
	if healthy {
		return true
	}
	if !due {
		return false
	}

	m.mu.Lock()
	m.lastCheck = time.Now()
	m.mu.Unlock()
	if err := m.client.Ping(ctx).Err(); err != nil {
		slog.Debug("redis: still unavailable", "err", err)
		return false
	}
	m.recordSuccess()
	return true
}

func (m *Mirror) recordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
	if m.failures >= m.maxFailures && m.healthy {
		slog.Warn("redis: marked unavailable", "failures", m.failures)
		m.healthy = false
		m.lastCheck = time.Now()
	}
}

func (m *Mirror) recordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.healthy {
		slog.Info("redis: recovered")
	}
	m.healthy = true
	m.failures = 0
}
