// Package state posee el RuntimeState del proceso. Los workers escriben en
// un borrador bajo lock; Commit publica una copia inmutable que los lectores
// obtienen sin bloquear al scheduler.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/smcbot/internal/domain"
	"github.com/alejandrodnm/smcbot/internal/ports"
)

// Store es el dueño del RuntimeState.
type Store struct {
	mu    sync.Mutex
	draft domain.RuntimeState

	current atomic.Pointer[domain.RuntimeState]
	sinks   []ports.StatePublisher
	timeout time.Duration
	now     func() time.Time
}

// NewStore crea el estado inicial (ciclo 0) y lo deja publicado.
func NewStore(mode domain.Mode, exec domain.ExecutionMode, sinks ...ports.StatePublisher) *Store {
	s := &Store{
		draft: domain.RuntimeState{
			Mode:      mode,
			Execution: exec,
			Running:   true,
			Symbols:   make(map[string]domain.SymbolState),
		},
		timeout: 5 * time.Second,
		now:     time.Now,
	}
	for _, sink := range sinks {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
	initial := s.draft.Clone()
	s.current.Store(&initial)
	return s
}

// AddSink registra un publicador más. Llamar antes de arrancar el scheduler.
func (s *Store) AddSink(sink ports.StatePublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Update aplica fn al borrador bajo lock. Los cambios no son visibles hasta Commit.
func (s *Store) Update(fn func(st *domain.RuntimeState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.draft)
}

// SetSymbol sobrescribe el slot de un símbolo en el borrador.
func (s *Store) SetSymbol(symbol string, slot domain.SymbolState) {
	s.Update(func(st *domain.RuntimeState) {
		if slot.UpdatedAt.IsZero() {
			slot.UpdatedAt = s.now().UTC()
		}
		st.Symbols[symbol] = slot
	})
}

// Commit reemplaza la foto publicada por una copia del borrador y la
// entrega a los sinks. Un sink que falla se loguea y no afecta a los demás.
func (s *Store) Commit(ctx context.Context) domain.RuntimeState {
	s.mu.Lock()
	s.draft.UpdatedAt = s.now().UTC()
	snap := s.draft.Clone()
	sinks := append([]ports.StatePublisher(nil), s.sinks...)
	s.mu.Unlock()

	s.current.Store(&snap)
	s.publish(ctx, sinks, snap)
	return snap
}

// Current devuelve una copia de la última foto publicada.
func (s *Store) Current() domain.RuntimeState {
	return s.current.Load().Clone()
}

// Flush marca el estado como detenido y lo publica por última vez. Se llama al apagar.
func (s *Store) Flush(ctx context.Context) domain.RuntimeState {
	s.Update(func(st *domain.RuntimeState) { st.Running = false })
	return s.Commit(ctx)
}

func (s *Store) publish(ctx context.Context, sinks []ports.StatePublisher, snap domain.RuntimeState) {
	// los sinks reciben un ctx propio: un stop no debe dejar el archivo sin la última foto
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	for _, sink := range sinks {
		if err := sink.PublishState(ctx, snap); err != nil {
			slog.Warn("state: publish failed", "sink", fmt.Sprintf("%T", sink), "cycle", snap.Cycle, "err", err)
		}
	}
}
