package httpapi

import (
	"errors"
	"sync"

	"github.com/alejandrodnm/smcbot/internal/domain"
)

// ErrQueueFull se devuelve cuando hay demasiadas propuestas sin drenar.
var ErrQueueFull = errors.New("proposal queue full")

// ProposalQueue guarda en memoria las propuestas aceptadas por el webhook
// hasta que el scheduler las drena. Implementa ports.ProposalSource.
type ProposalQueue struct {
	mu    sync.Mutex
	items []domain.Proposal
	max   int
}

// NewProposalQueue crea una cola con capacidad max (por defecto 64).
func NewProposalQueue(max int) *ProposalQueue {
	if max <= 0 {
		max = 64
	}
	return &ProposalQueue{max: max}
}

// Push encola p. Devuelve ErrQueueFull si no hay sitio.
func (q *ProposalQueue) Push(p domain.Proposal) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.max {
		return ErrQueueFull
	}
	q.items = append(q.items, p)
	return nil
}

// Drain devuelve y vacía las propuestas pendientes, en orden de llegada.
func (q *ProposalQueue) Drain() []domain.Proposal {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len devuelve cuántas propuestas esperan.
func (q *ProposalQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
