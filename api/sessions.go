package api

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/storeops-engine/generic"
	"github.com/warp/storeops-engine/receiving"
	"github.com/warp/storeops-engine/shift"
)

// =============================================================================
// SESSION REGISTRY
// =============================================================================

// wizard is what the registry needs from a reconciler to expire it.
type wizard interface {
	InFlight() bool
	Cancel() error
}

type closeSession struct {
	ID      string
	ShiftID string
	*shift.Reconciler
}

type receivingSession struct {
	ID         string
	ShipmentID string
	*receiving.Reconciler
}

type sessionEntry[T wizard] struct {
	value    T
	lastSeen time.Time
}

// Registry holds live wizard sessions keyed by a generated id. Every Get
// refreshes the idle timer.
type Registry[T wizard] struct {
	mu    sync.Mutex
	items map[string]*sessionEntry[T]
	clock generic.Clock
}

func NewRegistry[T wizard](clock generic.Clock) *Registry[T] {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Registry[T]{items: make(map[string]*sessionEntry[T]), clock: clock}
}

// NewID returns a fresh session id.
func NewID() string { return uuid.NewString() }

func (r *Registry[T]) Put(id string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[id] = &sessionEntry[T]{value: v, lastSeen: r.clock.Now()}
}

func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	e.lastSeen = r.clock.Now()
	return e.value, true
}

func (r *Registry[T]) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// FindOrPut returns the first session matching pred, or stores the one
// create builds. Both run under one lock so concurrent starts for the same
// record share a session. create runs with the registry locked and must
// not call back into it.
func (r *Registry[T]) FindOrPut(pred func(T) bool, create func() (string, T, error)) (string, T, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.items {
		if pred(e.value) {
			e.lastSeen = r.clock.Now()
			return id, e.value, false, nil
		}
	}
	id, v, err := create()
	if err != nil {
		var zero T
		return "", zero, false, err
	}
	r.items[id] = &sessionEntry[T]{value: v, lastSeen: r.clock.Now()}
	return id, v, true, nil
}

// Expire removes sessions idle for longer than ttl, discarding their staged
// edits. A session with a submission in flight is skipped until it settles.
// It returns the removed ids.
func (r *Registry[T]) Expire(ttl time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-ttl)
	var removed []string
	for id, e := range r.items {
		if !e.lastSeen.Before(cutoff) || e.value.InFlight() {
			continue
		}
		if err := e.value.Cancel(); err != nil && !errors.Is(err, generic.ErrTerminal) {
			continue
		}
		delete(r.items, id)
		removed = append(removed, id)
	}
	return removed
}
