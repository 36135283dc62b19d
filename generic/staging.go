/*
staging.go - Two-phase staged state

PURPOSE:
  User edits during a reconciliation (counting cash, scanning items) are
  provisional until an external write succeeds. Staged keeps the edits in
  a working copy separate from the committed value:

    Stage    -> edit the working copy
    Commit   -> working copy becomes the committed value
    Rollback -> working copy is reset from the committed value

  There is no partial commit. A failed external write simply skips Commit
  and the working copy is still there for a retry.

CLONING:
  The zero value is not usable; construct with NewStaged and a clone func so
  slices and maps inside T are never shared between committed and working.
*/
package generic

import "sync"

// Staged holds a committed value and a working copy of it.
type Staged[T any] struct {
	mu        sync.Mutex
	committed T
	working   T
	dirty     bool
	clone     func(T) T
}

// NewStaged returns a Staged whose committed and working values are clones
// of initial. A nil clone copies T by value.
func NewStaged[T any](initial T, clone func(T) T) *Staged[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Staged[T]{
		committed: clone(initial),
		working:   clone(initial),
		clone:     clone,
	}
}

// Stage applies fn to the working copy.
func (s *Staged[T]) Stage(fn func(*T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.working)
	s.dirty = true
}

// Working returns a clone of the working copy.
func (s *Staged[T]) Working() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clone(s.working)
}

// Committed returns a clone of the committed value.
func (s *Staged[T]) Committed() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clone(s.committed)
}

// Dirty reports whether the working copy has staged edits.
func (s *Staged[T]) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Commit promotes the working copy.
func (s *Staged[T]) Commit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = s.clone(s.working)
	s.dirty = false
}

// Rollback discards every staged edit.
func (s *Staged[T]) Rollback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.working = s.clone(s.committed)
	s.dirty = false
}
