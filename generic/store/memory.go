// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/storeops-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	entries     map[generic.EntityID][]generic.Entry
	idempotency map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		entries:     make(map[generic.EntityID][]generic.Entry),
		idempotency: make(map[string]bool),
	}
}

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, e generic.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.IdempotencyKey != "" && m.idempotency[e.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	m.appendLocked(e)
	return nil
}

// AppendBatch adds multiple entries atomically.
func (m *Memory) AppendBatch(_ context.Context, es []generic.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(es))
	for _, e := range es {
		if e.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[e.IdempotencyKey] || seen[e.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[e.IdempotencyKey] = true
	}

	for _, e := range es {
		m.appendLocked(e)
	}
	return nil
}

func (m *Memory) appendLocked(e generic.Entry) {
	es := m.entries[e.EntityID]

	// Keep entries ordered by CreatedAt; equal timestamps keep insertion order.
	i := sort.Search(len(es), func(i int) bool {
		return es[i].CreatedAt.After(e.CreatedAt)
	})

	es = append(es, generic.Entry{})
	copy(es[i+1:], es[i:])
	es[i] = e
	m.entries[e.EntityID] = es

	if e.IdempotencyKey != "" {
		m.idempotency[e.IdempotencyKey] = true
	}
}

func (m *Memory) Load(_ context.Context, entityID generic.EntityID) ([]generic.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.Entry, len(m.entries[entityID]))
	copy(result, m.entries[entityID])
	return result, nil
}

func (m *Memory) LoadRange(_ context.Context, entityID generic.EntityID, from, to time.Time) ([]generic.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Entry
	for _, e := range m.entries[entityID] {
		if !e.CreatedAt.Before(from) && !e.CreatedAt.After(to) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snap := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.entries = snap.entries
		tm.idempotency = snap.idempotency
		return err
	}
	return nil
}

type memorySnapshot struct {
	entries     map[generic.EntityID][]generic.Entry
	idempotency map[string]bool
}

func (tm *TxMemory) snapshot() memorySnapshot {
	es := make(map[generic.EntityID][]generic.Entry, len(tm.entries))
	for k, v := range tm.entries {
		es[k] = append([]generic.Entry{}, v...)
	}
	idem := make(map[string]bool, len(tm.idempotency))
	for k, v := range tm.idempotency {
		idem[k] = v
	}
	return memorySnapshot{entries: es, idempotency: idem}
}

// txMemoryView runs under the parent's write lock.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Append(_ context.Context, e generic.Entry) error {
	if e.IdempotencyKey != "" && tv.parent.idempotency[e.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	tv.parent.appendLocked(e)
	return nil
}

func (tv *txMemoryView) AppendBatch(ctx context.Context, es []generic.Entry) error {
	for _, e := range es {
		if err := tv.Append(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (tv *txMemoryView) Load(_ context.Context, entityID generic.EntityID) ([]generic.Entry, error) {
	return append([]generic.Entry{}, tv.parent.entries[entityID]...), nil
}

func (tv *txMemoryView) LoadRange(_ context.Context, entityID generic.EntityID, from, to time.Time) ([]generic.Entry, error) {
	var result []generic.Entry
	for _, e := range tv.parent.entries[entityID] {
		if !e.CreatedAt.Before(from) && !e.CreatedAt.After(to) {
			result = append(result, e)
		}
	}
	return result, nil
}

func (tv *txMemoryView) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return tv.parent.idempotency[idempotencyKey], nil
}
