// Package store provides an in-memory approval.Store.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/approval-engine/approval"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[key]approval.Record
}

type key struct {
	Kind string
	ID   approval.RecordID
}

func NewMemory() *Memory {
	return &Memory{records: make(map[key]approval.Record)}
}

func (m *Memory) Save(_ context.Context, rec approval.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveLocked(rec)
	return nil
}

func (m *Memory) saveLocked(rec approval.Record) {
	m.records[key{Kind: rec.Kind.KindID(), ID: rec.ID}] = rec.Clone()
}

func (m *Memory) Get(_ context.Context, kind approval.Kind, id approval.RecordID) (approval.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(kind, id)
}

func (m *Memory) getLocked(kind approval.Kind, id approval.RecordID) (approval.Record, error) {
	rec, ok := m.records[key{Kind: kind.KindID(), ID: id}]
	if !ok {
		return approval.Record{}, approval.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (m *Memory) List(_ context.Context, kind approval.Kind, f approval.Filter) ([]approval.Record, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(kind, f)
}

func (m *Memory) listLocked(kind approval.Kind, f approval.Filter) ([]approval.Record, int, error) {
	var matched []approval.Record
	for k, rec := range m.records {
		if k.Kind != kind.KindID() {
			continue
		}
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if f.ManagerID != "" && rec.ManagerID != f.ManagerID {
			continue
		}
		if f.EmployeeID != "" && rec.EmployeeID != f.EmployeeID {
			continue
		}
		matched = append(matched, rec.Clone())
	}

	// Newest first, ID as tie-breaker for a stable page order.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	start := f.Offset
	if start > total {
		start = total
	}
	end := total
	if f.Limit > 0 && start+f.Limit < end {
		end = start + f.Limit
	}
	return matched[start:end], total, nil
}

func (m *Memory) CountByStatus(_ context.Context, kind approval.Kind) (map[approval.Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[approval.Status]int)
	for k, rec := range m.records {
		if k.Kind == kind.KindID() {
			out[rec.Status]++
		}
	}
	return out, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[key]approval.Record)
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction, simulated with a snapshot and a
// rollback on error. The store stays locked for the duration of fn.
func (m *Memory) WithTx(_ context.Context, fn func(approval.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[key]approval.Record, len(m.records))
	for k, v := range m.records {
		snapshot[k] = v
	}

	if err := fn(&txView{parent: m}); err != nil {
		m.records = snapshot
		return err
	}
	return nil
}

type txView struct {
	parent *Memory
}

func (tv *txView) Save(_ context.Context, rec approval.Record) error {
	tv.parent.saveLocked(rec)
	return nil
}

func (tv *txView) Get(_ context.Context, kind approval.Kind, id approval.RecordID) (approval.Record, error) {
	return tv.parent.getLocked(kind, id)
}

func (tv *txView) List(_ context.Context, kind approval.Kind, f approval.Filter) ([]approval.Record, int, error) {
	return tv.parent.listLocked(kind, f)
}
