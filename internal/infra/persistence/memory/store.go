// Package memory provides an in-memory row store used for the demo dataset,
// tests and ephemeral environments.
package memory

import (
	"context"
	"sync"
	"time"

	"dashcore/pkg/reportapi"
)

// Snapshot is the full persisted state of a row store.
type Snapshot struct {
	Rows      []reportapi.Row `json:"rows"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Store keeps rows behind a RWMutex. Reads return deep copies.
type Store struct {
	mu        sync.RWMutex
	rows      []reportapi.Row
	updatedAt time.Time
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) Rows(context.Context) ([]reportapi.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRows(s.rows), nil
}

func (s *Store) UpdatedAt(context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt, nil
}

// Replace swaps the full row set.
func (s *Store) Replace(_ context.Context, rows []reportapi.Row, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = cloneRows(rows)
	s.updatedAt = updatedAt.UTC()
	return nil
}

// ExportState returns a copy of the current state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Rows: cloneRows(s.rows), UpdatedAt: s.updatedAt}
}

// ImportState replaces the current state with snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = cloneRows(snapshot.Rows)
	s.updatedAt = snapshot.UpdatedAt.UTC()
}

func cloneRows(rows []reportapi.Row) []reportapi.Row {
	out := make([]reportapi.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
