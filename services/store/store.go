// Package store keeps completed backtest results keyed by opaque ids with
// tag search, and renders them into CSV, JSON, tables and chart payloads
// without mutating the stored originals.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"strategy-backtest/services/engine"
	"strategy-backtest/services/metrics"
)

// Record is one stored result bundle.
type Record struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	Tags      []string        `json:"tags"`
	Result    *engine.Result  `json:"result"`
	Bundle    *metrics.Bundle `json:"metrics"`
}

// Store is the only component with shared state: a mutex-guarded map with
// append-mostly semantics. Writes to the same id are serialized; reads hand
// out copies so exporters cannot mutate stored data.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string // insertion order, oldest first
	clock   func() time.Time
}

func New() *Store {
	return &Store{
		records: make(map[string]*Record),
		clock:   time.Now,
	}
}

// Save stores a result under a fresh opaque id and returns it. The record
// is copied on the way in, so later caller mutations cannot reach the
// stored original.
func (s *Store) Save(res *engine.Result, bundle *metrics.Bundle, tags ...string) string {
	id := uuid.New().String()
	rec := (&Record{
		ID:        id,
		CreatedAt: s.clock(),
		Tags:      append([]string(nil), tags...),
		Result:    res,
		Bundle:    bundle,
	}).copy()
	s.mu.Lock()
	s.records[id] = rec
	s.order = append(s.order, id)
	s.mu.Unlock()
	return id
}

// Get returns a copy of the record.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("result %s not found", id)
	}
	return rec.copy(), nil
}

// List returns up to limit records, most recent first. limit <= 0 means all.
func (s *Store) List(limit int) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if rec, ok := s.records[s.order[i]]; ok {
			out = append(out, rec.copy())
		}
	}
	return out
}

// FindByTag returns every record carrying the tag, most recent first.
func (s *Store) FindByTag(tag string) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for i := len(s.order) - 1; i >= 0; i-- {
		rec, ok := s.records[s.order[i]]
		if !ok {
			continue
		}
		for _, t := range rec.Tags {
			if t == tag {
				out = append(out, rec.copy())
				break
			}
		}
	}
	return out
}

// Retag replaces a record's tags. Writes per id are serialized by the
// store lock, so two concurrent callers cannot interleave lost updates.
func (s *Store) Retag(id string, tags ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("result %s not found", id)
	}
	rec.Tags = append([]string(nil), tags...)
	return nil
}

// Delete removes a record.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("result %s not found", id)
	}
	delete(s.records, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len reports the stored record count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// copy deep-copies the record's mutable parts. The engine.Result payload is
// copied slice-by-slice; its elements are value types.
func (r *Record) copy() *Record {
	out := *r
	out.Tags = append([]string(nil), r.Tags...)
	if r.Result != nil {
		res := *r.Result
		res.Trades = append([]engine.Trade(nil), r.Result.Trades...)
		res.EquityCurve = append([]engine.EquityPoint(nil), r.Result.EquityCurve...)
		res.DrawdownCurve = append([]engine.DrawdownPoint(nil), r.Result.DrawdownCurve...)
		res.Events.Events = append([]engine.Event(nil), r.Result.Events.Events...)
		out.Result = &res
	}
	if r.Bundle != nil {
		b := *r.Bundle
		out.Bundle = &b
	}
	return &out
}
