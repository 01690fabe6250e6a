// Package entity tracks the simulated device states the hub serves.
// Entities are created once at fixture load time and mutated only
// through SetState (service calls) or ForceState (test injection).
package entity

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mockha/internal/clock"
)

// Entity represents a simulated Home Assistant entity.
type Entity struct {
	EntityID    string                 `json:"entity_id"`
	State       Value                  `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
}

// Store holds all entities. Listing preserves fixture load order so
// get_states responses are stable across runs.
type Store struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	order    []string
	clk      clock.Clock
	logger   *zap.Logger
}

// NewStore creates an empty entity store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		entities: make(map[string]*Entity),
		clk:      clock.NewRealClock(),
		logger:   logger,
	}
}

// SetClock replaces the store's time source. Intended for tests.
func (s *Store) SetClock(clk clock.Clock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clk = clk
}

// add registers a new entity. Only the fixture loader creates entities.
func (s *Store) add(id string, state Value, attributes map[string]interface{}) {
	if attributes == nil {
		attributes = make(map[string]interface{})
	}

	now := s.clk.Now()
	s.entities[id] = &Entity{
		EntityID:    id,
		State:       state,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}
	s.order = append(s.order, id)
}

// Get returns a snapshot of the entity with the given ID.
func (s *Store) Get(id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// List returns snapshots of all entities in load order.
func (s *Store) List() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.entities[id])
	}
	return out
}

// Len returns the number of entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// SetState updates an entity's state value. last_updated always
// advances; last_changed advances only when the new value differs from
// the current one. Returns the pre-mutation snapshot and whether the
// value actually changed.
func (s *Store) SetState(id string, value Value) (Entity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return Entity{}, false, fmt.Errorf("entity %s not found", id)
	}

	old := *e
	now := s.clk.Now()

	e.LastUpdated = now
	changed := !value.Equal(e.State)
	if changed {
		e.State = value
		e.LastChanged = now
	}

	return old, changed, nil
}

// ForceState overwrites an entity's state unconditionally: both
// timestamps advance even when the value is unchanged. This is the
// injection path used by the control API.
func (s *Store) ForceState(id string, value Value) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return Entity{}, fmt.Errorf("entity %s not found", id)
	}

	old := *e
	now := s.clk.Now()

	e.State = value
	e.LastUpdated = now
	e.LastChanged = now

	return old, nil
}
