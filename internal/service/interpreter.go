// Package service maps (domain, service) pairs onto entity state
// mutations.
package service

import (
	"go.uber.org/zap"

	"mockha/internal/entity"
)

// Outcome describes the effect of one service call on entity state.
type Outcome struct {
	EntityID string
	Changed  bool
	Old      entity.Entity
	New      entity.Entity
}

// Interpreter resolves service calls to entity mutations. Domains it
// does not simulate are accepted as no-ops: the caller still records
// the call, since the call record itself is often the thing under test.
type Interpreter struct {
	store  *entity.Store
	logger *zap.Logger
}

// NewInterpreter creates an interpreter backed by the given store.
func NewInterpreter(store *entity.Store, logger *zap.Logger) *Interpreter {
	return &Interpreter{store: store, logger: logger}
}

// Apply resolves the target entity from service_data and computes the
// new state value. Unrecognized (domain, service) pairs and unknown
// entities leave state untouched.
func (i *Interpreter) Apply(domain, svc string, data map[string]interface{}) Outcome {
	entityID, _ := data["entity_id"].(string)
	if entityID == "" {
		return Outcome{}
	}

	value, recognized := i.resolve(domain, svc, entityID, data)
	if !recognized {
		return Outcome{EntityID: entityID}
	}

	old, changed, err := i.store.SetState(entityID, value)
	if err != nil {
		i.logger.Warn("Service call targets unknown entity",
			zap.String("entity_id", entityID),
			zap.String("domain", domain),
			zap.String("service", svc))
		return Outcome{EntityID: entityID}
	}

	cur, _ := i.store.Get(entityID)
	return Outcome{EntityID: entityID, Changed: changed, Old: old, New: cur}
}

// resolve computes the new state value for a recognized (domain,
// service) pair.
func (i *Interpreter) resolve(domain, svc, entityID string, data map[string]interface{}) (entity.Value, bool) {
	switch domain {
	case "input_boolean", "switch", "light":
		switch svc {
		case "turn_on":
			return entity.Text("on"), true
		case "turn_off":
			return entity.Text("off"), true
		case "toggle":
			cur, ok := i.store.Get(entityID)
			if !ok {
				return entity.Text("on"), true
			}
			if s, _ := cur.State.AsText(); s == "on" {
				return entity.Text("off"), true
			}
			return entity.Text("on"), true
		}

	case "input_number":
		if svc == "set_value" {
			return entity.ValueFrom(data["value"]), true
		}

	case "input_text":
		if svc == "set_value" {
			return entity.ValueFrom(data["value"]), true
		}

	case "cover":
		switch svc {
		case "open_cover":
			return entity.Text("open"), true
		case "close_cover":
			return entity.Text("closed"), true
		}
	}

	return entity.Value{}, false
}
