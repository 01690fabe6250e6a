// Package hub implements the stateful event/subscription protocol
// engine: it authenticates client connections, dispatches their
// requests, mutates entity state through the command interpreter and
// fans out state_changed events to subscribers.
package hub

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mockha/internal/clock"
	"mockha/internal/entity"
	"mockha/internal/ledger"
	"mockha/internal/protocol"
	"mockha/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Config carries the hub's protocol settings.
type Config struct {
	AccessToken string
	HAVersion   string
}

// Hub bundles the shared state: entity store, command interpreter,
// call ledger, subscription registry and the set of live sessions.
// There is no package-level singleton; everything hangs off one
// constructed Hub.
type Hub struct {
	store    *entity.Store
	interp   *service.Interpreter
	ledger   *ledger.Ledger
	registry *Registry
	logger   *zap.Logger
	clk      clock.Clock

	token     string
	haVersion string

	// mu makes "mutate entity + record call + fan out events" one
	// atomic unit per command, the invariant subscribers rely on.
	mu sync.Mutex

	sessMu   sync.Mutex
	sessions map[*Session]struct{}
}

// New creates a hub around the given store and ledger.
func New(store *entity.Store, led *ledger.Ledger, logger *zap.Logger, cfg Config) *Hub {
	return &Hub{
		store:     store,
		interp:    service.NewInterpreter(store, logger),
		ledger:    led,
		registry:  NewRegistry(),
		logger:    logger,
		clk:       clock.NewRealClock(),
		token:     cfg.AccessToken,
		haVersion: cfg.HAVersion,
		sessions:  make(map[*Session]struct{}),
	}
}

// SetClock replaces the hub's time source. Intended for tests.
func (h *Hub) SetClock(clk clock.Clock) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clk = clk
}

// HandleWebSocket upgrades an HTTP request and runs the connection's
// session until it closes.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	s := newSession(h, conn)
	h.sessMu.Lock()
	h.sessions[s] = struct{}{}
	h.sessMu.Unlock()

	h.logger.Info("New WebSocket connection",
		zap.String("remote_addr", conn.RemoteAddr().String()))

	s.run()
}

// removeSession forgets a closed session and invalidates its
// subscriptions.
func (h *Hub) removeSession(s *Session) {
	h.sessMu.Lock()
	delete(h.sessions, s)
	h.sessMu.Unlock()

	h.registry.RemoveAll(s)
}

// ApplyService records and applies one service call as a single atomic
// unit: the call is ledgered unconditionally, the interpreter resolves
// any state mutation, and a resulting change is fanned out to
// subscribers before the next command can interleave.
func (h *Hub) ApplyService(domain, svc string, data map[string]interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ledger.Record(domain, svc, data)

	out := h.interp.Apply(domain, svc, data)
	if out.Changed {
		h.broadcastStateChanged(out.EntityID, out.Old, out.New)
	}
}

// Inject forces a state change and emits the event unconditionally,
// bypassing the command interpreter. This is the control API's path
// for simulating external state transitions.
func (h *Hub) Inject(entityID string, value entity.Value) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	old, err := h.store.ForceState(entityID, value)
	if err != nil {
		return err
	}

	cur, _ := h.store.Get(entityID)
	h.broadcastStateChanged(entityID, old, cur)

	h.logger.Info("Injected state change",
		zap.String("entity_id", entityID),
		zap.String("new_state", value.String()))
	return nil
}

// broadcastStateChanged delivers a state_changed event to every
// matching subscriber in registration order. Delivery is best-effort:
// one subscriber's failure never aborts the rest, nor the command that
// triggered the event.
func (h *Hub) broadcastStateChanged(entityID string, oldState, newState entity.Entity) {
	frame := protocol.EventFrame{
		Type: "event",
		Event: protocol.Event{
			EventType: protocol.EventStateChanged,
			Data: protocol.StateChangedData{
				EntityID: entityID,
				OldState: oldState,
				NewState: newState,
			},
			Origin:    "LOCAL",
			TimeFired: h.clk.Now(),
		},
	}

	for _, sub := range h.registry.Matching(protocol.EventStateChanged) {
		if err := sub.Send(frame); err != nil {
			h.logger.Error("Failed to send event",
				zap.String("entity_id", entityID),
				zap.Error(err))
		}
	}
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.sessMu.Lock()
	defer h.sessMu.Unlock()
	return len(h.sessions)
}

// EntityCount returns the number of entities in the store.
func (h *Hub) EntityCount() int {
	return h.store.Len()
}

// Entity returns a snapshot of one entity.
func (h *Hub) Entity(id string) (entity.Entity, bool) {
	return h.store.Get(id)
}

// Calls returns recorded service calls filtered by optional domain and
// service.
func (h *Hub) Calls(domain, svc string) []ledger.Call {
	return h.ledger.Query(domain, svc)
}

// ResetCalls clears the call ledger. Entity state is untouched.
func (h *Hub) ResetCalls() {
	h.ledger.Clear()
	h.logger.Info("Cleared recorded service calls")
}

// Close tears down every live session.
func (h *Hub) Close() {
	h.sessMu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessMu.Unlock()

	for _, s := range sessions {
		s.conn.Close()
	}
}
