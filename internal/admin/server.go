// Package admin exposes the HTTP control surface tests use to drive
// the mock hub: injecting state changes, reading recorded service
// calls and inspecting entities.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mockha/internal/entity"
	"mockha/internal/hub"
	"mockha/internal/ledger"
)

// Server holds the admin handlers.
type Server struct {
	hub    *hub.Hub
	logger *zap.Logger
}

// NewServer creates an admin server around the given hub.
func NewServer(h *hub.Hub, logger *zap.Logger) *Server {
	return &Server{hub: h, logger: logger}
}

// Register mounts the admin routes on the given router.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Post("/events", s.handleInjectEvent)
	r.Get("/calls", s.handleGetCalls)
	r.Get("/entities/{id}", s.handleGetEntity)
	r.Post("/reset", s.handleReset)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// handleHealth reports liveness plus connected client and entity
// counts.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"connected_clients": s.hub.ClientCount(),
		"entities":          s.hub.EntityCount(),
	})
}

// injectRequest is the body of POST /events.
type injectRequest struct {
	EntityID string       `json:"entity_id"`
	NewState entity.Value `json:"new_state"`
}

// handleInjectEvent forces a state mutation and event emission,
// bypassing the command interpreter. An unknown entity is logged and
// reported as success with no effect, matching what clients under test
// expect from the hub they cannot see inside.
func (s *Server) handleInjectEvent(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Error("Invalid inject request", zap.Error(err))
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	if err := s.hub.Inject(req.EntityID, req.NewState); err != nil {
		s.logger.Warn("Cannot inject event for unknown entity",
			zap.String("entity_id", req.EntityID))
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handleGetCalls returns recorded service calls, optionally filtered by
// domain and service query parameters.
func (s *Server) handleGetCalls(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	svc := r.URL.Query().Get("service")

	calls := s.hub.Calls(domain, svc)
	if calls == nil {
		calls = []ledger.Call{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"calls": calls})
}

// handleGetEntity returns a single entity snapshot.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	e, ok := s.hub.Entity(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error": "Entity not found",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, e)
}

// handleReset clears the call ledger. Entity state is untouched.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.hub.ResetCalls()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
