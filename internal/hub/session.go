package hub

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mockha/internal/protocol"
)

// sessionState tracks where a connection is in its lifecycle.
type sessionState int

const (
	stateAwaitingAuth sessionState = iota
	stateAuthenticated
	stateClosed
)

// Session is one client connection's state machine. It owns the read
// loop; writes from other goroutines (event fan-out) are serialized by
// the write mutex.
type Session struct {
	hub     *Hub
	conn    *websocket.Conn
	logger  *zap.Logger
	writeMu sync.Mutex
	state   sessionState
}

func newSession(h *Hub, conn *websocket.Conn) *Session {
	return &Session{
		hub:    h,
		conn:   conn,
		logger: h.logger.With(zap.String("remote_addr", conn.RemoteAddr().String())),
		state:  stateAwaitingAuth,
	}
}

// Send writes one JSON frame to the client.
func (s *Session) Send(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// run drives the session until the transport closes.
func (s *Session) run() {
	defer s.close()

	if err := s.Send(protocol.AuthRequired{Type: "auth_required", HAVersion: s.hub.haVersion}); err != nil {
		s.logger.Warn("Failed to send auth_required", zap.Error(err))
		return
	}

	if !s.authenticate() {
		return
	}
	s.state = stateAuthenticated

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Debug("Connection closed", zap.Error(err))
			return
		}
		s.handleMessage(raw)
	}
}

// authenticate reads the client's first frame and validates the token.
// Anything other than a credential message carrying the configured
// token is terminal: the client gets auth_invalid and the connection is
// torn down with no retry.
func (s *Session) authenticate() bool {
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		s.logger.Debug("Connection closed before auth", zap.Error(err))
		return false
	}

	var auth protocol.Auth
	if err := json.Unmarshal(raw, &auth); err != nil || auth.Type != "auth" || auth.AccessToken != s.hub.token {
		s.logger.Warn("Client failed authentication")
		if err := s.Send(protocol.AuthInvalid{Type: "auth_invalid", Message: "Invalid access token"}); err != nil {
			s.logger.Debug("Failed to send auth_invalid", zap.Error(err))
		}
		return false
	}

	if err := s.Send(protocol.AuthOK{Type: "auth_ok", HAVersion: s.hub.haVersion}); err != nil {
		s.logger.Warn("Failed to send auth_ok", zap.Error(err))
		return false
	}

	s.logger.Info("Client authenticated")
	return true
}

// handleMessage dispatches one inbound frame. Malformed payloads and
// unknown message types are logged and otherwise ignored; the session
// keeps running.
func (s *Session) handleMessage(raw []byte) {
	var base protocol.Message
	if err := json.Unmarshal(raw, &base); err != nil {
		s.logger.Error("Invalid JSON from client", zap.Error(err))
		return
	}

	switch base.Type {
	case "subscribe_events":
		s.handleSubscribeEvents(raw)
	case "call_service":
		s.handleCallService(raw)
	case "get_states":
		s.handleGetStates(base.ID)
	case "ping":
		if err := s.Send(protocol.Pong{ID: base.ID, Type: "pong"}); err != nil {
			s.logger.Warn("Failed to send pong", zap.Error(err))
		}
	default:
		s.logger.Warn("Unknown message type", zap.String("type", base.Type))
	}
}

func (s *Session) handleSubscribeEvents(raw []byte) {
	var req protocol.SubscribeEvents
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Error("Invalid subscribe_events request", zap.Error(err))
		return
	}

	eventType := ""
	if req.EventType != nil {
		eventType = *req.EventType
	}
	s.hub.registry.Add(s, req.ID, eventType)

	if err := s.Send(protocol.Result{ID: req.ID, Type: "result", Success: true}); err != nil {
		s.logger.Warn("Failed to send subscribe ack", zap.Error(err))
		return
	}

	s.logger.Info("Client subscribed", zap.String("event_type", eventType))
}

func (s *Session) handleCallService(raw []byte) {
	var req protocol.CallService
	if err := json.Unmarshal(raw, &req); err != nil {
		s.logger.Error("Invalid call_service request", zap.Error(err))
		return
	}
	if req.ServiceData == nil {
		req.ServiceData = make(map[string]interface{})
	}

	s.logger.Info("Service call",
		zap.String("domain", req.Domain),
		zap.String("service", req.Service),
		zap.Any("service_data", req.ServiceData))

	s.hub.ApplyService(req.Domain, req.Service, req.ServiceData)

	result := protocol.CallServiceResult{
		Context: protocol.Context{ID: uuid.NewString()},
	}
	if err := s.Send(protocol.Result{ID: req.ID, Type: "result", Success: true, Result: result}); err != nil {
		s.logger.Warn("Failed to send call_service result", zap.Error(err))
	}
}

func (s *Session) handleGetStates(id int) {
	states := s.hub.store.List()
	if err := s.Send(protocol.Result{ID: id, Type: "result", Success: true, Result: states}); err != nil {
		s.logger.Warn("Failed to send states", zap.Error(err))
	}
}

// close tears the session down: the client registry forgets it and all
// of its subscriptions are invalidated.
func (s *Session) close() {
	if s.state == stateAuthenticated {
		s.logger.Info("Client disconnected")
	}
	s.state = stateClosed
	s.hub.removeSession(s)
	s.conn.Close()
}
