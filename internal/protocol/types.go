// Package protocol defines the WebSocket message frames exchanged with
// clients. The shapes mirror the Home Assistant WebSocket API closely
// enough that a real client library cannot tell the difference.
package protocol

import (
	"time"

	"mockha/internal/entity"
)

// Message is the base frame used to sniff the type and correlation id
// of an inbound request before full decoding.
type Message struct {
	ID   int    `json:"id,omitempty"`
	Type string `json:"type"`
}

// AuthRequired is sent to a client immediately after connect.
type AuthRequired struct {
	Type      string `json:"type"`
	HAVersion string `json:"ha_version"`
}

// Auth is the client's credential message.
type Auth struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

// AuthOK acknowledges successful authentication.
type AuthOK struct {
	Type      string `json:"type"`
	HAVersion string `json:"ha_version"`
}

// AuthInvalid rejects authentication. The connection is closed after
// sending it.
type AuthInvalid struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SubscribeEvents registers an event subscription. A nil EventType
// matches every event class.
type SubscribeEvents struct {
	ID        int     `json:"id"`
	Type      string  `json:"type"`
	EventType *string `json:"event_type"`
}

// CallService invokes a service on the hub.
type CallService struct {
	ID          int                    `json:"id"`
	Type        string                 `json:"type"`
	Domain      string                 `json:"domain"`
	Service     string                 `json:"service"`
	ServiceData map[string]interface{} `json:"service_data"`
}

// Result is the generic response frame. The correlation id echoes the
// request's id verbatim. Result is always present, as an explicit null
// when there is no payload.
type Result struct {
	ID      int         `json:"id"`
	Type    string      `json:"type"`
	Success bool        `json:"success"`
	Result  interface{} `json:"result"`
}

// Pong answers a liveness ping.
type Pong struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

// Context identifies a service call in result payloads. ParentID and
// UserID are always serialized, as nulls, matching the real API.
type Context struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parent_id"`
	UserID   *string `json:"user_id"`
}

// CallServiceResult is the result payload for a call_service request.
type CallServiceResult struct {
	Context Context `json:"context"`
}

// EventFrame is an unsolicited event delivery.
type EventFrame struct {
	Type  string `json:"type"`
	Event Event  `json:"event"`
}

// Event carries one fired event.
type Event struct {
	EventType string      `json:"event_type"`
	Data      interface{} `json:"data"`
	Origin    string      `json:"origin"`
	TimeFired time.Time   `json:"time_fired"`
}

// StateChangedData is the payload of a state_changed event: the full
// entity snapshots before and after the transition.
type StateChangedData struct {
	EntityID string        `json:"entity_id"`
	OldState entity.Entity `json:"old_state"`
	NewState entity.Entity `json:"new_state"`
}

// EventStateChanged is the event class fired on entity state
// transitions.
const EventStateChanged = "state_changed"
