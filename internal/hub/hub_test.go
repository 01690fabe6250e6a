package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mockha/internal/entity"
	"mockha/internal/ledger"
)

const testToken = "test_token_12345"

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	logger, _ := zap.NewDevelopment()
	store := entity.NewStore(logger)
	require.NoError(t, store.LoadFixtures("testdata/fixtures.json"))

	h := New(store, ledger.New(), logger, Config{
		AccessToken: testToken,
		HAVersion:   "2024.1.0",
	})

	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(server.Close)
	return h, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads one JSON frame with a deadline so a missing message
// fails the test instead of hanging it.
func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// authenticate runs the full handshake with the valid test token.
func authenticate(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	required := readFrame(t, conn)
	assert.Equal(t, "auth_required", required["type"])
	assert.Equal(t, "2024.1.0", required["ha_version"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":         "auth",
		"access_token": testToken,
	}))

	ok := readFrame(t, conn)
	require.Equal(t, "auth_ok", ok["type"])
	assert.Equal(t, "2024.1.0", ok["ha_version"])
}

func subscribe(t *testing.T, conn *websocket.Conn, id int, eventType *string) {
	t.Helper()

	msg := map[string]interface{}{"type": "subscribe_events", "id": id}
	if eventType != nil {
		msg["event_type"] = *eventType
	}
	require.NoError(t, conn.WriteJSON(msg))

	ack := readFrame(t, conn)
	require.Equal(t, "result", ack["type"])
	assert.Equal(t, float64(id), ack["id"])
	assert.Equal(t, true, ack["success"])

	// result is present and explicitly null
	result, present := ack["result"]
	require.True(t, present)
	assert.Nil(t, result)
}

func strPtr(s string) *string { return &s }

func TestAuthHandshake(t *testing.T) {
	h, server := newTestHub(t)
	conn := dial(t, server)
	authenticate(t, conn)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)
}

func TestAuthInvalidToken(t *testing.T) {
	h, server := newTestHub(t)
	conn := dial(t, server)

	readFrame(t, conn) // auth_required
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":         "auth",
		"access_token": "wrong_token",
	}))

	invalid := readFrame(t, conn)
	assert.Equal(t, "auth_invalid", invalid["type"])
	assert.Equal(t, "Invalid access token", invalid["message"])

	// Connection is torn down; nothing further is processed
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]interface{}
	assert.Error(t, conn.ReadJSON(&frame))

	require.Eventually(t, func() bool { return h.ClientCount() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestPreAuthMessageRejected(t *testing.T) {
	_, server := newTestHub(t)
	conn := dial(t, server)

	readFrame(t, conn) // auth_required

	// Anything other than a credential message before auth is terminal
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "ping",
		"id":   1,
	}))

	invalid := readFrame(t, conn)
	assert.Equal(t, "auth_invalid", invalid["type"])
}

func TestPingPong(t *testing.T) {
	_, server := newTestHub(t)
	conn := dial(t, server)
	authenticate(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "ping", "id": 42}))

	pong := readFrame(t, conn)
	assert.Equal(t, "pong", pong["type"])
	assert.Equal(t, float64(42), pong["id"])
}

func TestGetStates(t *testing.T) {
	_, server := newTestHub(t)
	conn := dial(t, server)
	authenticate(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "get_states", "id": 7}))

	resp := readFrame(t, conn)
	require.Equal(t, "result", resp["type"])
	assert.Equal(t, float64(7), resp["id"])
	assert.Equal(t, true, resp["success"])

	states, ok := resp["result"].([]interface{})
	require.True(t, ok)
	require.Len(t, states, 3)

	first := states[0].(map[string]interface{})
	assert.Equal(t, "switch.x", first["entity_id"])
	assert.Equal(t, "off", first["state"])
	assert.Equal(t, "Test Switch", first["attributes"].(map[string]interface{})["friendly_name"])
	assert.NotEmpty(t, first["last_changed"])
	assert.NotEmpty(t, first["last_updated"])

	// Numeric fixture state stays numeric on the wire
	level := states[2].(map[string]interface{})
	assert.Equal(t, float64(0), level["state"])
}

func TestServiceCallDeliversStateChanged(t *testing.T) {
	h, server := newTestHub(t)
	conn := dial(t, server)
	authenticate(t, conn)

	subscribe(t, conn, 1, nil)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "call_service",
		"id":      2,
		"domain":  "switch",
		"service": "turn_on",
		"service_data": map[string]interface{}{
			"entity_id": "switch.x",
		},
	}))

	// The change event is fanned out before the result is written
	eventFrame := readFrame(t, conn)
	require.Equal(t, "event", eventFrame["type"])

	event := eventFrame["event"].(map[string]interface{})
	assert.Equal(t, "state_changed", event["event_type"])
	assert.Equal(t, "LOCAL", event["origin"])
	assert.NotEmpty(t, event["time_fired"])

	data := event["data"].(map[string]interface{})
	assert.Equal(t, "switch.x", data["entity_id"])
	assert.Equal(t, "off", data["old_state"].(map[string]interface{})["state"])
	assert.Equal(t, "on", data["new_state"].(map[string]interface{})["state"])

	result := readFrame(t, conn)
	require.Equal(t, "result", result["type"])
	assert.Equal(t, float64(2), result["id"])
	assert.Equal(t, true, result["success"])

	payload := result["result"].(map[string]interface{})
	ctx := payload["context"].(map[string]interface{})
	assert.NotEmpty(t, ctx["id"])

	parentID, present := ctx["parent_id"]
	require.True(t, present)
	assert.Nil(t, parentID)
	userID, present := ctx["user_id"]
	require.True(t, present)
	assert.Nil(t, userID)

	// The call is ledgered
	calls := h.Calls("switch", "turn_on")
	require.Len(t, calls, 1)
	assert.Equal(t, "switch.x", calls[0].ServiceData["entity_id"])
}

func TestNoOpServiceCallEmitsNoEvent(t *testing.T) {
	h, server := newTestHub(t)
	conn := dial(t, server)
	authenticate(t, conn)

	subscribe(t, conn, 1, nil)

	// switch.x is already off; turn_off changes nothing
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "call_service",
		"id":      2,
		"domain":  "switch",
		"service": "turn_off",
		"service_data": map[string]interface{}{
			"entity_id": "switch.x",
		},
	}))

	result := readFrame(t, conn)
	assert.Equal(t, "result", result["type"])
	assert.Equal(t, float64(2), result["id"])

	assert.Len(t, h.Calls("switch", "turn_off"), 1)
}

func TestSubscriptionFilterMismatch(t *testing.T) {
	_, server := newTestHub(t)
	conn := dial(t, server)
	authenticate(t, conn)

	subscribe(t, conn, 1, strPtr("other_class"))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "call_service",
		"id":      2,
		"domain":  "input_boolean",
		"service": "turn_on",
		"service_data": map[string]interface{}{
			"entity_id": "input_boolean.test",
		},
	}))

	// No event for a state_changed class the filter excludes; the next
	// frame is the call result itself.
	result := readFrame(t, conn)
	assert.Equal(t, "result", result["type"])
	assert.Equal(t, float64(2), result["id"])
}

func TestSubscriptionFilterStateChanged(t *testing.T) {
	_, server := newTestHub(t)
	conn := dial(t, server)
	authenticate(t, conn)

	subscribe(t, conn, 1, strPtr("state_changed"))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "call_service",
		"id":      2,
		"domain":  "input_boolean",
		"service": "turn_on",
		"service_data": map[string]interface{}{
			"entity_id": "input_boolean.test",
		},
	}))

	eventFrame := readFrame(t, conn)
	assert.Equal(t, "event", eventFrame["type"])
}

func TestUnknownEntityCallRecordedWithoutEvent(t *testing.T) {
	h, server := newTestHub(t)
	conn := dial(t, server)
	authenticate(t, conn)

	subscribe(t, conn, 1, nil)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "call_service",
		"id":      2,
		"domain":  "switch",
		"service": "turn_on",
		"service_data": map[string]interface{}{
			"entity_id": "switch.ghost",
		},
	}))

	// Result arrives with no preceding event
	result := readFrame(t, conn)
	assert.Equal(t, "result", result["type"])
	assert.Equal(t, float64(2), result["id"])

	require.Len(t, h.Calls("switch", "turn_on"), 1)
	assert.Equal(t, 3, h.EntityCount())
}

func TestUnknownDomainCallLedgeredOnly(t *testing.T) {
	h, server := newTestHub(t)
	conn := dial(t, server)
	authenticate(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "call_service",
		"id":      3,
		"domain":  "notify",
		"service": "send_message",
		"service_data": map[string]interface{}{
			"message": "hello",
		},
	}))

	result := readFrame(t, conn)
	assert.Equal(t, "result", result["type"])
	assert.Equal(t, true, result["success"])

	require.Len(t, h.Calls("notify", "send_message"), 1)
}

func TestDisconnectInvalidatesSubscriptions(t *testing.T) {
	h, server := newTestHub(t)
	conn := dial(t, server)
	authenticate(t, conn)

	subscribe(t, conn, 1, nil)
	require.Equal(t, 1, h.registry.Len())

	conn.Close()

	require.Eventually(t, func() bool {
		return h.registry.Len() == 0 && h.ClientCount() == 0
	}, time.Second, 10*time.Millisecond)

	// A subsequent change has no dangling listeners to deliver to
	require.NoError(t, h.Inject("switch.x", entity.Text("on")))
}

func TestInjectDeliversUnconditionally(t *testing.T) {
	h, server := newTestHub(t)
	conn := dial(t, server)
	authenticate(t, conn)

	subscribe(t, conn, 1, nil)

	require.NoError(t, h.Inject("input_number.level", entity.Number(7)))

	eventFrame := readFrame(t, conn)
	require.Equal(t, "event", eventFrame["type"])
	data := eventFrame["event"].(map[string]interface{})["data"].(map[string]interface{})
	assert.Equal(t, float64(7), data["new_state"].(map[string]interface{})["state"])

	// Injection bypasses the change check: the same value fires again
	require.NoError(t, h.Inject("input_number.level", entity.Number(7)))
	eventFrame = readFrame(t, conn)
	assert.Equal(t, "event", eventFrame["type"])
}

func TestInjectUnknownEntity(t *testing.T) {
	h, _ := newTestHub(t)

	err := h.Inject("switch.ghost", entity.Text("on"))
	assert.Error(t, err)
	assert.Equal(t, 3, h.EntityCount())
}

func TestDeliveryFailureDoesNotAbortFanOut(t *testing.T) {
	h, _ := newTestHub(t)

	broken := &fakeSubscriber{name: "broken", fail: true}
	healthy := &fakeSubscriber{name: "healthy"}
	h.registry.Add(broken, 1, "")
	h.registry.Add(healthy, 2, "")

	require.NoError(t, h.Inject("switch.x", entity.Text("on")))

	assert.Empty(t, broken.frames)
	require.Len(t, healthy.frames, 1)
}

func TestUnknownMessageTypeIgnored(t *testing.T) {
	_, server := newTestHub(t)
	conn := dial(t, server)
	authenticate(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "bogus", "id": 9}))

	// Session survives; liveness ping still answered
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "ping", "id": 10}))
	pong := readFrame(t, conn)
	assert.Equal(t, "pong", pong["type"])
	assert.Equal(t, float64(10), pong["id"])
}

func TestMalformedJSONIgnored(t *testing.T) {
	_, server := newTestHub(t)
	conn := dial(t, server)
	authenticate(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "ping", "id": 11}))
	pong := readFrame(t, conn)
	assert.Equal(t, "pong", pong["type"])
}

func TestEndToEndSwitchTurnOn(t *testing.T) {
	h, server := newTestHub(t)
	conn := dial(t, server)
	authenticate(t, conn)

	subscribe(t, conn, 1, nil)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "call_service",
		"id":      2,
		"domain":  "switch",
		"service": "turn_on",
		"service_data": map[string]interface{}{
			"entity_id": "switch.x",
		},
	}))

	// Exactly one state_changed event, then the result, then silence
	eventFrame := readFrame(t, conn)
	require.Equal(t, "event", eventFrame["type"])
	data := eventFrame["event"].(map[string]interface{})["data"].(map[string]interface{})
	assert.Equal(t, "off", data["old_state"].(map[string]interface{})["state"])
	assert.Equal(t, "on", data["new_state"].(map[string]interface{})["state"])

	result := readFrame(t, conn)
	require.Equal(t, "result", result["type"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "ping", "id": 3}))
	pong := readFrame(t, conn)
	assert.Equal(t, "pong", pong["type"], "no extra event frames may precede the pong")

	e, ok := h.Entity("switch.x")
	require.True(t, ok)
	assert.True(t, e.State.Equal(entity.Text("on")))
}
