package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockha/internal/clock"
)

func newTestLedger() (*Ledger, *clock.MockClock) {
	l := New()
	clk := clock.NewMockClock(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	l.SetClock(clk)
	return l, clk
}

func TestRecordAndQuery(t *testing.T) {
	l, clk := newTestLedger()

	l.Record("input_boolean", "turn_on", map[string]interface{}{"entity_id": "input_boolean.a"})
	clk.Advance(time.Second)
	l.Record("input_number", "set_value", map[string]interface{}{"entity_id": "input_number.b", "value": 5.0})
	clk.Advance(time.Second)
	l.Record("input_boolean", "turn_off", map[string]interface{}{"entity_id": "input_boolean.a"})

	assert.Equal(t, 3, l.Len())

	// No filter returns everything in append order
	all := l.Query("", "")
	require.Len(t, all, 3)
	assert.Equal(t, "turn_on", all[0].Service)
	assert.Equal(t, "set_value", all[1].Service)
	assert.Equal(t, "turn_off", all[2].Service)
	assert.True(t, all[0].Timestamp.Before(all[2].Timestamp))

	// Domain filter
	bools := l.Query("input_boolean", "")
	require.Len(t, bools, 2)
	assert.Equal(t, "turn_on", bools[0].Service)
	assert.Equal(t, "turn_off", bools[1].Service)

	// Service filter
	sets := l.Query("", "set_value")
	require.Len(t, sets, 1)
	assert.Equal(t, "input_number", sets[0].Domain)

	// Both filters
	require.Len(t, l.Query("input_boolean", "turn_on"), 1)
	assert.Empty(t, l.Query("input_boolean", "set_value"))
}

func TestClear(t *testing.T) {
	l, _ := newTestLedger()

	l.Record("notify", "send", map[string]interface{}{"message": "hi"})
	require.Equal(t, 1, l.Len())

	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Query("", ""))
}
