package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fleetctl/core/internal/adapter"
	"github.com/fleetctl/core/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notif(t *testing.T, sessionUpdate string, fields map[string]any) adapter.Notification {
	t.Helper()
	u := map[string]any{"sessionUpdate": sessionUpdate}
	for k, v := range fields {
		u[k] = v
	}
	params, err := json.Marshal(map[string]any{"update": u})
	require.NoError(t, err)
	return adapter.Notification{Method: "session/update", Params: params}
}

func TestHandleNotificationOrdersEventsPerSession(t *testing.T) {
	log, _, _ := telemetry.Noop()
	b := New(ACPNormalizer{}, log)

	var got []Event
	unsub := b.Subscribe("sess-1", func(e Event) { got = append(got, e) })
	defer unsub()

	b.HandleNotification(context.Background(), "sess-1", notif(t, "agent_thought_chunk", map[string]any{"text": "thinking"}))
	b.HandleNotification(context.Background(), "sess-1", notif(t, "agent_message_chunk", map[string]any{"text": "hello"}))
	b.HandleNotification(context.Background(), "sess-1", notif(t, "completed", map[string]any{"stopReason": "end_turn"}))

	require.Len(t, got, 3)
	assert.Equal(t, KindThought, got[0].Kind)
	assert.Equal(t, KindOutputChunk, got[1].Kind)
	assert.Equal(t, KindCompleted, got[2].Kind)
	assert.Equal(t, int64(1), got[0].Seq)
	assert.Equal(t, int64(2), got[1].Seq)
	assert.Equal(t, int64(3), got[2].Seq)
}

func TestSubscriberPanicIsIsolated(t *testing.T) {
	log, _, _ := telemetry.Noop()
	b := New(ACPNormalizer{}, log)

	var healthyCount int
	b.Subscribe("sess-1", func(e Event) { panic("boom") })
	b.Subscribe("sess-1", func(e Event) { healthyCount++ })

	b.HandleNotification(context.Background(), "sess-1", notif(t, "agent_message_chunk", map[string]any{"text": "hi"}))
	b.HandleNotification(context.Background(), "sess-1", notif(t, "agent_message_chunk", map[string]any{"text": "again"}))

	assert.Equal(t, 2, healthyCount)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	log, _, _ := telemetry.Noop()
	b := New(ACPNormalizer{}, log)

	var count int
	unsub := b.Subscribe("sess-1", func(e Event) { count++ })
	b.HandleNotification(context.Background(), "sess-1", notif(t, "agent_message_chunk", map[string]any{"text": "a"}))
	unsub()
	b.HandleNotification(context.Background(), "sess-1", notif(t, "agent_message_chunk", map[string]any{"text": "b"}))

	assert.Equal(t, 1, count)
}

func TestSessionsAreIndependent(t *testing.T) {
	log, _, _ := telemetry.Noop()
	b := New(ACPNormalizer{}, log)

	var a, bEvents []Event
	b.Subscribe("sess-a", func(e Event) { a = append(a, e) })
	b.Subscribe("sess-b", func(e Event) { bEvents = append(bEvents, e) })

	b.HandleNotification(context.Background(), "sess-a", notif(t, "agent_message_chunk", map[string]any{"text": "a1"}))

	assert.Len(t, a, 1)
	assert.Empty(t, bEvents)
}

func TestIsTerminalUpdate(t *testing.T) {
	assert.True(t, IsTerminalUpdate(notif(t, "completed", nil)))
	assert.True(t, IsTerminalUpdate(notif(t, "ended", nil)))
	assert.False(t, IsTerminalUpdate(notif(t, "agent_message_chunk", nil)))
}
