package streamgw_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetctl/core/internal/bridge"
	"github.com/fleetctl/core/internal/streamgw"
)

func TestAttachReceivesRelayedBridgeEvents(t *testing.T) {
	b := bridge.New(bridge.ACPNormalizer{}, nil)
	gw := streamgw.New(b, nil, nil)
	gw.Relay("sess-1")

	ch, detach, err := gw.Attach(context.Background(), "sess-1")
	require.NoError(t, err)
	defer detach()

	b.Publish(context.Background(), "sess-1", bridge.Event{Kind: bridge.KindThought, SessionID: "sess-1", Text: "thinking..."})

	select {
	case evt := <-ch:
		assert.Equal(t, bridge.KindThought, evt.Kind)
		assert.Equal(t, "thinking...", evt.Text)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for relayed event")
	}
}

func TestAttachOnlyReceivesItsOwnSessionEvents(t *testing.T) {
	b := bridge.New(bridge.ACPNormalizer{}, nil)
	gw := streamgw.New(b, nil, nil)
	gw.Relay("sess-a")
	gw.Relay("sess-b")

	chA, detachA, err := gw.Attach(context.Background(), "sess-a")
	require.NoError(t, err)
	defer detachA()
	chB, detachB, err := gw.Attach(context.Background(), "sess-b")
	require.NoError(t, err)
	defer detachB()

	b.Publish(context.Background(), "sess-b", bridge.Event{Kind: bridge.KindCompleted, SessionID: "sess-b"})

	select {
	case evt := <-chB:
		assert.Equal(t, bridge.KindCompleted, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sess-b event")
	}

	select {
	case <-chA:
		t.Fatal("sess-a channel should not have received sess-b's event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopRelayClosesAttachedChannels(t *testing.T) {
	b := bridge.New(bridge.ACPNormalizer{}, nil)
	gw := streamgw.New(b, nil, nil)
	gw.Relay("sess-1")

	ch, _, err := gw.Attach(context.Background(), "sess-1")
	require.NoError(t, err)

	gw.StopRelay("sess-1")

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestRelayIsIdempotentPerSession(t *testing.T) {
	b := bridge.New(bridge.ACPNormalizer{}, nil)
	gw := streamgw.New(b, nil, nil)
	gw.Relay("sess-1")
	gw.Relay("sess-1")

	ch, detach, err := gw.Attach(context.Background(), "sess-1")
	require.NoError(t, err)
	defer detach()

	b.Publish(context.Background(), "sess-1", bridge.Event{Kind: bridge.KindStarted, SessionID: "sess-1"})

	select {
	case evt := <-ch:
		assert.Equal(t, bridge.KindStarted, evt.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case <-ch:
		t.Fatal("should not have received a duplicate event from a second Relay call")
	case <-time.After(50 * time.Millisecond):
	}
}
