package telehealth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionFiltersByType(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventChatMessage)
	defer sub.Close()

	bus.Publish(Event{Type: EventSessionCreated, SessionID: "a"})
	bus.Publish(Event{Type: EventChatMessage, SessionID: "b"})

	event := <-sub.C()
	assert.Equal(t, EventChatMessage, event.Type)
	assert.Equal(t, "b", event.SessionID)

	select {
	case extra, ok := <-sub.C():
		if ok {
			t.Fatalf("unexpected event %v", extra.Type)
		}
	default:
	}
}

func TestSubscriptionWithoutTypesReceivesAll(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	defer sub.Close()

	bus.Publish(Event{Type: EventSessionCreated})
	bus.Publish(Event{Type: EventParticipantJoined})

	first := <-sub.C()
	second := <-sub.C()
	assert.Equal(t, EventSessionCreated, first.Type)
	assert.Equal(t, EventParticipantJoined, second.Type)
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(EventStatsUpdate)
	defer sub.Close()

	// Overflow the buffer without draining; Publish must return regardless.
	for i := 0; i < 200; i++ {
		bus.Publish(Event{Type: EventStatsUpdate})
	}

	drained := 0
	for {
		select {
		case <-sub.C():
			drained++
			continue
		default:
		}
		break
	}
	assert.LessOrEqual(t, drained, 64)
	assert.Greater(t, drained, 0)
}

func TestCloseRemovesSubscription(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	sub.Close()
	sub.Close()

	bus.Publish(Event{Type: EventSessionCreated})

	_, ok := <-sub.C()
	require.False(t, ok)
}
