package telehealth

import (
	"sync"

	"github.com/saeid-a/TeleClinicBack/internal/models"
)

type EventType string

const (
	EventSessionCreated        EventType = "sessionCreated"
	EventParticipantJoined     EventType = "participantJoined"
	EventParticipantLeft       EventType = "participantLeft"
	EventRemoteStream          EventType = "remoteStream"
	EventConnectionStateChange EventType = "connectionStateChange"
	EventStatsUpdate           EventType = "statsUpdate"
	EventRecordingStarted      EventType = "recordingStarted"
	EventRecordingStopped      EventType = "recordingStopped"
	EventRecordingCompleted    EventType = "recordingCompleted"
	EventScreenShareStarted    EventType = "screenShareStarted"
	EventScreenShareStopped    EventType = "screenShareStopped"
	EventChatMessage           EventType = "chatMessage"
	EventSessionEnded          EventType = "sessionEnded"
	EventError                 EventType = "errorOccurred"
)

// Event is the single payload type delivered to subscribers. Only the fields
// relevant to the event's Type are populated.
type Event struct {
	Type        EventType
	SessionID   string
	UserID      string
	State       ConnectionState
	Participant *models.Participant
	Stats       *models.ConnectionStats
	Recording   *models.Recording
	Message     *models.SessionMessage
	Session     *models.TeleSession
	RemoteTrack RemoteTrack
	Reason      string
}

type Subscription struct {
	bus   *Bus
	types map[EventType]struct{}
	ch    chan Event
	once  sync.Once
}

// C returns the channel events are delivered on. The channel is closed when
// the subscription is closed.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.ch)
	})
}

func (s *Subscription) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Bus fans events out to subscribers. Delivery is best effort: a subscriber
// that stops draining its channel misses events rather than blocking the
// engine.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers interest in the given event types. With no types given
// the subscription receives every event.
func (b *Bus) Subscribe(types ...EventType) *Subscription {
	sub := &Subscription{
		bus: b,
		ch:  make(chan Event, 64),
	}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}
