package rtc

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/saeid-a/TeleClinicBack/internal/telehealth"
)

// Stream groups tracks from one capture source.
type Stream struct {
	mu      sync.Mutex
	id      string
	tracks  []telehealth.LocalTrack
	onEnded []func()
	closed  bool
}

func NewStream(id string, tracks ...telehealth.LocalTrack) *Stream {
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []telehealth.LocalTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]telehealth.LocalTrack(nil), s.tracks...)
}

func (s *Stream) OnEnded(fn func()) {
	s.mu.Lock()
	s.onEnded = append(s.onEnded, fn)
	s.mu.Unlock()
}

// End simulates the source stopping outside the engine, e.g. the user ending
// a screen share through the OS picker.
func (s *Stream) End() {
	s.mu.Lock()
	hooks := append([]func(){}, s.onEnded...)
	s.onEnded = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Device allocates pion sample tracks per capture kind. Media is fed into
// the tracks by whatever source owns them (ingest pipeline, tests); real
// camera/microphone drivers are out of scope.
type Device struct{}

func NewDevice() *Device {
	return &Device{}
}

func (d *Device) Open(_ context.Context, kind telehealth.CaptureKind) (telehealth.CaptureStream, error) {
	streamID := string(kind) + "-" + uuid.New().String()

	if kind == telehealth.CaptureDisplay {
		video, err := NewVideoTrack("screen-"+uuid.New().String(), streamID)
		if err != nil {
			return nil, err
		}
		return NewStream(streamID, video), nil
	}

	audio, err := NewAudioTrack("audio-"+uuid.New().String(), streamID)
	if err != nil {
		return nil, err
	}
	video, err := NewVideoTrack("video-"+uuid.New().String(), streamID)
	if err != nil {
		return nil, err
	}
	return NewStream(streamID, audio, video), nil
}
