package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/saeid-a/TeleClinicBack/internal/telehealth"
)

// Track adapts a pion sample track to the engine's LocalTrack. Disabling a
// track drops its samples instead of detaching it, which keeps the RTP
// sender in place (mute semantics).
type Track struct {
	mu      sync.Mutex
	sample  *webrtc.TrackLocalStaticSample
	kind    telehealth.TrackKind
	enabled bool
	taps    map[int]func([]byte)
	nextTap int
}

func newTrack(sample *webrtc.TrackLocalStaticSample, kind telehealth.TrackKind) *Track {
	return &Track{
		sample:  sample,
		kind:    kind,
		enabled: true,
		taps:    make(map[int]func([]byte)),
	}
}

func NewAudioTrack(id, streamID string) (*Track, error) {
	sample, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		id,
		streamID,
	)
	if err != nil {
		return nil, err
	}
	return newTrack(sample, telehealth.TrackAudio), nil
}

func NewVideoTrack(id, streamID string) (*Track, error) {
	sample, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		id,
		streamID,
	)
	if err != nil {
		return nil, err
	}
	return newTrack(sample, telehealth.TrackVideo), nil
}

func (t *Track) ID() string                 { return t.sample.ID() }
func (t *Track) Kind() telehealth.TrackKind { return t.kind }

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// WriteSample forwards media into the underlying pion track and fans the raw
// payload out to recording taps. Samples written while disabled are dropped.
func (t *Track) WriteSample(sample media.Sample) error {
	t.mu.Lock()
	enabled := t.enabled
	taps := make([]func([]byte), 0, len(t.taps))
	for _, tap := range t.taps {
		taps = append(taps, tap)
	}
	t.mu.Unlock()

	if !enabled {
		return nil
	}
	for _, tap := range taps {
		tap(sample.Data)
	}
	return t.sample.WriteSample(sample)
}

// Tap registers a raw payload observer and returns its removal function.
func (t *Track) Tap(fn func([]byte)) (remove func()) {
	t.mu.Lock()
	id := t.nextTap
	t.nextTap++
	t.taps[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.taps, id)
		t.mu.Unlock()
	}
}
