package telehealth

import (
	"context"
	"errors"
	"sync"
)

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

type CaptureKind string

const (
	CaptureUserMedia CaptureKind = "user"
	CaptureDisplay   CaptureKind = "display"
)

var ErrCaptureUnavailable = errors.New("capture unavailable")

// LocalTrack is one locally produced media track. SetEnabled toggles the
// track without detaching it from any connection.
type LocalTrack interface {
	ID() string
	Kind() TrackKind
	Enabled() bool
	SetEnabled(enabled bool)
}

// CaptureStream groups the tracks of one capture source. OnEnded fires when
// the source stops outside the engine's control, e.g. the user ends a screen
// share through the OS.
type CaptureStream interface {
	ID() string
	Tracks() []LocalTrack
	OnEnded(fn func())
	Close() error
}

// CaptureDevice opens capture sources. Implementations may deny a request,
// which surfaces as a resource-unavailable failure to the caller.
type CaptureDevice interface {
	Open(ctx context.Context, kind CaptureKind) (CaptureStream, error)
}

type captureLease struct {
	stream CaptureStream
	refs   int
}

// CaptureGateway reference-counts capture sources across sessions. A source
// is opened on first acquire and closed when the last holder releases it.
type CaptureGateway struct {
	mu     sync.Mutex
	device CaptureDevice
	leases map[CaptureKind]*captureLease
}

func NewCaptureGateway(device CaptureDevice) *CaptureGateway {
	return &CaptureGateway{
		device: device,
		leases: make(map[CaptureKind]*captureLease),
	}
}

func (g *CaptureGateway) Acquire(ctx context.Context, kind CaptureKind) (CaptureStream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if lease, ok := g.leases[kind]; ok {
		lease.refs++
		return lease.stream, nil
	}

	stream, err := g.device.Open(ctx, kind)
	if err != nil {
		return nil, err
	}
	g.leases[kind] = &captureLease{stream: stream, refs: 1}
	return stream, nil
}

func (g *CaptureGateway) Release(kind CaptureKind) {
	g.mu.Lock()
	defer g.mu.Unlock()

	lease, ok := g.leases[kind]
	if !ok {
		return
	}
	lease.refs--
	if lease.refs > 0 {
		return
	}
	delete(g.leases, kind)
	_ = lease.stream.Close()
}

// Current returns the open stream for kind without taking a reference.
func (g *CaptureGateway) Current(kind CaptureKind) (CaptureStream, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	lease, ok := g.leases[kind]
	if !ok {
		return nil, false
	}
	return lease.stream, true
}

func trackByKind(stream CaptureStream, kind TrackKind) (LocalTrack, bool) {
	for _, track := range stream.Tracks() {
		if track.Kind() == kind {
			return track, true
		}
	}
	return nil, false
}

// compositeStream presents a fixed set of tracks drawn from other streams,
// used to feed the recorder with camera audio plus whichever video track is
// currently outgoing.
type compositeStream struct {
	id     string
	tracks []LocalTrack
}

func newCompositeStream(id string, tracks []LocalTrack) *compositeStream {
	return &compositeStream{id: id, tracks: tracks}
}

func (s *compositeStream) ID() string           { return s.id }
func (s *compositeStream) Tracks() []LocalTrack { return s.tracks }
func (s *compositeStream) OnEnded(func())       {}
func (s *compositeStream) Close() error         { return nil }
