package telehealth

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

type shareState struct {
	stream      CaptureStream
	screenTrack LocalTrack
	cameraTrack LocalTrack
}

// ScreenShareController swaps the outgoing video track between the camera
// and a display capture, per session.
type ScreenShareController struct {
	mu        sync.Mutex
	shares    map[string]*shareState
	gateway   *CaptureGateway
	peers     *PeerManager
	bus       *Bus
	log       *logrus.Logger
	onStopped func(sessionID string)
}

func NewScreenShareController(
	gateway *CaptureGateway,
	peers *PeerManager,
	bus *Bus,
	log *logrus.Logger,
) *ScreenShareController {
	return &ScreenShareController{
		shares:  make(map[string]*shareState),
		gateway: gateway,
		peers:   peers,
		bus:     bus,
		log:     log,
	}
}

// SetStopHook installs a callback invoked whenever a share ends, whether
// stopped through the engine or externally.
func (s *ScreenShareController) SetStopHook(hook func(sessionID string)) {
	s.onStopped = hook
}

// Start acquires a display capture and routes its video track to every
// connection in the session. If the capture ends outside the engine (OS-level
// stop), the share is reverted automatically.
func (s *ScreenShareController) Start(ctx context.Context, sessionID string, cameraTrack LocalTrack) bool {
	s.mu.Lock()
	if _, sharing := s.shares[sessionID]; sharing {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	stream, err := s.gateway.Acquire(ctx, CaptureDisplay)
	if err != nil {
		s.bus.Publish(Event{Type: EventError, SessionID: sessionID, Reason: err.Error()})
		return false
	}

	screenTrack, ok := trackByKind(stream, TrackVideo)
	if !ok {
		s.gateway.Release(CaptureDisplay)
		s.bus.Publish(Event{Type: EventError, SessionID: sessionID, Reason: ErrCaptureUnavailable.Error()})
		return false
	}

	s.mu.Lock()
	s.shares[sessionID] = &shareState{
		stream:      stream,
		screenTrack: screenTrack,
		cameraTrack: cameraTrack,
	}
	s.mu.Unlock()

	stream.OnEnded(func() {
		s.Stop(sessionID)
	})

	s.peers.ReplaceVideoForSession(sessionID, screenTrack)
	s.bus.Publish(Event{Type: EventScreenShareStarted, SessionID: sessionID})
	return true
}

// Stop reverts every connection to the camera track and releases the display
// capture. No-op when the session is not sharing.
func (s *ScreenShareController) Stop(sessionID string) bool {
	return s.stop(sessionID, true)
}

// stop is Stop with an optional hook: the caller skips it when it already
// holds the session lock and clears the sharer flags itself.
func (s *ScreenShareController) stop(sessionID string, notifyStop bool) bool {
	s.mu.Lock()
	share, ok := s.shares[sessionID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.shares, sessionID)
	s.mu.Unlock()

	if share.cameraTrack != nil {
		s.peers.ReplaceVideoForSession(sessionID, share.cameraTrack)
	}
	s.gateway.Release(CaptureDisplay)
	s.bus.Publish(Event{Type: EventScreenShareStopped, SessionID: sessionID})
	if notifyStop && s.onStopped != nil {
		s.onStopped(sessionID)
	}
	return true
}

// ScreenTrack returns the live screen video track for the session, if any.
func (s *ScreenShareController) ScreenTrack(sessionID string) (LocalTrack, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	share, ok := s.shares[sessionID]
	if !ok {
		return nil, false
	}
	return share.screenTrack, true
}

// Sharing reports whether the session currently has an active share.
func (s *ScreenShareController) Sharing(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.shares[sessionID]
	return ok
}
