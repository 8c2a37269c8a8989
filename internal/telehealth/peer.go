package telehealth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ConnectionState string

const (
	StateNew          ConnectionState = "new"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateFailed       ConnectionState = "failed"
	StateClosed       ConnectionState = "closed"
)

// TransportStats is a cumulative snapshot of one connection's transport.
// The quality monitor derives rates from successive snapshots.
type TransportStats struct {
	BytesReceived uint64
	PacketsLost   int
	RoundTripTime time.Duration
	FrameWidth    int
	FrameHeight   int
	FrameRate     float64
	AudioLevel    float64
}

type RemoteTrack interface {
	ID() string
	Kind() TrackKind
}

// PeerConnection is the abstract peer-to-peer media connection the engine
// coordinates. Establishment failures are reported through the state
// observer, never as errors from the observer registrations.
type PeerConnection interface {
	AddTrack(track LocalTrack) error
	ReplaceVideoTrack(track LocalTrack) error
	OnCandidate(fn func(candidate string))
	OnRemoteTrack(fn func(track RemoteTrack))
	OnStateChange(fn func(state ConnectionState))
	AddRemoteCandidate(candidate string) error
	Stats(ctx context.Context) (TransportStats, error)
	Close() error
}

type PeerConfig struct {
	ICEServers []string
}

type Dialer interface {
	Dial(ctx context.Context, cfg PeerConfig) (PeerConnection, error)
}

type Handle string

type managedConn struct {
	handle        Handle
	sessionID     string
	participantID string
	userID        string
	pc            PeerConnection
	stopMonitor   context.CancelFunc
}

// PeerManager owns one peer connection per remote participant.
type PeerManager struct {
	mu        sync.Mutex
	conns     map[Handle]*managedConn
	dialer    Dialer
	cfg       PeerConfig
	signaler  Signaler
	monitor   *QualityMonitor
	bus       *Bus
	log       *logrus.Logger
	stateHook func(sessionID, userID string, state ConnectionState)
}

func NewPeerManager(
	dialer Dialer,
	cfg PeerConfig,
	signaler Signaler,
	monitor *QualityMonitor,
	bus *Bus,
	log *logrus.Logger,
) *PeerManager {
	return &PeerManager{
		conns:    make(map[Handle]*managedConn),
		dialer:   dialer,
		cfg:      cfg,
		signaler: signaler,
		monitor:  monitor,
		bus:      bus,
		log:      log,
	}
}

// SetStateHook installs the engine's connection-state observer. Must be set
// before the first CreateConnection.
func (m *PeerManager) SetStateHook(hook func(sessionID, userID string, state ConnectionState)) {
	m.stateHook = hook
}

// CreateConnection dials a new peer connection for one participant, attaches
// every local capture track and wires the three observers.
func (m *PeerManager) CreateConnection(
	ctx context.Context,
	sessionID, participantID, userID string,
	local CaptureStream,
) (Handle, error) {
	pc, err := m.dialer.Dial(ctx, m.cfg)
	if err != nil {
		return "", err
	}

	for _, track := range local.Tracks() {
		if err := pc.AddTrack(track); err != nil {
			_ = pc.Close()
			return "", err
		}
	}

	conn := &managedConn{
		handle:        Handle(uuid.New().String()),
		sessionID:     sessionID,
		participantID: participantID,
		userID:        userID,
		pc:            pc,
	}

	pc.OnCandidate(func(candidate string) {
		if err := m.signaler.SendCandidate(sessionID, userID, candidate); err != nil {
			m.log.WithError(err).
				WithField("session_id", sessionID).
				Warn("failed to relay candidate")
		}
	})

	pc.OnRemoteTrack(func(track RemoteTrack) {
		m.bus.Publish(Event{
			Type:        EventRemoteStream,
			SessionID:   sessionID,
			UserID:      userID,
			RemoteTrack: track,
		})
	})

	pc.OnStateChange(func(state ConnectionState) {
		m.handleStateChange(conn, state)
	})

	m.mu.Lock()
	m.conns[conn.handle] = conn
	m.mu.Unlock()

	return conn.handle, nil
}

func (m *PeerManager) handleStateChange(conn *managedConn, state ConnectionState) {
	m.mu.Lock()
	tracked := m.conns[conn.handle] == conn
	m.mu.Unlock()
	if !tracked {
		// Late callback from a connection we already tore down.
		return
	}

	m.bus.Publish(Event{
		Type:      EventConnectionStateChange,
		SessionID: conn.sessionID,
		UserID:    conn.userID,
		State:     state,
	})

	switch state {
	case StateConnected:
		m.startMonitor(conn)
	case StateFailed, StateClosed:
		if torn := m.teardown(conn.handle); torn != nil {
			_ = torn.pc.Close()
		}
	}

	if m.stateHook != nil {
		m.stateHook(conn.sessionID, conn.userID, state)
	}
}

func (m *PeerManager) startMonitor(conn *managedConn) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if m.conns[conn.handle] != conn || conn.stopMonitor != nil {
		m.mu.Unlock()
		cancel()
		return
	}
	conn.stopMonitor = cancel
	m.mu.Unlock()

	m.monitor.Watch(ctx, conn.sessionID, conn.userID, conn.pc)
}

// ReplaceOutgoingVideoTrack swaps the video track on a single connection
// without renegotiating it.
func (m *PeerManager) ReplaceOutgoingVideoTrack(handle Handle, track LocalTrack) error {
	m.mu.Lock()
	conn, ok := m.conns[handle]
	m.mu.Unlock()
	if !ok {
		return ErrConnectionNotFound
	}
	return conn.pc.ReplaceVideoTrack(track)
}

// ReplaceVideoForSession swaps the outgoing video track on every connection
// belonging to the session and reports how many were updated.
func (m *PeerManager) ReplaceVideoForSession(sessionID string, track LocalTrack) int {
	m.mu.Lock()
	targets := make([]*managedConn, 0, 2)
	for _, conn := range m.conns {
		if conn.sessionID == sessionID {
			targets = append(targets, conn)
		}
	}
	m.mu.Unlock()

	replaced := 0
	for _, conn := range targets {
		if err := conn.pc.ReplaceVideoTrack(track); err != nil {
			m.log.WithError(err).
				WithField("session_id", sessionID).
				Warn("failed to replace video track")
			continue
		}
		replaced++
	}
	return replaced
}

// AddRemoteCandidate feeds a candidate from the signaling collaborator into
// the connection owned by the given participant.
func (m *PeerManager) AddRemoteCandidate(sessionID, userID, candidate string) error {
	m.mu.Lock()
	var target *managedConn
	for _, conn := range m.conns {
		if conn.sessionID == sessionID && conn.userID == userID {
			target = conn
			break
		}
	}
	m.mu.Unlock()

	if target == nil {
		return ErrConnectionNotFound
	}
	return target.pc.AddRemoteCandidate(candidate)
}

// Close terminates the connection and stops its monitor. Safe to call more
// than once.
func (m *PeerManager) Close(handle Handle) {
	conn := m.teardown(handle)
	if conn != nil {
		_ = conn.pc.Close()
	}
}

// teardown removes the connection from the table and cancels its monitor
// before anything that could release the underlying resources runs.
func (m *PeerManager) teardown(handle Handle) *managedConn {
	m.mu.Lock()
	conn, ok := m.conns[handle]
	if ok {
		delete(m.conns, handle)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if conn.stopMonitor != nil {
		conn.stopMonitor()
	}
	return conn
}
