package telehealth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/saeid-a/TeleClinicBack/internal/models"
	"github.com/sirupsen/logrus"
)

const DefaultSessionCapacity = 2

func nowUTC() time.Time {
	return time.Now().UTC()
}

// liveSession is one registered session plus the runtime state the model
// does not carry. All mutation happens under mu.
type liveSession struct {
	mu         sync.Mutex
	model      *models.TeleSession
	registry   *participantRegistry
	conns      map[string]Handle
	capture    CaptureStream
	hasCapture bool
	ended      bool
}

type EngineConfig struct {
	Dialer         Dialer
	PeerConfig     PeerConfig
	Device         CaptureDevice
	Signaler       Signaler
	Directory      Directory
	Audit          AuditLog
	History        HistoryStore
	Presence       Presence
	Recorder       Recorder
	Artifacts      ArtifactStore
	Capacity       int
	SampleInterval time.Duration
	ChunkInterval  time.Duration
	MaxRecording   time.Duration
	Logger         *logrus.Logger
}

// Engine is the session lifecycle controller. It owns the process-wide
// session registry and composes the capture gateway, peer manager, quality
// monitor and the recording, screen-share and chat controllers.
type Engine struct {
	mu       sync.RWMutex
	sessions map[string]*liveSession

	capacity   int
	gateway    *CaptureGateway
	peers      *PeerManager
	recordings *RecordingController
	screens    *ScreenShareController
	chat       *ChatChannel
	bus        *Bus
	directory  Directory
	history    HistoryStore
	audit      AuditLog
	presence   Presence
	log        *logrus.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}

	e := &Engine{
		sessions:  make(map[string]*liveSession),
		capacity:  capacity,
		bus:       NewBus(),
		directory: cfg.Directory,
		history:   cfg.History,
		audit:     cfg.Audit,
		presence:  cfg.Presence,
		log:       log,
	}
	if cfg.Signaler == nil {
		cfg.Signaler = nopSignaler{}
	}
	if e.directory == nil {
		e.directory = nopDirectory{}
	}
	if e.history == nil {
		e.history = nopHistory{}
	}
	if e.audit == nil {
		e.audit = nopAudit{}
	}
	if e.presence == nil {
		e.presence = NewMemoryPresence()
	}

	e.gateway = NewCaptureGateway(cfg.Device)
	monitor := NewQualityMonitor(cfg.SampleInterval, e.bus, e.applyStats, log)
	e.peers = NewPeerManager(cfg.Dialer, cfg.PeerConfig, cfg.Signaler, monitor, e.bus, log)
	e.peers.SetStateHook(e.handleConnectionState)
	e.recordings = NewRecordingController(cfg.Recorder, cfg.Artifacts, e.bus, log, cfg.ChunkInterval, cfg.MaxRecording)
	e.recordings.SetUpdateHook(e.handleRecordingUpdate)
	e.screens = NewScreenShareController(e.gateway, e.peers, e.bus, log)
	e.screens.SetStopHook(e.handleScreenShareStopped)
	e.chat = NewChatChannel(e.directory, e.bus)
	return e
}

// Subscribe registers a typed event subscription; with no types it receives
// every engine event.
func (e *Engine) Subscribe(types ...EventType) *Subscription {
	return e.bus.Subscribe(types...)
}

// Peers exposes the connection manager for the signaling layer to feed
// remote candidates into.
func (e *Engine) Peers() *PeerManager {
	return e.peers
}

func (e *Engine) lookup(sessionID string) *liveSession {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessions[sessionID]
}

// CreateSession allocates a session in status scheduled and registers it.
func (e *Engine) CreateSession(
	ctx context.Context,
	patientID, therapistID string,
	scheduledStart time.Time,
	sessionType string,
	appointmentID *string,
) (*models.TeleSession, error) {
	if patientID == "" || therapistID == "" || patientID == therapistID {
		return nil, ErrUnauthorized
	}

	model := &models.TeleSession{
		ID:             uuid.New().String(),
		PatientID:      patientID,
		TherapistID:    therapistID,
		ScheduledStart: scheduledStart.UTC(),
		Status:         models.SessionScheduled,
		Quality:        models.QualityExcellent,
		SessionType:    sessionType,
		AppointmentID:  appointmentID,
		CreatedAt:      nowUTC(),
	}
	sess := &liveSession{
		model:    model,
		registry: newParticipantRegistry(e.capacity),
		conns:    make(map[string]Handle),
	}

	e.mu.Lock()
	e.sessions[model.ID] = sess
	e.mu.Unlock()

	if err := e.presence.Add(ctx, model.ID); err != nil {
		e.log.WithError(err).WithField("session_id", model.ID).Warn("presence add failed")
	}
	e.audit.Record(AuditEvent{
		Actor:        therapistID,
		Action:       "session_created",
		ResourceID:   model.ID,
		ResourceType: "telehealth_session",
	})

	snapshot := e.snapshotLockedFree(sess)
	e.bus.Publish(Event{Type: EventSessionCreated, SessionID: model.ID, Session: snapshot})
	return snapshot, nil
}

// JoinSession admits a user into the session. It fails when the session is
// unknown, terminal, or the user does not match the session's assigned
// patient/therapist for the requested role.
func (e *Engine) JoinSession(ctx context.Context, sessionID, userID string, role models.ParticipantRole) bool {
	sess := e.lookup(sessionID)
	if sess == nil {
		e.publishError(sessionID, ErrSessionNotFound.Error())
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.ended || sess.model.Status == models.SessionEnded || sess.model.Status == models.SessionCancelled {
		e.publishError(sessionID, ErrSessionEnded.Error())
		return false
	}
	if !e.authorized(sess.model, userID, role) {
		e.publishError(sessionID, ErrUnauthorized.Error())
		return false
	}

	existing := sess.registry.byUserID(userID)
	if existing != nil && existing.Status != models.ParticipantDisconnected {
		return false
	}

	acquiredHere := false
	if !sess.hasCapture {
		stream, err := e.gateway.Acquire(ctx, CaptureUserMedia)
		if err != nil {
			e.publishError(sessionID, err.Error())
			return false
		}
		sess.capture = stream
		sess.hasCapture = true
		acquiredHere = true
	}

	var participant *models.Participant
	if existing != nil {
		// Rejoin after a drop: reuse the retained record.
		existing.Status = models.ParticipantConnecting
		existing.JoinedAt = nowUTC()
		existing.LeftAt = nil
		participant = existing
	} else {
		name, err := e.directory.DisplayName(ctx, userID)
		if err != nil || name == "" {
			name = userID
		}
		participant = &models.Participant{
			ID:          uuid.New().String(),
			UserID:      userID,
			DisplayName: name,
			Role:        role,
			Status:      models.ParticipantConnecting,
			Media:       models.MediaStatus{Audio: true, Video: true},
			JoinedAt:    nowUTC(),
		}
		if !sess.registry.add(participant) {
			if acquiredHere {
				e.releaseCaptureLocked(sess)
			}
			return false
		}
	}
	sess.model.Participants = sess.registry.all()

	handle, err := e.peers.CreateConnection(ctx, sessionID, participant.ID, userID, sess.capture)
	if err != nil {
		participant.Status = models.ParticipantDisconnected
		if acquiredHere {
			e.releaseCaptureLocked(sess)
		}
		e.publishError(sessionID, err.Error())
		return false
	}
	sess.conns[userID] = handle

	if sess.model.Status == models.SessionScheduled {
		sess.model.Status = models.SessionWaiting
	}
	participant.Status = models.ParticipantConnected
	if sess.registry.connectedCount() == e.capacity {
		sess.model.Status = models.SessionActive
		if sess.model.ActualStart == nil {
			start := nowUTC()
			sess.model.ActualStart = &start
		}
	}

	e.audit.Record(AuditEvent{
		Actor:        userID,
		Action:       "session_joined",
		ResourceID:   sessionID,
		ResourceType: "telehealth_session",
		Detail:       string(role),
	})
	e.bus.Publish(Event{
		Type:        EventParticipantJoined,
		SessionID:   sessionID,
		UserID:      userID,
		Participant: cloneParticipant(participant),
	})
	return true
}

// LeaveSession marks the participant disconnected and closes its peer
// connection. When nobody remains connected the session ends.
func (e *Engine) LeaveSession(ctx context.Context, sessionID, userID string) bool {
	sess := e.lookup(sessionID)
	if sess == nil {
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.ended {
		return false
	}
	participant := sess.registry.markDisconnected(userID, nowUTC())
	if participant == nil {
		return false
	}

	if handle, ok := sess.conns[userID]; ok {
		delete(sess.conns, userID)
		e.peers.Close(handle)
	}

	e.audit.Record(AuditEvent{
		Actor:        userID,
		Action:       "session_left",
		ResourceID:   sessionID,
		ResourceType: "telehealth_session",
	})
	e.bus.Publish(Event{
		Type:        EventParticipantLeft,
		SessionID:   sessionID,
		UserID:      userID,
		Participant: cloneParticipant(participant),
	})

	e.recomputeStatusLocked(ctx, sess)
	return true
}

// EndSession tears the session down: stops any recording, closes all
// connections, releases capture, persists history and removes the session
// from the registry. Idempotent; a second call returns false.
func (e *Engine) EndSession(ctx context.Context, sessionID string) bool {
	sess := e.lookup(sessionID)
	if sess == nil {
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return e.endLocked(ctx, sess)
}

// CancelSession cancels a session that never went live. Only valid from
// scheduled or waiting; the session is removed without history persistence.
func (e *Engine) CancelSession(ctx context.Context, sessionID, actorID string) bool {
	sess := e.lookup(sessionID)
	if sess == nil {
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.ended {
		return false
	}
	if sess.model.Status != models.SessionScheduled && sess.model.Status != models.SessionWaiting {
		return false
	}
	sess.ended = true

	if rec, ok := e.recordings.finalize(sessionID, false); ok {
		recCopy := rec
		sess.model.Recording = &recCopy
	}
	e.teardownMediaLocked(sess)
	sess.model.Status = models.SessionCancelled
	e.unregister(ctx, sess.model.ID)

	e.audit.Record(AuditEvent{
		Actor:        actorID,
		Action:       "session_cancelled",
		ResourceID:   sessionID,
		ResourceType: "telehealth_session",
	})
	return true
}

func (e *Engine) endLocked(ctx context.Context, sess *liveSession) bool {
	if sess.ended {
		return false
	}
	sess.ended = true

	sessionID := sess.model.ID
	// The update hook would re-enter sess.mu, so the finalized state is
	// applied directly here.
	if rec, ok := e.recordings.finalize(sessionID, false); ok {
		recCopy := rec
		sess.model.Recording = &recCopy
	}

	e.teardownMediaLocked(sess)

	now := nowUTC()
	sess.model.Status = models.SessionEnded
	sess.model.EndedAt = &now
	for _, p := range sess.registry.all() {
		if p.Status != models.ParticipantDisconnected {
			p.Status = models.ParticipantDisconnected
			left := now
			p.LeftAt = &left
		}
	}

	snapshot := e.snapshotLocked(sess)
	for _, p := range sess.registry.all() {
		if err := e.history.Append(ctx, p.UserID, snapshot); err != nil {
			e.log.WithError(err).
				WithField("session_id", sessionID).
				WithField("user_id", p.UserID).
				Error("failed to persist session history")
		}
	}

	e.unregister(ctx, sessionID)

	e.audit.Record(AuditEvent{
		Actor:        sess.model.TherapistID,
		Action:       "session_ended",
		ResourceID:   sessionID,
		ResourceType: "telehealth_session",
	})
	e.bus.Publish(Event{Type: EventSessionEnded, SessionID: sessionID, Session: snapshot})
	return true
}

// teardownMediaLocked closes connections (stopping their monitors first),
// stops any screen share and releases the session's capture lease.
func (e *Engine) teardownMediaLocked(sess *liveSession) {
	for userID, handle := range sess.conns {
		delete(sess.conns, userID)
		e.peers.Close(handle)
	}
	// The stop hook would re-enter sess.mu, so the sharer flags are
	// cleared directly here.
	if e.screens.stop(sess.model.ID, false) {
		for _, p := range sess.registry.all() {
			p.Media.ScreenShare = false
		}
	}
	e.releaseCaptureLocked(sess)
}

func (e *Engine) releaseCaptureLocked(sess *liveSession) {
	if !sess.hasCapture {
		return
	}
	sess.hasCapture = false
	sess.capture = nil
	e.gateway.Release(CaptureUserMedia)
}

func (e *Engine) unregister(ctx context.Context, sessionID string) {
	e.mu.Lock()
	delete(e.sessions, sessionID)
	e.mu.Unlock()

	if err := e.presence.Remove(ctx, sessionID); err != nil {
		e.log.WithError(err).WithField("session_id", sessionID).Warn("presence remove failed")
	}
}

// recomputeStatusLocked applies the connected-count rules: capacity connected
// means active, at least one means waiting, none means the session ends.
func (e *Engine) recomputeStatusLocked(ctx context.Context, sess *liveSession) {
	connected := sess.registry.connectedCount()
	switch {
	case connected == 0:
		e.endLocked(ctx, sess)
	case connected < e.capacity && sess.model.Status == models.SessionActive:
		sess.model.Status = models.SessionWaiting
	}
}

func (e *Engine) authorized(model *models.TeleSession, userID string, role models.ParticipantRole) bool {
	switch role {
	case models.RolePatient:
		return userID == model.PatientID
	case models.RoleTherapist:
		return userID == model.TherapistID
	default:
		return false
	}
}

// handleConnectionState reacts to transport-level state changes surfaced by
// the peer manager. A failed connection is treated as a disconnect; no
// automatic redial is attempted, the user may join again.
func (e *Engine) handleConnectionState(sessionID, userID string, state ConnectionState) {
	if state != StateFailed && state != StateDisconnected {
		return
	}

	sess := e.lookup(sessionID)
	if sess == nil {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.ended {
		return
	}
	participant := sess.registry.markDisconnected(userID, nowUTC())
	if participant == nil {
		return
	}
	if handle, ok := sess.conns[userID]; ok {
		delete(sess.conns, userID)
		e.peers.Close(handle)
	}

	e.bus.Publish(Event{
		Type:        EventParticipantLeft,
		SessionID:   sessionID,
		UserID:      userID,
		Participant: cloneParticipant(participant),
	})
	e.recomputeStatusLocked(context.Background(), sess)
}

// applyStats is the quality monitor's write-back: it stores the latest
// sample on the participant and refreshes the session aggregate.
func (e *Engine) applyStats(sessionID, userID string, stats models.ConnectionStats) {
	sess := e.lookup(sessionID)
	if sess == nil {
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	participant := sess.registry.byUserID(userID)
	if participant == nil {
		return
	}
	participant.Stats = stats
	sess.model.Quality = sess.registry.worstQuality()
}

// StartRecording begins a consent-gated recording of the session media and
// returns the recording id, or the empty string on rejection.
func (e *Engine) StartRecording(ctx context.Context, sessionID string, consent models.ConsentRecord) string {
	sess := e.lookup(sessionID)
	if sess == nil {
		e.publishError(sessionID, ErrSessionNotFound.Error())
		return ""
	}

	sess.mu.Lock()
	if sess.ended || !sess.hasCapture {
		sess.mu.Unlock()
		e.publishError(sessionID, ErrCaptureUnavailable.Error())
		return ""
	}
	stream := e.recordingStreamLocked(sess)
	sess.mu.Unlock()

	id := e.recordings.Start(sessionID, stream, consent)
	if id == "" {
		return ""
	}

	// EndSession may have torn the session down between the liveness check
	// and the controller start; a recording must not outlive its session.
	sess.mu.Lock()
	lost := sess.ended
	sess.mu.Unlock()
	if lost {
		e.recordings.abort(sessionID)
		return ""
	}

	e.audit.Record(AuditEvent{
		Actor:        sess.model.PatientID,
		Action:       "recording_started",
		ResourceID:   id,
		ResourceType: "telehealth_recording",
		Detail:       consent.ConsentMethod,
	})
	return id
}

// recordingStreamLocked combines camera audio/video with the screen video
// track when a share is active.
func (e *Engine) recordingStreamLocked(sess *liveSession) CaptureStream {
	tracks := make([]LocalTrack, 0, 3)
	tracks = append(tracks, sess.capture.Tracks()...)
	if screen, ok := e.screens.ScreenTrack(sess.model.ID); ok {
		tracks = append(tracks, screen)
	}
	return newCompositeStream("recording-"+sess.model.ID, tracks)
}

func (e *Engine) StopRecording(ctx context.Context, sessionID string) bool {
	sess := e.lookup(sessionID)
	if sess == nil {
		return false
	}

	if !e.recordings.Stop(sessionID) {
		return false
	}
	e.audit.Record(AuditEvent{
		Actor:        sess.model.TherapistID,
		Action:       "recording_stopped",
		ResourceID:   sessionID,
		ResourceType: "telehealth_recording",
	})
	return true
}

// handleRecordingUpdate mirrors recording state onto the owning session and
// audits terminal transitions.
func (e *Engine) handleRecordingUpdate(sessionID string, rec models.Recording) {
	if rec.Status == models.RecordingCompleted || rec.Status == models.RecordingFailed {
		e.audit.Record(AuditEvent{
			Actor:        "system",
			Action:       "recording_" + string(rec.Status),
			ResourceID:   rec.ID,
			ResourceType: "telehealth_recording",
		})
	}

	sess := e.lookup(sessionID)
	if sess == nil {
		return
	}
	sess.mu.Lock()
	recCopy := rec
	sess.model.Recording = &recCopy
	sess.mu.Unlock()
}

// StartScreenShare swaps the outgoing video of every connection in the
// session to a fresh display capture. userID identifies the sharer.
func (e *Engine) StartScreenShare(ctx context.Context, sessionID, userID string) bool {
	sess := e.lookup(sessionID)
	if sess == nil {
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.ended || !sess.hasCapture {
		return false
	}
	cameraTrack, _ := trackByKind(sess.capture, TrackVideo)
	// Held across the start so a concurrent EndSession cannot tear the
	// media down in between; the start path never takes sess.mu.
	if !e.screens.Start(ctx, sessionID, cameraTrack) {
		return false
	}
	if p := sess.registry.byUserID(userID); p != nil {
		p.Media.ScreenShare = true
	}
	return true
}

func (e *Engine) StopScreenShare(ctx context.Context, sessionID string) bool {
	return e.screens.Stop(sessionID)
}

// handleScreenShareStopped clears the sharer flags, including when the share
// was ended externally (OS-level stop).
func (e *Engine) handleScreenShareStopped(sessionID string) {
	sess := e.lookup(sessionID)
	if sess == nil {
		return
	}
	sess.mu.Lock()
	for _, p := range sess.registry.all() {
		p.Media.ScreenShare = false
	}
	sess.mu.Unlock()
}

// SendChatMessage appends a text message to the session log. Delivery to the
// remote side is the signaling collaborator's concern.
func (e *Engine) SendChatMessage(ctx context.Context, sessionID, senderID, text string) bool {
	sess := e.lookup(sessionID)
	if sess == nil {
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.ended || text == "" {
		return false
	}
	if senderID != sess.model.PatientID && senderID != sess.model.TherapistID {
		return false
	}

	msg := e.chat.compose(ctx, sessionID, senderID, text, models.MessageText)
	sess.model.Messages = append(sess.model.Messages, msg)
	e.chat.emit(msg)
	return true
}

// ToggleAudio flips the local audio track and mirrors the result on the
// participant's media status.
func (e *Engine) ToggleAudio(sessionID, userID string) bool {
	return e.toggleTrack(sessionID, userID, TrackAudio)
}

// ToggleVideo flips the local video track and mirrors the result on the
// participant's media status.
func (e *Engine) ToggleVideo(sessionID, userID string) bool {
	return e.toggleTrack(sessionID, userID, TrackVideo)
}

func (e *Engine) toggleTrack(sessionID, userID string, kind TrackKind) bool {
	sess := e.lookup(sessionID)
	if sess == nil {
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.ended || !sess.hasCapture {
		return false
	}
	participant := sess.registry.byUserID(userID)
	if participant == nil {
		return false
	}
	track, ok := trackByKind(sess.capture, kind)
	if !ok {
		return false
	}

	track.SetEnabled(!track.Enabled())
	switch kind {
	case TrackAudio:
		participant.Media.Audio = track.Enabled()
	case TrackVideo:
		participant.Media.Video = track.Enabled()
	}
	return true
}

// GetSession returns a point-in-time copy of the session.
func (e *Engine) GetSession(sessionID string) (*models.TeleSession, bool) {
	sess := e.lookup(sessionID)
	if sess == nil {
		return nil, false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return e.snapshotLocked(sess), true
}

// History lists ended sessions persisted for the user.
func (e *Engine) History(ctx context.Context, userID string, limit int) ([]models.TeleSession, error) {
	return e.history.List(ctx, userID, limit)
}

// ActiveSessionIDs lists the session ids currently registered as live.
func (e *Engine) ActiveSessionIDs(ctx context.Context) ([]string, error) {
	return e.presence.List(ctx)
}

func (e *Engine) publishError(sessionID, reason string) {
	e.bus.Publish(Event{Type: EventError, SessionID: sessionID, Reason: reason})
}

func (e *Engine) snapshotLocked(sess *liveSession) *models.TeleSession {
	snapshot := *sess.model
	snapshot.Participants = make([]*models.Participant, 0, len(sess.registry.all()))
	for _, p := range sess.registry.all() {
		snapshot.Participants = append(snapshot.Participants, cloneParticipant(p))
	}
	snapshot.Messages = append([]models.SessionMessage(nil), sess.model.Messages...)
	if sess.model.Recording != nil {
		rec := *sess.model.Recording
		snapshot.Recording = &rec
	}
	return &snapshot
}

// snapshotLockedFree is snapshotLocked for a session no other goroutine can
// see yet.
func (e *Engine) snapshotLockedFree(sess *liveSession) *models.TeleSession {
	return e.snapshotLocked(sess)
}

func cloneParticipant(p *models.Participant) *models.Participant {
	clone := *p
	if p.LeftAt != nil {
		left := *p.LeftAt
		clone.LeftAt = &left
	}
	return &clone
}
