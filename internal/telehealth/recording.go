package telehealth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/saeid-a/TeleClinicBack/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultChunkInterval   = time.Second
	DefaultMaxRecordingAge = 120 * time.Minute
)

type activeRecording struct {
	rec       models.Recording
	chunks    [][]byte
	stopPump  func()
	autoStop  *time.Timer
	finalized bool
}

// RecordingController runs the consent-gated capture-to-artifact pipeline.
// At most one non-terminal recording exists per session.
type RecordingController struct {
	mu            sync.Mutex
	active        map[string]*activeRecording
	recorder      Recorder
	store         ArtifactStore
	bus           *Bus
	log           *logrus.Logger
	chunkInterval time.Duration
	maxDuration   time.Duration
	onUpdate      func(sessionID string, rec models.Recording)
}

func NewRecordingController(
	recorder Recorder,
	store ArtifactStore,
	bus *Bus,
	log *logrus.Logger,
	chunkInterval, maxDuration time.Duration,
) *RecordingController {
	if chunkInterval <= 0 {
		chunkInterval = DefaultChunkInterval
	}
	if maxDuration <= 0 {
		maxDuration = DefaultMaxRecordingAge
	}
	return &RecordingController{
		active:        make(map[string]*activeRecording),
		recorder:      recorder,
		store:         store,
		bus:           bus,
		log:           log,
		chunkInterval: chunkInterval,
		maxDuration:   maxDuration,
	}
}

// SetUpdateHook installs the engine's callback for recording state changes.
func (c *RecordingController) SetUpdateHook(hook func(sessionID string, rec models.Recording)) {
	c.onUpdate = hook
}

// Start begins a chunked recording of the given stream. It returns the
// recording id, or the empty string when consent is missing or a recording
// is already in progress.
func (c *RecordingController) Start(sessionID string, stream CaptureStream, consent models.ConsentRecord) string {
	if !consent.PatientConsent {
		c.bus.Publish(Event{Type: EventError, SessionID: sessionID, Reason: ErrConsentRequired.Error()})
		return ""
	}

	c.mu.Lock()
	if _, exists := c.active[sessionID]; exists {
		c.mu.Unlock()
		c.bus.Publish(Event{Type: EventError, SessionID: sessionID, Reason: ErrRecordingActive.Error()})
		return ""
	}

	now := time.Now().UTC()
	if consent.ConsentTimestamp.IsZero() {
		consent.ConsentTimestamp = now
	}
	ar := &activeRecording{
		rec: models.Recording{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			StartTime: now,
			Status:    models.RecordingInProgress,
			Consent:   consent,
		},
	}
	c.active[sessionID] = ar
	c.mu.Unlock()

	stop, err := c.recorder.Start(stream, c.chunkInterval, func(chunk []byte) {
		c.appendChunk(sessionID, chunk)
	})
	if err != nil {
		c.mu.Lock()
		delete(c.active, sessionID)
		c.mu.Unlock()
		c.bus.Publish(Event{Type: EventError, SessionID: sessionID, Reason: err.Error()})
		return ""
	}

	c.mu.Lock()
	if ar.finalized {
		// The session ended while the recorder was starting.
		c.mu.Unlock()
		stop()
		return ""
	}
	ar.stopPump = stop
	// Bounds storage use when nobody stops the recording explicitly.
	ar.autoStop = time.AfterFunc(c.maxDuration, func() {
		c.Stop(sessionID)
	})
	rec := ar.rec
	c.mu.Unlock()

	c.notify(sessionID, rec)
	c.bus.Publish(Event{Type: EventRecordingStarted, SessionID: sessionID, Recording: &rec})
	return rec.ID
}

func (c *RecordingController) appendChunk(sessionID string, chunk []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ar, ok := c.active[sessionID]
	if !ok || ar.finalized {
		return
	}
	ar.chunks = append(ar.chunks, chunk)
}

// Stop finalizes the capture and hands the collected chunks to asynchronous
// processing. No-op when the session is not recording.
func (c *RecordingController) Stop(sessionID string) bool {
	_, ok := c.finalize(sessionID, true)
	return ok
}

// finalize ends the capture pump and schedules artifact assembly. The update
// hook is skipped when the caller already holds the session lock and applies
// the returned state itself.
func (c *RecordingController) finalize(sessionID string, notifyUpdate bool) (models.Recording, bool) {
	c.mu.Lock()
	ar, ok := c.active[sessionID]
	if !ok || ar.finalized {
		c.mu.Unlock()
		return models.Recording{}, false
	}
	ar.finalized = true
	if ar.autoStop != nil {
		ar.autoStop.Stop()
	}
	stop := ar.stopPump
	c.mu.Unlock()

	if stop != nil {
		stop()
	}

	c.mu.Lock()
	now := time.Now().UTC()
	ar.rec.EndTime = &now
	ar.rec.DurationSeconds = int(now.Sub(ar.rec.StartTime).Seconds())
	ar.rec.Status = models.RecordingProcessing
	chunks := ar.chunks
	ar.chunks = nil
	rec := ar.rec
	c.mu.Unlock()

	if notifyUpdate {
		c.notify(sessionID, rec)
	}
	c.bus.Publish(Event{Type: EventRecordingStopped, SessionID: sessionID, Recording: &rec})

	go c.process(sessionID, rec, chunks)
	return rec, true
}

// abort discards a recording that lost a race with session teardown: the
// pump is stopped and the chunks are dropped without producing an artifact.
func (c *RecordingController) abort(sessionID string) {
	c.mu.Lock()
	ar, ok := c.active[sessionID]
	if !ok || ar.finalized {
		c.mu.Unlock()
		return
	}
	ar.finalized = true
	if ar.autoStop != nil {
		ar.autoStop.Stop()
	}
	stop := ar.stopPump
	delete(c.active, sessionID)
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// Recording returns the current non-terminal recording for the session.
func (c *RecordingController) Recording(sessionID string) (models.Recording, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ar, ok := c.active[sessionID]
	if !ok {
		return models.Recording{}, false
	}
	return ar.rec, true
}

// InProgress reports whether a capture is still running for the session.
func (c *RecordingController) InProgress(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ar, ok := c.active[sessionID]
	return ok && !ar.finalized
}

func (c *RecordingController) process(sessionID string, rec models.Recording, chunks [][]byte) {
	fileURL, size, err := c.store.Save(context.Background(), rec.ID, chunks)
	if err != nil {
		c.log.WithError(err).
			WithField("recording_id", rec.ID).
			Error("recording artifact assembly failed")
		rec.Status = models.RecordingFailed
	} else {
		rec.Status = models.RecordingCompleted
		rec.FileURL = &fileURL
		rec.FileSize = size
	}

	c.mu.Lock()
	delete(c.active, sessionID)
	c.mu.Unlock()

	c.notify(sessionID, rec)
	c.bus.Publish(Event{Type: EventRecordingCompleted, SessionID: sessionID, Recording: &rec})
}

func (c *RecordingController) notify(sessionID string, rec models.Recording) {
	if c.onUpdate != nil {
		c.onUpdate(sessionID, rec)
	}
}
