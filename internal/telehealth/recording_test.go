package telehealth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saeid-a/TeleClinicBack/internal/models"
)

func consentGiven() models.ConsentRecord {
	return models.ConsentRecord{
		PatientConsent:   true,
		ConsentTimestamp: time.Now().UTC(),
		ConsentMethod:    "verbal",
	}
}

type recordingUpdates struct {
	mu   sync.Mutex
	recs []models.Recording
}

func (u *recordingUpdates) hook(_ string, rec models.Recording) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.recs = append(u.recs, rec)
}

func (u *recordingUpdates) last() (models.Recording, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.recs) == 0 {
		return models.Recording{}, false
	}
	return u.recs[len(u.recs)-1], true
}

func (u *recordingUpdates) lastStatus() models.RecordingStatus {
	rec, ok := u.last()
	if !ok {
		return ""
	}
	return rec.Status
}

func newRecordingController(recorder *fakeRecorder, store *fakeArtifacts) (*RecordingController, *recordingUpdates) {
	updates := &recordingUpdates{}
	c := NewRecordingController(recorder, store, NewBus(), quietLogger(), time.Millisecond, 0)
	c.SetUpdateHook(updates.hook)
	return c, updates
}

func TestRecordingRequiresConsent(t *testing.T) {
	recorder := &fakeRecorder{}
	c, _ := newRecordingController(recorder, &fakeArtifacts{})

	id := c.Start("sess-1", newFakeStream("camera"), models.ConsentRecord{PatientConsent: false})
	assert.Empty(t, id)
	assert.False(t, c.InProgress("sess-1"))
}

func TestRecordingLifecycle(t *testing.T) {
	recorder := &fakeRecorder{}
	store := &fakeArtifacts{}
	c, updates := newRecordingController(recorder, store)

	id := c.Start("sess-1", newFakeStream("camera"), consentGiven())
	require.NotEmpty(t, id)
	assert.True(t, c.InProgress("sess-1"))

	rec, ok := c.Recording("sess-1")
	require.True(t, ok)
	assert.Equal(t, models.RecordingInProgress, rec.Status)
	assert.Equal(t, id, rec.ID)

	recorder.emit([]byte("chunk-1"))
	recorder.emit([]byte("chunk-2"))

	require.True(t, c.Stop("sess-1"))
	assert.True(t, recorder.isStopped())

	require.Eventually(t, func() bool {
		return updates.lastStatus() == models.RecordingCompleted
	}, time.Second, 5*time.Millisecond)

	final, _ := updates.last()
	require.NotNil(t, final.FileURL)
	assert.Equal(t, "/recordings/"+id+".webm", *final.FileURL)
	assert.Equal(t, int64(len("chunk-1")+len("chunk-2")), final.FileSize)
	require.NotNil(t, final.EndTime)
	assert.False(t, c.InProgress("sess-1"))
}

func TestSecondRecordingWhileActiveRejected(t *testing.T) {
	recorder := &fakeRecorder{}
	c, _ := newRecordingController(recorder, &fakeArtifacts{})

	first := c.Start("sess-1", newFakeStream("camera"), consentGiven())
	require.NotEmpty(t, first)

	second := c.Start("sess-1", newFakeStream("camera"), consentGiven())
	assert.Empty(t, second)
}

func TestStopWithoutRecordingIsNoop(t *testing.T) {
	c, _ := newRecordingController(&fakeRecorder{}, &fakeArtifacts{})
	assert.False(t, c.Stop("sess-1"))
}

func TestRecordingFailsWhenArtifactStoreErrors(t *testing.T) {
	recorder := &fakeRecorder{}
	store := &fakeArtifacts{err: errors.New("disk full")}
	c, updates := newRecordingController(recorder, store)

	id := c.Start("sess-1", newFakeStream("camera"), consentGiven())
	require.NotEmpty(t, id)
	require.True(t, c.Stop("sess-1"))

	require.Eventually(t, func() bool {
		return updates.lastStatus() == models.RecordingFailed
	}, time.Second, 5*time.Millisecond)

	final, _ := updates.last()
	assert.Nil(t, final.FileURL)
}

func TestRecordingAutoStopsAtMaxDuration(t *testing.T) {
	recorder := &fakeRecorder{}
	updates := &recordingUpdates{}
	c := NewRecordingController(recorder, &fakeArtifacts{}, NewBus(), quietLogger(), time.Millisecond, 30*time.Millisecond)
	c.SetUpdateHook(updates.hook)

	id := c.Start("sess-1", newFakeStream("camera"), consentGiven())
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		return updates.lastStatus() == models.RecordingCompleted
	}, time.Second, 5*time.Millisecond)
	assert.True(t, recorder.isStopped())
}

func TestAbortDiscardsRecordingWithoutArtifact(t *testing.T) {
	recorder := &fakeRecorder{}
	store := &fakeArtifacts{}
	c, updates := newRecordingController(recorder, store)

	id := c.Start("sess-1", newFakeStream("camera"), consentGiven())
	require.NotEmpty(t, id)
	recorder.emit([]byte("chunk"))

	c.abort("sess-1")

	assert.True(t, recorder.isStopped())
	assert.False(t, c.InProgress("sess-1"))
	assert.False(t, c.Stop("sess-1"))

	time.Sleep(20 * time.Millisecond)
	assert.Nil(t, store.savedChunks())
	assert.Equal(t, models.RecordingInProgress, updates.lastStatus())
}

type hookedRecorder struct {
	fakeRecorder
	beforeStart func()
}

func (r *hookedRecorder) Start(stream CaptureStream, interval time.Duration, onChunk func([]byte)) (func(), error) {
	if r.beforeStart != nil {
		r.beforeStart()
	}
	return r.fakeRecorder.Start(stream, interval, onChunk)
}

func TestRecordingStartConcurrentWithSessionEnd(t *testing.T) {
	ctx := context.Background()
	recorder := &hookedRecorder{}
	engine := NewEngine(EngineConfig{
		Dialer:    &fakeDialer{},
		Device:    newFakeDevice(),
		Directory: staticDirectory{"p1": "Pat Doe", "t1": "Dr. Therapist"},
		History:   newMemHistory(),
		Audit:     &memAudit{},
		Recorder:  recorder,
		Artifacts: &fakeArtifacts{},
		Logger:    quietLogger(),
	})

	session, err := engine.CreateSession(ctx, "p1", "t1", time.Now().UTC(), "video", nil)
	require.NoError(t, err)
	require.True(t, engine.JoinSession(ctx, session.ID, "p1", models.RolePatient))
	require.True(t, engine.JoinSession(ctx, session.ID, "t1", models.RoleTherapist))

	// The session is torn down while the recorder is still starting up.
	recorder.beforeStart = func() {
		require.True(t, engine.EndSession(ctx, session.ID))
	}

	id := engine.StartRecording(ctx, session.ID, consentGiven())
	assert.Empty(t, id)
	assert.True(t, recorder.isStopped())
	_, ok := engine.GetSession(session.ID)
	assert.False(t, ok)
}

func TestEngineRecordingRequiresLiveCapture(t *testing.T) {
	f := newEngineFixture()
	session := f.createSession()

	// Nobody joined, so there is no capture to record.
	id := f.engine.StartRecording(context.Background(), session.ID, consentGiven())
	assert.Empty(t, id)
}

func TestEngineMirrorsRecordingOntoSession(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	session := f.createSession()
	f.joinBoth(session.ID)

	id := f.engine.StartRecording(ctx, session.ID, consentGiven())
	require.NotEmpty(t, id)

	got, _ := f.engine.GetSession(session.ID)
	require.NotNil(t, got.Recording)
	assert.Equal(t, models.RecordingInProgress, got.Recording.Status)

	f.recorder.emit([]byte("data"))
	require.True(t, f.engine.StopRecording(ctx, session.ID))

	require.Eventually(t, func() bool {
		got, ok := f.engine.GetSession(session.ID)
		return ok && got.Recording != nil && got.Recording.Status == models.RecordingCompleted
	}, time.Second, 5*time.Millisecond)

	got, _ = f.engine.GetSession(session.ID)
	require.NotNil(t, got.Recording.FileURL)
	assert.Equal(t, int64(4), got.Recording.FileSize)
}

func TestEndSessionStopsRecording(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	session := f.createSession()
	f.joinBoth(session.ID)

	id := f.engine.StartRecording(ctx, session.ID, consentGiven())
	require.NotEmpty(t, id)

	require.True(t, f.engine.EndSession(ctx, session.ID))
	assert.True(t, f.recorder.isStopped())
}
