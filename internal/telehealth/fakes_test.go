package telehealth

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/saeid-a/TeleClinicBack/internal/models"
)

type fakeTrack struct {
	mu      sync.Mutex
	id      string
	kind    TrackKind
	enabled bool
}

func newFakeTrack(id string, kind TrackKind) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, enabled: true}
}

func (t *fakeTrack) ID() string      { return t.id }
func (t *fakeTrack) Kind() TrackKind { return t.kind }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

type fakeStream struct {
	mu     sync.Mutex
	id     string
	tracks []LocalTrack
	hooks  []func()
	closed bool
}

func newFakeStream(id string, tracks ...LocalTrack) *fakeStream {
	return &fakeStream{id: id, tracks: tracks}
}

func (s *fakeStream) ID() string           { return s.id }
func (s *fakeStream) Tracks() []LocalTrack { return s.tracks }

func (s *fakeStream) OnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// End simulates the source stopping outside the engine's control.
func (s *fakeStream) End() {
	s.mu.Lock()
	hooks := append([]func(){}, s.hooks...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

type fakeDevice struct {
	mu      sync.Mutex
	opens   map[CaptureKind]int
	streams map[CaptureKind]*fakeStream
	fail    map[CaptureKind]bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		opens:   make(map[CaptureKind]int),
		streams: make(map[CaptureKind]*fakeStream),
		fail:    make(map[CaptureKind]bool),
	}
}

func (d *fakeDevice) Open(_ context.Context, kind CaptureKind) (CaptureStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fail[kind] {
		return nil, ErrCaptureUnavailable
	}
	d.opens[kind]++

	var stream *fakeStream
	if kind == CaptureDisplay {
		stream = newFakeStream("display", newFakeTrack("screen-video", TrackVideo))
	} else {
		stream = newFakeStream("camera",
			newFakeTrack("mic-audio", TrackAudio),
			newFakeTrack("cam-video", TrackVideo),
		)
	}
	d.streams[kind] = stream
	return stream, nil
}

func (d *fakeDevice) openCount(kind CaptureKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens[kind]
}

func (d *fakeDevice) stream(kind CaptureKind) *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[kind]
}

type fakePeer struct {
	mu               sync.Mutex
	tracks           []LocalTrack
	video            LocalTrack
	stateFn          func(ConnectionState)
	candidateFn      func(string)
	remoteFn         func(RemoteTrack)
	remoteCandidates []string
	stats            TransportStats
	statsErr         error
	closed           bool
}

func (p *fakePeer) AddTrack(track LocalTrack) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, track)
	if track.Kind() == TrackVideo {
		p.video = track
	}
	return nil
}

func (p *fakePeer) ReplaceVideoTrack(track LocalTrack) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.video = track
	return nil
}

func (p *fakePeer) OnCandidate(fn func(string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidateFn = fn
}

func (p *fakePeer) OnRemoteTrack(fn func(RemoteTrack)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteFn = fn
}

func (p *fakePeer) OnStateChange(fn func(ConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stateFn = fn
}

func (p *fakePeer) AddRemoteCandidate(candidate string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteCandidates = append(p.remoteCandidates, candidate)
	return nil
}

func (p *fakePeer) Stats(context.Context) (TransportStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats, p.statsErr
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) fire(state ConnectionState) {
	p.mu.Lock()
	fn := p.stateFn
	p.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (p *fakePeer) videoTrack() LocalTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.video
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) setStats(stats TransportStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = stats
}

type fakeDialer struct {
	mu    sync.Mutex
	peers []*fakePeer
	err   error
}

func (d *fakeDialer) Dial(context.Context, PeerConfig) (PeerConnection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	peer := &fakePeer{}
	d.peers = append(d.peers, peer)
	return peer, nil
}

func (d *fakeDialer) peer(i int) *fakePeer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.peers) {
		return nil
	}
	return d.peers[i]
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.peers)
}

type memHistory struct {
	mu   sync.Mutex
	rows map[string][]models.TeleSession
}

func newMemHistory() *memHistory {
	return &memHistory{rows: make(map[string][]models.TeleSession)}
}

func (h *memHistory) Append(_ context.Context, userID string, session *models.TeleSession) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows[userID] = append(h.rows[userID], *session)
	return nil
}

func (h *memHistory) List(_ context.Context, userID string, limit int) ([]models.TeleSession, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rows := h.rows[userID]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return append([]models.TeleSession(nil), rows...), nil
}

type memAudit struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (a *memAudit) Record(event AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	actions := make([]string, 0, len(a.events))
	for _, e := range a.events {
		actions = append(actions, e.Action)
	}
	return actions
}

type staticDirectory map[string]string

func (d staticDirectory) DisplayName(_ context.Context, userID string) (string, error) {
	name, ok := d[userID]
	if !ok {
		return "", errors.New("unknown user")
	}
	return name, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	onChunk func([]byte)
	started int
	stopped bool
	err     error
}

func (r *fakeRecorder) Start(_ CaptureStream, _ time.Duration, onChunk func([]byte)) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.started++
	r.onChunk = onChunk
	return func() {
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()
	}, nil
}

func (r *fakeRecorder) emit(chunk []byte) {
	r.mu.Lock()
	fn := r.onChunk
	r.mu.Unlock()
	if fn != nil {
		fn(chunk)
	}
}

func (r *fakeRecorder) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

type fakeArtifacts struct {
	mu    sync.Mutex
	url   string
	err   error
	saved [][]byte
}

func (a *fakeArtifacts) Save(_ context.Context, recordingID string, chunks [][]byte) (string, int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", 0, a.err
	}
	a.saved = chunks
	var size int64
	for _, chunk := range chunks {
		size += int64(len(chunk))
	}
	url := a.url
	if url == "" {
		url = "/recordings/" + recordingID + ".webm"
	}
	return url, size, nil
}

func (a *fakeArtifacts) savedChunks() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saved
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type engineFixture struct {
	engine   *Engine
	device   *fakeDevice
	dialer   *fakeDialer
	history  *memHistory
	audit    *memAudit
	recorder *fakeRecorder
	store    *fakeArtifacts
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		device:   newFakeDevice(),
		dialer:   &fakeDialer{},
		history:  newMemHistory(),
		audit:    &memAudit{},
		recorder: &fakeRecorder{},
		store:    &fakeArtifacts{},
	}
	f.engine = NewEngine(EngineConfig{
		Dialer:    f.dialer,
		Device:    f.device,
		Signaler:  nopSignaler{},
		Directory: staticDirectory{"p1": "Pat Doe", "t1": "Dr. Therapist"},
		Audit:     f.audit,
		History:   f.history,
		Recorder:  f.recorder,
		Artifacts: f.store,
		Logger:    quietLogger(),
	})
	return f
}

func (f *engineFixture) createSession() *models.TeleSession {
	session, err := f.engine.CreateSession(
		context.Background(), "p1", "t1", time.Now().UTC(), "video", nil,
	)
	if err != nil {
		panic(err)
	}
	return session
}

func (f *engineFixture) joinBoth(sessionID string) {
	if !f.engine.JoinSession(context.Background(), sessionID, "p1", models.RolePatient) {
		panic("patient join failed")
	}
	if !f.engine.JoinSession(context.Background(), sessionID, "t1", models.RoleTherapist) {
		panic("therapist join failed")
	}
}
