package telehealth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saeid-a/TeleClinicBack/internal/models"
)

func TestClassifyQuality(t *testing.T) {
	cases := []struct {
		name    string
		latency time.Duration
		lost    int
		bitrate int
		want    models.ConnectionQuality
	}{
		{"pristine", 20 * time.Millisecond, 0, 2000, models.QualityExcellent},
		{"latency just over good", 80 * time.Millisecond, 0, 2000, models.QualityGood},
		{"latency just over fair", 200 * time.Millisecond, 0, 2000, models.QualityFair},
		{"latency poor", 400 * time.Millisecond, 0, 2000, models.QualityPoor},
		{"loss good band", 30 * time.Millisecond, 6, 2000, models.QualityGood},
		{"loss fair band", 30 * time.Millisecond, 21, 2000, models.QualityFair},
		{"loss poor band", 30 * time.Millisecond, 51, 2000, models.QualityPoor},
		{"bitrate good band", 30 * time.Millisecond, 0, 499, models.QualityGood},
		{"bitrate fair band", 30 * time.Millisecond, 0, 299, models.QualityFair},
		{"bitrate poor band", 30 * time.Millisecond, 0, 99, models.QualityPoor},
		{"worst metric wins", 20 * time.Millisecond, 60, 2000, models.QualityPoor},
		{"boundary stays excellent", 75 * time.Millisecond, 5, 500, models.QualityExcellent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyQuality(tc.latency, tc.lost, tc.bitrate)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestQualityMonitorPublishesSamples(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var samples []models.ConnectionStats
	update := func(sessionID, userID string, stats models.ConnectionStats) {
		mu.Lock()
		samples = append(samples, stats)
		mu.Unlock()
	}
	monitor := NewQualityMonitor(10*time.Millisecond, bus, update, quietLogger())

	peer := &fakePeer{}
	peer.setStats(TransportStats{
		BytesReceived: 0,
		PacketsLost:   2,
		RoundTripTime: 40 * time.Millisecond,
	})

	sub := bus.Subscribe(EventStatsUpdate)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	monitor.Watch(ctx, "sess-1", "p1", peer)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(samples) >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()

	event := <-sub.C()
	assert.Equal(t, "sess-1", event.SessionID)
	assert.Equal(t, "p1", event.UserID)
	require.NotNil(t, event.Stats)
	assert.Equal(t, 2, event.Stats.PacketsLost)
	assert.Equal(t, 40, event.Stats.LatencyMS)
}

func TestQualityMonitorDerivesBitrateFromDeltas(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var samples []models.ConnectionStats
	update := func(_, _ string, stats models.ConnectionStats) {
		mu.Lock()
		samples = append(samples, stats)
		mu.Unlock()
	}
	monitor := NewQualityMonitor(20*time.Millisecond, bus, update, quietLogger())

	peer := &fakePeer{}
	// 5000 bytes over a 20ms interval = 2000 kbps.
	peer.setStats(TransportStats{BytesReceived: 5000, RoundTripTime: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor.Watch(ctx, "sess-1", "p1", peer)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(samples) >= 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	first := samples[0]
	mu.Unlock()
	// No bytes flowed between the first two snapshots.
	assert.Equal(t, 0, first.BitrateKbps)

	peer.setStats(TransportStats{BytesReceived: 10000, RoundTripTime: 10 * time.Millisecond})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, s := range samples {
			if s.BitrateKbps > 0 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

type growingPeer struct {
	fakePeer
	statsMu sync.Mutex
	bytes   uint64
	step    uint64
}

func (p *growingPeer) Stats(context.Context) (TransportStats, error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.bytes += p.step
	return TransportStats{BytesReceived: p.bytes, RoundTripTime: 10 * time.Millisecond}, nil
}

func TestQualityMonitorFirstPublishedSampleIsPrimed(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var samples []models.ConnectionStats
	update := func(_, _ string, stats models.ConnectionStats) {
		mu.Lock()
		samples = append(samples, stats)
		mu.Unlock()
	}
	monitor := NewQualityMonitor(20*time.Millisecond, bus, update, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// 5000 bytes per 20ms interval = 2000 kbps.
	monitor.Watch(ctx, "sess-1", "p1", &growingPeer{step: 5000})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(samples) >= 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	first := samples[0]
	mu.Unlock()
	// A healthy connection must not open with a zero-bitrate sample.
	assert.Equal(t, 2000, first.BitrateKbps)
	assert.Equal(t, models.QualityExcellent, first.Quality)
}

func TestQualityMonitorStopsOnCancel(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	count := 0
	update := func(_, _ string, _ models.ConnectionStats) {
		mu.Lock()
		count++
		mu.Unlock()
	}
	monitor := NewQualityMonitor(10*time.Millisecond, bus, update, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	monitor.Watch(ctx, "sess-1", "p1", &fakePeer{})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	mu.Lock()
	stopped := count
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	after := count
	mu.Unlock()
	assert.LessOrEqual(t, after, stopped+1)
}
