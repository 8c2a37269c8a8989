package telehealth

import (
	"context"
	"time"

	"github.com/saeid-a/TeleClinicBack/internal/models"
	"github.com/sirupsen/logrus"
)

const DefaultSampleInterval = 5 * time.Second

// ClassifyQuality maps sampled transport metrics to a quality band. Bands
// are checked most severe first, so any single degraded metric pins the
// result to that band.
func ClassifyQuality(latency time.Duration, packetsLost, bitrateKbps int) models.ConnectionQuality {
	ms := latency.Milliseconds()
	switch {
	case ms > 300 || packetsLost > 50 || bitrateKbps < 100:
		return models.QualityPoor
	case ms > 150 || packetsLost > 20 || bitrateKbps < 300:
		return models.QualityFair
	case ms > 75 || packetsLost > 5 || bitrateKbps < 500:
		return models.QualityGood
	default:
		return models.QualityExcellent
	}
}

// QualityMonitor samples each connected peer connection on a fixed interval
// and publishes classified stats. One sampling goroutine runs per watched
// connection and exits when its context is cancelled.
type QualityMonitor struct {
	interval time.Duration
	bus      *Bus
	update   func(sessionID, userID string, stats models.ConnectionStats)
	log      *logrus.Logger
}

func NewQualityMonitor(
	interval time.Duration,
	bus *Bus,
	update func(sessionID, userID string, stats models.ConnectionStats),
	log *logrus.Logger,
) *QualityMonitor {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &QualityMonitor{
		interval: interval,
		bus:      bus,
		update:   update,
		log:      log,
	}
}

func (q *QualityMonitor) Watch(ctx context.Context, sessionID, userID string, pc PeerConnection) {
	go q.sampleLoop(ctx, sessionID, userID, pc)
}

func (q *QualityMonitor) sampleLoop(ctx context.Context, sessionID, userID string, pc PeerConnection) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	var prevBytes uint64
	var primed bool

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sample, err := pc.Stats(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.WithError(err).
				WithField("session_id", sessionID).
				Debug("stats sample failed")
			continue
		}

		if !primed {
			// No previous snapshot to derive a bitrate from; publishing
			// now would misreport a fresh connection as zero-bitrate.
			prevBytes = sample.BytesReceived
			primed = true
			continue
		}

		bitrate := 0
		if sample.BytesReceived >= prevBytes {
			bitrate = int(float64(sample.BytesReceived-prevBytes) * 8 / 1000 / q.interval.Seconds())
		}
		prevBytes = sample.BytesReceived

		stats := models.ConnectionStats{
			BitrateKbps: bitrate,
			PacketsLost: sample.PacketsLost,
			LatencyMS:   int(sample.RoundTripTime.Milliseconds()),
			FrameWidth:  sample.FrameWidth,
			FrameHeight: sample.FrameHeight,
			FrameRate:   sample.FrameRate,
			AudioLevel:  sample.AudioLevel,
			Quality:     ClassifyQuality(sample.RoundTripTime, sample.PacketsLost, bitrate),
		}

		if q.update != nil {
			q.update(sessionID, userID, stats)
		}
		q.bus.Publish(Event{
			Type:      EventStatsUpdate,
			SessionID: sessionID,
			UserID:    userID,
			Stats:     &stats,
		})
	}
}
