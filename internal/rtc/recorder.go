package rtc

import (
	"sync"
	"time"

	"github.com/saeid-a/TeleClinicBack/internal/telehealth"
)

// SampleRecorder implements the engine's Recorder by tapping the raw sample
// payloads of every track in the stream and flushing them as fixed-interval
// chunks.
type SampleRecorder struct{}

func NewSampleRecorder() *SampleRecorder {
	return &SampleRecorder{}
}

func (r *SampleRecorder) Start(
	stream telehealth.CaptureStream,
	chunkEvery time.Duration,
	onChunk func(chunk []byte),
) (func(), error) {
	var mu sync.Mutex
	var buf []byte

	removals := make([]func(), 0, len(stream.Tracks()))
	for _, lt := range stream.Tracks() {
		track, ok := lt.(*Track)
		if !ok {
			continue
		}
		remove := track.Tap(func(data []byte) {
			mu.Lock()
			buf = append(buf, data...)
			mu.Unlock()
		})
		removals = append(removals, remove)
	}

	done := make(chan struct{})
	var once sync.Once

	flush := func() {
		mu.Lock()
		chunk := buf
		buf = nil
		mu.Unlock()
		if len(chunk) > 0 {
			onChunk(chunk)
		}
	}

	go func() {
		ticker := time.NewTicker(chunkEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				flush()
			}
		}
	}()

	stop := func() {
		once.Do(func() {
			close(done)
			for _, remove := range removals {
				remove()
			}
			flush()
		})
	}
	return stop, nil
}
