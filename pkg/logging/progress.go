package logging

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// DefaultProgressInterval is how often the reporter emits a progress line.
const DefaultProgressInterval = time.Second

// Counts is one point-in-time view of a running pipeline stage.
type Counts struct {
	Files  uint64
	Bytes  uint64
	Errors uint64
}

// Snapshotter supplies the current counters; implementations read atomics.
type Snapshotter interface {
	Snapshot() Counts
}

// ProgressReporter periodically logs files/bytes rates for a stage whose
// total is unknown in advance (a live walk has no row count to divide by).
type ProgressReporter struct {
	log      zerolog.Logger
	source   Snapshotter
	interval time.Duration
	start    time.Time
	done     chan struct{}
	stopped  chan struct{}
}

// NewProgressReporter creates a reporter for the given phase.
func NewProgressReporter(phase string, source Snapshotter, interval time.Duration) *ProgressReporter {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &ProgressReporter{
		log:      WithPhase(phase),
		source:   source,
		interval: interval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start launches the reporting goroutine. It stops when Stop is called or
// the context is cancelled.
func (p *ProgressReporter) Start(ctx context.Context) {
	p.start = time.Now()
	go func() {
		defer close(p.stopped)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.emit()
			case <-ctx.Done():
				return
			case <-p.done:
				return
			}
		}
	}()
}

// Stop halts reporting and emits one final progress line.
func (p *ProgressReporter) Stop() {
	close(p.done)
	<-p.stopped
	p.emit()
}

func (p *ProgressReporter) emit() {
	c := p.source.Snapshot()
	elapsed := time.Since(p.start).Seconds()
	if elapsed <= 0 {
		elapsed = 0.001
	}
	rate := uint64(float64(c.Files) / elapsed)
	p.log.Info().
		Uint64("files", c.Files).
		Uint64("errors", c.Errors).
		Str("disk", humanize.IBytes(c.Bytes)).
		Str("rate", humanize.Comma(int64(rate))+" files/s").
		Msg("progress")
}

// PhaseComplete logs a stage completion with its duration.
func PhaseComplete(log zerolog.Logger, phase string, elapsed time.Duration) *zerolog.Event {
	return log.Info().
		Str("event", "phase_completed").
		Str("phase", phase).
		Int64("duration_ms", elapsed.Milliseconds())
}
