package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultSegmentDuration is how much audio goes into one segment.
const DefaultSegmentDuration = 30 * time.Second

const segmentTimeLayout = "2006_01_02_15_04_05"

// ErrAlreadyRecording is returned by Start while a capture is running.
var ErrAlreadyRecording = errors.New("audio: already recording")

// Segment is a finished audio file.
type Segment struct {
	SessionID string
	Path      string
	StartedAt time.Time
	Duration  time.Duration
	Samples   int
}

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	Dir             string
	SampleRate      int
	SegmentDuration time.Duration
}

// Recorder cuts a Source into segments and hands each finished one to a
// callback on its own goroutine.
type Recorder struct {
	source  Source
	dir     string
	rate    int
	segment time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	onLevel func(float64)
}

// NewRecorder creates the segment directory and returns a stopped recorder.
func NewRecorder(source Source, cfg RecorderConfig, logger *slog.Logger) (*Recorder, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.SegmentDuration <= 0 {
		cfg.SegmentDuration = DefaultSegmentDuration
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings dir: %w", err)
	}
	return &Recorder{
		source:  source,
		dir:     cfg.Dir,
		rate:    cfg.SampleRate,
		segment: cfg.SegmentDuration,
		log:     logger.With("component", "recorder", "source", source.Name()),
	}, nil
}

// OnLevel registers a callback receiving the RMS level of each captured chunk.
func (r *Recorder) OnLevel(fn func(float64)) {
	r.mu.Lock()
	r.onLevel = fn
	r.mu.Unlock()
}

// Recording reports whether a capture loop is running.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// Start begins capturing for sessionID.
func (r *Recorder) Start(sessionID string, onSegment func(Segment)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return ErrAlreadyRecording
	}

	ctx, cancel := context.WithCancel(context.Background())
	pcm, err := r.source.Start(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("start source: %w", err)
	}
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	go r.loop(ctx, sessionID, pcm, onSegment, done)
	r.log.Info("recording started", "session_id", sessionID, "segment", r.segment)
	return nil
}

// Stop ends the capture and waits for the loop to exit. Audio of the
// unfinished segment is discarded. Stop is a no-op when not recording.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	r.log.Info("recording stopped")
	return nil
}

func (r *Recorder) loop(ctx context.Context, sessionID string, pcm <-chan []int16, onSegment func(Segment), done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.segment)
	defer ticker.Stop()

	var buf []int16
	started := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-pcm:
			if !ok {
				r.log.Warn("audio source closed", "session_id", sessionID)
				// Wait for Stop so the caller sees a consistent state.
				<-ctx.Done()
				return
			}
			buf = append(buf, chunk...)
			r.mu.Lock()
			onLevel := r.onLevel
			r.mu.Unlock()
			if onLevel != nil {
				onLevel(Level(chunk))
			}
		case now := <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if len(buf) == 0 {
				started = now
				continue
			}
			seg, err := r.write(sessionID, buf, started)
			buf, started = nil, now
			if err != nil {
				r.log.Error("write segment", "session_id", sessionID, "error", err)
				continue
			}
			if onSegment != nil {
				go onSegment(seg)
			}
		}
	}
}

func (r *Recorder) write(sessionID string, samples []int16, started time.Time) (Segment, error) {
	name := fmt.Sprintf("%s_%s.wav", sessionID, started.Format(segmentTimeLayout))
	path := filepath.Join(r.dir, name)
	if err := WriteWAV(path, samples, r.rate); err != nil {
		return Segment{}, err
	}
	seg := Segment{
		SessionID: sessionID,
		Path:      path,
		StartedAt: started,
		Duration:  time.Duration(len(samples)) * time.Second / time.Duration(r.rate),
		Samples:   len(samples),
	}
	r.log.Debug("segment written", "path", path, "samples", len(samples))
	return seg, nil
}

// DeleteSession removes every segment recorded for sessionID.
func (r *Recorder) DeleteSession(sessionID string) error {
	if sessionID == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(r.dir, sessionID+"_*.wav"))
	if err != nil {
		return fmt.Errorf("glob segments: %w", err)
	}
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
