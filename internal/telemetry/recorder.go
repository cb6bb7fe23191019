// Package telemetry counts sessions, segments and pipeline runs.
package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Drop reasons.
const (
	DropBusy        = "busy"
	DropTerminating = "terminating"
	DropIdle        = "idle"
	DropStale       = "stale_session"
)

// Recorder tracks process-wide counters.
type Recorder struct {
	log *slog.Logger

	totalSessions   atomic.Uint64
	totalSegments   atomic.Uint64
	droppedBusy     atomic.Uint64
	droppedOther    atomic.Uint64
	totalRuns       atomic.Uint64
	failedRuns      atomic.Uint64
	boardChanges    atomic.Uint64
	activeRuns      atomic.Int64
	lastRunMillis   atomic.Int64
	totalCandidates atomic.Uint64
}

// Snapshot captures cumulative metrics recorded so far.
type Snapshot struct {
	TotalSessions   uint64 `json:"total_sessions"`
	TotalSegments   uint64 `json:"total_segments"`
	DroppedBusy     uint64 `json:"dropped_busy"`
	DroppedOther    uint64 `json:"dropped_other"`
	TotalRuns       uint64 `json:"total_runs"`
	FailedRuns      uint64 `json:"failed_runs"`
	BoardChanges    uint64 `json:"board_changes"`
	ActiveRuns      int64  `json:"active_runs"`
	LastRunMillis   int64  `json:"last_run_ms"`
	TotalCandidates uint64 `json:"total_candidates"`
}

// NewRecorder constructs a Recorder using the provided logger.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		log: logger.With("component", "telemetry"),
	}
}

// Snapshot returns an immutable view of the recorder totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalSessions:   r.totalSessions.Load(),
		TotalSegments:   r.totalSegments.Load(),
		DroppedBusy:     r.droppedBusy.Load(),
		DroppedOther:    r.droppedOther.Load(),
		TotalRuns:       r.totalRuns.Load(),
		FailedRuns:      r.failedRuns.Load(),
		BoardChanges:    r.boardChanges.Load(),
		ActiveRuns:      r.activeRuns.Load(),
		LastRunMillis:   r.lastRunMillis.Load(),
		TotalCandidates: r.totalCandidates.Load(),
	}
}

// SessionStarted counts a new session.
func (r *Recorder) SessionStarted(sessionID string) {
	if r == nil {
		return
	}
	r.totalSessions.Add(1)
	r.log.Debug("session started", "session_id", sessionID)
}

// SegmentDropped counts a segment that never reached the pipeline.
func (r *Recorder) SegmentDropped(sessionID, reason string) {
	if r == nil {
		return
	}
	r.totalSegments.Add(1)
	if reason == DropBusy {
		r.droppedBusy.Add(1)
	} else {
		r.droppedOther.Add(1)
	}
	r.log.Debug("segment dropped", "session_id", sessionID, "reason", reason)
}

// RunMetrics accumulates statistics for one pipeline run.
type RunMetrics struct {
	recorder *Recorder
	log      *slog.Logger

	started    time.Time
	stepStart  time.Time
	steps      []any
	candidates int
	closed     atomic.Bool
}

// StartRun counts an accepted segment and starts timing its run.
func (r *Recorder) StartRun(sessionID, segmentPath string) *RunMetrics {
	if r == nil {
		return nil
	}
	r.totalSegments.Add(1)
	r.totalRuns.Add(1)
	r.activeRuns.Add(1)

	now := time.Now()
	return &RunMetrics{
		recorder:  r,
		log:       r.log.With("session_id", sessionID, "segment", segmentPath),
		started:   now,
		stepStart: now,
	}
}

// Step records the duration of a finished step, measured from the previous one.
func (m *RunMetrics) Step(name string) {
	if m == nil {
		return
	}
	now := time.Now()
	m.steps = append(m.steps, name+"_ms", now.Sub(m.stepStart).Milliseconds())
	m.stepStart = now
}

// RecordCandidates notes how many words the generator returned.
func (m *RunMetrics) RecordCandidates(n int) {
	if m == nil {
		return
	}
	m.candidates = n
	m.recorder.totalCandidates.Add(uint64(n))
}

// Finish logs a summary and updates counters. Only the first call counts.
func (m *RunMetrics) Finish(changed bool, err error) {
	if m == nil {
		return
	}
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	defer m.recorder.activeRuns.Add(-1)

	duration := time.Since(m.started)
	m.recorder.lastRunMillis.Store(duration.Milliseconds())
	args := append([]any{
		"duration_ms", duration.Milliseconds(),
		"candidates", m.candidates,
		"changed", changed,
	}, m.steps...)

	if err != nil {
		m.recorder.failedRuns.Add(1)
		m.log.Warn("run failed", append(args, "error", err)...)
		return
	}
	if changed {
		m.recorder.boardChanges.Add(1)
	}
	m.log.Info("run completed", args...)
}
