// Package pipeline turns finished audio segments into board updates:
// transcribe, append to the session transcript, predict candidate words and
// slot them onto the board, one segment at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hergott/ai-words-assistant/internal/audio"
	"github.com/hergott/ai-words-assistant/internal/candidates"
	"github.com/hergott/ai-words-assistant/internal/slotting"
	"github.com/hergott/ai-words-assistant/internal/stt"
	"github.com/hergott/ai-words-assistant/internal/telemetry"
	"github.com/hergott/ai-words-assistant/internal/transcript"
)

// Step failures. Each run error wraps exactly one of these.
var (
	ErrTranscription       = stt.ErrTranscription
	ErrPersistence         = transcript.ErrPersistence
	ErrCandidateGeneration = candidates.ErrCandidateGeneration
	ErrSlotting            = slotting.ErrSlotting
)

// ErrShutdown is returned by StartSession after Shutdown.
var ErrShutdown = errors.New("pipeline: shut down")

const (
	// NoticeWords caps how many leftover words the notice lists.
	NoticeWords = 16
	// SessionIDLength is the number of characters kept from a UUID.
	SessionIDLength = 6
)

// Recorder captures audio for one session at a time.
type Recorder interface {
	Start(sessionID string, onSegment func(audio.Segment)) error
	Stop() error
	DeleteSession(sessionID string) error
}

// Transcriber turns a segment into text.
type Transcriber interface {
	Transcribe(ctx context.Context, seg audio.Segment) (string, error)
}

// Generator predicts candidate words from a transcript.
type Generator interface {
	Generate(ctx context.Context, transcript string) ([]string, error)
}

// Slotter computes the next board.
type Slotter interface {
	Slot(current slotting.Board, candidates []string, seen transcript.WordSet) (slotting.Result, error)
}

// SessionRecorder is implemented by stores that keep a session log.
type SessionRecorder interface {
	BeginSession(ctx context.Context, sessionID string) error
	EndSession(ctx context.Context, sessionID string) error
}

// Options wires a Coordinator.
type Options struct {
	Recorder     Recorder
	Transcriber  Transcriber
	Generator    Generator
	Store        transcript.Store
	Slotter      Slotter
	InitialBoard slotting.Board
	Telemetry    *telemetry.Recorder
	Logger       *slog.Logger
	// NewSessionID overrides session id generation.
	NewSessionID func() string
}

// Coordinator owns the session lifecycle and the single-flight pipeline.
type Coordinator struct {
	rec   Recorder
	stt   Transcriber
	gen   Generator
	store transcript.Store
	slot  Slotter
	tel   *telemetry.Recorder
	log   *slog.Logger
	newID func() string

	ctx    context.Context
	cancel context.CancelFunc

	// gate holds a token while a segment is processed.
	gate        chan struct{}
	lifecycle   sync.Mutex
	stateMu     sync.Mutex
	state       atomic.Pointer[State]
	terminating atomic.Bool

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
	closed  bool
}

// New returns an idle coordinator showing opts.InitialBoard.
func New(opts Options) (*Coordinator, error) {
	switch {
	case opts.Recorder == nil:
		return nil, errors.New("pipeline: recorder is required")
	case opts.Transcriber == nil:
		return nil, errors.New("pipeline: transcriber is required")
	case opts.Generator == nil:
		return nil, errors.New("pipeline: generator is required")
	case opts.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case opts.Slotter == nil:
		return nil, errors.New("pipeline: slotter is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := opts.NewSessionID
	if newID == nil {
		newID = NewSessionID
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		rec:    opts.Recorder,
		stt:    opts.Transcriber,
		gen:    opts.Generator,
		store:  opts.Store,
		slot:   opts.Slotter,
		tel:    opts.Telemetry,
		log:    logger.With("component", "pipeline"),
		newID:  newID,
		ctx:    ctx,
		cancel: cancel,
		gate:   make(chan struct{}, 1),
		subs:   make(map[int]chan Event),
	}
	c.state.Store(&State{Board: opts.InitialBoard, Status: StatusReady})
	return c, nil
}

// NewSessionID returns a short random session identifier.
func NewSessionID() string {
	return uuid.NewString()[:SessionIDLength]
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() State {
	return *c.state.Load()
}

// update applies fn to a copy of the state and publishes it.
func (c *Coordinator) update(fn func(*State)) State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	next := *c.state.Load()
	fn(&next)
	c.state.Store(&next)
	return next
}

// commitBoard installs a new board if sessionID is still recording.
func (c *Coordinator) commitBoard(sessionID string, res slotting.Result) (State, bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	cur := c.state.Load()
	if c.terminating.Load() || !cur.Recording || cur.SessionID != sessionID {
		return *cur, false
	}
	next := *cur
	next.Board = res.Words
	next.Notice = Notice(res.Leftover)
	c.state.Store(&next)
	return next, true
}

// StartSession ends any running session and starts recording a new one.
func (c *Coordinator) StartSession() (string, error) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.terminating.Load() {
		return "", ErrShutdown
	}
	if c.Snapshot().Recording {
		c.stopLocked(false)
	}

	id := c.newID()
	if sr, ok := c.store.(SessionRecorder); ok {
		if err := sr.BeginSession(c.ctx, id); err != nil {
			c.log.Warn("record session start", "session_id", id, "error", err)
		}
	}

	st := c.update(func(s *State) {
		s.SessionID = id
		s.Recording = true
		s.Status = StatusRecording
	})
	if err := c.rec.Start(id, c.OnSegment); err != nil {
		st = c.update(func(s *State) {
			s.SessionID = ""
			s.Recording = false
			s.Status = StatusReady
		})
		c.publish(Event{Kind: EventStatus, State: st, Err: err})
		return "", fmt.Errorf("start recorder: %w", err)
	}

	c.tel.SessionStarted(id)
	c.log.Info("session started", "session_id", id)
	c.publish(Event{Kind: EventStatus, State: st})
	return id, nil
}

// StopSession stops recording and deletes everything stored for the session.
// It is a no-op when idle.
func (c *Coordinator) StopSession() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.stopLocked(true)
}

func (c *Coordinator) stopLocked(announce bool) {
	st := c.Snapshot()
	if !st.Recording && st.SessionID == "" {
		return
	}
	id := st.SessionID

	// Idle first so a segment in flight sees the session is gone.
	next := c.update(func(s *State) {
		s.SessionID = ""
		s.Recording = false
		s.Status = StatusReady
	})

	if err := c.rec.Stop(); err != nil {
		c.log.Warn("stop recorder", "session_id", id, "error", err)
	}
	// Fresh context: deletion must happen even during shutdown.
	ctx := context.Background()
	if sr, ok := c.store.(SessionRecorder); ok {
		if err := sr.EndSession(ctx, id); err != nil {
			c.log.Warn("record session end", "session_id", id, "error", err)
		}
	}
	if err := c.store.Delete(ctx, id); err != nil {
		c.log.Warn("delete transcript", "session_id", id, "error", err)
	}
	if err := c.rec.DeleteSession(id); err != nil {
		c.log.Warn("delete recordings", "session_id", id, "error", err)
	}

	c.log.Info("session stopped", "session_id", id)
	if announce {
		c.publish(Event{Kind: EventStatus, State: next})
	}
}

// Shutdown stops the session, halts the generator and closes all
// subscriptions. Segments arriving afterwards are ignored.
func (c *Coordinator) Shutdown() {
	if !c.terminating.CompareAndSwap(false, true) {
		return
	}
	c.lifecycle.Lock()
	c.stopLocked(false)
	c.lifecycle.Unlock()

	if closer, ok := c.gen.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			c.log.Warn("close generator", "error", err)
		}
	}
	c.cancel()

	c.subsMu.Lock()
	c.closed = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()
	c.log.Info("pipeline shut down")
}

// OnSegment processes seg unless another segment is in progress, the
// session has changed or the coordinator is shutting down. It runs on the
// caller's goroutine and returns when the run is over. A failed run is logged
// and counted; subscribers only ever see the board it did not change.
func (c *Coordinator) OnSegment(seg audio.Segment) {
	if c.terminating.Load() {
		c.tel.SegmentDropped(seg.SessionID, telemetry.DropTerminating)
		return
	}
	select {
	case c.gate <- struct{}{}:
	default:
		c.tel.SegmentDropped(seg.SessionID, telemetry.DropBusy)
		return
	}
	defer func() { <-c.gate }()

	if reason := c.dropReason(seg.SessionID); reason != "" {
		c.tel.SegmentDropped(seg.SessionID, reason)
		return
	}

	c.setProcessing(true)
	defer c.setProcessing(false)

	run := c.tel.StartRun(seg.SessionID, seg.Path)
	changed, err := c.process(seg, run)
	run.Finish(changed, err)
	if c.dropReason(seg.SessionID) != "" {
		// The session ended mid-run; undo any write that landed after its deletion.
		if err := c.store.Delete(context.Background(), seg.SessionID); err != nil {
			c.log.Warn("delete transcript", "session_id", seg.SessionID, "error", err)
		}
	}
	if err != nil && c.terminating.Load() {
		c.log.Debug("segment abandoned during shutdown", "session_id", seg.SessionID, "error", err)
		return
	}
	if err != nil {
		c.log.Warn("segment failed", "session_id", seg.SessionID, "error", err)
		if errors.Is(err, ErrTranscription) {
			c.log.Info(stt.FailureHelp)
		}
	}
}

func (c *Coordinator) dropReason(sessionID string) string {
	if c.terminating.Load() {
		return telemetry.DropTerminating
	}
	st := c.Snapshot()
	if !st.Recording {
		return telemetry.DropIdle
	}
	if st.SessionID != sessionID {
		return telemetry.DropStale
	}
	return ""
}

func (c *Coordinator) process(seg audio.Segment, run *telemetry.RunMetrics) (bool, error) {
	ctx := c.ctx
	id := seg.SessionID

	text, err := c.stt.Transcribe(ctx, seg)
	run.Step("transcribe")
	if err == nil && strings.TrimSpace(text) == "" {
		err = stt.ErrEmptyTranscript
	}
	if err != nil {
		return false, wrap(ErrTranscription, err)
	}

	if c.dropReason(id) != "" {
		return false, nil
	}
	conversation, err := c.store.Append(ctx, id, text)
	run.Step("append")
	if err != nil {
		return false, wrap(ErrPersistence, err)
	}

	if c.dropReason(id) != "" {
		return false, nil
	}
	seen, err := c.store.SeenWords(ctx, id)
	if err != nil {
		return false, wrap(ErrPersistence, err)
	}

	words, err := c.gen.Generate(ctx, conversation)
	run.Step("generate")
	run.RecordCandidates(len(words))
	if err == nil && len(words) < candidates.MinWords {
		err = fmt.Errorf("%w: got %d", candidates.ErrTooFewWords, len(words))
	}
	if err != nil {
		return false, wrap(ErrCandidateGeneration, err)
	}

	if c.dropReason(id) != "" {
		return false, nil
	}
	// Only this goroutine writes the board while the gate is held.
	res, err := c.slot.Slot(c.Snapshot().Board, words, seen)
	run.Step("slot")
	if err != nil {
		return false, wrap(ErrSlotting, err)
	}
	if !res.Changed {
		return false, nil
	}

	st, ok := c.commitBoard(id, res)
	if !ok {
		return false, nil
	}
	c.publish(Event{Kind: EventBoard, State: st})
	return true, nil
}

func wrap(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

func (c *Coordinator) setProcessing(on bool) {
	st := c.update(func(s *State) {
		s.Processing = on
		switch {
		case on:
			s.Status = StatusProcessing
		case s.Recording:
			s.Status = StatusRecording
		default:
			s.Status = StatusReady
		}
	})
	c.publish(Event{Kind: EventStatus, State: st})
}

// Notice renders the leftover words line.
func Notice(leftover []string) string {
	if len(leftover) > NoticeWords {
		leftover = leftover[:NoticeWords]
	}
	return strings.Join(leftover, ", ")
}

// PublishLevel forwards a microphone level to subscribers.
func (c *Coordinator) PublishLevel(level float64) {
	c.publish(Event{Kind: EventLevel, State: c.Snapshot(), Level: level})
}
