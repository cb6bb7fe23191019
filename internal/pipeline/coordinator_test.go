package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hergott/ai-words-assistant/internal/audio"
	"github.com/hergott/ai-words-assistant/internal/candidates"
	"github.com/hergott/ai-words-assistant/internal/slotting"
	"github.com/hergott/ai-words-assistant/internal/telemetry"
	"github.com/hergott/ai-words-assistant/internal/transcript"
)

type fakeRecorder struct {
	mu        sync.Mutex
	starts    []string
	stops     int
	deleted   []string
	onSegment func(audio.Segment)
	startErr  error
}

func (r *fakeRecorder) Start(id string, fn func(audio.Segment)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.starts = append(r.starts, id)
	r.onSegment = fn
	return nil
}

func (r *fakeRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *fakeRecorder) DeleteSession(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, id)
	return nil
}

type fakeTranscriber struct {
	text    string
	err     error
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.text, f.err
}

type fakeGenerator struct {
	words  []string
	err    error
	calls  atomic.Int32
	closed atomic.Bool
	input  atomic.Value
}

func (g *fakeGenerator) Generate(ctx context.Context, tr string) ([]string, error) {
	g.calls.Add(1)
	g.input.Store(tr)
	return g.words, g.err
}

func (g *fakeGenerator) Close() error {
	g.closed.Store(true)
	return nil
}

type knownSet map[string]bool

func (k knownSet) Contains(w string) bool { return k[w] }

func oldWords() []string {
	out := make([]string, slotting.Slots)
	for i := range out {
		out[i] = fmt.Sprintf("old%02d", i)
	}
	return out
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type harness struct {
	logs  *syncBuffer
	c     *Coordinator
	rec   *fakeRecorder
	stt   *fakeTranscriber
	gen   *fakeGenerator
	store *transcript.FileStore
	tel   *telemetry.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := transcript.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	known := knownSet{}
	for _, w := range oldWords() {
		known[w] = true
	}
	for _, w := range []string{"doctor", "nurse", "ambulance", "hospital"} {
		known[w] = true
	}
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	h := &harness{
		logs:  logs,
		rec:   &fakeRecorder{},
		stt:   &fakeTranscriber{text: "Call the doctor."},
		gen:   &fakeGenerator{words: []string{"doctor", "nurse", "ambulance", "siren"}},
		store: store,
		tel:   telemetry.NewRecorder(logger),
	}
	c, err := New(Options{
		Recorder:     h.rec,
		Transcriber:  h.stt,
		Generator:    h.gen,
		Store:        store,
		Slotter:      slotting.New(known, rand.New(rand.NewPCG(7, 7))),
		InitialBoard: slotting.BoardFrom(oldWords()),
		Telemetry:    h.tel,
		Logger:       logger,
		NewSessionID: sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Shutdown)
	h.c = c
	return h
}

func sequentialIDs() func() string {
	var n atomic.Int32
	return func() string { return fmt.Sprintf("sess%02d", n.Add(1)) }
}

func (h *harness) start(t *testing.T) string {
	t.Helper()
	id, err := h.c.StartSession()
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	return id
}

func seg(id string) audio.Segment {
	return audio.Segment{SessionID: id, Path: id + "_2024_01_01_00_00_00.wav", Samples: 100}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without collaborators")
	}
}

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	if len(id) != SessionIDLength {
		t.Errorf("len(%q) = %d, want %d", id, len(id), SessionIDLength)
	}
	if NewSessionID() == id {
		t.Error("two session ids collided")
	}
}

func TestStartSession(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	if id != "sess01" {
		t.Errorf("id = %q", id)
	}
	st := h.c.Snapshot()
	if !st.Recording || st.SessionID != id || st.Status != StatusRecording {
		t.Errorf("state = %+v", st)
	}
	if len(h.rec.starts) != 1 || h.rec.starts[0] != id {
		t.Errorf("recorder starts = %v", h.rec.starts)
	}
}

func TestStartSessionRecorderFailure(t *testing.T) {
	h := newHarness(t)
	h.rec.startErr = errors.New("no mic")

	if _, err := h.c.StartSession(); err == nil {
		t.Fatal("expected error")
	}
	if st := h.c.Snapshot(); st.Recording || st.SessionID != "" {
		t.Errorf("state = %+v, want idle", st)
	}
}

func TestSegmentUpdatesBoard(t *testing.T) {
	h := newHarness(t)
	events, cancel := h.c.Subscribe(32)
	defer cancel()
	id := h.start(t)

	h.c.OnSegment(seg(id))

	st := h.c.Snapshot()
	for _, w := range []string{"nurse", "ambulance"} {
		if !st.Board.Has(w) {
			t.Errorf("board missing %q: %v", w, st.Board)
		}
	}
	// "doctor" was said, so it is filtered out.
	if st.Board.Has("doctor") {
		t.Error("board shows a word already spoken")
	}
	if st.Notice != "siren" {
		t.Errorf("notice = %q, want %q", st.Notice, "siren")
	}
	if st.Processing {
		t.Error("still processing after run")
	}
	if got := h.gen.input.Load(); got != "Call the doctor." {
		t.Errorf("generator input = %v", got)
	}

	var sawBoard bool
	for len(events) > 0 {
		if ev := <-events; ev.Kind == EventBoard {
			sawBoard = true
		}
	}
	if !sawBoard {
		t.Error("no board event published")
	}
	if snap := h.tel.Snapshot(); snap.BoardChanges != 1 || snap.TotalRuns != 1 {
		t.Errorf("telemetry = %+v", snap)
	}
}

func TestTranscriptAccumulates(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	h.c.OnSegment(seg(id))
	h.stt.text = " Is the nurse here?"
	h.c.OnSegment(seg(id))

	if got, want := h.gen.input.Load(), "Call the doctor. Is the nurse here?"; got != want {
		t.Errorf("generator input = %q, want %q", got, want)
	}
}

func TestSingleFlight(t *testing.T) {
	h := newHarness(t)
	h.stt.entered = make(chan struct{}, 4)
	h.stt.release = make(chan struct{})
	id := h.start(t)

	done := make(chan struct{})
	go func() {
		h.c.OnSegment(seg(id))
		close(done)
	}()
	<-h.stt.entered

	if !h.c.Snapshot().Processing {
		t.Error("Processing = false during a run")
	}

	// Arrives while busy: no effect at all.
	h.c.OnSegment(seg(id))
	if n := h.stt.calls.Load(); n != 1 {
		t.Errorf("transcriber called %d times, want 1", n)
	}

	close(h.stt.release)
	<-done

	if snap := h.tel.Snapshot(); snap.DroppedBusy != 1 {
		t.Errorf("DroppedBusy = %d, want 1", snap.DroppedBusy)
	}
	if h.gen.calls.Load() != 1 {
		t.Errorf("generator called %d times, want 1", h.gen.calls.Load())
	}
}

func TestConcurrentSegmentsRunOneAtATime(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.c.OnSegment(seg(id))
		}()
	}
	wg.Wait()

	snap := h.tel.Snapshot()
	if snap.TotalRuns+snap.DroppedBusy != 20 {
		t.Errorf("runs %d + dropped %d != 20", snap.TotalRuns, snap.DroppedBusy)
	}
	if snap.ActiveRuns != 0 {
		t.Errorf("ActiveRuns = %d", snap.ActiveRuns)
	}
}

func TestTooFewWordsLeavesBoard(t *testing.T) {
	h := newHarness(t)
	h.gen.words = []string{"nurse", "ambulance"}
	events, cancel := h.c.Subscribe(32)
	defer cancel()
	id := h.start(t)
	before := h.c.Snapshot().Board

	h.c.OnSegment(seg(id))

	if h.c.Snapshot().Board != before {
		t.Error("board changed after a short answer")
	}
	assertQuietFailure(t, events)
	logs := h.logs.String()
	for _, want := range []string{ErrCandidateGeneration.Error(), candidates.ErrTooFewWords.Error()} {
		if !strings.Contains(logs, want) {
			t.Errorf("log missing %q:\n%s", want, logs)
		}
	}
}

// assertQuietFailure drains events and fails on anything but plain status
// updates.
func assertQuietFailure(t *testing.T, events <-chan Event) {
	t.Helper()
	for len(events) > 0 {
		ev := <-events
		if ev.Kind != EventStatus {
			t.Errorf("event kind = %q after a failed run", ev.Kind)
		}
		if ev.Err != nil {
			t.Errorf("event carries run error: %v", ev.Err)
		}
	}
}

func TestFailedRunNotPublished(t *testing.T) {
	h := newHarness(t)
	h.stt.err = errors.New("backend down")
	events, cancel := h.c.Subscribe(32)
	defer cancel()
	id := h.start(t)
	for len(events) > 0 {
		<-events
	}

	h.c.OnSegment(seg(id))

	assertQuietFailure(t, events)
	if got := h.c.Snapshot(); got.Processing || !got.Recording {
		t.Errorf("state = %+v", got)
	}
	if !strings.Contains(h.logs.String(), "backend down") {
		t.Error("failure not logged")
	}
	if h.tel.Snapshot().FailedRuns != 1 {
		t.Error("failure not counted")
	}
}

func TestStepFailuresAbort(t *testing.T) {
	cases := []struct {
		name     string
		setup    func(h *harness)
		sentinel error
		appended bool
	}{
		{"transcription error", func(h *harness) { h.stt.err = errors.New("api down") }, ErrTranscription, false},
		{"empty transcript", func(h *harness) { h.stt.text = "  " }, ErrTranscription, false},
		{"generator error", func(h *harness) { h.gen.err = errors.New("timeout") }, ErrCandidateGeneration, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.setup(h)
			events, cancel := h.c.Subscribe(32)
			defer cancel()
			id := h.start(t)
			before := h.c.Snapshot()

			h.c.OnSegment(seg(id))

			after := h.c.Snapshot()
			if after.Board != before.Board || after.Notice != before.Notice {
				t.Error("board or notice changed after a failed run")
			}
			_, statErr := os.Stat(h.store.TranscriptPath(id))
			if appended := statErr == nil; appended != tc.appended {
				t.Errorf("transcript written = %v, want %v", appended, tc.appended)
			}
			assertQuietFailure(t, events)
			if logs := h.logs.String(); !strings.Contains(logs, tc.sentinel.Error()) {
				t.Errorf("log missing %q:\n%s", tc.sentinel, logs)
			}
			if h.tel.Snapshot().FailedRuns != 1 {
				t.Error("failure not counted")
			}
		})
	}
}

func TestStopSession(t *testing.T) {
	h := newHarness(t)
	id := h.start(t)
	h.c.OnSegment(seg(id))
	boardBefore := h.c.Snapshot().Board

	h.c.StopSession()

	st := h.c.Snapshot()
	if st.Recording || st.SessionID != "" || st.Status != StatusReady {
		t.Errorf("state = %+v, want idle", st)
	}
	if st.Board != boardBefore {
		t.Error("stop should keep the board")
	}
	for _, p := range []string{h.store.TranscriptPath(id), h.store.WordsPath(id)} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s survived stop", p)
		}
	}
	if len(h.rec.deleted) != 1 || h.rec.deleted[0] != id {
		t.Errorf("recordings deleted = %v", h.rec.deleted)
	}

	// Idempotent.
	h.c.StopSession()
	if h.rec.stops != 1 {
		t.Errorf("recorder stopped %d times, want 1", h.rec.stops)
	}

	// Late segments of the old session are ignored.
	calls := h.stt.calls.Load()
	h.c.OnSegment(seg(id))
	if h.stt.calls.Load() != calls {
		t.Error("segment processed after stop")
	}
}

func TestStopWhileIdle(t *testing.T) {
	h := newHarness(t)
	h.c.StopSession()
	if h.rec.stops != 0 {
		t.Errorf("recorder stopped %d times while idle", h.rec.stops)
	}
}

func TestRestartEndsPreviousSession(t *testing.T) {
	h := newHarness(t)
	first := h.start(t)
	h.c.OnSegment(seg(first))
	second := h.start(t)

	if first == second {
		t.Fatal("session id reused")
	}
	if _, err := os.Stat(h.store.TranscriptPath(first)); !os.IsNotExist(err) {
		t.Error("previous session transcript survived restart")
	}

	calls := h.stt.calls.Load()
	h.c.OnSegment(seg(first))
	if h.stt.calls.Load() != calls {
		t.Error("stale session segment processed")
	}
	if snap := h.tel.Snapshot(); snap.DroppedOther != 1 {
		t.Errorf("DroppedOther = %d, want 1", snap.DroppedOther)
	}
}

func TestStopDuringRunDiscardsResult(t *testing.T) {
	h := newHarness(t)
	h.stt.entered = make(chan struct{}, 1)
	h.stt.release = make(chan struct{})
	id := h.start(t)
	before := h.c.Snapshot().Board

	done := make(chan struct{})
	go func() {
		h.c.OnSegment(seg(id))
		close(done)
	}()
	<-h.stt.entered
	h.c.StopSession()
	close(h.stt.release)
	<-done

	if h.c.Snapshot().Board != before {
		t.Error("board changed after the session stopped")
	}
	if _, err := os.Stat(h.store.TranscriptPath(id)); !os.IsNotExist(err) {
		t.Error("transcript written after the session stopped")
	}
}

func TestShutdown(t *testing.T) {
	h := newHarness(t)
	events, _ := h.c.Subscribe(8)
	id := h.start(t)

	h.c.Shutdown()

	if !h.gen.closed.Load() {
		t.Error("generator not closed")
	}
	if h.c.Snapshot().Recording {
		t.Error("still recording after shutdown")
	}
	deadline := time.After(time.Second)
	for open := true; open; {
		select {
		case _, open = <-events:
		case <-deadline:
			t.Fatal("subscription not closed")
		}
	}

	h.c.OnSegment(seg(id))
	if h.stt.calls.Load() != 0 {
		t.Error("segment processed after shutdown")
	}
	if _, err := h.c.StartSession(); !errors.Is(err, ErrShutdown) {
		t.Errorf("StartSession err = %v, want ErrShutdown", err)
	}
	if ch, _ := h.c.Subscribe(1); ch != nil {
		if _, ok := <-ch; ok {
			t.Error("subscription after shutdown is open")
		}
	}
	h.c.Shutdown()
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	_, cancel := h.c.Subscribe(1)
	defer cancel()
	id := h.start(t)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.c.OnSegment(seg(id))
			h.c.PublishLevel(0.5)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline blocked on a full subscriber")
	}
}

func TestNotice(t *testing.T) {
	var words []string
	for i := 0; i < 20; i++ {
		words = append(words, fmt.Sprintf("w%d", i))
	}
	got := Notice(words)
	if n := len(strings.Split(got, ", ")); n != NoticeWords {
		t.Errorf("notice has %d words, want %d", n, NoticeWords)
	}
	if !strings.HasPrefix(got, "w0, w1, ") || strings.Contains(got, "w16") {
		t.Errorf("notice = %q", got)
	}
	if Notice(nil) != "" {
		t.Error("empty leftover should give an empty notice")
	}
	if Notice([]string{"a", "b"}) != "a, b" {
		t.Errorf("Notice = %q", Notice([]string{"a", "b"}))
	}
}
