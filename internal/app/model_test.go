package app

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/hergott/ai-words-assistant/internal/protocol"
	"github.com/hergott/ai-words-assistant/internal/slotting"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newModel() Model {
	return New("ws://127.0.0.1:1/ws", discardLogger())
}

func applyUpdate(m Model, msg tea.Msg) (Model, tea.Cmd) {
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func TestNewModel(t *testing.T) {
	m := newModel()
	if m.connected {
		t.Error("new model should not be connected")
	}
	if m.recording {
		t.Error("new model should not be recording")
	}
	if len(m.board) != slotting.Slots {
		t.Errorf("board len = %d, want %d", len(m.board), slotting.Slots)
	}
}

func TestGridDimensions(t *testing.T) {
	tests := []struct {
		width, height int
		cols, rows    int
	}{
		{1000, 700, 6, 4},
		{100, 10, 12, 2},
		{300, 100, 8, 3},
		{100, 100, 6, 4},
		{100, 120, 4, 6},
		{100, 300, 3, 8},
		{100, 600, 2, 12},
		{100, 0, 12, 2},
	}
	for _, tt := range tests {
		cols, rows := GridDimensions(tt.width, tt.height)
		if cols != tt.cols || rows != tt.rows {
			t.Errorf("GridDimensions(%d, %d) = %dx%d, want %dx%d",
				tt.width, tt.height, cols, rows, tt.cols, tt.rows)
		}
		if cols*rows != slotting.Slots {
			t.Errorf("GridDimensions(%d, %d) covers %d slots", tt.width, tt.height, cols*rows)
		}
	}
}

func TestConnectError(t *testing.T) {
	m := newModel()
	m.width = 80
	m.height = 24

	model, cmd := applyUpdate(m, ConnectErrorMsg{Err: fmt.Errorf("connection refused")})
	if model.connected {
		t.Error("should not be connected after error")
	}
	if !model.reconnecting {
		t.Error("should be reconnecting after connect error")
	}
	if cmd == nil {
		t.Error("expected reconnect command")
	}
}

func TestStatusResponse(t *testing.T) {
	m := newModel()
	m.connected = true

	board := make([]string, slotting.Slots)
	board[0] = "nurse"
	model, _ := applyUpdate(m, StatusResponseMsg{Response: protocol.Response{
		OK:        true,
		SessionID: "a1b2c3",
		Recording: protocol.BoolPtr(true),
		Board:     board,
		Status:    "recording",
	}})

	if !model.recording {
		t.Error("should be recording")
	}
	if model.sessionID != "a1b2c3" {
		t.Errorf("sessionID = %q, want %q", model.sessionID, "a1b2c3")
	}
	if model.board[0] != "nurse" {
		t.Errorf("board[0] = %q", model.board[0])
	}
}

func TestStartResponseError(t *testing.T) {
	m := newModel()
	m.connected = true

	model, cmd := applyUpdate(m, StartResponseMsg{Response: protocol.Response{OK: false, Error: "no microphone"}})
	if model.recording {
		t.Error("should not be recording")
	}
	if model.errorMessage != "no microphone" || !model.errorTransient {
		t.Errorf("error = %q transient=%v", model.errorMessage, model.errorTransient)
	}
	if cmd == nil {
		t.Error("expected clear-error command")
	}

	model, _ = applyUpdate(model, ClearTransientErrorMsg{})
	if model.errorMessage != "" {
		t.Errorf("error not cleared: %q", model.errorMessage)
	}
}

func TestStopResponse(t *testing.T) {
	m := newModel()
	m.connected = true
	m.recording = true
	m.sessionID = "a1b2c3"
	m.level = 0.7

	model, _ := applyUpdate(m, StopResponseMsg{Response: protocol.Response{
		OK:        true,
		Recording: protocol.BoolPtr(false),
		Status:    "ready",
	}})
	if model.recording || model.sessionID != "" || model.level != 0 {
		t.Errorf("after stop: recording=%v session=%q level=%v", model.recording, model.sessionID, model.level)
	}
}

func TestBoardEvent(t *testing.T) {
	m := newModel()
	m.connected = true

	board := make([]string, slotting.Slots)
	board[5] = "ambulance"
	m.handleEvent(protocol.Event{Event: protocol.EventBoard, Board: board, Notice: "siren, storm"})

	if m.board[5] != "ambulance" {
		t.Errorf("board[5] = %q", m.board[5])
	}
	if m.notice != "siren, storm" {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestLevelEvent(t *testing.T) {
	m := newModel()
	m.connected = true
	m.recording = true

	level := 0.75
	m.handleEvent(protocol.Event{Event: protocol.EventLevel, Level: &level})
	if m.level != 0.75 {
		t.Errorf("level = %v, want 0.75", m.level)
	}
}

func TestStatusEvent(t *testing.T) {
	m := newModel()
	m.connected = true
	m.recording = true
	m.level = 0.5

	m.handleEvent(protocol.Event{
		Event:      protocol.EventStatus,
		Recording:  protocol.BoolPtr(false),
		Processing: protocol.BoolPtr(false),
		Status:     "ready",
	})
	if m.recording {
		t.Error("should not be recording after status event")
	}
	if m.level != 0 {
		t.Errorf("level = %v, want 0 when idle", m.level)
	}
	if m.statusText != "ready" {
		t.Errorf("statusText = %q", m.statusText)
	}
}

func TestStatusEventMessage(t *testing.T) {
	m := newModel()
	cmd := m.handleEvent(protocol.Event{Event: protocol.EventStatus, Status: "ready", Message: "start recorder: no device"})
	if m.errorMessage != "start recorder: no device" {
		t.Errorf("errorMessage = %q", m.errorMessage)
	}
	if cmd == nil {
		t.Error("expected clear-error command")
	}
}

func TestFailedRunLeavesErrorBarEmpty(t *testing.T) {
	m := newModel()
	m.width = 80
	m.height = 24
	before := append([]string(nil), m.board...)

	// A run that fails only toggles processing; no board or message follows.
	m.handleEvent(protocol.Event{Event: protocol.EventStatus, Status: "processing", Recording: protocol.BoolPtr(true), Processing: protocol.BoolPtr(true)})
	m.handleEvent(protocol.Event{Event: protocol.EventStatus, Status: "recording", Recording: protocol.BoolPtr(true), Processing: protocol.BoolPtr(false)})
	m.handleEvent(protocol.Event{Event: "error", Message: "stt: transcription failed: backend down"})

	if m.errorMessage != "" {
		t.Errorf("errorMessage = %q, want empty", m.errorMessage)
	}
	if strings.Contains(m.View(), "backend down") {
		t.Error("view shows the run failure")
	}
	for i, w := range before {
		if m.board[i] != w {
			t.Fatalf("board[%d] = %q, want %q", i, m.board[i], w)
		}
	}
}

func TestProcessingEvent(t *testing.T) {
	m := newModel()
	m.handleEvent(protocol.Event{Event: protocol.EventStatus, Processing: protocol.BoolPtr(true)})
	if !m.processing {
		t.Error("should be processing")
	}
}

func TestGridNavigation(t *testing.T) {
	m := newModel()
	m.width = 80
	m.height = 24
	cols, _ := m.gridDimensions()

	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyLeft})
	if m.selected != 0 {
		t.Errorf("left at start: selected = %d", m.selected)
	}
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyRight})
	if m.selected != 1 {
		t.Errorf("right: selected = %d, want 1", m.selected)
	}
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyDown})
	if m.selected != 1+cols {
		t.Errorf("down: selected = %d, want %d", m.selected, 1+cols)
	}
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	if m.selected != 1 {
		t.Errorf("k: selected = %d, want 1", m.selected)
	}
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyUp})
	if m.selected != 1 {
		t.Errorf("up at top row: selected = %d, want 1", m.selected)
	}

	m.selected = slotting.Slots - 1
	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyRight})
	if m.selected != slotting.Slots-1 {
		t.Errorf("right at end: selected = %d", m.selected)
	}
}

func TestEnterLogsSelection(t *testing.T) {
	var buf bytes.Buffer
	m := New("ws://127.0.0.1:1/ws", slog.New(slog.NewTextHandler(&buf, nil)))
	m.board[2] = "nurse"
	m.selected = 2

	m, _ = applyUpdate(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.lastPick != "nurse" {
		t.Errorf("lastPick = %q", m.lastPick)
	}
	out := buf.String()
	if !strings.Contains(out, "word 3 selected") || !strings.Contains(out, "word=nurse") {
		t.Errorf("log = %q", out)
	}
}

func TestSpaceIgnoredWhenDisconnected(t *testing.T) {
	m := newModel()
	_, cmd := applyUpdate(m, tea.KeyMsg{Type: tea.KeySpace})
	if cmd != nil {
		t.Error("space while disconnected should do nothing")
	}
}

func TestQuit(t *testing.T) {
	m := newModel()
	_, cmd := applyUpdate(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestViewRendersWithSize(t *testing.T) {
	m := newModel()
	m.width = 80
	m.height = 24
	m.board[0] = "hospital"

	view := m.View()
	for _, want := range []string{"AI WORDS ASSISTANT", NoticePlaceholder, "hospital", "privacy safeguards"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}

	m.notice = "siren"
	if view := m.View(); strings.Contains(view, NoticePlaceholder) || !strings.Contains(view, "siren") {
		t.Error("notice should replace the placeholder")
	}
}

func TestViewWithoutSize(t *testing.T) {
	m := newModel()
	if m.View() != "Initializing..." {
		t.Errorf("View() = %q", m.View())
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("one two three four", 9)
	if len(lines) != 3 || lines[0] != "one two" || lines[1] != "three" || lines[2] != "four" {
		t.Errorf("wrapText = %q", lines)
	}
}

// startMockServer answers status with a one-word board and streams a single
// board event after subscribe.
func startMockServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var cmd protocol.Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			board := make([]string, slotting.Slots)
			board[0] = "yes"
			resp := protocol.Response{OK: true, Board: board, Recording: protocol.BoolPtr(false), Status: "ready"}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
			if cmd.Cmd == protocol.CmdSubscribe {
				board[1] = "doctor"
				_ = conn.WriteJSON(protocol.Event{Event: protocol.EventBoard, Board: board, Notice: "siren"})
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + protocol.DefaultPath
}

func TestConnectAndSubscribe(t *testing.T) {
	m := New(startMockServer(t), discardLogger())

	msg := connectCmd(m.addr)()
	connected, ok := msg.(ConnectedMsg)
	if !ok {
		t.Fatalf("connect = %T %+v", msg, msg)
	}
	m, _ = applyUpdate(m, connected)
	defer m.closeClients()
	if !m.connected {
		t.Fatal("should be connected")
	}

	m, _ = applyUpdate(m, statusCmd(m.client)())
	if m.board[0] != "yes" {
		t.Errorf("status board[0] = %q", m.board[0])
	}

	msg = subscribeCmd(m.evClient)()
	ev, ok := msg.(EventMsg)
	if !ok {
		t.Fatalf("subscribe = %T %+v", msg, msg)
	}
	m, cmd := applyUpdate(m, ev)
	if m.board[1] != "doctor" || m.notice != "siren" {
		t.Errorf("board = %q notice = %q", m.board[:2], m.notice)
	}
	if cmd == nil {
		t.Error("expected next read command")
	}
}
