package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hergott/ai-words-assistant/internal/protocol"
	"github.com/hergott/ai-words-assistant/internal/slotting"
	"github.com/hergott/ai-words-assistant/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// NoticePlaceholder is shown until a run leaves words without pictures.
const NoticePlaceholder = "(words without images will appear here)"

// Description is shown under the grid.
const Description = "Words the conversation is heading toward appear on the board as it is heard.\n" +
	"This is a demonstration build with few privacy safeguards: do not record any personal information."

// Grid geometry. Terminal cells are about twice as tall as they are wide,
// and pictures are slightly wider than tall.
const (
	cellAspect    = 2
	pictureAspect = 1.16339869
	gridStretch   = 1.5
)

// GridDimensions picks columns and rows for the 24 slots from the aspect ratio
// of the area they are drawn in.
func GridDimensions(width, height int) (cols, rows int) {
	if height <= 0 {
		return 12, 2
	}
	ratio := float64(width) / float64(height) * pictureAspect * gridStretch
	switch {
	case ratio > 6:
		return 12, 2
	case ratio > 2.67:
		return 8, 3
	case ratio > 1.5:
		return 6, 4
	case ratio > 0.67:
		return 4, 6
	case ratio > 0.375:
		return 3, 8
	default:
		return 2, 12
	}
}

// Model is the root bubbletea model for the aiwords TUI.
type Model struct {
	addr string
	log  *slog.Logger

	// Connection state
	client    *protocol.Client // command connection
	evClient  *protocol.Client // event subscription connection
	connected bool
	connError string

	// Session state
	recording  bool
	processing bool
	sessionID  string
	statusText string
	level      float64

	// Board
	board    []string
	notice   string
	selected int
	lastPick string

	// UI state
	width  int
	height int

	// Errors
	errorMessage   string
	errorTransient bool

	// Reconnect
	reconnecting     bool
	reconnectAttempt int
}

// New creates a Model that will connect to the websocket at addr.
func New(addr string, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}
	return Model{
		addr:       addr,
		log:        logger.With("component", "tui"),
		statusText: "Connecting...",
		board:      make([]string, slotting.Slots),
	}
}

// Init returns the initial command: connect to the server.
func (m Model) Init() tea.Cmd {
	return connectCmd(m.addr)
}

// connectCmd opens two connections: one for commands, one for events.
func connectCmd(addr string) tea.Cmd {
	return func() tea.Msg {
		client, err := protocol.Connect(addr)
		if err != nil {
			return ConnectErrorMsg{Err: err}
		}
		evClient, err := protocol.Connect(addr)
		if err != nil {
			client.Close()
			return ConnectErrorMsg{Err: err}
		}
		return ConnectedMsg{Client: client, EvClient: evClient}
	}
}

// subscribeCmd subscribes on the event client and reads the first event.
func subscribeCmd(evClient *protocol.Client) tea.Cmd {
	return func() tea.Msg {
		if _, err := evClient.SendCommand(protocol.Command{Cmd: protocol.CmdSubscribe}); err != nil {
			return EventErrorMsg{Err: err}
		}
		return readEventCmd(evClient)()
	}
}

// readEventCmd reads the next event from the event client.
func readEventCmd(evClient *protocol.Client) tea.Cmd {
	return func() tea.Msg {
		ev, err := evClient.ReadEvent()
		if err != nil {
			return EventErrorMsg{Err: err}
		}
		return EventMsg{Event: ev}
	}
}

// statusCmd fetches the current board and session state.
func statusCmd(client *protocol.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(protocol.Command{Cmd: protocol.CmdStatus})
		if err != nil {
			return EventErrorMsg{Err: err}
		}
		return StatusResponseMsg{Response: resp}
	}
}

func startCmd(client *protocol.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(protocol.Command{Cmd: protocol.CmdStart})
		if err != nil {
			return EventErrorMsg{Err: err}
		}
		return StartResponseMsg{Response: resp}
	}
}

func stopCmd(client *protocol.Client) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.SendCommand(protocol.Command{Cmd: protocol.CmdStop})
		if err != nil {
			return EventErrorMsg{Err: err}
		}
		return StopResponseMsg{Response: resp}
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// reconnectCmd schedules a reconnection attempt with exponential backoff.
func reconnectCmd(attempt int) tea.Cmd {
	delay := time.Duration(1<<min(attempt, 4)) * time.Second // 1s, 2s, 4s, 8s, 16s cap
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return ReconnectTickMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case ConnectedMsg:
		m.client = msg.Client
		m.evClient = msg.EvClient
		m.connected = true
		m.connError = ""
		m.reconnecting = false
		m.reconnectAttempt = 0
		m.statusText = "Connected"
		return m, tea.Batch(
			subscribeCmd(m.evClient),
			statusCmd(m.client),
		)

	case ConnectErrorMsg:
		m.connected = false
		m.connError = msg.Err.Error()
		m.reconnecting = true
		m.statusText = "Server not reachable. Reconnecting..."
		return m, reconnectCmd(m.reconnectAttempt)

	case StatusResponseMsg:
		m.applyResponse(msg.Response)
		return m, nil

	case StartResponseMsg:
		r := msg.Response
		if !r.OK {
			m.errorMessage = r.Error
			m.errorTransient = true
			return m, clearTransientErrorCmd()
		}
		m.applyResponse(r)
		return m, nil

	case StopResponseMsg:
		r := msg.Response
		if !r.OK {
			m.errorMessage = r.Error
			return m, nil
		}
		m.applyResponse(r)
		m.level = 0
		return m, nil

	case EventMsg:
		cmd := m.handleEvent(msg.Event)
		if m.evClient == nil {
			return m, cmd
		}
		return m, tea.Batch(cmd, readEventCmd(m.evClient))

	case EventErrorMsg:
		m.connected = false
		m.connError = msg.Err.Error()
		m.statusText = "Disconnected. Reconnecting..."
		m.reconnecting = true
		m.closeClients()
		return m, reconnectCmd(m.reconnectAttempt)

	case ReconnectTickMsg:
		m.reconnectAttempt++
		return m, connectCmd(m.addr)

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) applyResponse(r protocol.Response) {
	if r.Recording != nil {
		m.recording = *r.Recording
	}
	if r.Processing != nil {
		m.processing = *r.Processing
	}
	m.sessionID = r.SessionID
	if r.Status != "" {
		m.statusText = r.Status
	}
	if len(r.Board) > 0 {
		m.board = r.Board
	}
	if r.Notice != "" {
		m.notice = r.Notice
	}
}

// handleEvent processes a server event and returns any resulting command.
func (m *Model) handleEvent(ev protocol.Event) tea.Cmd {
	if ev.Recording != nil {
		m.recording = *ev.Recording
		if !m.recording {
			m.level = 0
		}
	}
	if ev.Processing != nil {
		m.processing = *ev.Processing
	}
	if ev.Status != "" {
		m.statusText = ev.Status
	}

	switch ev.Event {
	case protocol.EventStatus:
		m.sessionID = ev.SessionID
		if ev.Message != "" {
			m.errorMessage = ev.Message
			m.errorTransient = true
			return clearTransientErrorCmd()
		}

	case protocol.EventBoard:
		if len(ev.Board) > 0 {
			m.board = ev.Board
		}
		m.notice = ev.Notice

	case protocol.EventLevel:
		if ev.Level != nil && m.recording {
			m.level = *ev.Level
		}
	}
	return nil
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cols, _ := m.gridDimensions()

	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		m.closeClients()
		return m, tea.Quit

	case KeySpace:
		if !m.connected {
			return m, nil
		}
		if m.recording {
			return m, stopCmd(m.client)
		}
		return m, startCmd(m.client)

	case KeyLeft, KeyH:
		if m.selected > 0 {
			m.selected--
		}
	case KeyRight, KeyL:
		if m.selected < slotting.Slots-1 {
			m.selected++
		}
	case KeyUp, KeyK:
		if m.selected-cols >= 0 {
			m.selected -= cols
		}
	case KeyDown, KeyJ:
		if m.selected+cols < slotting.Slots {
			m.selected += cols
		}

	case KeyEnter:
		word := ""
		if m.selected < len(m.board) {
			word = m.board[m.selected]
		}
		m.lastPick = word
		m.log.Info(fmt.Sprintf("word %d selected", m.selected+1), "word", word)
	}

	return m, nil
}

func (m *Model) closeClients() {
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	if m.evClient != nil {
		m.evClient.Close()
		m.evClient = nil
	}
}

// Layout

func (m Model) noticeLines() []string {
	text := m.notice
	if text == "" {
		text = NoticePlaceholder
	}
	return wrapText(text, max(10, m.width-2))
}

func (m Model) descriptionLines() []string {
	return wrapText(Description, max(10, m.width-2))
}

// gridHeight is what remains after header, status, notice, dividers,
// description, error and footer lines.
func (m Model) gridHeight() int {
	if m.height == 0 {
		return 12
	}
	reserved := 2 + len(m.noticeLines()) + 2 + len(m.descriptionLines()) + 1 + 1
	return max(slotting.Slots/12, m.height-reserved)
}

func (m Model) gridDimensions() (cols, rows int) {
	width := m.width
	if width == 0 {
		width = 80
	}
	return GridDimensions(width, m.gridHeight()*cellAspect)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, m.renderNotice())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderGrid())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderDescription())
	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("AI WORDS ASSISTANT")
	if m.sessionID != "" {
		title += ui.DimStyle.Render("  session " + m.sessionID)
	}
	return title
}

func (m Model) renderStatusBar() string {
	if !m.connected {
		if m.connError != "" {
			return ui.ErrorTextStyle.Render(m.statusText)
		}
		return ui.DimStyle.Render(m.statusText)
	}

	var dot string
	if m.recording {
		dot = ui.RecordingDotStyle.Render("● REC")
	} else {
		dot = ui.IdleDotStyle.Render("○ IDLE")
	}

	var levels string
	if m.recording {
		levels = "  " + renderLevelMeter("MIC", m.level)
	}

	var processing string
	if m.processing {
		processing = "  " + ui.SpinnerStyle.Render("⟳ AI")
	}

	var picked string
	if m.lastPick != "" {
		picked = "  " + ui.DimStyle.Render("selected: "+m.lastPick)
	}

	return dot + levels + processing + picked
}

func renderLevelMeter(label string, level float64) string {
	const barLen = 8
	filled := int(level * barLen)
	if filled > barLen {
		filled = barLen
	}

	var bar string
	for i := 0; i < barLen; i++ {
		if i < filled {
			pct := float64(i) / float64(barLen)
			if pct > 0.6 {
				bar += ui.LevelYellowStyle.Render("█")
			} else {
				bar += ui.LevelGreenStyle.Render("█")
			}
		} else {
			bar += ui.LevelGrayStyle.Render("░")
		}
	}
	return ui.MicLabelStyle.Render(label) + " " + bar
}

func (m Model) renderNotice() string {
	style := ui.NoticeStyle
	if m.notice == "" {
		style = ui.NoticePlaceholderStyle
	}
	lines := m.noticeLines()
	for i, l := range lines {
		lines[i] = style.Render(" " + padRight(l, m.width-2) + " ")
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderGrid() string {
	height := m.gridHeight()
	cols, rows := m.gridDimensions()
	cellW := max(3, m.width/cols)
	rowH := max(1, height/rows)

	var lines []string
	for r := 0; r < rows; r++ {
		var cells []string
		for c := 0; c < cols; c++ {
			cells = append(cells, m.renderCell(r*cols+c, cellW))
		}
		row := strings.Join(cells, "")
		for k := 0; k < rowH; k++ {
			if k == rowH/2 {
				lines = append(lines, row)
			} else {
				lines = append(lines, "")
			}
		}
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderCell(i, width int) string {
	word := ""
	if i < len(m.board) {
		word = m.board[i]
	}
	label := word
	if label == "" {
		label = "·"
	}
	label = truncateToWidth(label, max(1, width-1))
	placed := lipgloss.PlaceHorizontal(width, lipgloss.Center, label)

	switch {
	case i == m.selected:
		return ui.SelectedCellStyle.Render(placed)
	case word == "":
		return ui.EmptyCellStyle.Render(placed)
	default:
		return ui.CellStyle.Render(placed)
	}
}

func (m Model) renderDescription() string {
	lines := m.descriptionLines()
	for i, l := range lines {
		lines[i] = ui.DescriptionStyle.Render(l)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	var parts []string

	if m.connected {
		if m.recording {
			parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(" Stop"))
		} else {
			parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(" Start"))
		}
		parts = append(parts, ui.FooterKeyStyle.Render("←↑↓→")+ui.FooterDescStyle.Render(" Move"))
		parts = append(parts, ui.FooterKeyStyle.Render("Enter")+ui.FooterDescStyle.Render(" Select"))
	}

	parts = append(parts, ui.FooterKeyStyle.Render("q")+ui.FooterDescStyle.Render(" Quit"))

	return strings.Join(parts, "  ")
}

// Helpers

func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if width <= 1 {
		return string(runes[:1])
	}
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
