// Package httpapi serves the board over HTTP: JSON state, word images and a
// websocket that accepts protocol commands and streams pipeline events.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hergott/ai-words-assistant/internal/pipeline"
	"github.com/hergott/ai-words-assistant/internal/protocol"
	"github.com/hergott/ai-words-assistant/internal/telemetry"
)

const (
	writeWait       = 5 * time.Second
	subscriberQueue = 64
	shutdownTimeout = 5 * time.Second
)

// Controller is the slice of the coordinator the server drives.
type Controller interface {
	Snapshot() pipeline.State
	StartSession() (string, error)
	StopSession()
	Subscribe(buf int) (<-chan pipeline.Event, func())
}

// Images resolves a board word to its asset file.
type Images interface {
	ImagePath(word string) (string, bool)
}

// Stats exposes pipeline counters.
type Stats interface {
	Snapshot() telemetry.Snapshot
}

// Options wires a Server. Images and Stats are optional.
type Options struct {
	Controller Controller
	Images     Images
	Stats      Stats
	Logger     *slog.Logger
}

// Server is the HTTP front end.
type Server struct {
	e      *echo.Echo
	ctrl   Controller
	images Images
	stats  Stats
	log    *slog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Clients are local tools and browsers on the same network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New builds the echo router.
func New(opts Options) (*Server, error) {
	if opts.Controller == nil {
		return nil, errors.New("httpapi: controller is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		e:      echo.New(),
		ctrl:   opts.Controller,
		images: opts.Images,
		stats:  opts.Stats,
		log:    logger.With("component", "httpapi"),
	}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.Use(middleware.Recover())
	s.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Debug("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s.e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	s.e.GET("/api/board", s.board)
	s.e.POST("/api/session", s.startSession)
	s.e.DELETE("/api/session", s.stopSession)
	s.e.GET("/api/stats", s.statsHandler)
	s.e.GET("/images/:word", s.image)
	s.e.GET(protocol.DefaultPath, s.websocket)
	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Serve accepts connections on ln until ctx is cancelled. Open websockets
// are closed when ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.e,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

func (s *Server) board(c echo.Context) error {
	return c.JSON(http.StatusOK, ResponseFrom(s.ctrl.Snapshot()))
}

func (s *Server) startSession(c echo.Context) error {
	resp := s.execute(protocol.Command{Cmd: protocol.CmdStart})
	if !resp.OK {
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) stopSession(c echo.Context) error {
	return c.JSON(http.StatusOK, s.execute(protocol.Command{Cmd: protocol.CmdStop}))
}

func (s *Server) statsHandler(c echo.Context) error {
	if s.stats == nil {
		return echo.NewHTTPError(http.StatusNotFound, "stats unavailable")
	}
	return c.JSON(http.StatusOK, s.stats.Snapshot())
}

func (s *Server) image(c echo.Context) error {
	if s.images == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no images configured")
	}
	path, ok := s.images.ImagePath(c.Param("word"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no image for word")
	}
	return c.File(path)
}

// execute runs one command against the controller.
func (s *Server) execute(cmd protocol.Command) protocol.Response {
	switch cmd.Cmd {
	case protocol.CmdStart:
		if _, err := s.ctrl.StartSession(); err != nil {
			s.log.Warn("start session", "error", err)
			return protocol.Response{OK: false, Error: err.Error()}
		}
	case protocol.CmdStop:
		s.ctrl.StopSession()
	case protocol.CmdStatus:
	default:
		return protocol.Response{OK: false, Error: fmt.Sprintf("unknown command %q", cmd.Cmd)}
	}
	return ResponseFrom(s.ctrl.Snapshot())
}

func (s *Server) websocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already replied.
		s.log.Debug("websocket upgrade", "error", err)
		return nil
	}
	defer func() { _ = conn.Close() }()
	ctx := c.Request().Context()

	for {
		var cmd protocol.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			return nil
		}
		if cmd.Cmd == protocol.CmdSubscribe {
			s.stream(ctx, conn, cmd)
			return nil
		}
		if err := s.write(conn, s.execute(cmd)); err != nil {
			return nil
		}
	}
}

// stream forwards pipeline events until the peer goes away, the
// subscription ends or ctx is cancelled.
func (s *Server) stream(ctx context.Context, conn *websocket.Conn, filter protocol.Command) {
	events, cancel := s.ctrl.Subscribe(subscriberQueue)
	defer cancel()

	if err := s.write(conn, ResponseFrom(s.ctrl.Snapshot())); err != nil {
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.closeFrame(conn, websocket.CloseGoingAway)
			return
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				s.closeFrame(conn, websocket.CloseGoingAway)
				return
			}
			out := EventFrom(ev)
			if !filter.Wants(out.Event) {
				continue
			}
			if err := s.write(conn, out); err != nil {
				return
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (s *Server) closeFrame(conn *websocket.Conn, code int) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""), time.Now().Add(writeWait))
}

// ResponseFrom renders coordinator state as a command response.
func ResponseFrom(st pipeline.State) protocol.Response {
	return protocol.Response{
		OK:         true,
		SessionID:  st.SessionID,
		Recording:  protocol.BoolPtr(st.Recording),
		Processing: protocol.BoolPtr(st.Processing),
		Board:      st.Board.Words(),
		Notice:     st.Notice,
		Status:     st.Status,
	}
}

// EventFrom renders a pipeline event for the wire.
func EventFrom(ev pipeline.Event) protocol.Event {
	out := protocol.Event{
		Event:      string(ev.Kind),
		SessionID:  ev.State.SessionID,
		Status:     ev.State.Status,
		Recording:  protocol.BoolPtr(ev.State.Recording),
		Processing: protocol.BoolPtr(ev.State.Processing),
	}
	switch ev.Kind {
	case pipeline.EventBoard:
		out.Board = ev.State.Board.Words()
		out.Notice = ev.State.Notice
	case pipeline.EventLevel:
		level := ev.Level
		out.Level = &level
	case pipeline.EventStatus:
		if ev.Err != nil {
			out.Message = ev.Err.Error()
		}
	}
	return out
}
