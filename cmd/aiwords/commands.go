package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/hergott/ai-words-assistant/internal/app"
	"github.com/hergott/ai-words-assistant/internal/config"
	"github.com/hergott/ai-words-assistant/internal/httpapi"
	"github.com/hergott/ai-words-assistant/internal/mcpserver"
	"github.com/hergott/ai-words-assistant/internal/protocol"
)

// runTUI starts the pipeline and its server on the listen address and shows
// the board in the terminal. Without a terminal it behaves like serve.
func runTUI(ctx context.Context, cfg config.Config) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		logger := newLogger(os.Stdout, cfg.LogLevel)
		logger.Warn("stdin is not a terminal; running headless")
		return runServe(ctx, cfg, logger)
	}

	logger, closeLog, err := fileLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc, ln, err := startServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	return runProgram(ctx, protocol.URL(ln.Addr().String()), logger)
}

// runAttach shows the board of a server started elsewhere.
func runAttach(ctx context.Context, cfg config.Config) error {
	logger, closeLog, err := fileLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	return runProgram(ctx, protocol.URL(cfg.ListenAddr), logger)
}

func runProgram(ctx context.Context, url string, logger *slog.Logger) error {
	p := tea.NewProgram(app.New(url, logger), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal ui: %w", err)
	}
	return nil
}

// runServe runs the pipeline and server until ctx is cancelled.
func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc, _, err := startServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	<-ctx.Done()
	logger.Info("shutdown requested")
	return nil
}

// startServer builds the pipeline and serves it on cfg.ListenAddr in the
// background until ctx is cancelled.
func startServer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*services, net.Listener, error) {
	svc, err := newCore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := svc.withPipeline(); err != nil {
		svc.Close()
		return nil, nil, err
	}

	srv, err := httpapi.New(httpapi.Options{
		Controller: svc.coord,
		Images:     svc.vocab,
		Stats:      svc.tel,
		Logger:     logger,
	})
	if err != nil {
		svc.Close()
		return nil, nil, err
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		svc.Close()
		return nil, nil, fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}

	if cfg.Advertise {
		port := ln.Addr().(*net.TCPAddr).Port
		withdraw, err := httpapi.Advertise(cfg.ServiceName, port, logger)
		if err != nil {
			logger.Warn("mdns advertisement failed", "error", err)
		} else {
			svc.closers = append(svc.closers, func() error { withdraw(); return nil })
		}
	}

	go func() {
		if err := srv.Serve(ctx, ln); err != nil {
			logger.Error("http server terminated", "error", err)
		}
	}()
	return svc, ln, nil
}

// runMCP serves the prediction and slotting tools over stdio.
func runMCP(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	svc, err := newCore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	s, err := mcpserver.New(mcpserver.Options{
		Generator:  svc.gen,
		Slotter:    svc.slot,
		Vocabulary: svc.vocab,
		Version:    version,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	return mcpserver.ServeStdio(s)
}

// runCtl sends one command to a running server and prints the response.
func runCtl(cfg config.Config, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: aiwords ctl start|stop|status")
	}
	client, err := protocol.Connect(protocol.URL(cfg.ListenAddr))
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.SendCommand(protocol.Command{Cmd: args[0]})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("server: %s", resp.Error)
	}
	return nil
}

// fileLogger keeps logs off the terminal the board is drawn on.
func fileLogger(cfg config.Config) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(cfg.DataDir, logFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return newLogger(f, cfg.LogLevel), func() { _ = f.Close() }, nil
}
