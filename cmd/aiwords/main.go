// Command aiwords records a conversation, predicts the words it is heading
// toward and shows them on a 24-slot picture board.
//
// Usage:
//
//	aiwords [run]            terminal board with an embedded server
//	aiwords serve            headless server (HTTP, websocket, mDNS)
//	aiwords attach           terminal board for a remote server
//	aiwords mcp              MCP tools over stdio
//	aiwords ctl <command>    send start, stop or status to a server
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hergott/ai-words-assistant/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// globalFlags are accepted by every subcommand.
type globalFlags struct {
	configFile string
	dotEnv     string
	addr       string
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.configFile, "config", config.DefaultIniFile, "ini configuration file")
	fs.StringVar(&g.dotEnv, "env", config.DefaultDotEnvFile, ".env file with API keys")
	fs.StringVar(&g.addr, "addr", "", "server address host:port (overrides AIWORDS_LISTEN_ADDR)")
}

func (g globalFlags) load() (config.Config, error) {
	cfg, err := config.Loader{DotEnv: g.dotEnv, File: g.configFile}.Load()
	if err != nil {
		return config.Config{}, err
	}
	if g.addr != "" {
		cfg.ListenAddr = g.addr
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var flags globalFlags
	fs := flag.NewFlagSet("aiwords "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := flags.load()
	if err != nil {
		fmt.Fprintf(stderr, "aiwords: %v\n", err)
		return 1
	}

	switch cmd {
	case "run":
		err = runTUI(ctx, cfg)
	case "serve":
		err = runServe(ctx, cfg, newLogger(stdout, cfg.LogLevel))
	case "attach":
		err = runAttach(ctx, cfg)
	case "mcp":
		// stdout carries the protocol.
		err = runMCP(ctx, cfg, newLogger(stderr, cfg.LogLevel))
	case "ctl":
		err = runCtl(cfg, fs.Args(), stdout)
	case "version":
		fmt.Fprintln(stdout, version)
	default:
		fmt.Fprintf(stderr, "aiwords: unknown command %q\n", cmd)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "aiwords %s: %v\n", cmd, err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer, level string) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler)
}

func parseLevel(value string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
