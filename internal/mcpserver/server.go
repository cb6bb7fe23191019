// Package mcpserver exposes word prediction, slotting and vocabulary lookup
// as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hergott/ai-words-assistant/internal/slotting"
	"github.com/hergott/ai-words-assistant/internal/transcript"
)

// Name is the server name announced to MCP clients.
const Name = "aiwords"

// Generator predicts candidate words from a transcript.
type Generator interface {
	Generate(ctx context.Context, transcript string) ([]string, error)
}

// Slotter computes the next board.
type Slotter interface {
	Slot(current slotting.Board, candidates []string, seen transcript.WordSet) (slotting.Result, error)
}

// Vocabulary answers whether a word can be pictured.
type Vocabulary interface {
	Contains(word string) bool
	ImagePath(word string) (string, bool)
}

// Options wires the tools.
type Options struct {
	Generator  Generator
	Slotter    Slotter
	Vocabulary Vocabulary
	Version    string
	Logger     *slog.Logger
}

type tools struct {
	gen   Generator
	slot  Slotter
	vocab Vocabulary
	log   *slog.Logger
}

// SlotResult is the JSON body returned by slot_words.
type SlotResult struct {
	Board    []string `json:"board"`
	Changed  bool     `json:"changed"`
	Leftover []string `json:"leftover"`
}

// LookupResult is the JSON body returned by lookup_word.
type LookupResult struct {
	Word  string `json:"word"`
	Known bool   `json:"known"`
	Image string `json:"image,omitempty"`
}

// New builds an MCP server with all tools registered.
func New(opts Options) (*server.MCPServer, error) {
	switch {
	case opts.Generator == nil:
		return nil, errors.New("mcpserver: generator is required")
	case opts.Slotter == nil:
		return nil, errors.New("mcpserver: slotter is required")
	case opts.Vocabulary == nil:
		return nil, errors.New("mcpserver: vocabulary is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	t := &tools{
		gen:   opts.Generator,
		slot:  opts.Slotter,
		vocab: opts.Vocabulary,
		log:   logger.With("component", "mcp"),
	}

	s := server.NewMCPServer(Name, version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("predict_words",
		mcp.WithDescription("Predict words the speaker may want next, given a conversation transcript."),
		mcp.WithString("transcript", mcp.Required(), mcp.Description("Conversation so far")),
	), t.predictWords)

	s.AddTool(mcp.NewTool("slot_words",
		mcp.WithDescription("Place candidate words onto the 24-slot picture board."),
		mcp.WithString("candidates", mcp.Required(), mcp.Description("Comma-separated candidate words")),
		mcp.WithString("board", mcp.Description("Comma-separated current board, 24 entries, empty for blank slots")),
		mcp.WithString("seen", mcp.Description("Comma-separated words already spoken")),
	), t.slotWords)

	s.AddTool(mcp.NewTool("lookup_word",
		mcp.WithDescription("Report whether a word has a picture on the board."),
		mcp.WithString("word", mcp.Required(), mcp.Description("Word to look up")),
	), t.lookupWord)

	return s, nil
}

// ServeStdio serves s on stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	if err := server.ServeStdio(s); err != nil {
		return fmt.Errorf("serve mcp: %w", err)
	}
	return nil
}

func (t *tools) predictWords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("transcript")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	words, err := t.gen.Generate(ctx, text)
	if err != nil {
		t.log.Warn("predict_words", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(words, ", ")), nil
}

func (t *tools) slotWords(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("candidates")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	board := slotting.BoardFrom(splitList(req.GetString("board", ""), true))
	seen := transcript.ParseWordSet(req.GetString("seen", ""))

	res, err := t.slot.Slot(board, splitList(raw, false), seen)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(SlotResult{
		Board:    res.Words.Words(),
		Changed:  res.Changed,
		Leftover: res.Leftover,
	})
}

func (t *tools) lookupWord(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	word, err := req.RequireString("word")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	word = strings.ToLower(strings.TrimSpace(word))
	out := LookupResult{Word: word, Known: t.vocab.Contains(word)}
	if path, ok := t.vocab.ImagePath(word); ok {
		out.Image = path
	}
	return jsonResult(out)
}

// splitList splits a comma-separated argument. keepEmpty preserves blank
// entries so board positions survive.
func splitList(raw string, keepEmpty bool) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" && !keepEmpty {
			continue
		}
		out = append(out, p)
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
