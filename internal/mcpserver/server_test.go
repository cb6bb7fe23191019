package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hergott/ai-words-assistant/internal/slotting"
)

type fakeGenerator struct {
	words []string
	err   error
	got   string
}

func (f *fakeGenerator) Generate(_ context.Context, transcript string) ([]string, error) {
	f.got = transcript
	return f.words, f.err
}

type fakeVocab map[string]string

func (f fakeVocab) Contains(word string) bool {
	_, ok := f[word]
	return ok
}

func (f fakeVocab) ImagePath(word string) (string, bool) {
	p, ok := f[word]
	return p, ok && p != ""
}

func newTools(gen Generator, vocab fakeVocab) *tools {
	return &tools{
		gen:   gen,
		slot:  slotting.New(vocab, rand.New(rand.NewPCG(3, 4))),
		vocab: vocab,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func request(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty result")
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("content = %T, want text", res.Content[0])
	return ""
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without generator")
	}
	gen := &fakeGenerator{}
	vocab := fakeVocab{}
	s, err := New(Options{
		Generator:  gen,
		Slotter:    slotting.New(vocab, nil),
		Vocabulary: vocab,
	})
	if err != nil || s == nil {
		t.Fatalf("New = %v, %v", s, err)
	}
}

func TestPredictWords(t *testing.T) {
	gen := &fakeGenerator{words: []string{"nurse", "doctor", "bed"}}
	tl := newTools(gen, fakeVocab{})

	res, err := tl.predictWords(context.Background(), request(map[string]any{"transcript": "I feel sick"}))
	if err != nil {
		t.Fatalf("predictWords: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if got := resultText(t, res); got != "nurse, doctor, bed" {
		t.Errorf("text = %q", got)
	}
	if gen.got != "I feel sick" {
		t.Errorf("generator saw %q", gen.got)
	}
}

func TestPredictWordsErrors(t *testing.T) {
	tl := newTools(&fakeGenerator{err: errors.New("llm down")}, fakeVocab{})

	res, err := tl.predictWords(context.Background(), request(map[string]any{}))
	if err != nil {
		t.Fatalf("predictWords: %v", err)
	}
	if !res.IsError {
		t.Error("missing transcript should be a tool error")
	}

	res, err = tl.predictWords(context.Background(), request(map[string]any{"transcript": "hi"}))
	if err != nil {
		t.Fatalf("predictWords: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "llm down") {
		t.Errorf("generator failure not reported: %+v", res)
	}
}

func TestSlotWords(t *testing.T) {
	vocab := fakeVocab{"nurse": "", "doctor": "", "yes": ""}
	tl := newTools(&fakeGenerator{}, vocab)

	res, err := tl.slotWords(context.Background(), request(map[string]any{
		"candidates": "Nurse, doctor, siren",
		"board":      "yes",
		"seen":       "doctor",
	}))
	if err != nil {
		t.Fatalf("slotWords: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}

	var got SlotResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Changed {
		t.Error("changed = false")
	}
	if len(got.Board) != slotting.Slots {
		t.Fatalf("board len = %d", len(got.Board))
	}
	board := slotting.BoardFrom(got.Board)
	if !board.Has("nurse") || board.Has("doctor") {
		t.Errorf("board = %q", got.Board)
	}
	if len(got.Leftover) != 1 || got.Leftover[0] != "siren" {
		t.Errorf("leftover = %q", got.Leftover)
	}
}

func TestSlotWordsRequiresCandidates(t *testing.T) {
	tl := newTools(&fakeGenerator{}, fakeVocab{})
	res, err := tl.slotWords(context.Background(), request(map[string]any{}))
	if err != nil {
		t.Fatalf("slotWords: %v", err)
	}
	if !res.IsError {
		t.Error("expected tool error")
	}
}

func TestLookupWord(t *testing.T) {
	tl := newTools(&fakeGenerator{}, fakeVocab{"nurse": "/img/nurse.png", "yes": ""})

	tests := []struct {
		word  string
		known bool
		image string
	}{
		{"nurse", true, "/img/nurse.png"},
		{" Yes ", true, ""},
		{"siren", false, ""},
	}
	for _, tt := range tests {
		res, err := tl.lookupWord(context.Background(), request(map[string]any{"word": tt.word}))
		if err != nil {
			t.Fatalf("lookupWord(%q): %v", tt.word, err)
		}
		var got LookupResult
		if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Known != tt.known || got.Image != tt.image {
			t.Errorf("lookup(%q) = %+v", tt.word, got)
		}
	}
}

func TestSplitList(t *testing.T) {
	if got := splitList(" A, ,b ", false); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("splitList drop = %q", got)
	}
	if got := splitList("a,,b", true); len(got) != 3 || got[1] != "" {
		t.Errorf("splitList keep = %q", got)
	}
	if got := splitList("  ", true); got != nil {
		t.Errorf("splitList blank = %q", got)
	}
}
