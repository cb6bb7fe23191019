package stt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hergott/ai-words-assistant/internal/audio"
)

// DemoPhrases are what StubEngine "hears" by default.
var DemoPhrases = []string{
	"What happened in the election? The results just came in. I am shocked.",
	"I am in pain. Were you in the flood? I saw it on the news.",
}

// StubEngine cycles through fixed phrases without calling any service.
type StubEngine struct {
	log     *slog.Logger
	phrases []string

	mu   sync.Mutex
	next int
}

// NewStubEngine returns an engine repeating phrases, or DemoPhrases when none are given.
func NewStubEngine(logger *slog.Logger, phrases ...string) *StubEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if len(phrases) == 0 {
		phrases = DemoPhrases
	}
	return &StubEngine{
		log:     logger.With("component", "stt.stub"),
		phrases: phrases,
	}
}

// Name implements Engine.
func (e *StubEngine) Name() string { return "stub" }

// Transcribe implements Engine.
func (e *StubEngine) Transcribe(_ context.Context, seg audio.Segment) (string, error) {
	if seg.Samples == 0 {
		return "", fmt.Errorf("%w: %w", ErrTranscription, ErrEmptyTranscript)
	}
	e.mu.Lock()
	text := e.phrases[e.next%len(e.phrases)]
	e.next++
	e.mu.Unlock()
	e.log.Debug("stub transcript", "samples", seg.Samples)
	return text, nil
}
