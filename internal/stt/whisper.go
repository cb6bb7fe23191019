package stt

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hergott/ai-words-assistant/internal/audio"
)

// AudioClient is the part of the go-openai client Whisper needs.
type AudioClient interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Whisper transcribes segments with the OpenAI transcription API.
type Whisper struct {
	client   AudioClient
	model    string
	language string
	log      *slog.Logger
}

// NewWhisper builds an engine on the official or a compatible endpoint.
func NewWhisper(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Whisper, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	return newWhisper(openai.NewClientWithConfig(clientCfg), cfg, logger), nil
}

func newWhisper(client AudioClient, cfg Config, logger *slog.Logger) *Whisper {
	if logger == nil {
		logger = slog.Default()
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &Whisper{
		client:   client,
		model:    model,
		language: cfg.Language,
		log:      logger.With("component", "stt.whisper", "model", model),
	}
}

// Name implements Engine.
func (w *Whisper) Name() string { return "whisper" }

// Transcribe implements Engine.
func (w *Whisper) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	if _, err := os.Stat(seg.Path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: seg.Path,
		Language: w.language,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("%w: %w", ErrTranscription, ErrEmptyTranscript)
	}
	w.log.Debug("segment transcribed", "path", seg.Path, "chars", len(text))
	return text, nil
}
