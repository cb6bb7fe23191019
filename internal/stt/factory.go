package stt

import "log/slog"

// Config selects and configures the engine.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	UseStub  bool
}

// New returns the Whisper engine, or the stub when it is forced or no key is
// configured. The returned error explains a fallback; the engine is always usable.
func New(cfg Config, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UseStub {
		logger.Warn("stub transcription engine forced by configuration")
		return NewStubEngine(logger), nil
	}
	w, err := NewWhisper(cfg, nil, logger)
	if err != nil {
		logger.Warn("whisper unavailable; using stub engine", "error", err)
		return NewStubEngine(logger), err
	}
	return w, nil
}
