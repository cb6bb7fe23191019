package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/hergott/ai-words-assistant/internal/audio"
	"github.com/hergott/ai-words-assistant/internal/candidates"
	"github.com/hergott/ai-words-assistant/internal/config"
	"github.com/hergott/ai-words-assistant/internal/db"
	"github.com/hergott/ai-words-assistant/internal/pipeline"
	"github.com/hergott/ai-words-assistant/internal/slotting"
	"github.com/hergott/ai-words-assistant/internal/stt"
	"github.com/hergott/ai-words-assistant/internal/telemetry"
	"github.com/hergott/ai-words-assistant/internal/transcript"
	"github.com/hergott/ai-words-assistant/internal/vocab"
)

const (
	recordingsDir = "recordings"
	databaseFile  = "aiwords.db"
	logFile       = "aiwords.log"
)

// services holds everything a subcommand may need. The pipeline half is
// only built by withPipeline.
type services struct {
	cfg   config.Config
	log   *slog.Logger
	vocab *vocab.Vocabulary
	gen   pipeline.Generator
	slot  *slotting.Engine
	tel   *telemetry.Recorder

	store transcript.Store
	rec   *audio.Recorder
	coord *pipeline.Coordinator

	closers []func() error
}

// newCore loads the vocabulary and builds the generator and slotting engine.
func newCore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*services, error) {
	list, err := vocab.Load(cfg.WordsFile)
	if err != nil {
		return nil, err
	}
	v, err := vocab.New(list, cfg.ImagesDir, logger)
	if err != nil {
		return nil, err
	}
	if missing := v.Missing(); len(missing) > 0 {
		logger.Warn("words without images will not be shown",
			"count", len(missing), "examples", missing[:min(len(missing), 10)])
	}
	if v.ImagesDir() != "" {
		go func() {
			if err := v.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("image watcher stopped", "error", err)
			}
		}()
	}

	var rng *rand.Rand
	if cfg.Seed != nil {
		rng = rand.New(rand.NewPCG(*cfg.Seed, *cfg.Seed))
	}

	return &services{
		cfg:   cfg,
		log:   logger,
		vocab: v,
		gen:   newGenerator(cfg, v.Words(), logger),
		slot:  slotting.New(v, rng),
		tel:   telemetry.NewRecorder(logger),
	}, nil
}

// newGenerator returns the agent, or a stub walking words when no model is
// reachable.
func newGenerator(cfg config.Config, words []string, logger *slog.Logger) pipeline.Generator {
	if cfg.LLMAPIKey == "" {
		logger.Warn("NVIDIA_API_KEY not set; offering known words in list order")
		return candidates.NewStubGenerator(words, logger)
	}
	agent, err := candidates.NewAgent(candidates.Config{
		APIKey:           cfg.LLMAPIKey,
		BaseURL:          cfg.LLMBaseURL,
		Model:            cfg.LLMModel,
		TavilyAPIKey:     cfg.TavilyAPIKey,
		MaxIterations:    cfg.MaxIterations,
		MaxExecutionTime: cfg.MaxExecutionTime,
	}, logger)
	if err != nil {
		logger.Warn("agent unavailable; using stub word generator", "error", err)
		return candidates.NewStubGenerator(words, logger)
	}
	return agent
}

// withPipeline adds the transcript store, audio capture, transcription and
// the coordinator.
func (s *services) withPipeline() error {
	cfg := s.cfg
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	switch cfg.Store {
	case config.StoreSQLite:
		store, err := db.Open(filepath.Join(cfg.DataDir, databaseFile))
		if err != nil {
			return err
		}
		s.store = store
		s.closers = append(s.closers, store.Close)
	default:
		store, err := transcript.NewFileStore(cfg.DataDir)
		if err != nil {
			return err
		}
		s.store = store
	}

	src, err := audio.NewSource(cfg.AudioSource, cfg.CaptureCommand, cfg.SampleRate, s.log)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, src.Close)

	rec, err := audio.NewRecorder(src, audio.RecorderConfig{
		Dir:             filepath.Join(cfg.DataDir, recordingsDir),
		SampleRate:      cfg.SampleRate,
		SegmentDuration: cfg.SegmentDuration,
	}, s.log)
	if err != nil {
		return err
	}
	s.rec = rec

	engine, err := stt.New(stt.Config{
		APIKey:   cfg.OpenAIAPIKey,
		BaseURL:  cfg.OpenAIBaseURL,
		Model:    cfg.WhisperModel,
		Language: cfg.Language,
		UseStub:  cfg.UseStubSTT,
	}, s.log)
	if err != nil {
		s.log.Warn("transcription engine initialised with warnings", "engine", engine.Name(), "error", err)
	}

	coord, err := pipeline.New(pipeline.Options{
		Recorder:     rec,
		Transcriber:  engine,
		Generator:    s.gen,
		Store:        s.store,
		Slotter:      s.slot,
		InitialBoard: slotting.BoardFrom(s.vocab.InitialBoard()),
		Telemetry:    s.tel,
		Logger:       s.log,
	})
	if err != nil {
		return err
	}
	s.coord = coord
	rec.OnLevel(coord.PublishLevel)

	s.log.Info("pipeline ready",
		"store", cfg.Store,
		"audio_source", src.Name(),
		"stt", engine.Name(),
		"data_dir", cfg.DataDir,
	)
	return nil
}

// Close shuts the coordinator down and releases resources in reverse order.
func (s *services) Close() {
	if s.coord != nil {
		s.coord.Shutdown()
	} else if c, ok := s.gen.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn("close", "error", err)
		}
	}
	s.closers = nil

	if snapshot := s.tel.Snapshot(); snapshot.TotalSessions > 0 {
		s.log.Info("telemetry totals",
			"total_sessions", snapshot.TotalSessions,
			"total_segments", snapshot.TotalSegments,
			"total_runs", snapshot.TotalRuns,
			"failed_runs", snapshot.FailedRuns,
			"board_changes", snapshot.BoardChanges,
		)
	}
}
