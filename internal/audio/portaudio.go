//go:build portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

func init() {
	RegisterSource("portaudio", func(_ string, sampleRate int, logger *slog.Logger) Source {
		return NewPortAudioSource(sampleRate, logger)
	})
}

// PortAudioSource reads the default input device through PortAudio.
type PortAudioSource struct {
	sampleRate int
	frames     int
	log        *slog.Logger
}

// NewPortAudioSource returns a source reading 100 ms buffers.
func NewPortAudioSource(sampleRate int, logger *slog.Logger) *PortAudioSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortAudioSource{
		sampleRate: sampleRate,
		frames:     max(sampleRate/10, 1),
		log:        logger.With("component", "audio.portaudio"),
	}
}

// Name implements Source.
func (p *PortAudioSource) Name() string { return "portaudio" }

// Close implements Source.
func (p *PortAudioSource) Close() error { return nil }

// Start implements Source.
func (p *PortAudioSource) Start(ctx context.Context) (<-chan []int16, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio: portaudio init: %w", err)
	}
	buf := make([]int16, p.frames)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(p.sampleRate), len(buf), buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("audio: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("audio: start stream: %w", err)
	}

	out := make(chan []int16, 16)
	go func() {
		defer close(out)
		defer portaudio.Terminate()
		defer stream.Close()
		defer stream.Stop()
		for ctx.Err() == nil {
			if err := stream.Read(); err != nil {
				p.log.Warn("portaudio read", "error", err)
				return
			}
			chunk := append([]int16(nil), buf...)
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
