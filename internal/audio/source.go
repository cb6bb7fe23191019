// Package audio captures microphone audio and cuts it into fixed-length WAV
// segments.
package audio

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// DefaultSampleRate matches common microphone hardware.
const DefaultSampleRate = 44100

// DefaultCaptureCommand records raw 16-bit little-endian mono PCM to stdout.
// {rate} is replaced with the sample rate.
const DefaultCaptureCommand = "arecord -q -f S16_LE -c 1 -r {rate} -t raw"

// Source delivers mono 16-bit PCM chunks until ctx is cancelled or the input
// ends, then closes the channel.
type Source interface {
	Name() string
	Start(ctx context.Context) (<-chan []int16, error)
	Close() error
}

// SourceFactory builds a Source for a sample rate.
type SourceFactory func(command string, sampleRate int, logger *slog.Logger) Source

var (
	factoriesMu sync.RWMutex
	factories   = map[string]SourceFactory{
		"command": func(command string, sampleRate int, logger *slog.Logger) Source {
			return NewCommandSource(command, sampleRate, logger)
		},
	}
)

// RegisterSource makes a source kind available to NewSource.
func RegisterSource(kind string, f SourceFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[kind] = f
}

// NewSource returns the source registered under kind.
func NewSource(kind, command string, sampleRate int, logger *slog.Logger) (Source, error) {
	factoriesMu.RLock()
	f, ok := factories[kind]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("audio: source %q not available in this build", kind)
	}
	return f(command, sampleRate, logger), nil
}

// CommandSource reads PCM from the stdout of an external capture program.
type CommandSource struct {
	name         string
	args         []string
	chunkSamples int
	log          *slog.Logger
}

// NewCommandSource parses command into program and arguments. An empty
// command uses DefaultCaptureCommand.
func NewCommandSource(command string, sampleRate int, logger *slog.Logger) *CommandSource {
	if strings.TrimSpace(command) == "" {
		command = DefaultCaptureCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	fields := strings.Fields(strings.ReplaceAll(command, "{rate}", strconv.Itoa(sampleRate)))
	return &CommandSource{
		name:         fields[0],
		args:         fields[1:],
		chunkSamples: max(sampleRate/10, 1),
		log:          logger.With("component", "audio.command"),
	}
}

// Name implements Source.
func (c *CommandSource) Name() string { return c.name }

// Close implements Source.
func (c *CommandSource) Close() error { return nil }

// Start implements Source.
func (c *CommandSource) Start(ctx context.Context) (<-chan []int16, error) {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("audio: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: start %s: %w", c.name, err)
	}
	c.log.Debug("capture started", "command", c.name, "args", c.args)

	out := make(chan []int16, 16)
	go func() {
		defer close(out)
		c.read(ctx, stdout, out)
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			c.log.Warn("capture command exited", "error", err)
		}
	}()
	return out, nil
}

func (c *CommandSource) read(ctx context.Context, r io.Reader, out chan<- []int16) {
	br := bufio.NewReaderSize(r, c.chunkSamples*2)
	raw := make([]byte, c.chunkSamples*2)
	for {
		n, err := io.ReadFull(br, raw)
		n -= n % 2
		if n > 0 {
			chunk := make([]int16, n/2)
			for i := range chunk {
				chunk[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && ctx.Err() == nil {
				c.log.Warn("capture read error", "error", err)
			}
			return
		}
	}
}
