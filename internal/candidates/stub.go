package candidates

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hergott/ai-words-assistant/internal/transcript"
)

// StubBatch is how many words a StubGenerator offers per call.
const StubBatch = 32

// StubGenerator stands in for the agent when no model endpoint is configured.
// It walks the known word list in order, offering the next StubBatch words
// that have not been said yet, so an offline board keeps moving.
type StubGenerator struct {
	mu    sync.Mutex
	words []string
	next  int
	log   *slog.Logger
}

// NewStubGenerator returns a StubGenerator drawing from words.
func NewStubGenerator(words []string, logger *slog.Logger) *StubGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubGenerator{
		words: append([]string(nil), words...),
		log:   logger.With("component", "candidates.stub"),
	}
}

// Generate implements the generator contract.
func (g *StubGenerator) Generate(_ context.Context, text string) ([]string, error) {
	said := transcript.Vocabulary(strings.ToLower(text))

	g.mu.Lock()
	picked := make([]string, 0, StubBatch)
	n := len(g.words)
	used := 0
	for ; used < n && len(picked) < StubBatch; used++ {
		w := g.words[(g.next+used)%n]
		if w == "" || said.Has(strings.ToLower(w)) {
			continue
		}
		picked = append(picked, w)
	}
	if n > 0 {
		g.next = (g.next + used) % n
	}
	g.mu.Unlock()

	out, err := Parse(strings.Join(picked, ","))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCandidateGeneration, err)
	}
	g.log.Debug("stub words", "count", len(out))
	return out, nil
}
