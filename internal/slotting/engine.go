// Package slotting places newly predicted words onto the fixed 24-slot board.
package slotting

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/hergott/ai-words-assistant/internal/transcript"
)

// Slots is the number of positions on the board.
const Slots = 24

// ErrSlotting reports that the board could not be updated.
var ErrSlotting = errors.New("slotting: failed")

// Board holds the word shown in each slot. Empty strings are placeholders.
type Board [Slots]string

// BoardFrom fills a board from words, leaving missing slots empty and
// ignoring extras.
func BoardFrom(words []string) Board {
	var b Board
	copy(b[:], words)
	return b
}

// Words returns the board as a slice.
func (b Board) Words() []string {
	return append([]string(nil), b[:]...)
}

// Has reports whether word occupies any slot.
func (b Board) Has(word string) bool {
	for _, w := range b {
		if w == word {
			return true
		}
	}
	return false
}

// Known reports whether a word can be shown on the board.
type Known interface {
	Contains(word string) bool
}

// Result is the outcome of one slotting pass.
type Result struct {
	Words    Board
	Changed  bool
	Leftover []string
}

// Engine implements the random positional replacement rule.
type Engine struct {
	known Known

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns an engine checking candidates against known. A nil rng gets a
// randomly seeded source.
func New(known Known, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Engine{known: known, rng: rng}
}

// Slot computes the next board.
//
// Candidates already seen in the conversation are dropped. Of the remainder,
// those the vocabulary knows and the board does not already show are placed:
// fewer than Slots go to distinct random positions, exactly Slots replace the
// board in order, and more than Slots are sampled down to Slots first.
// Leftover lists the unseen candidates that did not end up on the board.
//
// On error the current board is returned unchanged.
func (e *Engine) Slot(current Board, candidates []string, seen transcript.WordSet) (Result, error) {
	unchanged := Result{Words: current}
	if e == nil || e.known == nil {
		return unchanged, fmt.Errorf("%w: no vocabulary", ErrSlotting)
	}

	filtered := make([]string, 0, len(candidates))
	dup := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, ok := dup[c]; ok {
			continue
		}
		dup[c] = struct{}{}
		if seen.Has(c) {
			continue
		}
		filtered = append(filtered, c)
	}

	var image []string
	for _, w := range filtered {
		if !e.known.Contains(w) || current.Has(w) {
			continue
		}
		if w == "" {
			return unchanged, fmt.Errorf("%w: empty candidate", ErrSlotting)
		}
		image = append(image, w)
	}

	next := current
	switch n := len(image); {
	case n == 0:
	case n < Slots:
		positions := e.perm(Slots)
		for i, w := range image {
			next[positions[i]] = w
		}
	case n == Slots:
		copy(next[:], image)
	default:
		picks := e.perm(n)
		for i := range next {
			next[i] = image[picks[i]]
		}
	}

	leftover := make([]string, 0, len(filtered))
	for _, w := range filtered {
		if !next.Has(w) {
			leftover = append(leftover, w)
		}
	}

	return Result{
		Words:    next,
		Changed:  next != current,
		Leftover: leftover,
	}, nil
}

func (e *Engine) perm(n int) []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Perm(n)
}
