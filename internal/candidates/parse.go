// Package candidates produces the words likely to come up next in a
// conversation, using a tool-calling language model agent.
package candidates

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrCandidateGeneration reports that the generator produced no usable word set.
	ErrCandidateGeneration = errors.New("candidates: generation failed")
	// ErrTooFewWords reports that the model answered with fewer than MinWords words.
	ErrTooFewWords = errors.New("candidates: too few words")
)

// MinWords is the smallest acceptable answer.
const MinWords = 3

// stripTokens are removed from the model output before splitting. The answer
// marker itself is cut off by the agent before Parse sees the text.
var stripTokens = []string{
	"[", "]", ".", ";", ":", "{", "}", "!", "?", "(", ")", "-", "_",
}

// Parse turns free-form model output into a deduplicated list of lower-case
// words, keeping first occurrences in order. It fails with ErrTooFewWords when
// the output splits into fewer than MinWords comma separated pieces.
func Parse(output string) ([]string, error) {
	s := strings.ToLower(strings.TrimSpace(output))
	for _, tok := range stripTokens {
		s = strings.ReplaceAll(s, tok, "")
	}

	pieces := strings.Split(s, ",")
	if len(pieces) < MinWords {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewWords, len(pieces))
	}

	words := make([]string, 0, len(pieces))
	seen := make(map[string]struct{}, len(pieces))
	for _, p := range pieces {
		w := strings.TrimSpace(strings.Map(keepLetters, strings.TrimSpace(p)))
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	return words, nil
}

func keepLetters(r rune) rune {
	if unicode.IsLetter(r) || r == ' ' {
		return r
	}
	return -1
}
