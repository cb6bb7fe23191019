// Package transcript keeps the rolling, session-scoped conversation transcript
// and the set of words already seen in it.
package transcript

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxChars bounds the stored transcript; only the most recent characters are kept.
const MaxChars = 4000

// ErrPersistence reports that a transcript or vocabulary could not be written or read.
var ErrPersistence = errors.New("transcript: persistence failure")

// Store persists the transcript and its derived vocabulary per session.
type Store interface {
	// Append concatenates text onto the session transcript, truncates it to
	// MaxChars, persists it together with the recomputed vocabulary and returns
	// the resulting transcript. The transcript is returned even when persisting
	// fails; the error then wraps ErrPersistence.
	Append(ctx context.Context, sessionID, text string) (string, error)
	// SeenWords reads the persisted vocabulary for the session.
	SeenWords(ctx context.Context, sessionID string) (WordSet, error)
	// Delete removes everything stored for the session. Missing data is not an error.
	Delete(ctx context.Context, sessionID string) error
}

// WordSet is a set of exact-match words.
type WordSet map[string]struct{}

// NewWordSet builds a set from words.
func NewWordSet(words ...string) WordSet {
	set := make(WordSet, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Has reports whether word is in the set. A nil set contains nothing.
func (s WordSet) Has(word string) bool {
	_, ok := s[word]
	return ok
}

// Sorted returns the members in lexical order.
func (s WordSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for w := range s {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// String renders the set in its persisted, comma-joined form.
func (s WordSet) String() string {
	return strings.Join(s.Sorted(), ",")
}

// ParseWordSet reads the persisted comma-joined form back into a set.
func ParseWordSet(raw string) WordSet {
	set := WordSet{}
	for _, w := range strings.Split(raw, ",") {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

// Vocabulary tokenizes a transcript on commas, whitespace, periods, question
// marks and exclamation marks and returns the distinct non-empty tokens.
// Case is preserved.
func Vocabulary(transcript string) WordSet {
	fields := strings.FieldsFunc(transcript, isDelimiter)
	set := make(WordSet, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

func isDelimiter(r rune) bool {
	switch r {
	case ',', '.', '?', '!':
		return true
	}
	return unicode.IsSpace(r)
}

// Truncate keeps the last MaxChars characters of text.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[len(runes)-MaxChars:])
}
