package transcript

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	conversationsDir = "conversations"
	wordsDir         = "conversation_words"
)

// FileStore keeps one plain text file per session for the transcript and one
// for its comma-joined vocabulary.
type FileStore struct {
	root string
}

// NewFileStore creates the store directories under root.
func NewFileStore(root string) (*FileStore, error) {
	for _, dir := range []string{conversationsDir, wordsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", dir, err)
		}
	}
	return &FileStore{root: root}, nil
}

// TranscriptPath returns the transcript file for a session.
func (s *FileStore) TranscriptPath(sessionID string) string {
	return filepath.Join(s.root, conversationsDir, sessionID+".txt")
}

// WordsPath returns the vocabulary file for a session.
func (s *FileStore) WordsPath(sessionID string) string {
	return filepath.Join(s.root, wordsDir, sessionID+".txt")
}

// Append implements Store.
func (s *FileStore) Append(_ context.Context, sessionID, text string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("%w: empty session id", ErrPersistence)
	}
	old, err := os.ReadFile(s.TranscriptPath(sessionID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Truncate(text), fmt.Errorf("%w: read transcript: %v", ErrPersistence, err)
	}
	updated := Truncate(string(old) + text)

	if err := os.WriteFile(s.TranscriptPath(sessionID), []byte(updated), 0o644); err != nil {
		return updated, fmt.Errorf("%w: write transcript: %v", ErrPersistence, err)
	}
	if err := os.WriteFile(s.WordsPath(sessionID), []byte(Vocabulary(updated).String()), 0o644); err != nil {
		return updated, fmt.Errorf("%w: write vocabulary: %v", ErrPersistence, err)
	}
	return updated, nil
}

// SeenWords implements Store.
func (s *FileStore) SeenWords(_ context.Context, sessionID string) (WordSet, error) {
	raw, err := os.ReadFile(s.WordsPath(sessionID))
	if err != nil {
		return nil, fmt.Errorf("%w: read vocabulary: %v", ErrPersistence, err)
	}
	return ParseWordSet(string(raw)), nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, sessionID string) error {
	var errs []error
	for _, path := range []string{s.TranscriptPath(sessionID), s.WordsPath(sessionID)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
