// Package vocab holds the known word vocabulary: the fixed list of words the
// board can display and, optionally, the picture asset behind each one.
package vocab

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// AssetExt is the file extension of picture assets.
const AssetExt = ".png"

//go:embed words.yaml
var embeddedList []byte

// ErrEmptyVocabulary is returned when a word list has no words.
var ErrEmptyVocabulary = errors.New("vocab: empty word list")

// List is the on-disk word list.
type List struct {
	InitialBoard []string `yaml:"initial_board"`
	Words        []string `yaml:"words"`
}

// Load reads a word list from path, or the built-in list when path is empty.
func Load(path string) (List, error) {
	raw := embeddedList
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return List{}, fmt.Errorf("read word list: %w", err)
		}
	}
	var list List
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return List{}, fmt.Errorf("parse word list: %w", err)
	}
	if len(list.Words) == 0 {
		return List{}, ErrEmptyVocabulary
	}
	return list, nil
}

// Vocabulary answers membership questions for the slotting engine and maps
// words to their picture assets.
type Vocabulary struct {
	words     map[string]struct{}
	ordered   []string
	initial   []string
	imagesDir string
	logger    *slog.Logger

	mu     sync.RWMutex
	assets map[string]struct{}
}

// New builds a vocabulary from list. When imagesDir is non-empty a word is
// only known while its asset file exists.
func New(list List, imagesDir string, logger *slog.Logger) (*Vocabulary, error) {
	if len(list.Words) == 0 {
		return nil, ErrEmptyVocabulary
	}
	if logger == nil {
		logger = slog.Default()
	}
	v := &Vocabulary{
		words:     make(map[string]struct{}, len(list.Words)),
		initial:   append([]string(nil), list.InitialBoard...),
		imagesDir: imagesDir,
		logger:    logger.With("component", "vocab"),
	}
	for _, w := range list.Words {
		if _, dup := v.words[w]; dup {
			continue
		}
		v.words[w] = struct{}{}
		v.ordered = append(v.ordered, w)
	}
	if imagesDir != "" {
		if err := v.Refresh(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Contains reports whether word can be shown on the board.
func (v *Vocabulary) Contains(word string) bool {
	if _, ok := v.words[word]; !ok {
		return false
	}
	if v.imagesDir == "" {
		return true
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.assets[word]
	return ok
}

// Words returns the list in file order.
func (v *Vocabulary) Words() []string {
	return append([]string(nil), v.ordered...)
}

// InitialBoard returns the words shown before any prediction.
func (v *Vocabulary) InitialBoard() []string {
	return append([]string(nil), v.initial...)
}

// ImagesDir returns the configured asset directory, possibly empty.
func (v *Vocabulary) ImagesDir() string {
	return v.imagesDir
}

// ImagePath returns the asset file for word and whether it is available.
func (v *Vocabulary) ImagePath(word string) (string, bool) {
	if v.imagesDir == "" || !v.Contains(word) {
		return "", false
	}
	return filepath.Join(v.imagesDir, word+AssetExt), true
}

// Missing lists vocabulary words that have no asset, sorted. It is empty when
// no images directory is configured.
func (v *Vocabulary) Missing() []string {
	if v.imagesDir == "" {
		return nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	var missing []string
	for _, w := range v.ordered {
		if _, ok := v.assets[w]; !ok {
			missing = append(missing, w)
		}
	}
	sort.Strings(missing)
	return missing
}

// Refresh rescans the images directory.
func (v *Vocabulary) Refresh() error {
	if v.imagesDir == "" {
		return nil
	}
	entries, err := os.ReadDir(v.imagesDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			v.logger.Warn("images directory does not exist", "dir", v.imagesDir)
			v.setAssets(map[string]struct{}{})
			return nil
		}
		return fmt.Errorf("scan images: %w", err)
	}
	assets := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if word, ok := assetWord(e.Name()); ok && !e.IsDir() {
			assets[word] = struct{}{}
		}
	}
	v.setAssets(assets)
	return nil
}

func (v *Vocabulary) setAssets(assets map[string]struct{}) {
	v.mu.Lock()
	v.assets = assets
	v.mu.Unlock()
}

// Watch keeps the asset index current until ctx is cancelled. It returns
// immediately when no images directory is configured.
func (v *Vocabulary) Watch(ctx context.Context) error {
	if v.imagesDir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(v.imagesDir); err != nil {
		return fmt.Errorf("watch %s: %w", v.imagesDir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			word, isAsset := assetWord(filepath.Base(ev.Name))
			if !isAsset {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				v.mu.Lock()
				v.assets[word] = struct{}{}
				v.mu.Unlock()
				v.logger.Debug("asset added", "word", word)
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				v.mu.Lock()
				delete(v.assets, word)
				v.mu.Unlock()
				v.logger.Debug("asset removed", "word", word)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			v.logger.Warn("asset watcher error", "error", err)
		}
	}
}

func assetWord(name string) (string, bool) {
	if !strings.HasSuffix(name, AssetExt) {
		return "", false
	}
	word := strings.TrimSuffix(name, AssetExt)
	return word, word != ""
}
