// Package knowledge loads the dietary guidance document used as grounding for
// the advisory model and caches its text by content hash.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"nutriscan/api/internal/apperr"
	"nutriscan/api/internal/logging"
	"nutriscan/api/internal/util"
)

// Extractor returns the text of each page of a document.
type Extractor interface {
	Pages(ctx context.Context, path string, content []byte) ([]string, error)
}

type entry struct {
	text     string
	storedAt time.Time
}

// Loader is safe for concurrent use. One instance is shared by the whole process.
type Loader struct {
	extract Extractor
	ttl     time.Duration
	now     func() time.Time
	log     *slog.Logger

	mu    sync.Mutex
	cache map[string]entry
}

func NewLoader(ext Extractor, ttl time.Duration, log *slog.Logger) *Loader {
	if ext == nil {
		ext = FileExtractor{}
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Loader{
		extract: ext,
		ttl:     ttl,
		now:     time.Now,
		log:     log,
		cache:   map[string]entry{},
	}
}

// Load returns the document text, extracting it at most once per content
// hash within the TTL. Entries are keyed by content, so an edited file is
// re-extracted even when the path is unchanged.
func (l *Loader) Load(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("knowledge path is empty: %w", apperr.ErrInput)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("knowledge document %s: %w", path, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("read knowledge document %s: %w", path, err)
	}
	key := util.SHA256Hex(b)

	if text, ok := l.lookup(key); ok {
		return text, nil
	}

	// extraction runs without the lock; concurrent misses for the same
	// document may both extract, the last store wins
	pages, err := l.extract.Pages(ctx, path, b)
	if err != nil {
		return "", fmt.Errorf("extract %s: %v: %w", path, err, apperr.ErrParse)
	}
	text := strings.Join(pages, "\n")

	l.mu.Lock()
	l.cache[key] = entry{text: text, storedAt: l.now()}
	l.mu.Unlock()

	l.log.Info("knowledge document loaded", "path", path, "pages", len(pages), "chars", len(text))
	return text, nil
}

func (l *Loader) lookup(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evictLocked()
	e, ok := l.cache[key]
	return e.text, ok
}

func (l *Loader) evictLocked() {
	if l.ttl <= 0 {
		return
	}
	now := l.now()
	for k, e := range l.cache {
		if now.Sub(e.storedAt) > l.ttl {
			delete(l.cache, k)
		}
	}
}

// Len reports the number of cached documents.
func (l *Loader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cache)
}
