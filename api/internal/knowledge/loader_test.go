package knowledge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nutriscan/api/internal/apperr"
	"nutriscan/api/internal/logging"
)

type countingExtractor struct {
	calls int32
	err   error
}

func (c *countingExtractor) Pages(_ context.Context, _ string, content []byte) ([]string, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.err != nil {
		return nil, c.err
	}
	return []string{"page one: " + string(content), "page two"}, nil
}

func writeDoc(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guide.pdf")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCachesByContent(t *testing.T) {
	ext := &countingExtractor{}
	l := NewLoader(ext, time.Hour, logging.Discard())
	path := writeDoc(t, "eat vegetables")

	for i := 0; i < 3; i++ {
		text, err := l.Load(context.Background(), path)
		if err != nil {
			t.Fatal(err)
		}
		if text != "page one: eat vegetables\npage two" {
			t.Fatalf("text = %q", text)
		}
	}
	if ext.calls != 1 {
		t.Fatalf("extractions = %d, want 1", ext.calls)
	}

	// new content under the same path is a new key
	if err := os.WriteFile(path, []byte("limit salt"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Load(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if ext.calls != 2 || l.Len() != 2 {
		t.Fatalf("calls=%d cached=%d", ext.calls, l.Len())
	}
}

func TestLoadTTLExpiry(t *testing.T) {
	ext := &countingExtractor{}
	l := NewLoader(ext, time.Minute, logging.Discard())
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	path := writeDoc(t, "whole grains")

	if _, err := l.Load(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	now = now.Add(30 * time.Second)
	if _, err := l.Load(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if ext.calls != 1 {
		t.Fatalf("extractions within ttl = %d", ext.calls)
	}
	now = now.Add(2 * time.Minute)
	if _, err := l.Load(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if ext.calls != 2 {
		t.Fatalf("extractions after ttl = %d, want 2", ext.calls)
	}
}

func TestLoadErrors(t *testing.T) {
	l := NewLoader(&countingExtractor{}, time.Hour, nil)
	if _, err := l.Load(context.Background(), ""); !errors.Is(err, apperr.ErrInput) {
		t.Errorf("empty path err = %v", err)
	}
	if _, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "nope.pdf")); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing file err = %v", err)
	}

	bad := NewLoader(&countingExtractor{err: errors.New("xref broken")}, time.Hour, nil)
	if _, err := bad.Load(context.Background(), writeDoc(t, "x")); !errors.Is(err, apperr.ErrParse) {
		t.Errorf("extract err = %v", err)
	}
	if bad.Len() != 0 {
		t.Error("failed extraction must not be cached")
	}
}

func TestLoadConcurrent(t *testing.T) {
	ext := &countingExtractor{}
	l := NewLoader(ext, time.Hour, nil)
	path := writeDoc(t, "fruit")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Load(context.Background(), path); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if l.Len() != 1 {
		t.Fatalf("cached = %d", l.Len())
	}
}

func TestFileExtractorPlainTextAndBadPDF(t *testing.T) {
	pages, err := FileExtractor{}.Pages(context.Background(), "notes.txt", []byte("hello"))
	if err != nil || len(pages) != 1 || pages[0] != "hello" {
		t.Fatalf("txt pages = %v, %v", pages, err)
	}
	if _, err := (FileExtractor{}).Pages(context.Background(), "guide.pdf", []byte("not a pdf")); err == nil {
		t.Fatal("expected error for invalid pdf")
	}
}
