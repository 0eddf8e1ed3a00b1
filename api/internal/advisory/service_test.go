package advisory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"nutriscan/api/internal/apperr"
)

type staticKnowledge struct {
	text string
	err  error
}

func (k staticKnowledge) Load(context.Context, string) (string, error) { return k.text, k.err }

type memCache struct {
	m      map[string]Record
	upsert int
}

func (c *memCache) Find(_ context.Context, h, e, m string, _ time.Duration) (Record, error) {
	r, ok := c.m[h+e+m]
	if !ok {
		return Record{}, errors.New("miss")
	}
	return r, nil
}

func (c *memCache) Upsert(_ context.Context, h, e, m string, r Record) error {
	c.upsert++
	c.m[h+e+m] = r
	return nil
}

func textBackend(text string) *fakeBackend {
	return &fakeBackend{fn: func(int) (any, error) { return text, nil }}
}

func TestAdviseHappyPathAndCache(t *testing.T) {
	b := textBackend("```json\n{\"advisability\":\"No\",\"pros\":[\"fiber\"],\"cons\":[\"sugar\"],\"summary\":\"Skip it.\"}\n```")
	cache := &memCache{m: map[string]Record{}}
	svc := NewService(newTestClient(b, 0), staticKnowledge{text: "Limit sugar."}, cache, ServiceOptions{KnowledgePath: "k.pdf"}, nil)

	rec, err := svc.Advise(context.Background(), sampleProfile(), sampleProduct())
	if err != nil {
		t.Fatal(err)
	}
	if rec.Advisability != AdvisabilityNo || rec.Summary != "Skip it." || rec.Description != noDescription {
		t.Fatalf("rec = %+v", rec)
	}
	if cache.upsert != 1 {
		t.Fatalf("upserts = %d", cache.upsert)
	}

	again, err := svc.Advise(context.Background(), sampleProfile(), sampleProduct())
	if err != nil || again.Summary != "Skip it." {
		t.Fatalf("cached advise: %+v, %v", again, err)
	}
	if b.calls != 1 {
		t.Fatalf("model called %d times, want 1", b.calls)
	}
}

func TestAdviseUnparseable(t *testing.T) {
	svc := NewService(newTestClient(textBackend("I cannot help with that."), 0), nil, nil, ServiceOptions{}, nil)
	_, err := svc.Advise(context.Background(), sampleProfile(), sampleProduct())
	var pe *ParseError
	if !errors.As(err, &pe) || !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(pe.Raw, "cannot help") {
		t.Fatalf("raw = %q", pe.Raw)
	}
}

func TestAdviseKnowledgeFailureDegrades(t *testing.T) {
	b := textBackend(`{"advisability":"Yes"}`)
	svc := NewService(newTestClient(b, 0), staticKnowledge{err: apperr.ErrNotFound}, nil, ServiceOptions{KnowledgePath: "missing.pdf"}, nil)
	rec, err := svc.Advise(context.Background(), sampleProfile(), sampleProduct())
	if err != nil || rec.Advisability != AdvisabilityYes {
		t.Fatalf("rec = %+v, err = %v", rec, err)
	}
	if !strings.Contains(b.last.User, "No additional guidance available.") {
		t.Fatal("prompt should fall back to the guidance placeholder")
	}
}

func TestAdvisePropagatesModelErrors(t *testing.T) {
	b := &fakeBackend{fn: func(int) (any, error) { return nil, errors.New("dial tcp: refused") }}
	svc := NewService(newTestClient(b, 1), nil, nil, ServiceOptions{}, nil)
	if _, err := svc.Advise(context.Background(), sampleProfile(), sampleProduct()); !errors.Is(err, apperr.ErrTransient) {
		t.Fatalf("err = %v", err)
	}
}
