// Package advisory produces a personalized verdict for a product by prompting
// a language model and recovering a typed record from its answer.
package advisory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"nutriscan/api/internal/apperr"
	"nutriscan/api/internal/logging"
	"nutriscan/api/internal/product"
	"nutriscan/api/internal/profile"
	"nutriscan/api/internal/util"
)

// ParseError carries a bounded snippet of output that could not be parsed.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string { return "unparseable model output" }
func (e *ParseError) Unwrap() error { return apperr.ErrParse }

// Cache stores advisories keyed by prompt hash, engine and model.
// Find returns an error (any) on miss.
type Cache interface {
	Find(ctx context.Context, promptHash, engine, model string, maxAge time.Duration) (Record, error)
	Upsert(ctx context.Context, promptHash, engine, model string, rec Record) error
}

// KnowledgeSource returns the dietary guidance text for a path.
type KnowledgeSource interface {
	Load(ctx context.Context, path string) (string, error)
}

type Service struct {
	client        *Client
	knowledge     KnowledgeSource
	knowledgePath string
	cache         Cache
	cacheTTL      time.Duration
	compose       ComposeOptions
	log           *slog.Logger
}

type ServiceOptions struct {
	KnowledgePath string
	CacheTTL      time.Duration
	Compose       ComposeOptions
}

// NewService wires the advisory pipeline. knowledge and cache may be nil.
func NewService(client *Client, knowledge KnowledgeSource, cache Cache, opt ServiceOptions, log *slog.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{
		client:        client,
		knowledge:     knowledge,
		knowledgePath: opt.KnowledgePath,
		cache:         cache,
		cacheTTL:      opt.CacheTTL,
		compose:       opt.Compose,
		log:           log,
	}
}

// Advise runs compose → (cache) → model → parse → normalize.
func (s *Service) Advise(ctx context.Context, p profile.Profile, rec *product.Record) (Record, error) {
	prompt := Compose(p, rec, s.loadKnowledge(ctx), s.compose)
	key := util.SHA256Hex([]byte(prompt.System + "\x00" + prompt.User))
	engine, model := s.client.Engine(), s.client.Model()

	if s.cache != nil {
		if hit, err := s.cache.Find(ctx, key, engine, model, s.cacheTTL); err == nil {
			s.log.Debug("advisory cache hit", "engine", engine, "model", model)
			return hit, nil
		}
	}

	raw, err := s.client.Complete(ctx, prompt)
	if err != nil {
		return Record{}, err
	}

	parsed := Parse(raw)
	if _, failed := parsed["error"]; failed {
		if _, has := parsed["advisability"]; !has {
			snip, _ := parsed["raw"].(string)
			s.log.Warn("model output unparseable", "engine", engine, "raw", snip)
			return Record{}, &ParseError{Raw: snip}
		}
	}
	out := Normalize(parsed)

	if s.cache != nil {
		if err := s.cache.Upsert(ctx, key, engine, model, out); err != nil {
			s.log.Warn("advisory cache write failed", "err", err)
		}
	}
	return out, nil
}

// loadKnowledge degrades to no guidance when the document is unavailable.
func (s *Service) loadKnowledge(ctx context.Context) string {
	if s.knowledge == nil || s.knowledgePath == "" {
		return ""
	}
	text, err := s.knowledge.Load(ctx, s.knowledgePath)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, apperr.ErrNotFound) {
			level = slog.LevelInfo
		}
		s.log.Log(ctx, level, "knowledge unavailable, continuing without it", "path", s.knowledgePath, "err", err)
		return ""
	}
	return text
}
