package advisory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nutriscan/api/internal/apperr"
	"nutriscan/api/internal/logging"
)

// Params are the generation parameters passed to every backend.
type Params struct {
	MaxTokens   int
	Temperature float64
}

// Backend performs one model call and returns the decoded response body.
// Configuration problems must be wrapped with apperr.ErrModelUnavailable.
type Backend interface {
	Name() string
	GetModel() string
	Generate(ctx context.Context, p Prompt, params Params) (any, error)
}

type Client struct {
	backend Backend
	params  Params
	retries int
	timeout time.Duration
	backoff func(attempt int) time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	log     *slog.Logger
}

type ClientOptions struct {
	Params  Params
	Retries int
	Timeout time.Duration
}

func NewClient(b Backend, opt ClientOptions, log *slog.Logger) *Client {
	if log == nil {
		log = logging.Discard()
	}
	if opt.Params.MaxTokens <= 0 {
		opt.Params.MaxTokens = 400
	}
	return &Client{
		backend: b,
		params:  opt.Params,
		retries: max(opt.Retries, 0),
		timeout: opt.Timeout,
		backoff: func(attempt int) time.Duration { return time.Duration(1+attempt*2) * time.Second },
		sleep:   sleepCtx,
		log:     log,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) Engine() string {
	if c.backend == nil {
		return ""
	}
	return c.backend.Name()
}

func (c *Client) Model() string {
	if c.backend == nil {
		return ""
	}
	return c.backend.GetModel()
}

// Complete calls the model and returns its raw text. Transport and runtime
// failures are retried with backoff; a received response is never retried.
func (c *Client) Complete(ctx context.Context, p Prompt) (string, error) {
	if c.backend == nil {
		return "", fmt.Errorf("no model backend configured: %w", apperr.ErrModelUnavailable)
	}

	var lastErr error
	attempts := c.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := c.call(ctx, p)
		if err == nil {
			return ExtractText(resp), nil
		}
		if errors.Is(err, apperr.ErrModelUnavailable) {
			return "", err
		}
		lastErr = err
		c.log.Warn("model call failed", "engine", c.backend.Name(), "attempt", attempt+1, "of", attempts, "err", err)

		if attempt == attempts-1 {
			break
		}
		if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
			return "", fmt.Errorf("model call aborted: %w: %w", apperr.ErrTransient, err)
		}
	}
	return "", fmt.Errorf("model call failed after %d attempts: %w: %w", attempts, apperr.ErrTransient, lastErr)
}

func (c *Client) call(ctx context.Context, p Prompt) (resp any, err error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("backend panic: %v", r)
		}
	}()
	return c.backend.Generate(ctx, p, c.params)
}
