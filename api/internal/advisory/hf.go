package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"nutriscan/api/internal/apperr"
)

func newHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   16,
	}
	// deadline comes from the request context
	return &http.Client{Transport: tr}
}

// ChatBackend calls an OpenAI-compatible /chat/completions endpoint
// (the Hugging Face router by default).
type ChatBackend struct {
	Token   string
	BaseURL string
	Model   string
	httpc   *http.Client
}

func NewChatBackend(token, baseURL, model string) *ChatBackend {
	return &ChatBackend{
		Token:   strings.TrimSpace(token),
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Model:   strings.TrimSpace(model),
		httpc:   newHTTPClient(),
	}
}

func (b *ChatBackend) Name() string     { return "hf-chat" }
func (b *ChatBackend) GetModel() string { return b.Model }

func (b *ChatBackend) Generate(ctx context.Context, p Prompt, params Params) (any, error) {
	if b.Token == "" {
		return nil, fmt.Errorf("HF_TOKEN is empty: %w", apperr.ErrModelUnavailable)
	}
	body := map[string]any{
		"model": b.Model,
		"messages": []map[string]string{
			{"role": "system", "content": p.System},
			{"role": "user", "content": p.User},
		},
		"max_tokens":  params.MaxTokens,
		"temperature": params.Temperature,
	}
	return postJSON(ctx, b.httpc, b.BaseURL+"/chat/completions", b.Token, body)
}

// TextGenBackend calls a text-generation inference endpoint that answers
// with [{"generated_text": ...}].
type TextGenBackend struct {
	Token string
	URL   string
	Model string
	httpc *http.Client
}

// NewTextGenBackend targets baseURL/models/<model>.
func NewTextGenBackend(token, baseURL, model string) *TextGenBackend {
	return &TextGenBackend{
		Token: strings.TrimSpace(token),
		URL:   strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/models/" + strings.TrimSpace(model),
		Model: strings.TrimSpace(model),
		httpc: newHTTPClient(),
	}
}

func (b *TextGenBackend) Name() string     { return "hf-textgen" }
func (b *TextGenBackend) GetModel() string { return b.Model }

func (b *TextGenBackend) Generate(ctx context.Context, p Prompt, params Params) (any, error) {
	if b.Token == "" {
		return nil, fmt.Errorf("HF_TOKEN is empty: %w", apperr.ErrModelUnavailable)
	}
	body := map[string]any{
		"inputs": p.System + "\n\n" + p.User,
		"parameters": map[string]any{
			"max_new_tokens":   params.MaxTokens,
			"temperature":      params.Temperature,
			"return_full_text": false,
		},
	}
	return postJSON(ctx, b.httpc, b.URL, b.Token, body)
}

// errRetryable marks responses worth another attempt (5xx, 429).
var errRetryable = errors.New("retryable status")

func postJSON(ctx context.Context, httpc *http.Client, url, token string, body any) (any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %d: %s", errRetryable, resp.StatusCode, snippet(raw))
	default:
		return nil, fmt.Errorf("model endpoint %d: %s: %w", resp.StatusCode, snippet(raw), apperr.ErrModelUnavailable)
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		// a 200 with a non-JSON body is still an answer
		return string(raw), nil
	}
	return out, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		s = s[:300] + "…"
	}
	return s
}
