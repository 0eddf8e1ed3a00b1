package advisory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"nutriscan/api/internal/apperr"
)

// GeminiBackend calls Google Gemini through the generative-ai-go SDK.
type GeminiBackend struct {
	APIKey string
	Model  string
}

func NewGeminiBackend(apiKey, model string) *GeminiBackend {
	return &GeminiBackend{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (e *GeminiBackend) Name() string     { return "gemini" }
func (e *GeminiBackend) GetModel() string { return e.Model }

func (e *GeminiBackend) Generate(ctx context.Context, p Prompt, params Params) (any, error) {
	if e.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is empty: %w", apperr.ErrModelUnavailable)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return nil, err
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return nil, fmt.Errorf("gemini: model is nil: %w", apperr.ErrModelUnavailable)
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(float32(params.Temperature)),
		MaxOutputTokens:  ptrInt32(int32(params.MaxTokens)),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(p.System)},
	}

	resp, err := m.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func ptrFloat32(v float32) *float32 { return &v }
func ptrInt32(v int32) *int32       { return &v }
