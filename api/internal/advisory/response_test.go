package advisory

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
)

func TestExtractText(t *testing.T) {
	cases := []struct {
		name string
		resp any
		want string
	}{
		{"chat", map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": "hi"}}}}, "hi"},
		{"chat text", map[string]any{"choices": []any{map[string]any{"text": "legacy"}}}, "legacy"},
		{"generated list", []any{map[string]any{"generated_text": "gen"}}, "gen"},
		{"generated object", map[string]any{"generated_text": "gen1"}, "gen1"},
		{"output_text", map[string]any{"output_text": "out"}, "out"},
		{"output parts", map[string]any{"output": []any{map[string]any{"content": []any{
			map[string]any{"type": "output_text", "text": "p1"},
			map[string]any{"type": "reasoning", "text": "skip"},
			map[string]any{"type": "text", "text": "p2"},
		}}}}, "p1\np2"},
		{"gemini", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("g")}},
		}}}, "g"},
		{"plain string", "just text", "just text"},
		{"nil", nil, ""},
		{"unknown object", map[string]any{"a": 1.0}, `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractText(tc.resp); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
