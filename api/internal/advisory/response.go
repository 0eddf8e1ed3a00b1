package advisory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

// responseAdapter pulls the generated text out of one known response shape.
type responseAdapter interface {
	accepts(resp any) bool
	text(resp any) (string, bool)
}

// adapters is the closed set tried in order; raw always accepts.
var adapters = []responseAdapter{
	choicesAdapter{},
	generatedTextAdapter{},
	outputTextAdapter{},
	geminiAdapter{},
	rawAdapter{},
}

// ExtractText returns the model text from any backend response.
func ExtractText(resp any) string {
	for _, a := range adapters {
		if !a.accepts(resp) {
			continue
		}
		if t, ok := a.text(resp); ok {
			return t
		}
	}
	return stringify(resp)
}

func asObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// choicesAdapter handles chat-completions: choices[0].message.content or choices[0].text.
type choicesAdapter struct{}

func (choicesAdapter) accepts(resp any) bool {
	m, ok := asObject(resp)
	if !ok {
		return false
	}
	_, ok = m["choices"].([]any)
	return ok
}

func (choicesAdapter) text(resp any) (string, bool) {
	choices := resp.(map[string]any)["choices"].([]any)
	if len(choices) == 0 {
		return "", false
	}
	first, ok := asObject(choices[0])
	if !ok {
		return "", false
	}
	if msg, ok := asObject(first["message"]); ok {
		if s, ok := msg["content"].(string); ok {
			return s, true
		}
	}
	if s, ok := first["text"].(string); ok {
		return s, true
	}
	return "", false
}

// generatedTextAdapter handles text-generation: {"generated_text"} or [{"generated_text"}].
type generatedTextAdapter struct{}

func (generatedTextAdapter) first(resp any) (map[string]any, bool) {
	if list, ok := resp.([]any); ok {
		if len(list) == 0 {
			return nil, false
		}
		resp = list[0]
	}
	m, ok := asObject(resp)
	if !ok {
		return nil, false
	}
	if _, ok := m["generated_text"]; !ok {
		return nil, false
	}
	return m, true
}

func (a generatedTextAdapter) accepts(resp any) bool {
	_, ok := a.first(resp)
	return ok
}

func (a generatedTextAdapter) text(resp any) (string, bool) {
	m, _ := a.first(resp)
	s, ok := m["generated_text"].(string)
	return s, ok
}

// outputTextAdapter handles the Responses API envelope: output_text or
// output[i].content[j].text.
type outputTextAdapter struct{}

func (outputTextAdapter) accepts(resp any) bool {
	m, ok := asObject(resp)
	if !ok {
		return false
	}
	_, hasText := m["output_text"]
	_, hasOutput := m["output"].([]any)
	return hasText || hasOutput
}

func (outputTextAdapter) text(resp any) (string, bool) {
	m := resp.(map[string]any)
	if s, ok := m["output_text"].(string); ok && strings.TrimSpace(s) != "" {
		return s, true
	}
	var parts []string
	out, _ := m["output"].([]any)
	for _, o := range out {
		om, ok := asObject(o)
		if !ok {
			continue
		}
		content, _ := om["content"].([]any)
		for _, c := range content {
			cm, ok := asObject(c)
			if !ok {
				continue
			}
			typ, _ := cm["type"].(string)
			if typ != "output_text" && typ != "text" {
				continue
			}
			if s, ok := cm["text"].(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

type geminiAdapter struct{}

func (geminiAdapter) accepts(resp any) bool {
	_, ok := resp.(*genai.GenerateContentResponse)
	return ok
}

func (geminiAdapter) text(resp any) (string, bool) {
	t := firstText(resp.(*genai.GenerateContentResponse))
	return t, t != ""
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

type rawAdapter struct{}

func (rawAdapter) accepts(any) bool { return true }

func (rawAdapter) text(resp any) (string, bool) { return stringify(resp), true }

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
