package advisory

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"nutriscan/api/internal/util"
)

const rawSnippetLen = 500

// Parse recovers a JSON object from free-form model text. It never fails:
// unrecoverable input yields {"error": "unparseable", "raw": <first 500 chars>}.
func Parse(text string) map[string]any {
	s := util.StripCodeFences(text)

	if m, ok := parseObject(s); ok {
		return m
	}
	if m, ok := fromBraceSpans(s); ok {
		return m
	}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}") {
			if m, ok := parseObject(line); ok {
				return m
			}
		}
	}
	return map[string]any{"error": "unparseable", "raw": truncateRunes(text, rawSnippetLen)}
}

func parseObject(s string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// fromBraceSpans tries the greedy first-{..last-} span and every balanced
// top-level object, each as is and with single quotes swapped for double.
// A candidate carrying "advisability" wins over earlier ones.
func fromBraceSpans(s string) (map[string]any, bool) {
	var first map[string]any
	for _, span := range candidateSpans(s) {
		for _, c := range []string{span, strings.ReplaceAll(span, "'", `"`)} {
			m, ok := parseObject(c)
			if !ok {
				continue
			}
			if _, has := m["advisability"]; has {
				return m, true
			}
			if first == nil {
				first = m
			}
			break
		}
	}
	return first, first != nil
}

func candidateSpans(s string) []string {
	var spans []string
	seen := map[string]bool{}
	add := func(x string) {
		if !seen[x] {
			seen[x] = true
			spans = append(spans, x)
		}
	}
	if i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); i >= 0 && j > i {
		add(s[i : j+1])
	}
	for _, b := range balancedObjects(s) {
		add(b)
	}
	return spans
}

// balancedObjects returns top-level {...} spans, skipping braces inside
// double-quoted strings.
func balancedObjects(s string) []string {
	var (
		out      []string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, s[start:i+1])
				start = -1
			}
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
