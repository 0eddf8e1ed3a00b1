package advisory

import (
	"fmt"
	"strings"
)

const (
	AdvisabilityYes     = "Yes"
	AdvisabilityNo      = "No"
	AdvisabilityCaution = "With Caution"

	noSummary     = "No summary available."
	noDescription = "No description available."
)

// Record is the normalized advisory shown to the user.
type Record struct {
	Description  string   `json:"description"`
	Advisability string   `json:"advisability"`
	Pros         []string `json:"pros"`
	Cons         []string `json:"cons"`
	Summary      string   `json:"summary"`
}

// aliases used by earlier prompt versions
var keyAliases = map[string]string{
	"recommendation": "advisability",
	"benefits":       "pros",
	"drawbacks":      "cons",
	"explanation":    "summary",
}

// Normalize coerces a parsed model object into a Record. Missing or
// malformed fields get safe defaults; it never fails.
func Normalize(m map[string]any) Record {
	fields := make(map[string]any, len(m))
	for k, v := range m {
		fields[strings.ToLower(strings.TrimSpace(k))] = v
	}
	for alias, canonical := range keyAliases {
		if _, ok := fields[canonical]; ok {
			continue
		}
		if v, ok := fields[alias]; ok {
			fields[canonical] = v
		}
	}

	return Record{
		Description:  textOr(fields["description"], noDescription),
		Advisability: advisability(fields["advisability"]),
		Pros:         stringList(fields["pros"]),
		Cons:         stringList(fields["cons"]),
		Summary:      textOr(fields["summary"], noSummary),
	}
}

func advisability(v any) string {
	s, _ := v.(string)
	switch strings.ToLower(strings.Join(strings.Fields(s), " ")) {
	case "yes":
		return AdvisabilityYes
	case "no":
		return AdvisabilityNo
	default:
		return AdvisabilityCaution
	}
}

func stringList(v any) []string {
	out := []string{}
	switch x := v.(type) {
	case string:
		if s := strings.TrimSpace(x); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range x {
			var s string
			switch it := item.(type) {
			case string:
				s = strings.TrimSpace(it)
			case nil:
				continue
			default:
				s = fmt.Sprint(it)
			}
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func textOr(v any, def string) string {
	if s, ok := v.(string); ok {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return def
}
