package product

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Nutrients is a JSON object that remembers the order its keys arrived in.
type Nutrients struct {
	keys   []string
	values map[string]any
}

func NewNutrients() *Nutrients { return &Nutrients{values: map[string]any{}} }

func (n *Nutrients) Set(key string, v any) {
	if n.values == nil {
		n.values = map[string]any{}
	}
	if _, ok := n.values[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.values[key] = v
}

func (n *Nutrients) Get(key string) (any, bool) {
	if n == nil {
		return nil, false
	}
	v, ok := n.values[key]
	return v, ok
}

// Keys returns keys in first-seen order.
func (n *Nutrients) Keys() []string {
	if n == nil {
		return nil
	}
	return append([]string(nil), n.keys...)
}

func (n *Nutrients) Len() int {
	if n == nil {
		return 0
	}
	return len(n.keys)
}

func (n *Nutrients) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil { // null
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("nutriments: expected object, got %v", tok)
	}
	n.keys, n.values = nil, map[string]any{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("nutriments[%s]: %w", key, err)
		}
		n.Set(key, v)
	}
	_, err = dec.Token() // closing brace
	return err
}

func (n *Nutrients) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if n != nil {
		for i, k := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			vb, err := json.Marshal(n.values[k])
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Label maps a nutrient key to a display name.
type Label struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

const DefaultNutrientMap = "energy-kcal:Energy (kcal)|fat:Total Fat|saturated-fat:Saturated Fat|" +
	"carbohydrates:Carbohydrate|fiber:Fiber|sugars:Sugar|proteins:Protein|salt:Salt|sodium:Sodium"

// ParseNutrientMap parses "key:Label|key:Label". A malformed or empty map
// falls back to DefaultNutrientMap.
func ParseNutrientMap(s string) []Label {
	if labels, ok := parseNutrientMap(s); ok {
		return labels
	}
	labels, _ := parseNutrientMap(DefaultNutrientMap)
	return labels
}

func parseNutrientMap(s string) ([]Label, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	var out []Label
	for _, pair := range strings.Split(s, "|") {
		k, v, ok := strings.Cut(pair, ":")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, false
		}
		out = append(out, Label{Key: k, Name: v})
	}
	return out, true
}
