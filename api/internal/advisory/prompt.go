package advisory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"nutriscan/api/internal/product"
	"nutriscan/api/internal/profile"
)

// Prompt is the system + user text sent to the model.
type Prompt struct {
	System string
	User   string
}

type ComposeOptions struct {
	MaxNutrients   int
	KnowledgeWords int
}

func (o ComposeOptions) withDefaults() ComposeOptions {
	if o.MaxNutrients <= 0 {
		o.MaxNutrients = 15
	}
	if o.KnowledgeWords <= 0 {
		o.KnowledgeWords = 2500
	}
	return o
}

// nutrientAllowList is the preferred order of nutrients in the prompt.
var nutrientAllowList = []string{
	"energy-kcal", "fat", "saturated-fat", "carbohydrates", "sugars",
	"fiber", "proteins", "salt", "sodium", "trans-fat", "cholesterol",
}

const systemPrompt = `You are a nutrition assistant. Using the user's profile, the product's nutritional data and the dietary principles provided, decide whether this product is advisable for this user.

Respond with a single JSON object and nothing else. The object must have exactly these keys:
- "description": one sentence describing the product,
- "advisability": one of "Yes", "No", "With Caution",
- "pros": a list of short strings,
- "cons": a list of short strings,
- "summary": two or three sentences of personalized advice.

Base the verdict on the nutrient values and the user's goal and health conditions. Do not invent nutrients that are not listed.

---EXAMPLE---
` + exampleAdvisory + `
---EXAMPLE---`

const exampleAdvisory = `{"description": "A sweetened breakfast cereal with chocolate flavouring.", "advisability": "With Caution", "pros": ["Good source of fiber", "Fortified with iron"], "cons": ["High in added sugar", "Low in protein"], "summary": "This cereal fits occasionally, but its sugar content works against your weight-loss goal. Pair it with unsweetened yogurt and keep portions small."}`

// Compose builds the prompt. It is pure: equal inputs give identical output.
func Compose(p profile.Profile, rec *product.Record, knowledge string, opt ComposeOptions) Prompt {
	opt = opt.withDefaults()

	var b strings.Builder
	b.WriteString("<user_profile>\n")
	b.WriteString(profileBlock(p))
	b.WriteString("</user_profile>\n\n<product_info>\n")
	b.WriteString(productBlock(rec, opt.MaxNutrients))
	b.WriteString("</product_info>\n\n<dietary_principles>\n")
	if k := TruncateWords(knowledge, opt.KnowledgeWords); k != "" {
		b.WriteString(k)
		b.WriteString("\n")
	} else {
		b.WriteString("No additional guidance available.\n")
	}
	b.WriteString("</dietary_principles>\n\nAnalyze the product for this user and answer with the JSON object only.")

	return Prompt{System: systemPrompt, User: b.String()}
}

func profileBlock(p profile.Profile) string {
	var b strings.Builder
	if p.Age != nil {
		fmt.Fprintf(&b, "Age: %d\n", *p.Age)
	}
	if p.WeightKg != nil {
		fmt.Fprintf(&b, "Weight: %s kg\n", formatFloat(*p.WeightKg))
	}
	if p.HeightCm != nil {
		fmt.Fprintf(&b, "Height: %s cm\n", formatFloat(*p.HeightCm))
	}
	if bmi, ok := p.BMI(); ok {
		fmt.Fprintf(&b, "BMI: %.1f\n", bmi)
	}
	if s := strings.TrimSpace(p.HealthConditions); s != "" {
		fmt.Fprintf(&b, "Health Conditions: %s\n", s)
	}
	if s := strings.TrimSpace(p.DietaryPreferences); s != "" {
		fmt.Fprintf(&b, "Dietary Preferences: %s\n", s)
	}
	if s := strings.TrimSpace(p.Goal); s != "" {
		fmt.Fprintf(&b, "Goal: %s\n", s)
	}
	if b.Len() == 0 {
		return "No profile information provided.\n"
	}
	return b.String()
}

func productBlock(rec *product.Record, limit int) string {
	if rec == nil {
		return "Product: Unknown Product\nNutrient data: not available\n"
	}
	var b strings.Builder
	name := strings.TrimSpace(rec.Name)
	if name == "" {
		name = "Unknown Product"
	}
	fmt.Fprintf(&b, "Product: %s\n", name)
	if rec.Brand != "" {
		fmt.Fprintf(&b, "Brand: %s\n", rec.Brand)
	}
	if rec.NutriscoreGrade != "" {
		if rec.NutriscoreScore != nil {
			fmt.Fprintf(&b, "Nutri-Score: %s (%s)\n", rec.NutriscoreGrade, formatFloat(*rec.NutriscoreScore))
		} else {
			fmt.Fprintf(&b, "Nutri-Score: %s\n", rec.NutriscoreGrade)
		}
	}
	keys := SelectNutrients(rec.Nutrients, limit)
	if len(keys) == 0 {
		b.WriteString("Nutrient data: not available\n")
		return b.String()
	}
	b.WriteString("Nutrients:\n")
	for _, k := range keys {
		v, _ := rec.Nutrients.Get(k)
		fmt.Fprintf(&b, "- %s: %s\n", humanize(k), formatValue(v))
	}
	return b.String()
}

// SelectNutrients picks at most limit keys, one per nutrient: allow-listed
// nutrients first in allow-list order, then the rest in first-seen order.
// For each nutrient the per-100g key wins over the bare key, and unit,
// value and serving siblings are never listed on their own.
func SelectNutrients(n *product.Nutrients, limit int) []string {
	keys := n.Keys()
	present := make(map[string]bool, len(keys))
	var bases []string
	firstKey := map[string]string{}
	for _, k := range keys {
		present[k] = true
		b := nutrientBase(k)
		if _, ok := firstKey[b]; !ok {
			firstKey[b] = k
			bases = append(bases, b)
		}
	}
	pick := func(b string) string {
		switch {
		case present[b+"_100g"]:
			return b + "_100g"
		case present[b]:
			return b
		}
		return firstKey[b]
	}

	used := make(map[string]bool, len(bases))
	out := make([]string, 0, min(limit, len(bases)))
	for _, b := range nutrientAllowList {
		if _, ok := firstKey[b]; ok && !used[b] {
			used[b] = true
			out = append(out, pick(b))
		}
	}
	for _, b := range bases {
		if !used[b] {
			used[b] = true
			out = append(out, pick(b))
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

var nutrientSuffixes = []string{"_100g", "_serving", "_unit", "_value", "_prepared"}

// nutrientBase strips OpenFoodFacts variant suffixes: "fat_100g" → "fat".
func nutrientBase(k string) string {
	for _, sfx := range nutrientSuffixes {
		if b, ok := strings.CutSuffix(k, sfx); ok && b != "" {
			return b
		}
	}
	return k
}

// TruncateWords cuts text to at most budget words, preferring to end on a
// sentence boundary found in the last 30% of the budget.
func TruncateWords(text string, budget int) string {
	words := strings.Fields(text)
	if len(words) <= budget {
		return strings.Join(words, " ")
	}
	floor := budget * 7 / 10
	for i := budget - 1; i >= floor; i-- {
		if endsSentence(words[i]) {
			return strings.Join(words[:i+1], " ")
		}
	}
	return strings.Join(words[:budget], " ")
}

func endsSentence(w string) bool {
	w = strings.TrimRight(w, `"')]`)
	return strings.HasSuffix(w, ".") || strings.HasSuffix(w, "!") || strings.HasSuffix(w, "?")
}

func humanize(key string) string {
	s := strings.NewReplacer("_", " ", "-", " ").Replace(key)
	// cases.Caser is not safe for concurrent use
	return cases.Title(language.English).String(s)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case json.Number:
		return x.String()
	case float64:
		return formatFloat(x)
	case string:
		return x
	case nil:
		return "n/a"
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
