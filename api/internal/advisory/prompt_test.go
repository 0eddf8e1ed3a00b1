package advisory

import (
	"strings"
	"testing"

	"nutriscan/api/internal/product"
	"nutriscan/api/internal/profile"
)

func ptr[T any](v T) *T { return &v }

func sampleProfile() profile.Profile {
	return profile.Profile{
		Age:              ptr(34),
		WeightKg:         ptr(82.0),
		HeightCm:         ptr(180.0),
		HealthConditions: "type 2 diabetes",
		Goal:             "weight loss",
	}
}

func sampleProduct() *product.Record {
	n := product.NewNutrients()
	n.Set("sugars_100g", 31.0)
	n.Set("energy-kcal_100g", 389.0)
	n.Set("fat_100g", 6.5)
	n.Set("iron_100g", 0.008)
	return &product.Record{
		Barcode:         "3017620422003",
		Name:            "Choco Flakes",
		Brand:           "Acme",
		NutriscoreGrade: "D",
		Nutrients:       n,
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	a := Compose(sampleProfile(), sampleProduct(), "Eat vegetables. Limit sugar.", ComposeOptions{})
	b := Compose(sampleProfile(), sampleProduct(), "Eat vegetables. Limit sugar.", ComposeOptions{})
	if a != b {
		t.Fatal("equal inputs produced different prompts")
	}
	for _, want := range []string{"<user_profile>", "<product_info>", "<dietary_principles>", "Choco Flakes", "Goal: weight loss", "BMI: 25.3", "Limit sugar."} {
		if !strings.Contains(a.User, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
	if !strings.Contains(a.System, "---EXAMPLE---") || !strings.Contains(a.System, `"advisability"`) {
		t.Error("system prompt lacks the embedded example")
	}
}

func TestComposeOmitsMissingProfileFields(t *testing.T) {
	p := Compose(profile.Profile{Age: ptr(40)}, sampleProduct(), "", ComposeOptions{})
	if strings.Contains(p.User, "Weight:") || strings.Contains(p.User, "BMI:") {
		t.Errorf("absent fields rendered:\n%s", p.User)
	}
	if !strings.Contains(p.User, "Age: 40") {
		t.Error("age missing")
	}
	if !strings.Contains(p.User, "No additional guidance available.") {
		t.Error("empty knowledge should render a placeholder")
	}
}

func TestSelectNutrientsOrderAndCap(t *testing.T) {
	got := SelectNutrients(sampleProduct().Nutrients, 15)
	want := []string{"energy-kcal_100g", "fat_100g", "sugars_100g", "iron_100g"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", got, want)
	}

	n := product.NewNutrients()
	for i := 0; i < 40; i++ {
		n.Set("x"+strings.Repeat("y", i), i)
	}
	if got := SelectNutrients(n, 15); len(got) != 15 {
		t.Fatalf("cap not applied: %d", len(got))
	}
	// OpenFoodFacts carries bare, per-100g and unit keys for every nutrient
	off := product.NewNutrients()
	off.Set("nova-group", 4)
	for _, k := range nutrientAllowList {
		off.Set(k, 1.0)
		off.Set(k+"_100g", 1.0)
		off.Set(k+"_unit", "g")
	}
	off.Set("vitamin-c_serving", 0.01)
	got = SelectNutrients(off, 15)
	want = make([]string, 0, 15)
	for _, k := range nutrientAllowList {
		want = append(want, k+"_100g")
	}
	want = append(want, "nova-group", "vitamin-c_serving")
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("off fixture: got %v, want %v", got, want)
	}
	if got := SelectNutrients(off, 9); got[7] != "salt_100g" || got[8] != "sodium_100g" {
		t.Fatalf("salt/sodium dropped: %v", got)
	}

	if got := SelectNutrients(nil, 15); len(got) != 0 {
		t.Fatalf("nil nutrients: %v", got)
	}
}

func TestTruncateWords(t *testing.T) {
	if got := TruncateWords("one two three", 10); got != "one two three" {
		t.Errorf("short text changed: %q", got)
	}
	// sentence end at word 9 of 10 lies inside the 70% window
	text := "a b c d e f g h end. k l m n"
	if got := TruncateWords(text, 10); got != "a b c d e f g h end." {
		t.Errorf("sentence boundary not honoured: %q", got)
	}
	// boundary at word 2 is below the floor, so hard cut
	text = "a end. c d e f g h i j k l"
	if got := TruncateWords(text, 10); got != "a end. c d e f g h i j" {
		t.Errorf("hard cut expected: %q", got)
	}
}

func TestComposeTruncatesKnowledge(t *testing.T) {
	long := strings.Repeat("word ", 5000)
	p := Compose(sampleProfile(), sampleProduct(), long, ComposeOptions{KnowledgeWords: 100})
	if n := strings.Count(p.User, "word"); n != 100 {
		t.Fatalf("knowledge words = %d, want 100", n)
	}
}
