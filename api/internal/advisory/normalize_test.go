package advisory

import (
	"reflect"
	"testing"
)

func TestNormalizeDefaults(t *testing.T) {
	r := Normalize(map[string]any{})
	want := Record{
		Description:  noDescription,
		Advisability: AdvisabilityCaution,
		Pros:         []string{},
		Cons:         []string{},
		Summary:      noSummary,
	}
	if !reflect.DeepEqual(r, want) {
		t.Fatalf("got %+v", r)
	}
}

func TestNormalizeCoercion(t *testing.T) {
	r := Normalize(map[string]any{
		"Advisability": "  no ",
		"PROS":         "Single pro",
		"cons":         []any{"a", " ", nil, 3.0},
		"description":  "Cereal.",
		"explanation":  "From alias.",
	})
	if r.Advisability != AdvisabilityNo {
		t.Errorf("advisability = %q", r.Advisability)
	}
	if !reflect.DeepEqual(r.Pros, []string{"Single pro"}) {
		t.Errorf("pros = %v", r.Pros)
	}
	if !reflect.DeepEqual(r.Cons, []string{"a", "3"}) {
		t.Errorf("cons = %v", r.Cons)
	}
	if r.Summary != "From alias." || r.Description != "Cereal." {
		t.Errorf("text fields = %+v", r)
	}
}

func TestNormalizeAdvisabilityValues(t *testing.T) {
	for in, want := range map[any]string{
		"Yes": AdvisabilityYes, "YES": AdvisabilityYes, "no": AdvisabilityNo,
		"with  caution": AdvisabilityCaution, "maybe": AdvisabilityCaution, 42.0: AdvisabilityCaution,
	} {
		if got := Normalize(map[string]any{"advisability": in}).Advisability; got != want {
			t.Errorf("%v → %q, want %q", in, got, want)
		}
	}
}
