// Package profile describes the user attributes that personalize an advisory.
package profile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"nutriscan/api/internal/apperr"
)

// Profile fields are optional; nil means "not provided".
type Profile struct {
	Age                *int     `json:"age,omitempty"`
	WeightKg           *float64 `json:"weight,omitempty"`
	HeightCm           *float64 `json:"height,omitempty"`
	CachedBMI          *float64 `json:"bmi,omitempty"`
	HealthConditions   string   `json:"health_conditions,omitempty"`
	DietaryPreferences string   `json:"dietary_preferences,omitempty"`
	Goal               string   `json:"goal,omitempty"`
}

// BMI returns the cached value when present, otherwise computes it from
// weight and height. ok is false when it cannot be computed.
func (p Profile) BMI() (float64, bool) {
	if p.CachedBMI != nil {
		return *p.CachedBMI, true
	}
	if p.WeightKg == nil || p.HeightCm == nil || !(*p.HeightCm > 0) || !finite(*p.WeightKg) {
		return 0, false
	}
	m := *p.HeightCm / 100
	return math.Round(*p.WeightKg/(m*m)*10) / 10, true
}

// Validate checks the fields required for analysis.
func (p Profile) Validate() error {
	var missing []string
	if p.Age == nil || *p.Age <= 0 || *p.Age > 120 {
		missing = append(missing, "age")
	}
	if p.WeightKg == nil || !inRange(*p.WeightKg, 300) {
		missing = append(missing, "weight")
	}
	if p.HeightCm == nil || !inRange(*p.HeightCm, 300) {
		missing = append(missing, "height")
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid or missing %s: %w", strings.Join(missing, ", "), apperr.ErrProfileIncomplete)
	}
	return nil
}

// inRange reports 0 < v <= hi; NaN is never in range.
func inRange(v, hi float64) bool { return v > 0 && v <= hi }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// ParseKV fills a profile from "age=30 weight=70 height=175 goal=lose weight"
// style input. Free-text values run until the next key.
func ParseKV(base Profile, s string) (Profile, error) {
	p := base
	fields := strings.Fields(s)
	var key string
	var val []string
	flush := func() error {
		if key == "" {
			return nil
		}
		if err := p.set(key, strings.Join(val, " ")); err != nil {
			return err
		}
		key, val = "", nil
		return nil
	}
	for _, f := range fields {
		if k, v, ok := strings.Cut(f, "="); ok && isKey(k) {
			if err := flush(); err != nil {
				return base, err
			}
			key = strings.ToLower(k)
			if v != "" {
				val = append(val, v)
			}
			continue
		}
		if key == "" {
			return base, fmt.Errorf("unexpected %q, want key=value: %w", f, apperr.ErrInput)
		}
		val = append(val, f)
	}
	if err := flush(); err != nil {
		return base, err
	}
	p.CachedBMI = nil
	return p, nil
}

func isKey(k string) bool {
	switch strings.ToLower(k) {
	case "age", "weight", "height", "conditions", "health", "diet", "preferences", "goal":
		return true
	}
	return false
}

func (p *Profile) set(key, v string) error {
	switch key {
	case "age":
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("age %q: %w", v, apperr.ErrInput)
		}
		p.Age = &n
	case "weight", "height":
		f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
		if err != nil || !finite(f) {
			return fmt.Errorf("%s %q: %w", key, v, apperr.ErrInput)
		}
		if key == "weight" {
			p.WeightKg = &f
		} else {
			p.HeightCm = &f
		}
	case "conditions", "health":
		p.HealthConditions = v
	case "diet", "preferences":
		p.DietaryPreferences = v
	case "goal":
		p.Goal = v
	}
	return nil
}
