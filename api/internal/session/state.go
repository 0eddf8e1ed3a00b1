// Package session sequences scan → analyze → result across requests and
// keeps the per-user state in between.
package session

import (
	"time"

	"nutriscan/api/internal/advisory"
	"nutriscan/api/internal/product"
	"nutriscan/api/internal/scan"
)

type Name string

const (
	Idle     Name = "idle"
	Scanned  Name = "scanned"
	Analyzed Name = "analyzed"
)

// PendingScan is what a successful scan leaves for Analyze.
type PendingScan struct {
	Code           string
	Strategy       scan.Strategy
	Image          string // annotated, base64 JPEG
	DetectionCount int
	ScannedAt      time.Time
}

// Result is the analyzed product shown once and then discarded.
type Result struct {
	Barcode   string          `json:"barcode"`
	Product   *product.Record `json:"product"`
	Advisory  advisory.Record `json:"analysis"`
	Nutrients []NutrientLine  `json:"nutrients"`
	Warning   string          `json:"warning,omitempty"`
	ScanImage string          `json:"scan_image,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NutrientLine is one labeled row of the nutrient table.
type NutrientLine struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value any    `json:"value"`
}

// State values are replaced whole, never mutated in place.
type State struct {
	PendingScan   *PendingScan
	PendingResult *Result
	LastCode      string

	touchedAt time.Time
}

func (s State) Name() Name {
	switch {
	case s.PendingScan != nil:
		return Scanned
	case s.PendingResult != nil:
		return Analyzed
	default:
		return Idle
	}
}

func (s State) empty() bool {
	return s.PendingScan == nil && s.PendingResult == nil && s.LastCode == ""
}
