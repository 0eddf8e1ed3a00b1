// Package product looks up packaged food data by barcode.
package product

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nutriscan/api/internal/logging"
)

// Record is the product data the advisory is built from.
type Record struct {
	Barcode         string            `json:"barcode"`
	Name            string            `json:"name"`
	Brand           string            `json:"brand,omitempty"`
	NutriscoreGrade string            `json:"nutriscore_grade,omitempty"`
	NutriscoreScore *float64          `json:"nutriscore_score,omitempty"`
	Nutrients       *Nutrients        `json:"nutrients"`
	NutrientLevels  map[string]string `json:"nutrient_levels,omitempty"`
	ImageURL        string            `json:"image_url,omitempty"`
}

// Limited reports whether the record lacks a name or any nutrient data.
func (r *Record) Limited() bool {
	return r == nil || strings.TrimSpace(r.Name) == "" || r.Nutrients.Len() == 0
}

// Lookup is the collaborator contract used by the session orchestrator.
type Lookup interface {
	Lookup(ctx context.Context, code string) (*Record, error)
}

// OpenFoodFacts queries the public OpenFoodFacts v0 product API.
type OpenFoodFacts struct {
	baseURL string
	httpc   *http.Client
	log     *slog.Logger
}

func NewOpenFoodFacts(baseURL string, log *slog.Logger) *OpenFoodFacts {
	if baseURL == "" {
		baseURL = "https://world.openfoodfacts.org"
	}
	if log == nil {
		log = logging.Discard()
	}
	return &OpenFoodFacts{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type offResponse struct {
	Status  int `json:"status"`
	Product *struct {
		ProductName     string            `json:"product_name"`
		Brands          string            `json:"brands"`
		NutriscoreGrade string            `json:"nutriscore_grade"`
		NutriscoreScore *float64          `json:"nutriscore_score"`
		Nutriments      *Nutrients        `json:"nutriments"`
		NutrientLevels  map[string]string `json:"nutrient_levels"`
		ImageURL        string            `json:"image_url"`
	} `json:"product"`
}

// Lookup returns nil, nil when the product is unknown.
func (c *OpenFoodFacts) Lookup(ctx context.Context, code string) (*Record, error) {
	u := fmt.Sprintf("%s/api/v0/product/%s.json", c.baseURL, url.PathEscape(code))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "nutriscan/1.0")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("product lookup %s: %w", code, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("product lookup %s: status %d: %s", code, resp.StatusCode, string(x))
	}

	var out offResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("product lookup %s: decode: %w", code, err)
	}
	if out.Status != 1 || out.Product == nil {
		return nil, nil
	}
	p := out.Product
	rec := &Record{
		Barcode:         code,
		Name:            strings.TrimSpace(p.ProductName),
		Brand:           strings.TrimSpace(p.Brands),
		NutriscoreGrade: strings.ToUpper(strings.TrimSpace(p.NutriscoreGrade)),
		NutriscoreScore: p.NutriscoreScore,
		Nutrients:       p.Nutriments,
		NutrientLevels:  p.NutrientLevels,
		ImageURL:        p.ImageURL,
	}
	if rec.Nutrients == nil {
		rec.Nutrients = NewNutrients()
	}
	if rec.Name == "" {
		rec.Name = "Unknown Product"
	}
	if rec.Limited() {
		c.log.Warn("product data is limited", "barcode", code, "nutrients", rec.Nutrients.Len())
	}
	return rec, nil
}
