// Package detector talks to the barcode region detection model, which runs
// as a separate inference service.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"nutriscan/api/internal/apperr"
	"nutriscan/api/internal/raster"
)

// Region is one candidate barcode box in full-image pixel coordinates.
type Region struct {
	Box        image.Rectangle
	Confidence float64
	Label      string
}

// Detector is the contract the scan cascade depends on.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Region, error)
}

type box struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

type Client struct {
	baseURL string
	conf    float64
	iou     float64
	httpc   *http.Client
}

// New returns a client for the inference service at baseURL. An empty URL
// means the model is not deployed.
func New(baseURL string, conf, iou float64, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("detector url is empty: %w", apperr.ErrModelUnavailable)
	}
	return &Client{
		baseURL: baseURL,
		conf:    conf,
		iou:     iou,
		httpc:   &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) Name() string { return "detector" }

// Detect uploads img and returns regions in the order the model reported them,
// dropping boxes under the confidence threshold and degenerate boxes.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]Region, error) {
	jpg, err := raster.EncodeJPEG(img, 95)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", uuid.NewString()+".jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(jpg)); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	_ = writer.WriteField("conf", strconv.FormatFloat(c.conf, 'f', -1, 64))
	_ = writer.WriteField("iou", strconv.FormatFloat(c.iou, 'f', -1, 64))
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var result struct {
		Detections []box `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	bounds := img.Bounds()
	out := make([]Region, 0, len(result.Detections))
	for _, d := range result.Detections {
		if d.Confidence < c.conf {
			continue
		}
		r := image.Rect(int(d.X1), int(d.Y1), int(d.X2+0.5), int(d.Y2+0.5)).Intersect(bounds)
		if r.Empty() {
			continue
		}
		out = append(out, Region{Box: r, Confidence: d.Confidence, Label: d.Label})
	}
	return out, nil
}

// CheckHealth проверяет доступность сервиса модели.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector unhealthy: %d", resp.StatusCode)
	}
	return nil
}
