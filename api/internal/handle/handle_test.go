package handle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"nutriscan/api/internal/advisory"
	"nutriscan/api/internal/product"
	"nutriscan/api/internal/profile"
	"nutriscan/api/internal/scan"
	"nutriscan/api/internal/session"
	"nutriscan/api/internal/store"
)

type fixedScanner scan.Outcome

func (s fixedScanner) Run(context.Context, image.Image) scan.Outcome { return scan.Outcome(s) }

type oneProduct struct{}

func (oneProduct) Lookup(_ context.Context, code string) (*product.Record, error) {
	if code != "4006381333931" {
		return nil, nil
	}
	n := product.NewNutrients()
	n.Set("fat_100g", 3.2)
	return &product.Record{Barcode: code, Name: "Oat Bar", Nutrients: n}, nil
}

type okAdvisor struct{}

func (okAdvisor) Advise(context.Context, profile.Profile, *product.Record) (advisory.Record, error) {
	return advisory.Record{Advisability: advisory.AdvisabilityYes, Summary: "Good choice."}, nil
}

func newTestRouter(t *testing.T, out scan.Outcome, checks ...Check) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	scans := store.NewMemoryScanRepo(0)
	orch := session.New(session.Deps{
		Store:    session.NewMemoryStore(time.Hour),
		Scanner:  fixedScanner(out),
		Products: oneProduct{},
		Advisor:  okAdvisor{},
		ScanLog:  scans,
	}, nil)
	return New(orch, store.NewMemoryProfileRepo(), scans, checks, nil).Router()
}

func do(r http.Handler, method, path, user string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func multipartImage(t *testing.T) ([]byte, string) {
	t.Helper()
	var img bytes.Buffer
	if err := png.Encode(&img, image.NewGray(image.Rect(0, 0, 16, 16))); err != nil {
		t.Fatal(err)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("image", "photo.png")
	_, _ = fw.Write(img.Bytes())
	_ = mw.Close()
	return body.Bytes(), mw.FormDataContentType()
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("bad json %q: %v", w.Body.String(), err)
	}
	return m
}

var hit = scan.Outcome{Success: true, Code: "4006381333931", Strategy: scan.StrategyDirect, Message: "Barcode decoded successfully."}

func TestFullFlow(t *testing.T) {
	r := newTestRouter(t, hit)
	body, ct := multipartImage(t)

	w := do(r, http.MethodPost, "/v1/scan", "u1", body, ct)
	if w.Code != http.StatusOK || decode(t, w)["barcode_data"] != "4006381333931" {
		t.Fatalf("scan: %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPost, "/v1/analyze", "u1", nil, "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("analyze without profile: %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPut, "/v1/profile", "u1", []byte(`{"age":30,"weight":70,"height":175,"goal":"maintain"}`), "application/json")
	if w.Code != http.StatusOK || decode(t, w)["complete"] != true {
		t.Fatalf("profile: %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPost, "/v1/analyze", "u1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("analyze: %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodGet, "/v1/result", "u1", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Good choice.") {
		t.Fatalf("result: %d %s", w.Code, w.Body.String())
	}
	w = do(r, http.MethodGet, "/v1/result", "u1", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second result: %d", w.Code)
	}

	w = do(r, http.MethodGet, "/v1/history", "u1", nil, "")
	scans, _ := decode(t, w)["scans"].([]any)
	if len(scans) != 1 {
		t.Fatalf("history: %s", w.Body.String())
	}
}

func TestAnalyzeErrors(t *testing.T) {
	r := newTestRouter(t, hit)
	prof := `"profile":{"age":30,"weight":70,"height":175}`

	w := do(r, http.MethodPost, "/v1/analyze", "u1", []byte(`{`+prof+`}`), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("no code: %d", w.Code)
	}
	w = do(r, http.MethodPost, "/v1/analyze", "u1", []byte(`{"manual_barcode":"12345678",`+prof+`}`), "application/json")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown product: %d", w.Code)
	}
	w = do(r, http.MethodPost, "/v1/analyze", "u1", []byte(`{"manual_barcode":"4006381333931",`+prof+`}`), "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("manual code: %d %s", w.Code, w.Body.String())
	}
}

func TestScanRejectsBadUpload(t *testing.T) {
	r := newTestRouter(t, hit)
	if w := do(r, http.MethodPost, "/v1/scan", "u1", []byte("x"), "text/plain"); w.Code != http.StatusBadRequest {
		t.Fatalf("missing file: %d", w.Code)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("image", "x.png")
	_, _ = fw.Write([]byte("not an image"))
	_ = mw.Close()
	if w := do(r, http.MethodPost, "/v1/scan", "u1", body.Bytes(), mw.FormDataContentType()); w.Code != http.StatusBadRequest {
		t.Fatalf("garbage image: %d", w.Code)
	}
}

func TestScanAcceptsBase64JSON(t *testing.T) {
	r := newTestRouter(t, hit)
	var img bytes.Buffer
	if err := png.Encode(&img, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	payload, _ := json.Marshal(map[string]string{
		"image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(img.Bytes()),
	})
	w := do(r, http.MethodPost, "/v1/scan", "u1", payload, "application/json")
	if w.Code != http.StatusOK || decode(t, w)["barcode_data"] != "4006381333931" {
		t.Fatalf("%d %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodPost, "/v1/scan", "u1", []byte(`{"image":"%%%"}`), "application/json"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad base64: %d", w.Code)
	}
}

func TestScanMissReportsFailureOutcome(t *testing.T) {
	r := newTestRouter(t, scan.Outcome{Message: "No barcode regions detected"})
	body, ct := multipartImage(t)
	w := do(r, http.MethodPost, "/v1/scan", "u1", body, ct)
	m := decode(t, w)
	if w.Code != http.StatusOK || m["success"] != false || m["message"] != "No barcode regions detected" {
		t.Fatalf("%d %s", w.Code, w.Body.String())
	}
}

func TestRequiresUserHeader(t *testing.T) {
	r := newTestRouter(t, hit)
	if w := do(r, http.MethodGet, "/v1/result", "", nil, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestClearAndStatus(t *testing.T) {
	r := newTestRouter(t, hit)
	body, ct := multipartImage(t)
	do(r, http.MethodPost, "/v1/scan", "u1", body, ct)
	if m := decode(t, do(r, http.MethodGet, "/v1/status", "u1", nil, "")); m["state"] != "scanned" {
		t.Fatalf("status = %v", m)
	}
	do(r, http.MethodPost, "/v1/clear", "u1", nil, "")
	if m := decode(t, do(r, http.MethodGet, "/v1/status", "u1", nil, "")); m["state"] != "idle" {
		t.Fatalf("status = %v", m)
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, hit, Check{Name: "db", Probe: func(context.Context) error { return nil }})
	if w := do(r, http.MethodGet, "/healthz", "", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("healthy: %d", w.Code)
	}
	r = newTestRouter(t, hit, Check{Name: "detector", Probe: func(context.Context) error { return errors.New("down") }})
	w := do(r, http.MethodGet, "/healthz", "", nil, "")
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "down") {
		t.Fatalf("unhealthy: %d %s", w.Code, w.Body.String())
	}
}
