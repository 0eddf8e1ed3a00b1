package session

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"nutriscan/api/internal/advisory"
	"nutriscan/api/internal/apperr"
	"nutriscan/api/internal/product"
	"nutriscan/api/internal/profile"
	"nutriscan/api/internal/scan"
)

type fakeScanner struct {
	out   scan.Outcome
	panic bool
}

func (s fakeScanner) Run(context.Context, image.Image) scan.Outcome {
	if s.panic {
		panic("decoder exploded")
	}
	return s.out
}

type fakeProducts map[string]*product.Record

func (f fakeProducts) Lookup(_ context.Context, code string) (*product.Record, error) {
	return f[code], nil
}

type fakeAdvisor struct {
	calls int
	err   error
}

func (a *fakeAdvisor) Advise(context.Context, profile.Profile, *product.Record) (advisory.Record, error) {
	a.calls++
	if a.err != nil {
		return advisory.Record{}, a.err
	}
	return advisory.Record{Advisability: advisory.AdvisabilityYes, Summary: "Fine."}, nil
}

type memLog struct{ entries []LogEntry }

func (l *memLog) Add(_ context.Context, e LogEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

func ptr[T any](v T) *T { return &v }

func validProfile() profile.Profile {
	return profile.Profile{Age: ptr(30), WeightKg: ptr(70.0), HeightCm: ptr(175.0)}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(3, 3, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func cereal() *product.Record {
	n := product.NewNutrients()
	n.Set("sugars_100g", 31.0)
	n.Set("energy-kcal_100g", 389.0)
	n.Set("iron_100g", 0.008)
	return &product.Record{Barcode: "3017620422003", Name: "Choco Flakes", Nutrients: n}
}

type fixture struct {
	o       *Orchestrator
	advisor *fakeAdvisor
	log     *memLog
}

func newFixture(out scan.Outcome) fixture {
	adv := &fakeAdvisor{}
	l := &memLog{}
	o := New(Deps{
		Store:    NewMemoryStore(time.Hour),
		Scanner:  fakeScanner{out: out},
		Products: fakeProducts{"3017620422003": cereal(), "0000000000000": {Barcode: "0000000000000"}},
		Advisor:  adv,
		ScanLog:  l,
	}, nil)
	return fixture{o: o, advisor: adv, log: l}
}

var found = scan.Outcome{Success: true, Code: "3017620422003", Strategy: scan.StrategyDirect, AnnotatedImage: "aW1n"}

func TestScanAnalyzeResultFlow(t *testing.T) {
	f := newFixture(found)
	ctx := context.Background()

	if _, err := f.o.Scan(ctx, "u1", pngBytes(t)); err != nil {
		t.Fatal(err)
	}
	if got := f.o.Status("u1"); got != Scanned {
		t.Fatalf("status = %s", got)
	}
	if f.o.LastCode("u1") != found.Code {
		t.Fatal("last code not stored")
	}

	res, err := f.o.Analyze(ctx, "u1", validProfile(), "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Barcode != found.Code || res.ScanImage != "aW1n" || res.Warning != "" {
		t.Fatalf("res = %+v", res)
	}
	if len(res.Nutrients) != 2 || res.Nutrients[0].Label != "Energy (kcal)" || res.Nutrients[1].Label != "Sugar" {
		t.Fatalf("nutrients = %+v", res.Nutrients)
	}
	if f.o.Status("u1") != Analyzed || f.o.LastCode("u1") != "" {
		t.Fatal("analyze should clear the pending scan")
	}
	if len(f.log.entries) != 1 || f.log.entries[0].ProductName != "Choco Flakes" {
		t.Fatalf("scan log = %+v", f.log.entries)
	}

	if _, ok := f.o.Result("u1"); !ok {
		t.Fatal("first result read should succeed")
	}
	if _, ok := f.o.Result("u1"); ok {
		t.Fatal("second result read should report no results")
	}
	if f.o.Status("u1") != Idle {
		t.Fatalf("status = %s", f.o.Status("u1"))
	}
}

func TestAnalyzeInvalidProfileKeepsScanned(t *testing.T) {
	f := newFixture(found)
	ctx := context.Background()
	_, _ = f.o.Scan(ctx, "u1", pngBytes(t))

	p := validProfile()
	p.Age = ptr(0)
	_, err := f.o.Analyze(ctx, "u1", p, "")
	if !errors.Is(err, apperr.ErrProfileIncomplete) {
		t.Fatalf("err = %v", err)
	}
	if f.o.Status("u1") != Scanned || f.o.LastCode("u1") != found.Code {
		t.Fatal("session should stay Scanned")
	}
	if f.advisor.calls != 0 {
		t.Fatal("advisor must not be called")
	}
}

func TestAnalyzeWithoutCode(t *testing.T) {
	f := newFixture(found)
	if _, err := f.o.Analyze(context.Background(), "u1", validProfile(), "   "); !errors.Is(err, apperr.ErrNoCode) {
		t.Fatalf("err = %v", err)
	}
}

func TestAnalyzeManualCodeAndLimitedProduct(t *testing.T) {
	f := newFixture(found)
	res, err := f.o.Analyze(context.Background(), "u1", validProfile(), " 0000000000000 ")
	if err != nil {
		t.Fatal(err)
	}
	if res.Warning == "" || res.ScanImage != "" {
		t.Fatalf("res = %+v", res)
	}
}

func TestAnalyzeFailuresLeaveSessionUntouched(t *testing.T) {
	f := newFixture(found)
	ctx := context.Background()
	_, _ = f.o.Scan(ctx, "u1", pngBytes(t))

	if _, err := f.o.Analyze(ctx, "u1", validProfile(), "12345678"); !errors.Is(err, apperr.ErrProductNotFound) {
		t.Fatalf("err = %v", err)
	}
	f.advisor.err = &advisory.ParseError{Raw: "nope"}
	if _, err := f.o.Analyze(ctx, "u1", validProfile(), ""); !errors.Is(err, apperr.ErrParse) {
		t.Fatalf("err = %v", err)
	}
	if f.o.Status("u1") != Scanned || len(f.log.entries) != 0 {
		t.Fatal("failed analyses must not change state")
	}
}

func TestScanFailureLeavesIdle(t *testing.T) {
	f := newFixture(scan.Outcome{Success: false, Message: "No barcode regions detected"})
	out, err := f.o.Scan(context.Background(), "u1", pngBytes(t))
	if err != nil || out.Success {
		t.Fatalf("out = %+v, err = %v", out, err)
	}
	if f.o.Status("u1") != Idle {
		t.Fatal("status should stay idle")
	}

	if _, err := f.o.Scan(context.Background(), "u1", []byte("not an image")); !errors.Is(err, apperr.ErrInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestScanPanicIsContained(t *testing.T) {
	o := New(Deps{Store: NewMemoryStore(0), Scanner: fakeScanner{panic: true}}, nil)
	_, err := o.Scan(context.Background(), "u1", pngBytes(t))
	if !errors.Is(err, apperr.ErrInternal) {
		t.Fatalf("err = %v", err)
	}
	if o.Status("u1") != Idle {
		t.Fatal("panic must not change state")
	}
}

func TestClearIsIdempotent(t *testing.T) {
	f := newFixture(found)
	_, _ = f.o.Scan(context.Background(), "u1", pngBytes(t))
	f.o.Clear("u1")
	f.o.Clear("u1")
	if f.o.Status("u1") != Idle {
		t.Fatal("clear should reset to idle")
	}
}

func TestUsersAreIsolated(t *testing.T) {
	f := newFixture(found)
	_, _ = f.o.Scan(context.Background(), "u1", pngBytes(t))
	if f.o.Status("u2") != Idle {
		t.Fatal("u2 should be unaffected")
	}
}
