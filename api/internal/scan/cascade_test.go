package scan

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync/atomic"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"

	"nutriscan/api/internal/barcode"
	"nutriscan/api/internal/detector"
	"nutriscan/api/internal/logging"
	"nutriscan/api/internal/ocr"
)

type decodeFunc func(img image.Image) ([]barcode.Symbol, error)

func (f decodeFunc) Decode(img image.Image) ([]barcode.Symbol, error) { return f(img) }

var nothing = decodeFunc(func(image.Image) ([]barcode.Symbol, error) { return nil, nil })

type fakeDetector struct {
	regions []detector.Region
	err     error
	calls   int32
}

func (d *fakeDetector) Detect(context.Context, image.Image) ([]detector.Region, error) {
	atomic.AddInt32(&d.calls, 1)
	return d.regions, d.err
}

type scriptedOCR struct {
	replies []string
	calls   int32
}

func (o *scriptedOCR) Name() string { return "scripted" }

func (o *scriptedOCR) Recognize(context.Context, []byte, ocr.Options) (string, error) {
	n := atomic.AddInt32(&o.calls, 1)
	if int(n) > len(o.replies) {
		return "", nil
	}
	return o.replies[n-1], nil
}

func photo(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.NRGBA{200, 190, 180, 255}}, image.Point{}, draw.Src)
	return img
}

func threeRegions() []detector.Region {
	return []detector.Region{
		{Box: image.Rect(10, 10, 60, 40), Confidence: 0.9},
		{Box: image.Rect(100, 20, 160, 60), Confidence: 0.7},
		{Box: image.Rect(200, 100, 280, 150), Confidence: 0.55},
	}
}

func newTestCascade(dec barcode.Decoder, det detector.Detector, eng ocr.Engine) *Cascade {
	return NewCascade(dec, det, eng, Options{}, logging.Discard())
}

func TestDirectDecodeOfCleanBarcode(t *testing.T) {
	bm, err := oned.NewCode128Writer().Encode("4006381333931", gozxing.BarcodeFormat_CODE_128, 400, 120, nil)
	if err != nil {
		t.Fatal(err)
	}
	img := photo(520, 240)
	draw.Draw(img, image.Rect(0, 0, 520, 240), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(60, 60, 460, 180), bm, image.Point{}, draw.Src)

	det := &fakeDetector{}
	out := newTestCascade(barcode.NewZXing(), det, nil).Run(context.Background(), img)

	if !out.Success || out.Strategy != StrategyDirect || out.Code != "4006381333931" {
		t.Fatalf("outcome = %+v", out)
	}
	if det.calls != 0 {
		t.Fatal("detector must not run after a direct hit")
	}
	if out.AnnotatedImage == "" {
		t.Fatal("missing annotated image")
	}
}

func TestNoRegionsIsFailure(t *testing.T) {
	out := newTestCascade(nothing, &fakeDetector{}, nil).Run(context.Background(), photo(320, 200))
	if out.Success || out.DetectionCount != 0 || out.Strategy != "" || out.Code != "" {
		t.Fatalf("outcome = %+v", out)
	}
	raw, err := base64.StdEncoding.DecodeString(out.AnnotatedImage)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(raw)); err != nil {
		t.Fatalf("annotated image is not jpeg: %v", err)
	}
}

func TestDetectorErrorIsFailure(t *testing.T) {
	det := &fakeDetector{err: context.DeadlineExceeded}
	out := newTestCascade(nothing, det, nil).Run(context.Background(), photo(320, 200))
	if out.Success || out.DetectionCount != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	last := out.Stages[len(out.Stages)-1]
	if last.Stage != "detect" || last.Status != StatusError {
		t.Fatalf("last stage = %+v", last)
	}
}

func TestRegionDecodeAfterPreprocessing(t *testing.T) {
	// only binarized crops decode
	dec := decodeFunc(func(img image.Image) ([]barcode.Symbol, error) {
		if _, ok := img.(*image.Gray); ok && img.Bounds().Dx() < 300 {
			return []barcode.Symbol{{Payload: "96385074"}}, nil
		}
		return nil, nil
	})
	o := &scriptedOCR{}
	out := newTestCascade(dec, &fakeDetector{regions: threeRegions()}, o).Run(context.Background(), photo(320, 200))
	if !out.Success || out.Strategy != StrategyDetectedDecode || out.Code != "96385074" {
		t.Fatalf("outcome = %+v", out)
	}
	if out.DetectionCount != 3 {
		t.Fatalf("detection count = %d", out.DetectionCount)
	}
	if o.calls != 0 {
		t.Fatal("optical stage must not run after a decode hit")
	}
}

func TestOpticalTriesEveryRegion(t *testing.T) {
	o := &scriptedOCR{replies: []string{"1234", "", "4 006381 333931"}}
	out := newTestCascade(nothing, &fakeDetector{regions: threeRegions()}, o).Run(context.Background(), photo(320, 200))
	if !out.Success || out.Strategy != StrategyDetectedOptical || out.Code != "4006381333931" {
		t.Fatalf("outcome = %+v", out)
	}
	if o.calls != 3 {
		t.Fatalf("ocr calls = %d, want 3", o.calls)
	}
}

func TestShortDigitRunsAreRejected(t *testing.T) {
	o := &scriptedOCR{replies: []string{"1234", "1234", "1234"}}
	out := newTestCascade(nothing, &fakeDetector{regions: threeRegions()}, o).Run(context.Background(), photo(320, 200))
	if out.Success {
		t.Fatalf("outcome = %+v", out)
	}
	if out.DetectionCount != 3 || o.calls != 3 {
		t.Fatalf("detections=%d ocr calls=%d", out.DetectionCount, o.calls)
	}
}

func TestFullFrameLastResort(t *testing.T) {
	dec := decodeFunc(func(img image.Image) ([]barcode.Symbol, error) {
		if _, ok := img.(*image.Gray); ok && img.Bounds().Dx() == 320 {
			return []barcode.Symbol{{Payload: "5000112637922"}}, nil
		}
		return nil, nil
	})
	regions := []detector.Region{{Box: image.Rect(10, 10, 40, 30), Confidence: 0.6}}
	out := newTestCascade(dec, &fakeDetector{regions: regions}, nil).Run(context.Background(), photo(320, 200))
	if !out.Success || out.Strategy != StrategyFullFrame {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestStagePanicsAreContained(t *testing.T) {
	var calls int32
	dec := decodeFunc(func(img image.Image) ([]barcode.Symbol, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("corrupt bitmap")
		}
		return nil, errors.New("reader exploded")
	})
	o := &scriptedOCR{replies: []string{"0012345678905"}}
	out := newTestCascade(dec, &fakeDetector{regions: threeRegions()[:1]}, o).Run(context.Background(), photo(320, 200))
	if !out.Success || out.Strategy != StrategyDetectedOptical {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Stages[0].Status != StatusError || out.Stages[0].Stage != "direct" {
		t.Fatalf("first stage = %+v", out.Stages[0])
	}
}

func TestRunDoesNotMutateInput(t *testing.T) {
	img := photo(320, 200)
	before := bytes.Clone(img.Pix)
	o := &scriptedOCR{}
	_ = newTestCascade(nothing, &fakeDetector{regions: threeRegions()}, o).Run(context.Background(), img)
	if !bytes.Equal(before, img.Pix) {
		t.Fatal("cascade modified the caller's image")
	}
}
