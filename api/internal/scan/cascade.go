// Package scan runs the barcode recognition cascade over an uploaded photo.
package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"nutriscan/api/internal/barcode"
	"nutriscan/api/internal/detector"
	"nutriscan/api/internal/enhance"
	"nutriscan/api/internal/logging"
	"nutriscan/api/internal/ocr"
	"nutriscan/api/internal/raster"
)

type Strategy string

const (
	StrategyDirect          Strategy = "direct"
	StrategyDetectedDecode  Strategy = "detected+decode"
	StrategyDetectedOptical Strategy = "detected+optical"
	StrategyFullFrame       Strategy = "fullframe+preprocessed"
)

type Status string

const (
	StatusFound Status = "found"
	StatusEmpty Status = "empty"
	StatusError Status = "error"
)

// StageResult records what one attempt of the cascade produced.
type StageResult struct {
	Stage  string `json:"stage"`
	Region int    `json:"region"` // -1 for full-frame stages
	Status Status `json:"status"`
	Code   string `json:"code,omitempty"`
	Err    string `json:"error,omitempty"`
}

// Outcome is the single result of one Run.
type Outcome struct {
	Success        bool          `json:"success"`
	Code           string        `json:"barcode,omitempty"`
	Strategy       Strategy      `json:"strategy,omitempty"`
	DetectionCount int           `json:"detection_count"`
	AnnotatedImage string        `json:"annotated_image,omitempty"` // base64 JPEG
	Message        string        `json:"message"`
	Stages         []StageResult `json:"stages"`
}

type Options struct {
	Padding       int
	DetectTimeout time.Duration
	OCRTimeout    time.Duration
	OCRLangs      []string
}

func (o Options) withDefaults() Options {
	if o.Padding <= 0 {
		o.Padding = 10
	}
	if o.DetectTimeout <= 0 {
		o.DetectTimeout = 20 * time.Second
	}
	if o.OCRTimeout <= 0 {
		o.OCRTimeout = 15 * time.Second
	}
	return o
}

// Cascade holds the collaborators of the recognition pipeline. ocrEngine may
// be nil, in which case the optical stage reports empty for every region.
type Cascade struct {
	decoder    barcode.Decoder
	detector   detector.Detector
	ocrEngine  ocr.Engine
	preprocess func(image.Image) image.Image
	opt        Options
	log        *slog.Logger
}

func NewCascade(dec barcode.Decoder, det detector.Detector, eng ocr.Engine, opt Options, log *slog.Logger) *Cascade {
	if log == nil {
		log = logging.Discard()
	}
	return &Cascade{
		decoder:    dec,
		detector:   det,
		ocrEngine:  eng,
		preprocess: enhance.Preprocess,
		opt:        opt.withDefaults(),
		log:        log,
	}
}

type run struct {
	c      *Cascade
	img    image.Image
	stages []StageResult
}

// Run tries each strategy in order and stops at the first code found.
// img is read-only for the whole run.
func (c *Cascade) Run(ctx context.Context, img image.Image) Outcome {
	r := &run{c: c, img: img}

	// 1. direct
	if syms := r.decode("direct", -1, img); len(syms) > 0 {
		boxes := make([]Box, 0, len(syms))
		for _, s := range syms {
			boxes = append(boxes, Box{Rect: s.Rect, Label: "Direct"})
		}
		return r.success(syms[0].Payload, StrategyDirect, 0, boxes)
	}

	// 2. detection
	regions, err := r.detect(ctx)
	if err != nil {
		return r.failure(0, nil, "Barcode detection is unavailable right now. Please try again.")
	}
	if len(regions) == 0 {
		return r.failure(0, nil, "No barcode detected. Please try a clearer photo.")
	}
	boxes := regionBoxes(regions)
	n := len(regions)

	// 3. preprocess + decode per region
	crops := make([]*image.NRGBA, n)
	for i, reg := range regions {
		crops[i] = raster.Crop(img, raster.Pad(reg.Box, c.opt.Padding, img.Bounds()))
		if pre, ok := r.preprocessStage(i, crops[i]); ok {
			if syms := r.decode("region-preprocessed", i, pre); len(syms) > 0 {
				return r.success(syms[0].Payload, StrategyDetectedDecode, n, boxes)
			}
		}
		if syms := r.decode("region-raw", i, crops[i]); len(syms) > 0 {
			return r.success(syms[0].Payload, StrategyDetectedDecode, n, boxes)
		}
	}

	// 4. optical digits per region
	for i := range regions {
		if code, ok := r.optical(ctx, i, crops[i]); ok {
			return r.success(code, StrategyDetectedOptical, n, boxes)
		}
	}

	// 5. last resort on the whole frame
	if pre, ok := r.preprocessStage(-1, img); ok {
		if syms := r.decode("fullframe-preprocessed", -1, pre); len(syms) > 0 {
			return r.success(syms[0].Payload, StrategyFullFrame, n, boxes)
		}
	}

	return r.failure(n, boxes, "Barcode detected but could not be decoded. Try a closer, sharper photo or enter the code manually.")
}

func (r *run) record(s StageResult) {
	r.stages = append(r.stages, s)
	if s.Status == StatusError {
		r.c.log.Debug("scan stage failed", "stage", s.Stage, "region", s.Region, "err", s.Err)
	}
}

// guard turns a panic inside a stage into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

func (r *run) decode(stage string, region int, img image.Image) []barcode.Symbol {
	var syms []barcode.Symbol
	err := guard(func() error {
		var err error
		syms, err = r.c.decoder.Decode(img)
		return err
	})
	switch {
	case err != nil:
		r.record(StageResult{Stage: stage, Region: region, Status: StatusError, Err: err.Error()})
		return nil
	case len(syms) == 0:
		r.record(StageResult{Stage: stage, Region: region, Status: StatusEmpty})
		return nil
	}
	r.record(StageResult{Stage: stage, Region: region, Status: StatusFound, Code: syms[0].Payload})
	return syms
}

func (r *run) detect(ctx context.Context) ([]detector.Region, error) {
	ctx, cancel := context.WithTimeout(ctx, r.c.opt.DetectTimeout)
	defer cancel()

	var regions []detector.Region
	err := guard(func() error {
		if r.c.detector == nil {
			return errors.New("detector not configured")
		}
		var err error
		regions, err = r.c.detector.Detect(ctx, r.img)
		return err
	})
	if err != nil {
		r.c.log.Warn("region detection failed", "err", err)
		r.record(StageResult{Stage: "detect", Region: -1, Status: StatusError, Err: err.Error()})
		return nil, err
	}
	st := StatusFound
	if len(regions) == 0 {
		st = StatusEmpty
	}
	r.record(StageResult{Stage: "detect", Region: -1, Status: st})
	return regions, nil
}

func (r *run) preprocessStage(region int, img image.Image) (image.Image, bool) {
	var out image.Image
	err := guard(func() error {
		out = r.c.preprocess(img)
		return nil
	})
	if err != nil || out == nil {
		msg := "empty output"
		if err != nil {
			msg = err.Error()
		}
		r.record(StageResult{Stage: "preprocess", Region: region, Status: StatusError, Err: msg})
		return nil, false
	}
	return out, true
}

func (r *run) optical(ctx context.Context, region int, crop image.Image) (string, bool) {
	if r.c.ocrEngine == nil {
		r.record(StageResult{Stage: "optical", Region: region, Status: StatusEmpty, Err: "no ocr engine"})
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, r.c.opt.OCRTimeout)
	defer cancel()

	var text string
	err := guard(func() error {
		png, err := raster.EncodePNG(crop)
		if err != nil {
			return err
		}
		text, err = r.c.ocrEngine.Recognize(ctx, png, ocr.Options{Langs: r.c.opt.OCRLangs})
		return err
	})
	if err != nil {
		r.record(StageResult{Stage: "optical", Region: region, Status: StatusError, Err: err.Error()})
		return "", false
	}
	code, ok := ocr.AcceptCode(text)
	if !ok {
		r.record(StageResult{Stage: "optical", Region: region, Status: StatusEmpty})
		return "", false
	}
	r.record(StageResult{Stage: "optical", Region: region, Status: StatusFound, Code: code})
	return code, true
}

func (r *run) success(code string, s Strategy, detections int, boxes []Box) Outcome {
	out := Outcome{
		Success:        true,
		Code:           code,
		Strategy:       s,
		DetectionCount: detections,
		Message:        fmt.Sprintf("Barcode %s recognized.", code),
		Stages:         r.stages,
	}
	out.AnnotatedImage = r.annotate(boxes)
	r.c.log.Info("barcode recognized", "code", code, "strategy", s, "detections", detections)
	return out
}

func (r *run) failure(detections int, boxes []Box, msg string) Outcome {
	r.c.log.Info("barcode not recognized", "detections", detections, "stages", len(r.stages))
	return Outcome{
		DetectionCount: detections,
		AnnotatedImage: r.annotate(boxes),
		Message:        msg,
		Stages:         r.stages,
	}
}

func (r *run) annotate(boxes []Box) string {
	var b64 string
	err := guard(func() error {
		var err error
		b64, err = Annotate(r.img, boxes)
		return err
	})
	if err != nil {
		r.c.log.Warn("annotate failed", "err", err)
		return ""
	}
	return b64
}
