package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"nutriscan/api/internal/advisory"
	"nutriscan/api/internal/apperr"
	"nutriscan/api/internal/logging"
	"nutriscan/api/internal/product"
	"nutriscan/api/internal/profile"
	"nutriscan/api/internal/raster"
	"nutriscan/api/internal/scan"
)

const limitedWarning = "Product found but nutritional data is limited."

type Scanner interface {
	Run(ctx context.Context, img image.Image) scan.Outcome
}

type Advisor interface {
	Advise(ctx context.Context, p profile.Profile, rec *product.Record) (advisory.Record, error)
}

// LogEntry is one completed analysis.
type LogEntry struct {
	UserKey     string
	Barcode     string
	ProductName string
	Advisory    advisory.Record
}

// ScanLog records completed analyses. Failures are logged, not returned to the user.
type ScanLog interface {
	Add(ctx context.Context, e LogEntry) error
}

type Deps struct {
	Store    Store
	Scanner  Scanner
	Products product.Lookup
	Advisor  Advisor
	ScanLog  ScanLog // optional
	Labels   []product.Label
}

type Orchestrator struct {
	store    Store
	scanner  Scanner
	products product.Lookup
	advisor  Advisor
	scanLog  ScanLog
	labels   []product.Label
	log      *slog.Logger
	now      func() time.Time
}

func New(d Deps, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = logging.Discard()
	}
	if d.Labels == nil {
		d.Labels = product.ParseNutrientMap(product.DefaultNutrientMap)
	}
	return &Orchestrator{
		store:    d.Store,
		scanner:  d.Scanner,
		products: d.Products,
		advisor:  d.Advisor,
		scanLog:  d.ScanLog,
		labels:   d.Labels,
		log:      log,
		now:      time.Now,
	}
}

// recoverTo turns a panic into ErrInternal. The session is only written
// after every fallible step, so a panic leaves it untouched.
func (o *Orchestrator) recoverTo(op, user string, err *error) {
	if r := recover(); r != nil {
		o.log.Error("panic recovered", "op", op, "user", user, "panic", r, "stack", string(debug.Stack()))
		*err = fmt.Errorf("%s: %v: %w", op, r, apperr.ErrInternal)
	}
}

// Scan decodes a barcode from image bytes. A successful outcome moves the
// session to Scanned; a failed one leaves it as it was.
func (o *Orchestrator) Scan(ctx context.Context, user string, input []byte) (out scan.Outcome, err error) {
	defer o.recoverTo("scan", user, &err)

	img, err := raster.Load(input)
	if err != nil {
		return scan.Outcome{}, err
	}
	out = o.scanner.Run(ctx, img)
	if !out.Success {
		o.log.Info("scan found no code", "user", user, "detections", out.DetectionCount)
		return out, nil
	}

	st, _ := o.store.Get(user)
	st.PendingScan = &PendingScan{
		Code:           out.Code,
		Strategy:       out.Strategy,
		Image:          out.AnnotatedImage,
		DetectionCount: out.DetectionCount,
		ScannedAt:      o.now(),
	}
	st.LastCode = out.Code
	o.store.Put(user, st)
	o.log.Info("barcode stored", "user", user, "code", out.Code, "strategy", out.Strategy)
	return out, nil
}

// Analyze looks up the product for the manual code (or the pending scan),
// asks for an advisory and stores the result for a single Result call.
func (o *Orchestrator) Analyze(ctx context.Context, user string, p profile.Profile, manualCode string) (res *Result, err error) {
	defer o.recoverTo("analyze", user, &err)

	st, _ := o.store.Get(user)
	code := strings.TrimSpace(manualCode)
	if code == "" && st.PendingScan != nil {
		code = st.PendingScan.Code
	}
	if code == "" {
		return nil, apperr.ErrNoCode
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	rec, err := o.products.Lookup(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", code, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("barcode %s: %w", code, apperr.ErrProductNotFound)
	}

	adv, err := o.advisor.Advise(ctx, p, rec)
	if err != nil {
		return nil, err
	}

	res = &Result{
		Barcode:   code,
		Product:   rec,
		Advisory:  adv,
		Nutrients: o.nutrientLines(rec),
		CreatedAt: o.now(),
	}
	if rec.Limited() {
		res.Warning = limitedWarning
	}
	if st.PendingScan != nil {
		res.ScanImage = st.PendingScan.Image
	}

	// re-read so a concurrent Clear or Scan is not resurrected wholesale
	cur, _ := o.store.Get(user)
	cur.PendingResult = res
	cur.PendingScan = nil
	cur.LastCode = ""
	o.store.Put(user, cur)

	o.writeLog(ctx, user, res)
	o.log.Info("analysis complete", "user", user, "code", code, "advisability", adv.Advisability)
	return res, nil
}

func (o *Orchestrator) writeLog(ctx context.Context, user string, res *Result) {
	if o.scanLog == nil {
		return
	}
	e := LogEntry{UserKey: user, Barcode: res.Barcode, ProductName: res.Product.Name, Advisory: res.Advisory}
	if err := o.scanLog.Add(ctx, e); err != nil {
		o.log.Warn("scan log write failed", "user", user, "err", err)
	}
}

func (o *Orchestrator) nutrientLines(rec *product.Record) []NutrientLine {
	var out []NutrientLine
	for _, l := range o.labels {
		v, ok := rec.Nutrients.Get(l.Key + "_100g")
		if !ok {
			v, ok = rec.Nutrients.Get(l.Key)
		}
		if ok {
			out = append(out, NutrientLine{Key: l.Key, Label: l.Name, Value: v})
		}
	}
	return out
}

// Result pops the pending result: the second call reports ok=false.
func (o *Orchestrator) Result(user string) (*Result, bool) {
	st, ok := o.store.Get(user)
	if !ok || st.PendingResult == nil {
		return nil, false
	}
	res := st.PendingResult
	st.PendingResult = nil
	o.store.Put(user, st)
	return res, true
}

// Clear resets the session to Idle. Clearing an idle session is a no-op.
func (o *Orchestrator) Clear(user string) {
	o.store.Delete(user)
}

func (o *Orchestrator) Status(user string) Name {
	st, _ := o.store.Get(user)
	return st.Name()
}

// LastCode is the most recently scanned code not yet analyzed.
func (o *Orchestrator) LastCode(user string) string {
	st, _ := o.store.Get(user)
	return st.LastCode
}

// IsUserError reports whether err is something the user can fix.
func IsUserError(err error) bool {
	for _, target := range []error{apperr.ErrInput, apperr.ErrNoCode, apperr.ErrProfileIncomplete, apperr.ErrProductNotFound} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
