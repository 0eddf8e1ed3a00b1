// Package barcode finds and decodes 1D/2D symbols in raster images.
package barcode

import (
	"fmt"
	"image"
	"math"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Symbol is one decoded barcode.
type Symbol struct {
	Payload string
	Format  string
	Rect    image.Rectangle
}

// Decoder is the contract the scan cascade depends on.
type Decoder interface {
	Decode(img image.Image) ([]Symbol, error)
}

// ZXing decodes common retail formats (EAN/UPC, Code128, Code39, ITF) and QR.
type ZXing struct {
	hints map[gozxing.DecodeHintType]interface{}
}

func NewZXing() *ZXing {
	return &ZXing{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// readers are stateful, so a fresh set is built per call.
func (z *ZXing) readers() []gozxing.Reader {
	return []gozxing.Reader{
		oned.NewMultiFormatUPCEANReader(z.hints),
		oned.NewCode128Reader(),
		oned.NewCode39Reader(),
		oned.NewITFReader(),
		qrcode.NewQRCodeReader(),
	}
}

// Decode returns all symbols found, possibly none. A nil error with an empty
// slice means "nothing found"; errors are reserved for unusable input.
func (z *ZXing) Decode(img image.Image) (syms []Symbol, err error) {
	if img == nil || img.Bounds().Empty() {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			syms, err = nil, fmt.Errorf("barcode decoder panic: %v", r)
		}
	}()

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("binarize: %w", err)
	}

	seen := map[string]bool{}
	for _, rd := range z.readers() {
		res, err := rd.Decode(bmp, z.hints)
		if err != nil {
			// not found, checksum and format errors all mean "not this reader"
			continue
		}
		text := res.GetText()
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		syms = append(syms, Symbol{
			Payload: text,
			Format:  res.GetBarcodeFormat().String(),
			Rect:    symbolRect(res.GetResultPoints(), img.Bounds()),
		})
	}
	return syms, nil
}

// symbolRect turns zxing result points into a box. 1D readers report two
// points on one scan row, so a minimum height is added around them.
func symbolRect(pts []gozxing.ResultPoint, bounds image.Rectangle) image.Rectangle {
	if len(pts) == 0 {
		return bounds
	}
	minX, minY := math.MaxFloat64, math.MaxFloat64
	maxX, maxY := -math.MaxFloat64, -math.MaxFloat64
	for _, p := range pts {
		if p == nil {
			continue
		}
		minX = math.Min(minX, p.GetX())
		minY = math.Min(minY, p.GetY())
		maxX = math.Max(maxX, p.GetX())
		maxY = math.Max(maxY, p.GetY())
	}
	if minX > maxX {
		return bounds
	}
	r := image.Rect(int(minX), int(minY), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
	if r.Dy() < 8 {
		half := max(bounds.Dy()/10, 8)
		r.Min.Y -= half
		r.Max.Y += half
	}
	if r.Dx() < 8 {
		r.Min.X -= 4
		r.Max.X += 4
	}
	return r.Intersect(bounds)
}
