package scan

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"nutriscan/api/internal/detector"
	"nutriscan/api/internal/raster"
)

// Box is a labelled rectangle to draw on the result image.
type Box struct {
	Rect  image.Rectangle
	Label string
}

var (
	boxColor   = color.NRGBA{R: 0, G: 200, B: 0, A: 255}
	labelColor = color.NRGBA{R: 0, G: 0, B: 0, A: 255}
)

const strokeWidth = 3

// Annotate draws boxes on a copy of img and returns it as base64 JPEG.
// Boxes are in img's coordinates; the copy starts at (0,0).
func Annotate(img image.Image, boxes []Box) (string, error) {
	dst := imaging.Clone(img)
	origin := img.Bounds().Min
	for _, b := range boxes {
		r := b.Rect.Sub(origin)
		drawRect(dst, r)
		if b.Label != "" {
			drawLabel(dst, r, b.Label)
		}
	}
	return raster.Base64JPEG(dst)
}

func regionBoxes(regions []detector.Region) []Box {
	boxes := make([]Box, 0, len(regions))
	for _, r := range regions {
		boxes = append(boxes, Box{Rect: r.Box, Label: fmt.Sprintf("Barcode %.2f", r.Confidence)})
	}
	return boxes
}

func drawRect(dst *image.NRGBA, r image.Rectangle) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	fill := func(rr image.Rectangle) {
		draw.Draw(dst, rr.Intersect(r), &image.Uniform{C: boxColor}, image.Point{}, draw.Src)
	}
	fill(image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+strokeWidth))
	fill(image.Rect(r.Min.X, r.Max.Y-strokeWidth, r.Max.X, r.Max.Y))
	fill(image.Rect(r.Min.X, r.Min.Y, r.Min.X+strokeWidth, r.Max.Y))
	fill(image.Rect(r.Max.X-strokeWidth, r.Min.Y, r.Max.X, r.Max.Y))
}

// drawLabel puts text on a filled strip just above the box, or inside it when
// the box touches the top edge.
func drawLabel(dst *image.NRGBA, r image.Rectangle, label string) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: dst, Src: &image.Uniform{C: labelColor}, Face: face}
	w := d.MeasureString(label).Ceil() + 4
	h := face.Height + 2

	top := r.Min.Y - h
	if top < dst.Bounds().Min.Y {
		top = r.Min.Y
	}
	strip := image.Rect(r.Min.X, top, r.Min.X+w, top+h).Intersect(dst.Bounds())
	draw.Draw(dst, strip, &image.Uniform{C: boxColor}, image.Point{}, draw.Src)

	d.Dot = fixed.P(strip.Min.X+2, strip.Min.Y+face.Ascent+1)
	d.DrawString(label)
}
