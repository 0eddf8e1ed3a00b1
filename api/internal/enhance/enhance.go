// Package enhance turns a detected barcode region into a clean black-and-white
// image that the symbol decoder has a better chance with.
package enhance

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const (
	upscaleBelow = 300 // px width
	blurSigma    = 1.0
)

// Preprocess runs grayscale, contrast stretch, optional upscale, blur and an
// Otsu threshold. The input is never modified; empty input is returned as is.
func Preprocess(img image.Image) image.Image {
	if img == nil || img.Bounds().Empty() {
		return img
	}

	g := imaging.Grayscale(img)
	stretchContrast(g)

	if w := g.Bounds().Dx(); w < upscaleBelow {
		g = imaging.Resize(g, w*2, 0, imaging.Lanczos)
	}
	g = imaging.Blur(g, blurSigma)

	return binarize(g, otsu(histogram(g)))
}

// stretchContrast maps the darkest pixel to 0 and the brightest to 255.
// g is grayscale, so only the R channel is inspected.
func stretchContrast(g *image.NRGBA) {
	lo, hi := uint8(255), uint8(0)
	for i := 0; i < len(g.Pix); i += 4 {
		v := g.Pix[i]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo {
		return
	}
	span := float64(hi - lo)
	for i := 0; i < len(g.Pix); i += 4 {
		v := uint8(float64(g.Pix[i]-lo) * 255 / span)
		g.Pix[i], g.Pix[i+1], g.Pix[i+2] = v, v, v
	}
}

func histogram(g *image.NRGBA) [256]int {
	var h [256]int
	for i := 0; i < len(g.Pix); i += 4 {
		h[g.Pix[i]]++
	}
	return h
}

// otsu picks the threshold that maximizes between-class variance.
func otsu(h [256]int) uint8 {
	total, sum := 0, 0.0
	for i, n := range h {
		total += n
		sum += float64(i * n)
	}
	if total == 0 {
		return 128
	}

	var (
		sumB, best float64
		wB         int
		threshold  uint8
	)
	for t := 0; t < 256; t++ {
		wB += h[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * h[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold
}

func binarize(g *image.NRGBA, t uint8) *image.Gray {
	b := g.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if g.NRGBAAt(x, y).R > t {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}
