// Package raster loads uploaded photos into in-memory images and encodes them back for transport.
package raster

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"

	"nutriscan/api/internal/apperr"
)

// TransportQuality is the JPEG quality of images returned to clients.
const TransportQuality = 85

// Load decodes an image from bytes. EXIF orientation is applied so that
// phone photos come out upright.
func Load(b []byte) (*image.NRGBA, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("load image: empty input: %w", apperr.ErrInput)
	}
	img, err := imaging.Decode(bytes.NewReader(b), imaging.AutoOrientation(true))
	if err != nil {
		// некоторые камеры пишут мусор в EXIF; пробуем без него
		strict, err2 := tryDecodeStrict(b)
		if err2 != nil {
			return nil, fmt.Errorf("load image: %v: %w", err, apperr.ErrInput)
		}
		img = strict
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("load image: zero size: %w", apperr.ErrInput)
	}
	return imaging.Clone(img), nil
}

// LoadReader reads r fully and decodes it.
func LoadReader(r io.Reader) (*image.NRGBA, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read image: %v: %w", err, apperr.ErrInput)
	}
	return Load(b)
}

// LoadFile decodes the image at path.
func LoadFile(path string) (*image.NRGBA, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("load image %s: %w", path, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("load image %s: %v: %w", path, err, apperr.ErrInput)
	}
	return Load(b)
}

func tryDecodeStrict(b []byte) (image.Image, error) {
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8 {
		return jpeg.Decode(bytes.NewReader(b))
	}
	if len(b) >= 8 && b[0] == 0x89 && b[1] == 0x50 && b[2] == 0x4E && b[3] == 0x47 {
		return png.Decode(bytes.NewReader(b))
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	return img, err
}

// Crop copies r (clamped to the image bounds) into a new image.
// The source is never modified.
func Crop(img image.Image, r image.Rectangle) *image.NRGBA {
	return imaging.Crop(img, r.Intersect(img.Bounds()))
}

// Pad grows r by p pixels on every side, clamped to bounds.
func Pad(r image.Rectangle, p int, bounds image.Rectangle) image.Rectangle {
	return image.Rect(r.Min.X-p, r.Min.Y-p, r.Max.X+p, r.Max.Y+p).Intersect(bounds)
}

func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Base64JPEG encodes img for transport (JPEG q85, standard base64).
func Base64JPEG(img image.Image) (string, error) {
	b, err := EncodeJPEG(img, TransportQuality)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
