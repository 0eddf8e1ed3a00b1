// Package ocr reads printed digits under a barcode when the bars themselves
// cannot be decoded.
package ocr

import (
	"context"
	"strings"
	"unicode"
)

type Options struct {
	Langs []string
	Model string
}

// Engine recognizes text in an encoded image (JPEG or PNG).
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, opt Options) (string, error)
}

// MinDigits is the shortest digit run accepted as a product code.
const MinDigits = 8

// Digits keeps only ASCII digits from text.
func Digits(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AcceptCode returns the digit string of text if it is long enough to be a code.
func AcceptCode(text string) (string, bool) {
	d := Digits(text)
	if len(d) < MinDigits {
		return "", false
	}
	return d, true
}
