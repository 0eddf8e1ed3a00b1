// Package tesseract runs the local tesseract CLI as an OCR engine.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"nutriscan/api/internal/ocr"
)

type Engine struct {
	bin string
}

func New(bin string) *Engine {
	if bin == "" {
		bin = "tesseract"
	}
	return &Engine{bin: bin}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize writes the image to a temp file and reads a single text line back.
// Only digits are whitelisted, which is all the barcode fallback needs.
func (e *Engine) Recognize(ctx context.Context, image []byte, opt ocr.Options) (string, error) {
	f, err := os.CreateTemp("", "nutriscan-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(image); err != nil {
		f.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, e.bin, args(f.Name(), opt)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(string(out)), nil
}

func args(path string, opt ocr.Options) []string {
	a := []string{path, "stdout", "--psm", "7", "-c", "tessedit_char_whitelist=0123456789"}
	if len(opt.Langs) > 0 {
		a = append(a, "-l", strings.Join(opt.Langs, "+"))
	}
	return a
}
