// Package apperr holds the error kinds shared by the scan and advisory pipelines.
// Callers wrap them with fmt.Errorf("...: %w", ...) and classify with errors.Is.
package apperr

import "errors"

var (
	ErrInput             = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrModelUnavailable  = errors.New("model unavailable")
	ErrTransient         = errors.New("transient call failure")
	ErrParse             = errors.New("parse failure")
	ErrProfileIncomplete = errors.New("profile incomplete")
	ErrNoCode            = errors.New("no barcode available")
	ErrProductNotFound   = errors.New("product not found")
	ErrInternal          = errors.New("internal error")
)

// UserMessage renders err as a sentence that is safe to show to an end user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoCode):
		return "No barcode found. Please scan a product or enter the barcode manually."
	case errors.Is(err, ErrProfileIncomplete):
		return "Please complete your profile (age, weight and height) before analysis."
	case errors.Is(err, ErrProductNotFound):
		return "Product not found in the database. Please check the barcode and try again."
	case errors.Is(err, ErrModelUnavailable):
		return "The analysis model is not available right now."
	case errors.Is(err, ErrTransient):
		return "The analysis service did not respond. Please try again later."
	case errors.Is(err, ErrParse):
		return "Could not understand the analysis result. Please try again."
	case errors.Is(err, ErrInput):
		return "The uploaded file could not be read as an image."
	case errors.Is(err, ErrNotFound):
		return "Requested resource was not found."
	default:
		return "Something went wrong. Please try again."
	}
}
