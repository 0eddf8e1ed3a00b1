package handle

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"nutriscan/api/internal/apperr"
	"nutriscan/api/internal/util"
)

type scanJSON struct {
	Image string `json:"image"` // base64 or data:URI
}

// Scan accepts a multipart "image" file, or a JSON body with a base64
// image, and runs the decode cascade.
func (h *Handle) Scan(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	data, err := readImage(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	out, err := h.orch.Scan(c.Request.Context(), userKey(c), data)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          out.Success,
		"barcode_data":     out.Code,
		"strategy":         out.Strategy,
		"detection_count":  out.DetectionCount,
		"image_with_boxes": out.AnnotatedImage,
		"message":          out.Message,
	})
}

func readImage(c *gin.Context) ([]byte, error) {
	if c.ContentType() == "application/json" {
		var in scanJSON
		if err := c.ShouldBindJSON(&in); err != nil || in.Image == "" {
			return nil, fmt.Errorf("image field missing: %w", apperr.ErrInput)
		}
		data, _, err := util.DecodeBase64MaybeDataURL(in.Image)
		if err != nil {
			return nil, fmt.Errorf("image base64: %v: %w", err, apperr.ErrInput)
		}
		return data, nil
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		return nil, fmt.Errorf("image field: %v: %w", err, apperr.ErrInput)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %v: %w", err, apperr.ErrInput)
	}
	return data, nil
}
