package handle

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"nutriscan/api/internal/apperr"
	"nutriscan/api/internal/profile"
)

type analyzeRequest struct {
	ManualBarcode string           `json:"manual_barcode"`
	Profile       *profile.Profile `json:"profile"`
}

// Analyze runs lookup and advisory for the manual or last scanned code.
// A profile in the body takes precedence over the stored one.
func (h *Handle) Analyze(c *gin.Context) {
	var req analyzeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "bad json: " + err.Error()})
			return
		}
	}
	ctx := c.Request.Context()
	user := userKey(c)

	var p profile.Profile
	if req.Profile != nil {
		p = *req.Profile
	} else {
		stored, err := h.profiles.Get(ctx, user)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			h.fail(c, err)
			return
		}
		p = stored
	}

	res, err := h.orch.Analyze(ctx, user, p, req.ManualBarcode)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "barcode": res.Barcode, "warning": res.Warning})
}

// Result returns the analyzed product once.
func (h *Handle) Result(c *gin.Context) {
	res, ok := h.orch.Result(userKey(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "No results to display. Please scan a product first."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

func (h *Handle) Clear(c *gin.Context) {
	h.orch.Clear(userKey(c))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Scan session cleared"})
}

func (h *Handle) Status(c *gin.Context) {
	u := userKey(c)
	c.JSON(http.StatusOK, gin.H{"state": h.orch.Status(u), "last_code": h.orch.LastCode(u)})
}
