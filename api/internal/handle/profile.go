package handle

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"nutriscan/api/internal/apperr"
	"nutriscan/api/internal/profile"
)

func (h *Handle) GetProfile(c *gin.Context) {
	p, err := h.profiles.Get(c.Request.Context(), userKey(c))
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		h.fail(c, err)
		return
	}
	resp := gin.H{"profile": p, "complete": p.Validate() == nil}
	if bmi, ok := p.BMI(); ok {
		resp["bmi"] = bmi
	}
	c.JSON(http.StatusOK, resp)
}

// PutProfile stores the profile. Incomplete profiles are stored too; they
// are rejected only when an analysis is requested.
func (h *Handle) PutProfile(c *gin.Context) {
	var p profile.Profile
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "bad json: " + err.Error()})
		return
	}
	if err := h.profiles.Put(c.Request.Context(), userKey(c), p); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "complete": p.Validate() == nil})
}
