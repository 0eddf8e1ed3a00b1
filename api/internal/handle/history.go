package handle

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const historyLimit = 10

func (h *Handle) History(c *gin.Context) {
	limit := historyLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= 50 {
		limit = v
	}
	rows, err := h.history.Recent(c.Request.Context(), userKey(c), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scans": rows})
}
