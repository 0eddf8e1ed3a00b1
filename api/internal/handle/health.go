package handle

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Health probes every configured dependency. Any failure answers 503.
func (h *Handle) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	for _, chk := range h.checks {
		if err := chk.Probe(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[chk.Name] = err.Error()
			continue
		}
		checks[chk.Name] = "ok"
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}
