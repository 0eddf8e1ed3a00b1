// Package handle exposes the scan and analysis flow over HTTP.
package handle

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"nutriscan/api/internal/apperr"
	"nutriscan/api/internal/logging"
	"nutriscan/api/internal/profile"
	"nutriscan/api/internal/session"
	"nutriscan/api/internal/store"
)

const userHeader = "X-User-ID"

type Profiles interface {
	Get(ctx context.Context, userKey string) (profile.Profile, error)
	Put(ctx context.Context, userKey string, p profile.Profile) error
}

type History interface {
	Recent(ctx context.Context, userKey string, limit int) ([]store.ScanRow, error)
}

// Check is one dependency probed by /healthz.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type Handle struct {
	orch     *session.Orchestrator
	profiles Profiles
	history  History
	checks   []Check
	maxBytes int64
	log      *slog.Logger
}

func New(orch *session.Orchestrator, profiles Profiles, history History, checks []Check, log *slog.Logger) *Handle {
	if log == nil {
		log = logging.Discard()
	}
	return &Handle{
		orch:     orch,
		profiles: profiles,
		history:  history,
		checks:   checks,
		maxBytes: 15 << 20,
		log:      log,
	}
}

// Router wires every endpoint on a fresh gin engine.
func (h *Handle) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLog())
	r.GET("/healthz", h.Health)

	v1 := r.Group("/v1", requireUser)
	v1.POST("/scan", h.Scan)
	v1.POST("/analyze", h.Analyze)
	v1.GET("/result", h.Result)
	v1.POST("/clear", h.Clear)
	v1.GET("/status", h.Status)
	v1.GET("/history", h.History)
	v1.GET("/profile", h.GetProfile)
	v1.PUT("/profile", h.PutProfile)
	return r
}

func (h *Handle) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		h.log.Debug("http", "method", c.Request.Method, "path", c.FullPath(), "status", c.Writer.Status())
	}
}

func requireUser(c *gin.Context) {
	u := strings.TrimSpace(c.GetHeader(userHeader))
	if u == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": userHeader + " header is required"})
		return
	}
	c.Set("user", u)
	c.Next()
}

func userKey(c *gin.Context) string { return c.GetString("user") }

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrInput), errors.Is(err, apperr.ErrNoCode):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrProfileIncomplete):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrProductNotFound), errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperr.ErrTransient), errors.Is(err, apperr.ErrParse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handle) fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= 500 {
		h.log.Error("request failed", "path", c.FullPath(), "user", userKey(c), "err", err)
	} else {
		h.log.Info("request rejected", "path", c.FullPath(), "user", userKey(c), "err", err)
	}
	c.JSON(code, gin.H{"success": false, "message": apperr.UserMessage(err)})
}
