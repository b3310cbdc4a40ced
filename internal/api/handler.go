package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"parking-occupancy-backend/internal/auth"
	"parking-occupancy-backend/internal/mw"
	"parking-occupancy-backend/internal/occupancy"
	"parking-occupancy-backend/internal/report"
	"parking-occupancy-backend/internal/snapshot"
	"parking-occupancy-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	occupancy *occupancy.Engine
	snapshots *snapshot.Engine
	reports   *report.Service
	auth      *auth.Service
	cache     *mw.ResponseCache
	log       *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	occ *occupancy.Engine,
	snapshots *snapshot.Engine,
	reports *report.Service,
	authService *auth.Service,
	cache *mw.ResponseCache,
	log *zap.Logger,
) *Handler {
	return &Handler{
		occupancy: occ,
		snapshots: snapshots,
		reports:   reports,
		auth:      authService,
		cache:     cache,
		log:       log,
	}
}

// invalidate drops cached report responses after a write that changes snapshots or zones.
func (h *Handler) invalidate() {
	if h.cache != nil {
		h.cache.Flush()
	}
}

// fail maps an error kind onto an HTTP status. Internal details never leave the process.
func (h *Handler) fail(c *gin.Context, err error) {
	kind := store.Kind(err)

	var status int
	switch {
	case errors.Is(err, store.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrCapacity):
		status = http.StatusConflict
	default:
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("kind", kind),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "kind": kind})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "kind": kind})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "kind": "VALIDATION"})
}

// Health handles GET /api/health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
