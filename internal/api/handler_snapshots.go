package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func snapshotID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid snapshot id")
		return 0, false
	}
	return id, true
}

// ListSnapshots handles GET /api/snapshots.
func (h *Handler) ListSnapshots(c *gin.Context) {
	views, err := h.snapshots.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// CreateSnapshot handles POST /api/snapshots.
func (h *Handler) CreateSnapshot(c *gin.Context) {
	snap, err := h.snapshots.Capture(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate()
	c.JSON(http.StatusCreated, gin.H{
		"id":           snap.ID,
		"snapshotTime": snap.SnapshotTime,
		"recordsCount": snap.RecordsCount,
	})
}

// RestoreSnapshot handles POST /api/snapshots/:id/restore.
func (h *Handler) RestoreSnapshot(c *gin.Context) {
	id, ok := snapshotID(c)
	if !ok {
		return
	}
	res, err := h.snapshots.Restore(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate()
	c.JSON(http.StatusOK, gin.H{
		"snapshotId":       res.SnapshotID,
		"safetySnapshotId": res.SafetySnapshotID,
		"restoredCount":    res.RestoredCount(),
		"reactivatedZones": res.Reactivated,
		"restored":         res.Restored,
		"skipped":          res.Skipped,
	})
}

// DeleteSnapshot handles DELETE /api/snapshots/:id.
func (h *Handler) DeleteSnapshot(c *gin.Context) {
	id, ok := snapshotID(c)
	if !ok {
		return
	}
	if err := h.snapshots.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate()
	c.Status(http.StatusNoContent)
}
