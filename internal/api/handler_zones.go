package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"parking-occupancy-backend/internal/occupancy"
	"parking-occupancy-backend/internal/report"
)

// ListZones handles GET /api/zones.
func (h *Handler) ListZones(c *gin.Context) {
	all, _ := strconv.ParseBool(c.Query("all"))
	zones, err := h.reports.ListZones(c.Request.Context(), all)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, zones)
}

// ZoneVehicles handles GET /api/zones/:zone_id/vehicles.
func (h *Handler) ZoneVehicles(c *gin.Context) {
	vehicles, err := h.reports.ZoneVehicles(c.Request.Context(), c.Param("zone_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, vehicles)
}

type createZoneRequest struct {
	Name   string            `json:"name" binding:"required"`
	Limits *occupancy.Limits `json:"limits" binding:"required"`
}

// CreateZone handles POST /api/admin/zones.
func (h *Handler) CreateZone(c *gin.Context) {
	var req createZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name and limits are required")
		return
	}

	zone, err := h.occupancy.CreateZone(c.Request.Context(), req.Name, *req.Limits)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate()
	c.JSON(http.StatusCreated, report.NewZoneView(zone))
}

type updateZoneRequest struct {
	Name   *string           `json:"name"`
	Limits *occupancy.Limits `json:"limits"`
}

// UpdateZone handles PUT /api/admin/zones/:zone_id.
func (h *Handler) UpdateZone(c *gin.Context) {
	var req updateZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if req.Name == nil && req.Limits == nil {
		badRequest(c, "nothing to update")
		return
	}

	zone, err := h.occupancy.UpdateZone(c.Request.Context(), c.Param("zone_id"), occupancy.ZoneUpdate{
		Name:   req.Name,
		Limits: req.Limits,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate()
	c.JSON(http.StatusOK, report.NewZoneView(zone))
}

// DeactivateZone handles DELETE /api/admin/zones/:zone_id.
func (h *Handler) DeactivateZone(c *gin.Context) {
	zoneID := c.Param("zone_id")
	if err := h.occupancy.DeactivateZone(c.Request.Context(), zoneID); err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate()
	c.JSON(http.StatusOK, gin.H{"zone": zoneID, "status": "INACTIVE"})
}

// Audit handles GET /api/admin/audit.
func (h *Handler) Audit(c *gin.Context) {
	rep, err := h.reports.Audit(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}
