package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-occupancy-backend/internal/occupancy"
)

type enterRequest struct {
	Vehicle string `json:"vehicle" binding:"required"`
	Type    string `json:"type" binding:"required"`
	Zone    string `json:"zone"`
}

// Enter handles POST /api/enter.
func (h *Handler) Enter(c *gin.Context) {
	var req enterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "vehicle and type are required")
		return
	}

	res, err := h.occupancy.Enter(c.Request.Context(), occupancy.EnterRequest{
		Plate:  req.Vehicle,
		Type:   req.Type,
		ZoneID: req.Zone,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate()
	c.JSON(http.StatusCreated, res)
}

type exitRequest struct {
	TicketCode string `json:"ticketCode" binding:"required"`
}

// Exit handles POST /api/exit.
func (h *Handler) Exit(c *gin.Context) {
	var req exitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "ticketCode is required")
		return
	}

	res, err := h.occupancy.Exit(c.Request.Context(), req.TicketCode)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.invalidate()
	c.JSON(http.StatusOK, res)
}

// Search handles GET /api/search?q=.
func (h *Handler) Search(c *gin.Context) {
	res, err := h.occupancy.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
