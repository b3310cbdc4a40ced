package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"parking-occupancy-backend/internal/report"
)

// parseBound reads an RFC 3339 timestamp or a bare date. A bare upper bound covers its whole day.
func parseBound(s string, upper bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return nil, err
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return &t, nil
}

// History handles GET /api/reports.
func (h *Handler) History(c *gin.Context) {
	from, err := parseBound(c.Query("from"), false)
	if err != nil {
		badRequest(c, "invalid 'from' date")
		return
	}
	to, err := parseBound(c.Query("to"), true)
	if err != nil {
		badRequest(c, "invalid 'to' date")
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit <= 0 {
			badRequest(c, "invalid limit")
			return
		}
	}

	rows, err := h.reports.History(c.Request.Context(), report.HistoryFilter{
		ZoneID: c.Query("zone"),
		From:   from,
		To:     to,
		Limit:  limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// Monthly handles GET /api/reports/monthly?year=.
func (h *Handler) Monthly(c *gin.Context) {
	year := time.Now().UTC().Year()
	if s := c.Query("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			badRequest(c, "invalid year")
			return
		}
		year = y
	}

	rows, err := h.reports.Monthly(c.Request.Context(), year)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "rows": rows})
}

// Yearly handles GET /api/reports/yearly.
func (h *Handler) Yearly(c *gin.Context) {
	rows, err := h.reports.Yearly(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

// Predictions handles GET /api/predictions.
func (h *Handler) Predictions(c *gin.Context) {
	preds, err := h.reports.Predictions(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, preds)
}
