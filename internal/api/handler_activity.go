package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/parse"
	"attendance-backend/internal/report"
)

// Activity handles GET /api/activity?timeframe=&from=&to=&search=&page=&limit=.
func (h *Handler) Activity(c *gin.Context) {
	tf, err := parse.Timeframe(c.Query("timeframe"))
	if err != nil {
		fail(c, err)
		return
	}
	rng, err := parse.DateRange(c.Query("from"), c.Query("to"), h.loc)
	if err != nil {
		fail(c, err)
		return
	}
	p, err := parse.ParsePagination(c.Query("page"), c.Query("limit"))
	if err != nil {
		fail(c, err)
		return
	}

	id := identity(c)
	act, err := h.reports.Activity(c.Request.Context(), report.Query{
		ViewerID:   id.UserID,
		Admin:      id.IsAdmin(),
		Timeframe:  tf,
		Range:      rng,
		Search:     c.Query("search"),
		Pagination: p,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, act)
}

// ActiveCounts handles GET /api/activity/counts.
func (h *Handler) ActiveCounts(c *gin.Context) {
	id := identity(c)
	counts, err := h.reports.ActiveCounts(c.Request.Context(), id.UserID, id.IsAdmin())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}
