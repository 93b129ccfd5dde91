package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/model"
	"attendance-backend/internal/parse"
	"attendance-backend/internal/timer"
)

type checkInRequest struct {
	ProjectID   string `json:"projectId"`
	Type        string `json:"type" binding:"required"`
	Description string `json:"description"`
}

// CheckIn handles POST /api/timer/checkin.
func (h *Handler) CheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.timer.CheckIn(c.Request.Context(), timer.CheckInRequest{
		UserID:      identity(c).UserID,
		ProjectID:   req.ProjectID,
		Kind:        model.SessionKind(req.Type),
		Description: req.Description,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type sessionRequest struct {
	CheckinID string `json:"checkinId" binding:"required"`
}

type checkOutRequest struct {
	CheckinID string `json:"checkinId" binding:"required"`
	// IsAutoCheckout is set by clients closing a session after detecting idleness.
	IsAutoCheckout bool `json:"isAutoCheckout"`
}

// CheckOut handles POST /api/timer/checkout.
func (h *Handler) CheckOut(c *gin.Context) {
	var req checkOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.timer.CheckOut(c.Request.Context(), identity(c).UserID, req.CheckinID, req.IsAutoCheckout)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CurrentSession handles GET /api/timer/current.
func (h *Handler) CurrentSession(c *gin.Context) {
	sess, err := h.timer.Current(c.Request.Context(), identity(c).UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// WorkingHours handles GET /api/timer/hours?start=&end=&userId=.
func (h *Handler) WorkingHours(c *gin.Context) {
	userID, ok := targetUser(c)
	if !ok {
		return
	}
	rng, err := parse.EpochRange(c.Query("start"), c.Query("end"))
	if err != nil {
		fail(c, err)
		return
	}
	summary, err := h.timer.Hours(c.Request.Context(), userID, rng)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Heartbeat handles POST /api/presence.
func (h *Handler) Heartbeat(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	hb, err := h.presence.Heartbeat(c.Request.Context(), identity(c).UserID, req.CheckinID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, hb)
}
