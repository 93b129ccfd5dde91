package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription registers or replaces a browser push subscription for the caller.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sub := model.PushSubscription{
		Endpoint: req.Endpoint,
		UserID:   identity(c).UserID,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}
	if err := h.subs.SaveSubscription(c.Request.Context(), sub); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes one of the caller's subscriptions.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.subs.DeleteSubscription(c.Request.Context(), req.Endpoint, identity(c).UserID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetSubscription reports whether the endpoint is registered for the caller.
func (h *Handler) GetSubscription(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	sub, err := h.subs.GetSubscription(c.Request.Context(), endpoint)
	if err != nil {
		fail(c, err)
		return
	}
	if sub.UserID != identity(c).UserID {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"endpoint": sub.Endpoint, "createdAt": sub.CreatedAt})
}
