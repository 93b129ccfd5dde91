package api

import (
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"attendance-backend/internal/apperr"
	"attendance-backend/internal/auth"
	"attendance-backend/internal/autocheckout"
	"attendance-backend/internal/leave"
	"attendance-backend/internal/mw"
	"attendance-backend/internal/report"
	"attendance-backend/internal/store"
	"attendance-backend/internal/timer"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	timer    *timer.Service
	presence *autocheckout.Service
	leave    *leave.Ledger
	reports  *report.Reporter
	subs     store.SubscriptionStore
	loc      *time.Location
	webpush  *webpush.Options
}

// Services bundles the core services the handlers delegate to.
type Services struct {
	Timer    *timer.Service
	Presence *autocheckout.Service
	Leave    *leave.Ledger
	Reports  *report.Reporter
	Subs     store.SubscriptionStore
	// Location interprets calendar dates in requests.
	Location *time.Location
}

// NewHandler creates a new API handler.
func NewHandler(s Services, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		timer:    s.Timer,
		presence: s.Presence,
		leave:    s.Leave,
		reports:  s.Reports,
		subs:     s.Subs,
		loc:      loc(s.Location),
		webpush:  webpushOptions,
	}
}

func loc(l *time.Location) *time.Location {
	if l == nil {
		return time.UTC
	}
	return l
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidState:
		return http.StatusConflict
	case apperr.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": msg}. Storage and unclassified failures are logged and hidden.
func fail(c *gin.Context, err error) {
	status := statusFor(apperr.KindOf(err))
	if status == http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func identity(c *gin.Context) auth.Identity {
	id, _ := mw.IdentityFrom(c)
	return id
}

// targetUser lets admins act on the user named by ?userId=; everyone else acts on themselves.
func targetUser(c *gin.Context) (string, bool) {
	id := identity(c)
	other := c.Query("userId")
	if other == "" || other == id.UserID {
		return id.UserID, true
	}
	if !id.IsAdmin() {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return "", false
	}
	return other, true
}
