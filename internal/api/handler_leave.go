package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/leave"
	"attendance-backend/internal/parse"
)

type applyLeaveRequest struct {
	StartDate    string `json:"startDate" binding:"required"`
	EndDate      string `json:"endDate" binding:"required"`
	NumberOfDays int    `json:"numberOfDays"`
	LeaveType    string `json:"leaveType" binding:"required"`
	Reason       string `json:"reason"`
}

// ApplyLeave handles POST /api/leaves.
func (h *Handler) ApplyLeave(c *gin.Context) {
	var req applyLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	start, err := parse.Date(req.StartDate, h.loc)
	if err != nil {
		fail(c, err)
		return
	}
	end, err := parse.Date(req.EndDate, h.loc)
	if err != nil {
		fail(c, err)
		return
	}
	res, err := h.leave.Apply(c.Request.Context(), leave.ApplyRequest{
		UserID:       identity(c).UserID,
		StartDate:    start,
		EndDate:      end,
		NumberOfDays: req.NumberOfDays,
		LeaveType:    req.LeaveType,
		Reason:       req.Reason,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ApproveLeave handles POST /api/leaves/:id/approve.
func (h *Handler) ApproveLeave(c *gin.Context) {
	lr, err := h.leave.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lr)
}

// RejectLeave handles POST /api/leaves/:id/reject.
func (h *Handler) RejectLeave(c *gin.Context) {
	lr, err := h.leave.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lr)
}

// ListLeaves handles GET /api/leaves?name=&status=&page=&limit=. Non-admins only see their own.
func (h *Handler) ListLeaves(c *gin.Context) {
	p, err := parse.ParsePagination(c.Query("page"), c.Query("limit"))
	if err != nil {
		fail(c, err)
		return
	}
	status, err := parse.LeaveStatus(c.Query("status"))
	if err != nil {
		fail(c, err)
		return
	}
	req := leave.ListRequest{Name: c.Query("name"), Status: status, Pagination: p}
	if id := identity(c); !id.IsAdmin() {
		req.UserID = id.UserID
	} else {
		req.UserID = c.Query("userId")
	}
	page, err := h.leave.List(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// LeaveBalance handles GET /api/leaves/balance?userId=.
func (h *Handler) LeaveBalance(c *gin.Context) {
	userID, ok := targetUser(c)
	if !ok {
		return
	}
	bal, err := h.leave.Balance(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

// GrantLeave handles POST /api/admin/leaves/grant.
func (h *Handler) GrantLeave(c *gin.Context) {
	n, err := h.leave.GrantToAll(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"granted": n})
}
