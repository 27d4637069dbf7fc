package server

import (
	"net/http"

	usagedomain "github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/internal/usage/domain"
	"github.com/FranciscoHamilton/hamilton-cv-polisher-sub000/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

// ListUsage serves the reporting feed of completed polish operations.
func (s *Server) ListUsage(c *gin.Context) {
	var query struct {
		pagination.Pagination
		UserID string `form:"user_id"`
		OrgID  string `form:"org_id"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	req := usagedomain.ListRequest{Pagination: query.Pagination}
	if query.UserID != "" {
		id, err := parseID(query.UserID)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.UserID = id
	}
	if query.OrgID != "" {
		id, err := parseID(query.OrgID)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.OrgID = id
	}

	resp, err := s.usageRec.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListAuditLogs serves the admin action trail.
func (s *Server) ListAuditLogs(c *gin.Context) {
	var query struct {
		Action string `form:"action"`
		Limit  int    `form:"limit,default=50"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	logs, err := s.auditSvc.List(c.Request.Context(), query.Action, query.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": logs})
}
