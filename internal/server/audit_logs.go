package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/membership/internal/audit/domain"
	"github.com/smallbiznis/membership/internal/role"
)

type listAuditLogsQuery struct {
	PageToken  string `form:"page_token"`
	PageSize   string `form:"page_size"`
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
	ActorType  string `form:"actor_type"`
	StartAt    string `form:"start_at"`
	EndAt      string `form:"end_at"`
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	orgID, err := pathSnowflake(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	withOrgScope(c, orgID)

	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	pageSize, err := parseOptionalInt64(query.PageSize)
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page_size"))
		return
	}
	startAt, err := parseOptionalTime(query.StartAt, false)
	if err != nil {
		AbortWithError(c, newValidationError("start_at", "invalid_start_at", "invalid start_at"))
		return
	}
	endAt, err := parseOptionalTime(query.EndAt, true)
	if err != nil {
		AbortWithError(c, newValidationError("end_at", "invalid_end_at", "invalid end_at"))
		return
	}

	ctx := c.Request.Context()
	if err := s.guard.Require(ctx, userID, orgID, role.AdminViewAnalytics); err != nil {
		AbortWithError(c, err)
		return
	}

	req := auditdomain.ListAuditLogRequest{
		OrgID:      orgID,
		PageToken:  strings.TrimSpace(query.PageToken),
		Action:     strings.TrimSpace(query.Action),
		TargetType: strings.TrimSpace(query.TargetType),
		TargetID:   strings.TrimSpace(query.TargetID),
		ActorType:  strings.TrimSpace(query.ActorType),
		StartAt:    startAt,
		EndAt:      endAt,
	}
	if pageSize != nil {
		req.PageSize = int(*pageSize)
	}

	resp, err := s.auditSvc.List(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": resp.AuditLogs,
		"page_info": gin.H{
			"next_page_token": resp.NextPageToken,
			"has_more":        resp.HasMore,
		},
	})
}
