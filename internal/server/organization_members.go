package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/membership/internal/role"
)

type updateMemberRoleRequest struct {
	Role string `json:"role"`
}

type updateMemberStatusRequest struct {
	IsActive *bool `json:"is_active"`
}

func (s *Server) ListMembers(c *gin.Context) {
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

	members, err := s.organizationSvc.ListMembers(c.Request.Context(), orgID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": members})
}

func (s *Server) UpdateMemberRole(c *gin.Context) {
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
	memberID, err := pathSnowflake(c, "memberId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	withOrgScope(c, orgID)

	var req updateMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.organizationSvc.UpdateMemberRole(c.Request.Context(), orgID, memberID, userID, role.Role(strings.TrimSpace(req.Role)))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": member})
}

func (s *Server) UpdateMemberStatus(c *gin.Context) {
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
	memberID, err := pathSnowflake(c, "memberId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	withOrgScope(c, orgID)

	var req updateMemberStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		AbortWithError(c, newValidationError("is_active", "invalid_is_active", "is_active is required"))
		return
	}

	member, err := s.organizationSvc.UpdateMemberStatus(c.Request.Context(), orgID, memberID, userID, *req.IsActive)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": member})
}

func (s *Server) RemoveMember(c *gin.Context) {
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
	memberID, err := pathSnowflake(c, "memberId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	withOrgScope(c, orgID)

	if err := s.organizationSvc.RemoveMember(c.Request.Context(), orgID, memberID, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
