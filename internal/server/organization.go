package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/membership/internal/organization/domain"
	"github.com/smallbiznis/membership/internal/role"
)

type createOrganizationRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Website     string `json:"website"`
	Logo        string `json:"logo"`
}

type ensureOrganizationRequest struct {
	Name string `json:"name"`
}

func (s *Server) CreateOrganization(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.organizationSvc.Create(c.Request.Context(), userID, organizationdomain.CreateOrganizationRequest{
		Name:        strings.TrimSpace(req.Name),
		Slug:        strings.TrimSpace(req.Slug),
		Description: strings.TrimSpace(req.Description),
		Website:     strings.TrimSpace(req.Website),
		Logo:        strings.TrimSpace(req.Logo),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": org})
}

func (s *Server) GetMyOrganization(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.organizationSvc.GetUserOrganization(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp == nil {
		AbortWithError(c, organizationdomain.ErrOrganizationNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// EnsureMyOrganization is the post-login hook: it returns the caller's
// organization, creating a personal one on first sign-in. A plan claim on
// the token decides the new organization's plan.
func (s *Server) EnsureMyOrganization(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req ensureOrganizationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	org, err := s.organizationSvc.EnsureOrganizationForUser(c.Request.Context(), userID, organizationdomain.EnsureContext{
		Email: currentUserEmail(c),
		Name:  strings.TrimSpace(req.Name),
		Plan:  currentUserPlan(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": org})
}

func (s *Server) GetOrganization(c *gin.Context) {
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

	ctx := c.Request.Context()
	org, err := s.organizationSvc.GetByID(ctx, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.guard.Require(ctx, userID, orgID, role.MemberView); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": org})
}

func (s *Server) UpdateOrganization(c *gin.Context) {
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

	var req organizationdomain.UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.organizationSvc.Update(c.Request.Context(), orgID, userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": org})
}

func (s *Server) GetOrganizationSettings(c *gin.Context) {
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

	settings, err := s.organizationSvc.GetSettings(c.Request.Context(), orgID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settings})
}

func (s *Server) UpdateOrganizationSettings(c *gin.Context) {
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

	var req organizationdomain.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	settings, err := s.organizationSvc.UpdateSettings(c.Request.Context(), orgID, userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": settings})
}
