package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/membership/internal/organization/domain"
	"github.com/smallbiznis/membership/internal/role"
)

type inviteMemberRequest struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	Name      string `json:"name"`
	Message   string `json:"message"`
	SendEmail *bool  `json:"send_email"`
}

type acceptInvitationRequest struct {
	Token   string `json:"token"`
	OtpCode string `json:"otp_code"`
}

type declineInvitationRequest struct {
	Token string `json:"token"`
}

func (s *Server) ListInvitations(c *gin.Context) {
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

	invitations, err := s.organizationSvc.ListInvitations(c.Request.Context(), orgID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invitations})
}

func (s *Server) InviteMember(c *gin.Context) {
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

	var req inviteMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invitation, err := s.organizationSvc.InviteMember(c.Request.Context(), orgID, userID, organizationdomain.InviteRequest{
		Email:     strings.TrimSpace(req.Email),
		Role:      role.Role(strings.TrimSpace(req.Role)),
		Name:      strings.TrimSpace(req.Name),
		Message:   strings.TrimSpace(req.Message),
		SendEmail: req.SendEmail,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invitation})
}

// AcceptInvitation runs both phases of the join flow. Without a code it
// answers 202 once an OTP has been sent; with a code it answers 200 with
// the new membership.
func (s *Server) AcceptInvitation(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req acceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.organizationSvc.AcceptInvitation(c.Request.Context(), organizationdomain.AcceptInvitationRequest{
		UserID:  userID,
		Email:   currentUserEmail(c),
		Token:   strings.TrimSpace(req.Token),
		OtpCode: strings.TrimSpace(req.OtpCode),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if resp.OtpSent {
		status = http.StatusAccepted
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) DeclineInvitation(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req declineInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.organizationSvc.DeclineInvitation(c.Request.Context(), organizationdomain.DeclineInvitationRequest{
		UserID: userID,
		Email:  currentUserEmail(c),
		Token:  strings.TrimSpace(req.Token),
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ResendInvitation(c *gin.Context) {
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
	invitationID, err := pathSnowflake(c, "invitationId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	withOrgScope(c, orgID)

	invitation, err := s.organizationSvc.ResendInvitation(c.Request.Context(), orgID, invitationID, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invitation})
}

func (s *Server) CancelInvitation(c *gin.Context) {
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
	invitationID, err := pathSnowflake(c, "invitationId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	withOrgScope(c, orgID)

	if err := s.organizationSvc.CancelInvitation(c.Request.Context(), orgID, invitationID, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
