package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	otpdomain "github.com/smallbiznis/membership/internal/otp/domain"
)

type generateOtpRequest struct {
	Type           string         `json:"type"`
	DeliveryMethod string         `json:"delivery_method"`
	Target         string         `json:"target"`
	Metadata       map[string]any `json:"metadata"`
}

type verifyOtpRequest struct {
	Code string `json:"code"`
	Type string `json:"type"`
}

type resendOtpRequest struct {
	Type string `json:"type"`
}

func (s *Server) GenerateOtp(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req generateOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	otpType := otpdomain.Type(strings.TrimSpace(req.Type))
	if otpType.Reserved() {
		AbortWithError(c, otpdomain.ErrReservedType)
		return
	}

	resp, err := s.otpSvc.Generate(c.Request.Context(), otpdomain.GenerateRequest{
		UserID:         userID,
		Type:           otpType,
		DeliveryMethod: otpdomain.DeliveryMethod(strings.TrimSpace(req.DeliveryMethod)),
		Target:         strings.TrimSpace(req.Target),
		Metadata:       req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// VerifyOtp answers 200 for every outcome the service reports as data;
// the verified flag and message tell the caller what happened.
func (s *Server) VerifyOtp(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req verifyOtpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	otpType, err := optionalOtpType(req.Type)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.otpSvc.Verify(c.Request.Context(), otpdomain.VerifyRequest{
		UserID: userID,
		Code:   strings.TrimSpace(req.Code),
		Type:   otpType,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ResendOtp(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req resendOtpRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	otpType, err := optionalOtpType(req.Type)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.otpSvc.Resend(c.Request.Context(), otpdomain.ResendRequest{
		UserID: userID,
		Type:   otpType,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOtpStatus(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	otpType, err := optionalOtpType(c.Query("type"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.otpSvc.Status(c.Request.Context(), userID, otpType)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func optionalOtpType(value string) (*otpdomain.Type, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	t := otpdomain.Type(trimmed)
	if !t.Valid() {
		return nil, otpdomain.ErrInvalidType
	}
	return &t, nil
}
