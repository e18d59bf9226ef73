package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/membership/internal/audit/domain"
	"github.com/smallbiznis/membership/internal/authorization"
	organizationdomain "github.com/smallbiznis/membership/internal/organization/domain"
	otpdomain "github.com/smallbiznis/membership/internal/otp/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    code,
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isForbiddenError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Code:    err.Error(),
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    codeOf(err),
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    err.Error(),
			Message: conflictMessage(err),
		}
	case errors.Is(err, organizationdomain.ErrInvitationExpired):
		return http.StatusGone, errorPayload{
			Type:    "gone",
			Code:    err.Error(),
			Message: "invitation has expired",
		}
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, otpdomain.ErrRateLimited),
		errors.Is(err, otpdomain.ErrResendCooldown):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Code:    err.Error(),
			Message: "too many requests",
		}
	case errors.Is(err, otpdomain.ErrDeliveryFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "delivery_failed",
			Code:    err.Error(),
			Message: "otp could not be delivered",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger with the same taxonomy the
// client sees, without exposing the message.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Code
	if code == "" && status == http.StatusBadRequest && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, authorization.ErrInvalidArgument):
		return true
	case isOrganizationValidationError(err),
		isOtpValidationError(err),
		isAuditValidationError(err):
		return true
	default:
		return false
	}
}

func isOrganizationValidationError(err error) bool {
	switch {
	case errors.Is(err, organizationdomain.ErrInvalidName),
		errors.Is(err, organizationdomain.ErrInvalidSlug),
		errors.Is(err, organizationdomain.ErrInvalidDescription),
		errors.Is(err, organizationdomain.ErrInvalidWebsite),
		errors.Is(err, organizationdomain.ErrInvalidLogo),
		errors.Is(err, organizationdomain.ErrInvalidUser),
		errors.Is(err, organizationdomain.ErrInvalidOrganization),
		errors.Is(err, organizationdomain.ErrInvalidEmail),
		errors.Is(err, organizationdomain.ErrInvalidRole),
		errors.Is(err, organizationdomain.ErrInvalidMessage),
		errors.Is(err, organizationdomain.ErrInvalidToken),
		errors.Is(err, organizationdomain.ErrInvalidSettings),
		errors.Is(err, organizationdomain.ErrInvalidPlan),
		errors.Is(err, organizationdomain.ErrInvalidOtp),
		errors.Is(err, organizationdomain.ErrOtpMismatch):
		return true
	default:
		return false
	}
}

func isOtpValidationError(err error) bool {
	switch {
	case errors.Is(err, otpdomain.ErrInvalidUser),
		errors.Is(err, otpdomain.ErrInvalidType),
		errors.Is(err, otpdomain.ErrInvalidDeliveryMethod),
		errors.Is(err, otpdomain.ErrInvalidTarget),
		errors.Is(err, otpdomain.ErrInvalidCode),
		errors.Is(err, otpdomain.ErrReservedType):
		return true
	default:
		return false
	}
}

func isAuditValidationError(err error) bool {
	switch {
	case errors.Is(err, auditdomain.ErrInvalidOrganization),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, auditdomain.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isForbiddenError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, organizationdomain.ErrForbidden),
		errors.Is(err, organizationdomain.ErrEmailMismatch),
		errors.Is(err, organizationdomain.ErrOwnerSelfDemotion),
		errors.Is(err, organizationdomain.ErrOwnerSelfRemoval):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, organizationdomain.ErrOrganizationNotFound),
		errors.Is(err, organizationdomain.ErrMemberNotFound),
		errors.Is(err, organizationdomain.ErrInvitationNotFound),
		errors.Is(err, organizationdomain.ErrUserNotFound),
		errors.Is(err, organizationdomain.ErrInvalidInvitation),
		errors.Is(err, otpdomain.ErrOtpNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, organizationdomain.ErrAlreadyOwner),
		errors.Is(err, organizationdomain.ErrSlugTaken),
		errors.Is(err, organizationdomain.ErrMemberLimitReached),
		errors.Is(err, organizationdomain.ErrInvitationExists),
		errors.Is(err, organizationdomain.ErrAlreadyMember),
		errors.Is(err, organizationdomain.ErrInvitationNotPending),
		errors.Is(err, organizationdomain.ErrConcurrentRequest):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, organizationdomain.ErrAlreadyOwner):
		return "user already owns an organization"
	case errors.Is(err, organizationdomain.ErrSlugTaken):
		return "slug is already taken"
	case errors.Is(err, organizationdomain.ErrMemberLimitReached):
		return "member limit reached for the current plan"
	case errors.Is(err, organizationdomain.ErrInvitationExists):
		return "a pending invitation already exists for this email"
	case errors.Is(err, organizationdomain.ErrAlreadyMember):
		return "user is already a member"
	case errors.Is(err, organizationdomain.ErrInvitationNotPending):
		return "invitation is no longer pending"
	default:
		return "conflict"
	}
}

// codeOf keeps gorm's message out of responses.
func codeOf(err error) string {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ""
	}
	return err.Error()
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_otp", "otp_mismatch", "invalid_code":
		return "otp_code"
	case "invalid_otp_type", "reserved_otp_type":
		return "type"
	case "invalid_argument":
		return ""
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_otp", "invalid_code":
		return "otp code is invalid or expired"
	case "otp_mismatch":
		return "otp was not issued for this invitation"
	case "reserved_otp_type":
		return "otp type is issued by the invitation flow only"
	default:
		return "invalid value"
	}
}
