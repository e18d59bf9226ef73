package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
	Resend(ctx context.Context, req ResendRequest) (*GenerateResult, error)
	Status(ctx context.Context, userID snowflake.ID, otpType *Type) (*StatusResult, error)
	Cleanup(ctx context.Context) (int64, error)
}

type GenerateRequest struct {
	UserID         snowflake.ID
	Type           Type
	DeliveryMethod DeliveryMethod
	Target         string
	Metadata       map[string]any
}

type GenerateResult struct {
	OtpID          snowflake.ID   `json:"otp_id"`
	ExpiresAt      time.Time      `json:"expires_at"`
	DeliveryMethod DeliveryMethod `json:"delivery_method"`
	Target         string         `json:"target"`
}

type VerifyRequest struct {
	UserID snowflake.ID
	Code   string
	Type   *Type
}

// VerifyResult carries negative outcomes as data rather than errors.
type VerifyResult struct {
	Verified bool           `json:"verified"`
	Message  string         `json:"message"`
	UserID   snowflake.ID   `json:"user_id,omitempty"`
	Target   string         `json:"target,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ResendRequest struct {
	UserID snowflake.ID
	Type   *Type
}

type StatusResult struct {
	HasActiveOtp          bool       `json:"has_active_otp"`
	Otp                   *Record    `json:"otp,omitempty"`
	CanResend             bool       `json:"can_resend"`
	NextResendAvailableAt *time.Time `json:"next_resend_available_at,omitempty"`
}

const (
	MessageVerified          = "OTP verified successfully"
	MessageNoActiveOtp       = "No active OTP found"
	MessageExpired           = "OTP has expired"
	MessageAttemptsExhausted = "Maximum attempts exceeded"
	MessageInvalidCode       = "Invalid OTP code"
)

var (
	ErrInvalidUser           = errors.New("invalid_user")
	ErrInvalidType           = errors.New("invalid_otp_type")
	ErrInvalidDeliveryMethod = errors.New("invalid_delivery_method")
	ErrInvalidTarget         = errors.New("invalid_target")
	ErrInvalidCode           = errors.New("invalid_code")
	ErrReservedType          = errors.New("reserved_otp_type")

	ErrRateLimited    = errors.New("otp_rate_limited")
	ErrDeliveryFailed = errors.New("otp_delivery_failed")
	ErrOtpNotFound    = errors.New("otp_not_found")
	ErrResendCooldown = errors.New("otp_resend_cooldown")
)
