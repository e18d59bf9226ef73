package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/membership/internal/clock"
	"github.com/smallbiznis/membership/internal/config"
	"github.com/smallbiznis/membership/internal/delivery"
	"github.com/smallbiznis/membership/internal/observability/metrics"
	"github.com/smallbiznis/membership/internal/otp/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Repo    domain.Repository
	Gateway delivery.Gateway
	Clock   clock.Clock
	Policy  *config.PolicyHolder
	GenID   *snowflake.Node
	Config  config.Config
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	repo    domain.Repository
	gateway delivery.Gateway
	clock   clock.Clock
	policy  *config.PolicyHolder
	genID   *snowflake.Node
	hasher  codeHasher
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:     p.Log.Named("otp.service"),
		repo:    p.Repo,
		gateway: p.Gateway,
		clock:   p.Clock,
		policy:  p.Policy,
		genID:   p.GenID,
		hasher:  newCodeHasher(p.Config.OTPSecret),
		metrics: p.Metrics,
	}
}

func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.GenerateResult, error) {
	target, err := validateGenerate(req)
	if err != nil {
		return nil, err
	}

	policy := s.policy.Get().OTP
	now := s.clock.Now()

	if _, err := s.repo.InvalidatePending(ctx, req.UserID, req.Type, 0, now); err != nil {
		return nil, fmt.Errorf("invalidate pending otp: %w", err)
	}

	sent, err := s.repo.CountCreatedSince(ctx, req.UserID, req.DeliveryMethod, now.Add(-time.Hour))
	if err != nil {
		return nil, fmt.Errorf("count recent otp: %w", err)
	}
	if sent >= int64(policy.MaxPerHour) {
		s.metrics.RecordRateLimitDenied(ctx, "otp_generate", "hourly_limit")
		return nil, domain.ErrRateLimited
	}

	code, err := generateCode(policy.CodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate otp code: %w", err)
	}

	rec := &domain.Record{
		ID:             s.genID.Generate(),
		UserID:         req.UserID,
		Type:           req.Type,
		DeliveryMethod: req.DeliveryMethod,
		Target:         target,
		CodeHash:       s.hasher.Hash(code),
		Status:         domain.StatusPending,
		Attempts:       0,
		MaxAttempts:    policy.MaxAttempts,
		ExpiresAt:      now.Add(policy.TTL),
		Metadata:       datatypes.JSONMap(copyMetadata(req.Metadata)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert otp: %w", err)
	}

	channel := delivery.Channel(req.DeliveryMethod)
	if !s.gateway.Send(ctx, target, buildMessage(req.Type, req.DeliveryMethod, code, policy.TTL), channel) {
		if err := s.repo.Delete(ctx, rec.ID); err != nil {
			s.log.Warn("failed to delete undelivered otp",
				zap.String("otp_id", rec.ID.String()),
				zap.Error(err),
			)
		}
		s.metrics.RecordOTPDeliveryFailure(ctx, string(channel))
		return nil, domain.ErrDeliveryFailed
	}

	s.metrics.RecordOTPGenerated(ctx, string(req.Type), string(channel))
	s.log.Info("otp issued",
		zap.String("otp_id", rec.ID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("type", string(req.Type)),
		zap.String("delivery_method", string(req.DeliveryMethod)),
	)

	return &domain.GenerateResult{
		OtpID:          rec.ID,
		ExpiresAt:      rec.ExpiresAt,
		DeliveryMethod: rec.DeliveryMethod,
		Target:         rec.Target,
	}, nil
}

func (s *Service) Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, domain.ErrInvalidCode
	}
	if req.Type != nil && !req.Type.Valid() {
		return nil, domain.ErrInvalidType
	}

	rec, err := s.repo.LatestPending(ctx, req.UserID, req.Type)
	if err != nil {
		return nil, fmt.Errorf("load otp: %w", err)
	}
	if rec == nil {
		s.recordVerification(ctx, req.Type, "not_found")
		return &domain.VerifyResult{Verified: false, Message: domain.MessageNoActiveOtp}, nil
	}

	now := s.clock.Now()
	if !now.Before(rec.ExpiresAt) {
		rec.Status = domain.StatusExpired
		rec.UpdatedAt = now
		if err := s.repo.Update(ctx, rec); err != nil {
			return nil, fmt.Errorf("expire otp: %w", err)
		}
		s.recordVerification(ctx, &rec.Type, "expired")
		return &domain.VerifyResult{Verified: false, Message: domain.MessageExpired}, nil
	}

	if rec.Attempts >= rec.MaxAttempts {
		rec.Status = domain.StatusFailed
		rec.UpdatedAt = now
		if err := s.repo.Update(ctx, rec); err != nil {
			return nil, fmt.Errorf("fail otp: %w", err)
		}
		s.recordVerification(ctx, &rec.Type, "exhausted")
		return &domain.VerifyResult{Verified: false, Message: domain.MessageAttemptsExhausted}, nil
	}

	// The attempt is consumed before comparing so a wrong guess always costs one.
	rec.Attempts++
	rec.UpdatedAt = now
	if !s.hasher.Equal(code, rec.CodeHash) {
		if err := s.repo.Update(ctx, rec); err != nil {
			return nil, fmt.Errorf("record otp attempt: %w", err)
		}
		s.recordVerification(ctx, &rec.Type, "invalid")
		return &domain.VerifyResult{Verified: false, Message: domain.MessageInvalidCode}, nil
	}

	rec.Status = domain.StatusVerified
	rec.VerifiedAt = &now
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("verify otp: %w", err)
	}
	if _, err := s.repo.InvalidatePending(ctx, rec.UserID, rec.Type, rec.ID, now); err != nil {
		s.log.Warn("failed to invalidate sibling otps",
			zap.String("otp_id", rec.ID.String()),
			zap.Error(err),
		)
	}
	s.recordVerification(ctx, &rec.Type, "verified")

	return &domain.VerifyResult{
		Verified: true,
		Message:  domain.MessageVerified,
		UserID:   rec.UserID,
		Target:   rec.Target,
		Metadata: copyMetadata(rec.Metadata),
	}, nil
}

func (s *Service) Resend(ctx context.Context, req domain.ResendRequest) (*domain.GenerateResult, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if req.Type != nil && !req.Type.Valid() {
		return nil, domain.ErrInvalidType
	}

	latest, err := s.repo.Latest(ctx, req.UserID, req.Type)
	if err != nil {
		return nil, fmt.Errorf("load otp: %w", err)
	}
	if latest == nil {
		return nil, domain.ErrOtpNotFound
	}

	cooldown := s.policy.Get().OTP.ResendCooldown
	if s.clock.Now().Before(latest.CreatedAt.Add(cooldown)) {
		s.metrics.RecordRateLimitDenied(ctx, "otp_resend", "cooldown")
		return nil, domain.ErrResendCooldown
	}

	return s.Generate(ctx, domain.GenerateRequest{
		UserID:         latest.UserID,
		Type:           latest.Type,
		DeliveryMethod: latest.DeliveryMethod,
		Target:         latest.Target,
		Metadata:       copyMetadata(latest.Metadata),
	})
}

func (s *Service) Status(ctx context.Context, userID snowflake.ID, otpType *domain.Type) (*domain.StatusResult, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if otpType != nil && !otpType.Valid() {
		return nil, domain.ErrInvalidType
	}

	now := s.clock.Now()
	result := &domain.StatusResult{CanResend: true}

	pending, err := s.repo.LatestPending(ctx, userID, otpType)
	if err != nil {
		return nil, fmt.Errorf("load otp: %w", err)
	}
	if pending != nil && now.Before(pending.ExpiresAt) {
		result.HasActiveOtp = true
		result.Otp = pending
	}

	latest, err := s.repo.Latest(ctx, userID, otpType)
	if err != nil {
		return nil, fmt.Errorf("load otp: %w", err)
	}
	if latest != nil {
		next := latest.CreatedAt.Add(s.policy.Get().OTP.ResendCooldown)
		if now.Before(next) {
			result.CanResend = false
			result.NextResendAvailableAt = &next
		}
	}

	return result, nil
}

// Cleanup removes records older than the retention window in bounded batches.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	policy := s.policy.Get().OTP
	before := s.clock.Now().Add(-policy.Retention)

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		deleted, err := s.repo.DeleteCreatedBefore(ctx, before, policy.CleanupBatch)
		if err != nil {
			return total, fmt.Errorf("delete expired otp: %w", err)
		}
		total += deleted
		if deleted < int64(policy.CleanupBatch) {
			break
		}
	}

	s.log.Info("otp cleanup finished", zap.Int64("deleted", total))
	return total, nil
}

func (s *Service) recordVerification(ctx context.Context, otpType *domain.Type, outcome string) {
	t := ""
	if otpType != nil {
		t = string(*otpType)
	}
	s.metrics.RecordOTPVerification(ctx, t, outcome)
}

func validateGenerate(req domain.GenerateRequest) (string, error) {
	if req.UserID == 0 {
		return "", domain.ErrInvalidUser
	}
	if !req.Type.Valid() {
		return "", domain.ErrInvalidType
	}
	if !req.DeliveryMethod.Valid() {
		return "", domain.ErrInvalidDeliveryMethod
	}

	target := strings.TrimSpace(req.Target)
	if target == "" {
		return "", domain.ErrInvalidTarget
	}
	if req.DeliveryMethod == domain.DeliveryEmail {
		addr, err := mail.ParseAddress(target)
		if err != nil {
			return "", domain.ErrInvalidTarget
		}
		target = strings.ToLower(addr.Address)
	}
	return target, nil
}

func buildMessage(otpType domain.Type, method domain.DeliveryMethod, code string, ttl time.Duration) delivery.Message {
	minutes := int(ttl.Minutes())
	if method == domain.DeliveryEmail {
		return delivery.Message{
			Template: "otp_code",
			Data: map[string]any{
				"code":       code,
				"expires_in": fmt.Sprintf("%d minutes", minutes),
				"type":       string(otpType),
			},
		}
	}
	return delivery.Message{
		Text: fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes),
	}
}

func copyMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
