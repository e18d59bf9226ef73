package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/membership/internal/config"
)

const (
	keyOTPUser   = "otp:send:user:%s"
	keyOTPClient = "otp:send:ip:%s"
	keyOwnerLock = "org:create:owner:%s"
)

// ErrLockHeld is returned when another request holds the owner lock.
var ErrLockHeld = errors.New("lock_held")

// Limiter throttles code issuance per caller and serializes organization
// creation per owner. A nil Limiter allows everything.
type Limiter struct {
	bucket *TokenBucket
	locker *Locker

	otpRate  float64
	otpBurst int
	lockTTL  time.Duration
}

func NewLimiter(cfg config.Config, client *redis.Client) (*Limiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled || client == nil {
		return nil, nil
	}
	if limitCfg.OTPRate <= 0 || limitCfg.OTPBurst <= 0 {
		return nil, errors.New("otp rate limit must be positive")
	}
	lockTTL := limitCfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 10 * time.Second
	}

	return &Limiter{
		bucket:   NewTokenBucket(client),
		locker:   NewLocker(client),
		otpRate:  limitCfg.OTPRate,
		otpBurst: limitCfg.OTPBurst,
		lockTTL:  lockTTL,
	}, nil
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowOTP spends one token from the caller's bucket. The caller key is a user
// id for authenticated requests or the client IP otherwise.
func (l *Limiter) AllowOTP(ctx context.Context, userID, clientIP string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyOTPClient, strings.TrimSpace(clientIP))
	if id := strings.TrimSpace(userID); id != "" {
		key = fmt.Sprintf(keyOTPUser, id)
	}
	return l.bucket.Allow(ctx, key, l.otpRate, l.otpBurst)
}

// LockOwner takes the per-owner creation lock and returns its release func.
func (l *Limiter) LockOwner(ctx context.Context, userID string) (func(), error) {
	if l == nil || l.locker == nil {
		return func() {}, nil
	}
	key := fmt.Sprintf(keyOwnerLock, strings.TrimSpace(userID))
	token, ok, err := l.locker.TryLock(ctx, key, l.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		_ = l.locker.Release(context.WithoutCancel(ctx), key, token)
	}, nil
}
