package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Policy holds tunables that operators may change without a redeploy.
type Policy struct {
	OTP          OTPPolicy          `mapstructure:"otp"`
	Organization OrganizationPolicy `mapstructure:"organization"`
	Plans        map[string]int     `mapstructure:"plans"`
	Scheduler    SchedulerPolicy    `mapstructure:"scheduler"`
}

type OTPPolicy struct {
	CodeLength     int           `mapstructure:"code_length"`
	TTL            time.Duration `mapstructure:"ttl"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	ResendCooldown time.Duration `mapstructure:"resend_cooldown"`
	MaxPerHour     int           `mapstructure:"max_per_hour"`
	Retention      time.Duration `mapstructure:"retention"`
	CleanupBatch   int           `mapstructure:"cleanup_batch"`
}

type OrganizationPolicy struct {
	CreatorRole         string        `mapstructure:"creator_role"`
	DefaultPlan         string        `mapstructure:"default_plan"`
	PlaceholderNames    []string      `mapstructure:"placeholder_names"`
	InvitationTTL       time.Duration `mapstructure:"invitation_ttl"`
	RotateTokenOnResend bool          `mapstructure:"rotate_token_on_resend"`
	UnlimitedMembers    int           `mapstructure:"unlimited_members"`
}

type SchedulerPolicy struct {
	JobTimeout  time.Duration `mapstructure:"job_timeout"`
	EnabledJobs []string      `mapstructure:"enabled_jobs"`
}

func DefaultPolicy() Policy {
	return Policy{
		OTP: OTPPolicy{
			CodeLength:     6,
			TTL:            15 * time.Minute,
			MaxAttempts:    3,
			ResendCooldown: time.Minute,
			MaxPerHour:     5,
			Retention:      24 * time.Hour,
			CleanupBatch:   1000,
		},
		Organization: OrganizationPolicy{
			CreatorRole:         "admin",
			DefaultPlan:         "free",
			PlaceholderNames:    []string{"your club"},
			InvitationTTL:       7 * 24 * time.Hour,
			RotateTokenOnResend: false,
			UnlimitedMembers:    1_000_000,
		},
		Plans: map[string]int{
			"free":         10,
			"starter":      25,
			"professional": 100,
		},
		Scheduler: SchedulerPolicy{
			JobTimeout: 2 * time.Minute,
		},
	}
}

// PolicyHolder serves the current policy and swaps it on file changes.
type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewPolicyHolder loads policy.yml from the standard search paths.
func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	return loadPolicyHolder(log, "/etc/membership", ".")
}

// NewStaticPolicyHolder serves a fixed policy.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

func loadPolicyHolder(log *zap.Logger, paths ...string) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.policy")

	v := viper.New()
	v.SetConfigName("policy")
	v.SetConfigType("yml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("MEMBERSHIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setPolicyDefaults(v, DefaultPolicy())

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(cfg)
	if !fileFound {
		log.Info("policy file not found, using defaults")
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicy(v)
		if err != nil {
			log.Warn("policy reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

// MaxMembers returns the member cap for a plan, or the unlimited cap for unknown plans.
func (p Policy) MaxMembers(plan string) int {
	if limit, ok := p.Plans[strings.ToLower(strings.TrimSpace(plan))]; ok {
		return limit
	}
	return p.Organization.UnlimitedMembers
}

func setPolicyDefaults(v *viper.Viper, d Policy) {
	v.SetDefault("otp.code_length", d.OTP.CodeLength)
	v.SetDefault("otp.ttl", d.OTP.TTL)
	v.SetDefault("otp.max_attempts", d.OTP.MaxAttempts)
	v.SetDefault("otp.resend_cooldown", d.OTP.ResendCooldown)
	v.SetDefault("otp.max_per_hour", d.OTP.MaxPerHour)
	v.SetDefault("otp.retention", d.OTP.Retention)
	v.SetDefault("otp.cleanup_batch", d.OTP.CleanupBatch)
	v.SetDefault("organization.creator_role", d.Organization.CreatorRole)
	v.SetDefault("organization.default_plan", d.Organization.DefaultPlan)
	v.SetDefault("organization.placeholder_names", d.Organization.PlaceholderNames)
	v.SetDefault("organization.invitation_ttl", d.Organization.InvitationTTL)
	v.SetDefault("organization.rotate_token_on_resend", d.Organization.RotateTokenOnResend)
	v.SetDefault("organization.unlimited_members", d.Organization.UnlimitedMembers)
	v.SetDefault("plans", d.Plans)
	v.SetDefault("scheduler.job_timeout", d.Scheduler.JobTimeout)
	v.SetDefault("scheduler.enabled_jobs", d.Scheduler.EnabledJobs)
}

func decodePolicy(v *viper.Viper) (Policy, error) {
	var cfg Policy
	if err := v.Unmarshal(&cfg); err != nil {
		return Policy{}, err
	}
	cfg.Organization.CreatorRole = strings.ToLower(strings.TrimSpace(cfg.Organization.CreatorRole))
	if err := validatePolicy(cfg); err != nil {
		return Policy{}, err
	}
	return cfg, nil
}

func validatePolicy(cfg Policy) error {
	if cfg.OTP.CodeLength < 4 || cfg.OTP.CodeLength > 10 {
		return fmt.Errorf("otp.code_length must be between 4 and 10, got %d", cfg.OTP.CodeLength)
	}
	if cfg.OTP.TTL <= 0 {
		return errors.New("otp.ttl must be positive")
	}
	if cfg.OTP.MaxAttempts <= 0 {
		return errors.New("otp.max_attempts must be positive")
	}
	if cfg.OTP.MaxPerHour <= 0 {
		return errors.New("otp.max_per_hour must be positive")
	}
	if cfg.OTP.CleanupBatch <= 0 {
		return errors.New("otp.cleanup_batch must be positive")
	}
	switch cfg.Organization.CreatorRole {
	case "admin", "owner":
	default:
		return fmt.Errorf("organization.creator_role must be admin or owner, got %q", cfg.Organization.CreatorRole)
	}
	if cfg.Organization.InvitationTTL <= 0 {
		return errors.New("organization.invitation_ttl must be positive")
	}
	if len(cfg.Plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	return nil
}
