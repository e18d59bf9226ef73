package otp

import (
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/membership/internal/config"
	"github.com/smallbiznis/membership/internal/otp/domain"
	"github.com/smallbiznis/membership/internal/otp/repository"
	"github.com/smallbiznis/membership/internal/otp/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("otp.service",
	fx.Provide(NewRepository),
	fx.Provide(service.NewService),
)

type repositoryParams struct {
	fx.In

	Log    *zap.Logger
	DB     *gorm.DB
	Config config.Config
	Policy *config.PolicyHolder
	Redis  *redis.Client `optional:"true"`
}

// NewRepository selects the OTP store once at startup.
func NewRepository(p repositoryParams) domain.Repository {
	if p.Config.OTPStore == config.OTPStoreRedis {
		if p.Redis != nil {
			return repository.NewRedisStore(p.Redis, p.Policy.Get().OTP.Retention)
		}
		p.Log.Warn("OTP_STORE=redis but redis is not configured, using database store")
	}
	return repository.NewRepository(p.DB)
}
