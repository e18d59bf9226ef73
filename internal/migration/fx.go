package migration

import (
	"context"
	"fmt"

	"github.com/smallbiznis/membership/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(lc fx.Lifecycle, conn *gorm.DB, cfg config.Config, log *zap.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return Apply(ctx, conn, cfg, log)
			},
		})
	}),
)

// Apply brings the schema up to date. Postgres always runs the embedded SQL
// migrations; other dialects fall back to AutoMigrate when enabled.
func Apply(ctx context.Context, conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if cfg.DBType == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Info("database migrations applied", zap.String("type", cfg.DBType))
		return nil
	}

	if !cfg.DBAutoMigrate {
		log.Warn("schema migrations skipped", zap.String("type", cfg.DBType))
		return nil
	}
	if err := conn.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	log.Info("database schema auto-migrated", zap.String("type", cfg.DBType))
	return nil
}
