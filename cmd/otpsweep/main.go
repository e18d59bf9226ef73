// Command otpsweep runs the maintenance jobs once and exits. It is meant to
// be driven by an external cron.
package main

import (
	"context"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/membership/internal/billing"
	"github.com/smallbiznis/membership/internal/clock"
	"github.com/smallbiznis/membership/internal/config"
	"github.com/smallbiznis/membership/internal/delivery"
	"github.com/smallbiznis/membership/internal/observability"
	"github.com/smallbiznis/membership/internal/otp"
	"github.com/smallbiznis/membership/internal/providers"
	"github.com/smallbiznis/membership/internal/ratelimit"
	"github.com/smallbiznis/membership/internal/scheduler"
	"github.com/smallbiznis/membership/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	var (
		sched *scheduler.Scheduler
		log   *zap.Logger
	)

	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,
		providers.Module,
		delivery.Module,
		otp.Module,
		billing.Module,
		scheduler.Module,
		fx.Populate(&sched, &log),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		os.Exit(1)
	}

	runErr := sched.RunOnce(context.Background())
	if runErr != nil {
		log.Error("otp sweep failed", zap.Error(runErr))
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Warn("shutdown failed", zap.Error(err))
	}

	if runErr != nil {
		os.Exit(1)
	}
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
