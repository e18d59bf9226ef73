package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/membership/internal/clock"
	"github.com/smallbiznis/membership/internal/config"
	"github.com/smallbiznis/membership/internal/migration"
	"github.com/smallbiznis/membership/internal/observability"
	"github.com/smallbiznis/membership/internal/server"
	"github.com/smallbiznis/membership/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
