package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitle/internal/clock"
	"github.com/smallbiznis/entitle/internal/migration"
	"github.com/smallbiznis/entitle/internal/observability"
	"github.com/smallbiznis/entitle/internal/server"
	"github.com/smallbiznis/entitle/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure; config.Module comes in through server.Module.
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and functional domains
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
