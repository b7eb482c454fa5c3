package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/config"
	"github.com/smallbiznis/facesaju/internal/migration"
	"github.com/smallbiznis/facesaju/internal/observability"
	"github.com/smallbiznis/facesaju/internal/server"
	"github.com/smallbiznis/facesaju/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface and every domain module it serves
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
