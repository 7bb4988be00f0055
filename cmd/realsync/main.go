package main

import (
	"github.com/OnnaSoft/real-sync/internal/clock"
	"github.com/OnnaSoft/real-sync/internal/config"
	"github.com/OnnaSoft/real-sync/internal/migration"
	"github.com/OnnaSoft/real-sync/internal/observability"
	"github.com/OnnaSoft/real-sync/internal/server"
	"github.com/OnnaSoft/real-sync/pkg/db"
	"github.com/bwmarrin/snowflake"
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

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
