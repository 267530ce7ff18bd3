package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/chasedesk/chasedesk/internal/billing"
	"github.com/chasedesk/chasedesk/internal/chase"
	"github.com/chasedesk/chasedesk/internal/clock"
	"github.com/chasedesk/chasedesk/internal/config"
	"github.com/chasedesk/chasedesk/internal/generator"
	"github.com/chasedesk/chasedesk/internal/invoice"
	"github.com/chasedesk/chasedesk/internal/mailer"
	"github.com/chasedesk/chasedesk/internal/observability"
	redismodule "github.com/chasedesk/chasedesk/internal/redis"
	"github.com/chasedesk/chasedesk/internal/scheduler"
	"github.com/chasedesk/chasedesk/internal/server"
	"github.com/chasedesk/chasedesk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		redismodule.Module,

		invoice.Module,
		generator.Module,
		mailer.Module,
		chase.Module,
		billing.Module,
		scheduler.Module,

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
