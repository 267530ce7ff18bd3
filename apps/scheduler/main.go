package main

import (
	"context"

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

		// Domain services required by scheduler
		invoice.Module,
		generator.Module,
		mailer.Module,
		chase.Module,
		billing.Module,
		scheduler.Module,

		// No server module!
		fx.Invoke(StartScheduler),
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

func StartScheduler(lc fx.Lifecycle, s *scheduler.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.RunForever(context.Background())
			return nil
		},
	})
}
