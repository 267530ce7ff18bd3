package chase

import (
	"github.com/chasedesk/chasedesk/internal/chase/service"
	"go.uber.org/fx"
)

var Module = fx.Module("chase.service",
	fx.Provide(service.NewService),
)
