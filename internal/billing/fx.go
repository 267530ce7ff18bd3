package billing

import (
	"github.com/chasedesk/chasedesk/internal/billing/provider"
	"github.com/chasedesk/chasedesk/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(provider.NewHTTPProvider),
	fx.Provide(service.NewService),
)
