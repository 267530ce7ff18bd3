package invoice

import (
	"github.com/chasedesk/chasedesk/internal/invoice/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.repository",
	fx.Provide(repository.NewRepository),
)
