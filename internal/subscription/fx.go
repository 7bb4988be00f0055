package subscription

import (
	"github.com/OnnaSoft/real-sync/internal/subscription/repository"
	"github.com/OnnaSoft/real-sync/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
