package usage

import (
	"github.com/OnnaSoft/real-sync/internal/usage/repository"
	"github.com/OnnaSoft/real-sync/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
