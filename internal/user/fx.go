package user

import (
	"github.com/OnnaSoft/real-sync/internal/user/repository"
	"github.com/OnnaSoft/real-sync/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
