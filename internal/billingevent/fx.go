package billingevent

import (
	"github.com/OnnaSoft/real-sync/internal/billingevent/repository"
	"github.com/OnnaSoft/real-sync/internal/billingevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingevent.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
