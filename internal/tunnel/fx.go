package tunnel

import (
	"github.com/OnnaSoft/real-sync/internal/tunnel/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("tunnel.repository",
	fx.Provide(repository.Provide),
)
