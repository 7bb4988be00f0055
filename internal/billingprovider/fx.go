package billingprovider

import (
	"github.com/OnnaSoft/real-sync/internal/billingprovider/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("billingprovider",
	fx.Provide(stripe.NewGateway),
)
