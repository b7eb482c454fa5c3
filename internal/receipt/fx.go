package receipt

import (
	"github.com/smallbiznis/facesaju/internal/reconcile"
	"go.uber.org/fx"
)

var Module = fx.Module("receipt.service",
	fx.Provide(func(r *reconcile.Service) Loader { return r }),
	fx.Provide(NewService),
)
