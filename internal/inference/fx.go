package inference

import (
	"github.com/smallbiznis/facesaju/internal/reconcile"
	"go.uber.org/fx"
)

var Module = fx.Module("inference.service",
	fx.Provide(NewClient),
	fx.Provide(func(r *reconcile.Service) Pusher { return r }),
	fx.Provide(NewService),
)
