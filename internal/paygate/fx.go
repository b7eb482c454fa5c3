package paygate

import (
	"github.com/smallbiznis/facesaju/internal/reconcile"
	"go.uber.org/fx"
)

var Module = fx.Module("paygate.service",
	fx.Provide(func(r *reconcile.Service) Reconciler { return r }),
	fx.Provide(New),
)
