package reconcile

import (
	"github.com/smallbiznis/facesaju/internal/record/remotestore"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile.service",
	fx.Provide(func(s *remotestore.Service) Remote { return s }),
	fx.Provide(New),
)
