package record

import (
	attributiondomain "github.com/smallbiznis/facesaju/internal/attribution/domain"
	"github.com/smallbiznis/facesaju/internal/reconcile"
	"github.com/smallbiznis/facesaju/internal/record/domain"
	"github.com/smallbiznis/facesaju/internal/record/localstore"
	"github.com/smallbiznis/facesaju/internal/record/remotestore"
	"github.com/smallbiznis/facesaju/internal/record/service"
	"go.uber.org/fx"
)

var Module = fx.Module("record",
	fx.Provide(domain.NewRegistryFromCatalog),
	fx.Provide(
		fx.Annotate(
			localstore.NewStores,
			fx.As(fx.Self()),
			fx.As(new(domain.StoreSet)),
		),
	),
	remotestore.Module,
	fx.Provide(func(r *reconcile.Service) service.Reconciler { return r }),
	fx.Provide(func(a attributiondomain.Service) service.SourceResolver { return a }),
	fx.Provide(service.New),
)
