package attribution

import (
	"github.com/smallbiznis/facesaju/internal/attribution/domain"
	"github.com/smallbiznis/facesaju/internal/attribution/repository"
	"github.com/smallbiznis/facesaju/internal/attribution/service"
	"github.com/smallbiznis/facesaju/internal/record/remotestore"
	"go.uber.org/fx"
)

var Module = fx.Module("attribution.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(r *remotestore.Service) domain.PaidLister { return r }),
	fx.Provide(service.New),
)
