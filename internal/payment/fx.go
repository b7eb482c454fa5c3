package payment

import (
	"github.com/smallbiznis/facesaju/internal/payment/adapters"
	"github.com/smallbiznis/facesaju/internal/payment/adapters/toss"
	"github.com/smallbiznis/facesaju/internal/payment/repository"
	paymentservice "github.com/smallbiznis/facesaju/internal/payment/service"
	"github.com/smallbiznis/facesaju/internal/payment/webhook"
	"github.com/smallbiznis/facesaju/internal/record/remotestore"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(toss.NewFactory())
	}),
	fx.Provide(func(s *remotestore.Service) webhook.RemoteRecords { return s }),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
