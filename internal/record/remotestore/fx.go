package remotestore

import "go.uber.org/fx"

var Module = fx.Module("record.remotestore",
	fx.Provide(ProvideRepository),
	fx.Provide(New),
)
