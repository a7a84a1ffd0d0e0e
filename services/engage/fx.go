package engage

import "go.uber.org/fx"

var Module = fx.Module("engage.service",
	fx.Provide(NewService),
)
