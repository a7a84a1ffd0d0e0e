package reward

import "go.uber.org/fx"

//go:generate mockgen -destination=mock_deps_test.go -package=reward . Locker,Notifier
//go:generate mockgen -destination=mock_flags_test.go -package=reward engage-ledger/pkg/featureflags FeatureFlag

var Module = fx.Module("reward.service",
	fx.Provide(
		NewLocker,
		NewNotifier,
		NewService,
	),
)
