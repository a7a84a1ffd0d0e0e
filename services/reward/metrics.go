package reward

import (
	"time"

	"engage-ledger/pkg/errutil"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var redeemDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "engage_redeem_duration_seconds",
		Help:    "Duration of reward redemptions in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"scope", "status"},
)

func observeRedeem(scope Scope, err error, elapsed time.Duration) {
	status := "success"
	if err != nil {
		status = string(errutil.StatusOf(err))
	}
	redeemDuration.WithLabelValues(string(scope), status).Observe(elapsed.Seconds())
}
