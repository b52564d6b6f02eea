package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh reasons and outcomes used as metric labels.
const (
	reasonExpired      = "expired"
	reasonUnauthorized = "unauthorized"

	outcomeOK       = "ok"
	outcomeFailed   = "failed"
	outcomeCanceled = "canceled"
)

type metrics struct {
	refreshes *prometheus.CounterVec
	retries   prometheus.Counter
	reauths   prometheus.Counter
}

// newMetrics registers the gateway counters on reg. A nil reg keeps them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkctl_gateway_refresh_total",
			Help: "Token refreshes started by the gateway",
		}, []string{"reason", "outcome"}), // reason: expired, unauthorized
		retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "linkctl_gateway_retries_total",
			Help: "Requests replayed after a 401 and a successful refresh",
		}),
		reauths: factory.NewCounter(prometheus.CounterOpts{
			Name: "linkctl_gateway_reauth_total",
			Help: "Sessions cleared because a refresh failed",
		}),
	}
}
