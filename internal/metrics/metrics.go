package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SignIns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "notebase", Name: "sign_in_total", Help: "Successful sign-ins by provider."},
		[]string{"provider"},
	)
	SignUps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "notebase", Name: "sign_up_total", Help: "New registrations by provider."},
		[]string{"provider"},
	)
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "notebase", Name: "webhook_events_total", Help: "Billing webhook events by outcome."},
		[]string{"outcome"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "notebase", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "notebase", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(SignIns)
	reg.MustRegister(SignUps)
	reg.MustRegister(WebhookEvents)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
