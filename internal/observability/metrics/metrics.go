package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credvault_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "credvault_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	authzDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credvault_authz_decisions_total",
		Help: "Authorization decisions by action, deciding rule, and outcome",
	}, []string{"action", "rule", "outcome"})

	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credvault_logins_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	membershipMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credvault_membership_mutations_total",
		Help: "Membership and role mutations by operation and result",
	}, []string{"operation", "result"})

	scopeCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credvault_scope_cache_total",
		Help: "Division-scope cache lookups by outcome",
	}, []string{"outcome"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveAuthzDecision counts an authorization decision.
func ObserveAuthzDecision(action, rule string, allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	authzDecisionsTotal.WithLabelValues(action, rule, outcome).Inc()
}

// ObserveLogin counts a login attempt with a result label.
func ObserveLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}

// ObserveMembershipMutation counts a membership or role mutation.
func ObserveMembershipMutation(operation, result string) {
	membershipMutationsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveScopeCache counts a scope cache lookup (hit, miss, or error).
func ObserveScopeCache(outcome string) {
	scopeCacheTotal.WithLabelValues(outcome).Inc()
}
