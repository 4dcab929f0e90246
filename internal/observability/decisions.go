package observability

import (
	"log"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentgate_access_decisions_total",
			Help: "Access decisions by outcome and reason.",
		},
		[]string{"outcome", "reason"},
	)

	decisionWarningsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentgate_access_decision_warnings_total",
			Help: "Allow decisions carrying a degrade warning.",
		},
		[]string{"warning"},
	)

	lazyExpiriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rentgate_subscription_lazy_expiries_total",
		Help: "Subscriptions transitioned to expired during evaluation.",
	})
)

// Init registers the decision metrics with the default registry. Call once
// at startup.
func Init() {
	prometheus.MustRegister(decisionsTotal, decisionWarningsTotal, lazyExpiriesTotal)
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordLazyExpiry counts a lazy expired transition.
func RecordLazyExpiry() {
	lazyExpiriesTotal.Inc()
}

// DecisionObserver logs decision outcomes and feeds the counters. Deny
// spikes per organization produce a repeated-deny alert line.
type DecisionObserver struct {
	logger *log.Logger

	mu         sync.Mutex
	denyCounts map[string]int64
}

func NewDecisionObserver(logger *log.Logger) *DecisionObserver {
	if logger == nil {
		logger = log.Default()
	}
	return &DecisionObserver{
		logger:     logger,
		denyCounts: make(map[string]int64),
	}
}

func (o *DecisionObserver) RecordAllow(actor, orgID, reason, warning string) {
	if o == nil {
		return
	}
	decisionsTotal.WithLabelValues("allow", reason).Inc()
	if warning != "" {
		decisionWarningsTotal.WithLabelValues(warning).Inc()
		o.logger.Printf("access allow actor=%s org_id=%s reason=%s warning=%s", actor, orgID, reason, warning)
		return
	}
	o.logger.Printf("access allow actor=%s org_id=%s reason=%s", actor, orgID, reason)
}

func (o *DecisionObserver) RecordDeny(actor, orgID, reason string) {
	if o == nil {
		return
	}
	decisionsTotal.WithLabelValues("deny", reason).Inc()

	key := orgID
	if key == "" {
		key = actor
	}
	o.mu.Lock()
	o.denyCounts[key]++
	count := o.denyCounts[key]
	o.mu.Unlock()

	o.logger.Printf("access deny actor=%s org_id=%s reason=%s count=%d", actor, orgID, reason, count)

	if count%10 == 0 {
		o.logger.Printf("access alert org_id=%s reason=%s repeated_deny_count=%d", key, reason, count)
	}
}
