package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/vocalize/pkg/subscription"
)

// Metrics implements subscription.Metrics using Prometheus.
type Metrics struct {
	storageOpsDuration *prometheus.HistogramVec
	storageOpsErrors   *prometheus.CounterVec
	patchMissesTotal   *prometheus.CounterVec
	entitlementChecks  *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		storageOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "storage_operation_duration_seconds",
			Help:      "Latency of subscription storage operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storageOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "storage_operation_errors_total",
			Help:      "Total number of subscription storage errors.",
		}, []string{"operation"}),

		patchMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "patch_misses_total",
			Help:      "Total number of status patches that matched no subscription.",
		}, []string{"status"}),

		entitlementChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscription",
			Name:      "entitlement_checks_total",
			Help:      "Total number of entitlement evaluations.",
		}, []string{"label", "entitled"}),
	}
}

func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storageOpsErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) RecordPatchMiss(status subscription.Status) {
	m.patchMissesTotal.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) RecordEntitlementCheck(label string, entitled bool) {
	if label == "" {
		label = "none"
	}
	m.entitlementChecks.WithLabelValues(label, strconv.FormatBool(entitled)).Inc()
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
