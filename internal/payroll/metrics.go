package payroll

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for payroll aggregation.
type Metrics struct {
	reports  *prometheus.CounterVec
	failures prometheus.Counter
	duration prometheus.Histogram
	upserts  *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers payroll metrics against registerer, or the default registerer
// when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	reports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nomina_payroll_reports_total",
		Help: "Payroll report aggregations partitioned by outcome.",
	}, []string{"status"})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nomina_payroll_report_employee_failures_total",
		Help: "Employees excluded from reports because their fetch failed.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nomina_payroll_report_duration_seconds",
		Help:    "Duration of payroll report aggregations.",
		Buckets: prometheus.DefBuckets,
	})
	upserts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nomina_payroll_upserts_total",
		Help: "Payroll record writes partitioned by outcome.",
	}, []string{"status"})
	registerer.MustRegister(reports, failures, duration, upserts)
	return &Metrics{reports: reports, failures: failures, duration: duration, upserts: upserts}
}

func (m *Metrics) observeReport(start time.Time, failed int, err error) {
	if m == nil {
		return
	}
	status := "success"
	switch {
	case err != nil:
		status = "failure"
	case failed > 0:
		status = "partial"
	}
	m.reports.WithLabelValues(status).Inc()
	m.failures.Add(float64(failed))
	m.duration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeUpsert(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.upserts.WithLabelValues(status).Inc()
}
