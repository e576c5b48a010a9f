// Package metrics exposes Prometheus instrumentation for tenantcore.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantcore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantcore_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	procedureInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantcore_procedure_invocations_total",
			Help: "Total number of procedure invocations",
		},
		[]string{"procedure", "status"},
	)

	procedureDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantcore_procedure_duration_seconds",
			Help:    "Procedure execution time in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"procedure"},
	)

	orgAccessDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantcore_org_access_denials_total",
			Help: "Org-scoped calls rejected by the authorization gateway",
		},
		[]string{"reason"},
	)

	triggerExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantcore_trigger_executions_total",
			Help: "Total number of trigger executions",
		},
		[]string{"entity_class", "phase", "status"},
	)

	triggerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenantcore_trigger_duration_seconds",
			Help:    "Trigger body execution time in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"entity_class", "phase"},
	)

	modulesLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantcore_modules_loaded_total",
			Help: "Module load attempts by outcome",
		},
		[]string{"status"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordProcedureInvocation(name, status string, duration time.Duration) {
	procedureInvocations.WithLabelValues(name, status).Inc()
	procedureDuration.WithLabelValues(name).Observe(duration.Seconds())
}

func RecordOrgAccessDenied(reason string) {
	orgAccessDenials.WithLabelValues(reason).Inc()
}

func RecordTriggerExecution(entityClass, phase string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failed"
	}
	triggerExecutions.WithLabelValues(entityClass, phase, status).Inc()
	triggerDuration.WithLabelValues(entityClass, phase).Observe(duration.Seconds())
}

func RecordModuleLoad(success bool) {
	status := "loaded"
	if !success {
		status = "failed"
	}
	modulesLoaded.WithLabelValues(status).Inc()
}
