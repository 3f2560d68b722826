package inspect

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Dr-Twilight/port-status-inspection/common"
	"github.com/Dr-Twilight/port-status-inspection/util"
)

// Metrics - Fleet run counters for the metrics endpoint. A nil receiver
// disables recording.
type Metrics struct {
	devicesFinished *prometheus.CounterVec
	devicesFailed   prometheus.Counter
	commandsRun     prometheus.Counter
	pagesFollowed   prometheus.Counter
}

// NewMetrics - Create and register the fleet counters.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	return &Metrics{
		devicesFinished: util.NewCounterVec(registry, common.PrometheusNamespace, "fleet",
			"devices_finished_total", "Devices for which inspection finished, by outcome.", []string{"outcome"}),
		devicesFailed: util.NewCounter(registry, common.PrometheusNamespace, "fleet",
			"devices_failed_total", "Devices whose inspection recorded a failure."),
		commandsRun: util.NewCounter(registry, common.PrometheusNamespace, "fleet",
			"commands_run_total", "Commands sent to devices."),
		pagesFollowed: util.NewCounter(registry, common.PrometheusNamespace, "fleet",
			"pages_followed_total", "Pagination continuations sent to devices."),
	}
}

// RecordOutcome - Count one finished device.
func (metrics *Metrics) RecordOutcome(outcome Outcome) {
	if metrics == nil {
		return
	}
	metrics.devicesFinished.WithLabelValues(outcome.Kind.String()).Inc()
	if !outcome.Success() {
		metrics.devicesFailed.Inc()
	}
}

// RecordCommand - Count one command run against a device.
func (metrics *Metrics) RecordCommand() {
	if metrics == nil {
		return
	}
	metrics.commandsRun.Inc()
}

// RecordPage - Count one pagination continuation.
func (metrics *Metrics) RecordPage() {
	if metrics == nil {
		return
	}
	metrics.pagesFollowed.Inc()
}
