// Package telemetry registers the OpenTelemetry metric instruments the
// engine reports on. The meter provider is whatever the process installed
// globally; with none installed the instruments are no-ops.
package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/heraerp/hera-core"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Engine operation metrics
	OperationsTotal       metric.Int64Counter
	OperationErrorsTotal  metric.Int64Counter
	OperationDuration     metric.Float64Histogram
	OperationRetriesTotal metric.Int64Counter

	// Security gate metrics
	AuthzDeniedTotal metric.Int64Counter

	// Guardrail metrics
	GuardrailFixesTotal    metric.Int64Counter
	GuardrailPayloadsFixed metric.Int64Counter

	// Workflow metrics
	TransitionsTotal         metric.Int64Counter
	TransitionConflictsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.OperationsTotal, _ = meter.Int64Counter(
		"hera.operations.total",
		metric.WithDescription("Total number of engine operations executed"),
		metric.WithUnit("{operation}"),
	)

	m.OperationErrorsTotal, _ = meter.Int64Counter(
		"hera.operations.errors.total",
		metric.WithDescription("Total number of engine operations that failed"),
		metric.WithUnit("{error}"),
	)

	m.OperationDuration, _ = meter.Float64Histogram(
		"hera.operations.duration",
		metric.WithDescription("Duration of engine operations"),
		metric.WithUnit("ms"),
	)

	m.OperationRetriesTotal, _ = meter.Int64Counter(
		"hera.operations.retries.total",
		metric.WithDescription("Total number of transaction conflict retries"),
		metric.WithUnit("{retry}"),
	)

	m.AuthzDeniedTotal, _ = meter.Int64Counter(
		"hera.authz.denied.total",
		metric.WithDescription("Total number of operations denied by the security gate"),
		metric.WithUnit("{denial}"),
	)

	m.GuardrailFixesTotal, _ = meter.Int64Counter(
		"hera.guardrail.fixes.total",
		metric.WithDescription("Total number of guardrail corrections applied"),
		metric.WithUnit("{fix}"),
	)

	m.GuardrailPayloadsFixed, _ = meter.Int64Counter(
		"hera.guardrail.payloads_fixed.total",
		metric.WithDescription("Total number of payloads the guardrail corrected"),
		metric.WithUnit("{payload}"),
	)

	m.TransitionsTotal, _ = meter.Int64Counter(
		"hera.workflow.transitions.total",
		metric.WithDescription("Total number of workflow status transitions"),
		metric.WithUnit("{transition}"),
	)

	m.TransitionConflictsTotal, _ = meter.Int64Counter(
		"hera.workflow.transition_conflicts.total",
		metric.WithDescription("Total number of transitions lost to a concurrent writer"),
		metric.WithUnit("{conflict}"),
	)

	return m
}
