package transaction

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type managerMetrics struct {
	framesStarted    metric.Int64Counter
	framesCommitted  metric.Int64Counter
	framesRolledBack metric.Int64Counter
	framesRejected   metric.Int64Counter
	executeLatency   metric.Float64Histogram
}

func newManagerMetrics(provider metric.MeterProvider) (managerMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter("txflow.transaction.manager")

	var (
		metrics managerMetrics
		err     error
	)

	metrics.framesStarted, err = meter.Int64Counter(
		"transaction.frames.started",
		metric.WithDescription("Number of execution frames entered"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return managerMetrics{}, fmt.Errorf("create transaction.frames.started counter: %w", err)
	}

	metrics.framesCommitted, err = meter.Int64Counter(
		"transaction.frames.committed",
		metric.WithDescription("Number of frames whose transaction committed"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return managerMetrics{}, fmt.Errorf("create transaction.frames.committed counter: %w", err)
	}

	metrics.framesRolledBack, err = meter.Int64Counter(
		"transaction.frames.rolled_back",
		metric.WithDescription("Number of frames whose transaction rolled back"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return managerMetrics{}, fmt.Errorf("create transaction.frames.rolled_back counter: %w", err)
	}

	metrics.framesRejected, err = meter.Int64Counter(
		"transaction.frames.rejected",
		metric.WithDescription("Number of frames rejected by propagation policy"),
		metric.WithUnit("{frame}"),
	)
	if err != nil {
		return managerMetrics{}, fmt.Errorf("create transaction.frames.rejected counter: %w", err)
	}

	metrics.executeLatency, err = meter.Float64Histogram(
		"transaction.execute.latency",
		metric.WithDescription("Time taken per Execute invocation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return managerMetrics{}, fmt.Errorf("create transaction.execute.latency histogram: %w", err)
	}

	return metrics, nil
}
