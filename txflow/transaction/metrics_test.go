//go:build unit

package transaction

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type testMeterProvider struct {
	metric.MeterProvider
	meter metric.Meter
}

func (provider testMeterProvider) Meter(_ string, _ ...metric.MeterOption) metric.Meter {
	return provider.meter
}

type failingMeter struct {
	metric.Meter
	failOnName string
	failErr    error
}

func (meter failingMeter) Int64Counter(name string, options ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	if name == meter.failOnName {
		return nil, meter.failErr
	}

	return meter.Meter.Int64Counter(name, options...)
}

func (meter failingMeter) Float64Histogram(name string, options ...metric.Float64HistogramOption) (metric.Float64Histogram, error) {
	if name == meter.failOnName {
		return nil, meter.failErr
	}

	return meter.Meter.Float64Histogram(name, options...)
}

func TestNewManagerMetrics_DefaultProvider(t *testing.T) {
	t.Parallel()

	metrics, err := newManagerMetrics(nil)
	require.NoError(t, err)
	require.NotNil(t, metrics.framesStarted)
	require.NotNil(t, metrics.framesCommitted)
	require.NotNil(t, metrics.framesRolledBack)
	require.NotNil(t, metrics.framesRejected)
	require.NotNil(t, metrics.executeLatency)
}

func TestNewManagerMetrics_InstrumentFailures(t *testing.T) {
	t.Parallel()

	instrumentErr := errors.New("instrument failed")

	for _, name := range []string{
		"transaction.frames.started",
		"transaction.frames.committed",
		"transaction.frames.rolled_back",
		"transaction.frames.rejected",
		"transaction.execute.latency",
	} {
		provider := testMeterProvider{
			meter: failingMeter{
				Meter:      noop.NewMeterProvider().Meter("test"),
				failOnName: name,
				failErr:    instrumentErr,
			},
		}

		_, err := newManagerMetrics(provider)
		require.ErrorIs(t, err, instrumentErr, name)
	}
}

func TestNewManager_MetricsFailureSurfaces(t *testing.T) {
	t.Parallel()

	instrumentErr := errors.New("instrument failed")
	provider := testMeterProvider{
		meter: failingMeter{
			Meter:      noop.NewMeterProvider().Meter("test"),
			failOnName: "transaction.frames.started",
			failErr:    instrumentErr,
		},
	}

	_, err := NewManager(&fakeResource{}, nil, nil, WithMeterProvider(provider))
	require.ErrorIs(t, err, instrumentErr)
}
