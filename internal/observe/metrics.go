// Package observe holds the OpenTelemetry metric instruments for the capture
// engine and the provider wiring that exposes them to Prometheus.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is bound to
// the global meter provider; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "vocalsnr"

// Metrics holds all metric instruments. All fields are safe for concurrent
// use; recording never blocks the capture goroutine.
type Metrics struct {
	// WindowsProcessed counts analysed windows. Attribute: state.
	WindowsProcessed metric.Int64Counter

	// ReadErrors counts capture loops ended by a failed read. Attributes:
	// state, kind ("device" or "unexpected").
	ReadErrors metric.Int64Counter

	// AcquisitionFailures counts failed acquisitions. Attribute: reason.
	AcquisitionFailures metric.Int64Counter

	// JoinTimeouts counts capture goroutines abandoned after the bounded
	// join expired.
	JoinTimeouts metric.Int64Counter

	// SessionsStarted counts sessions that acquired a device. Attribute: state.
	SessionsStarted metric.Int64Counter

	// SNR records every SNR reading, in dB.
	SNR metric.Float64Histogram

	// BaselineNoisePower records each successful calibration result.
	BaselineNoisePower metric.Float64Histogram
}

var snrBuckets = []float64{0, 5, 10, 15, 20, 30, 40, 60, 100}

var noiseBuckets = []float64{50, 200, 500, 1000, 2000, 10000, 100000}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.WindowsProcessed, err = m.Int64Counter("vocalsnr.windows.processed",
		metric.WithDescription("Analysed capture windows by session state."),
	); err != nil {
		return nil, err
	}
	if met.ReadErrors, err = m.Int64Counter("vocalsnr.read.errors",
		metric.WithDescription("Capture loops ended by a read failure."),
	); err != nil {
		return nil, err
	}
	if met.AcquisitionFailures, err = m.Int64Counter("vocalsnr.acquisition.failures",
		metric.WithDescription("Failed audio source acquisitions by reason."),
	); err != nil {
		return nil, err
	}
	if met.JoinTimeouts, err = m.Int64Counter("vocalsnr.join.timeouts",
		metric.WithDescription("Capture goroutines abandoned after the join timeout."),
	); err != nil {
		return nil, err
	}
	if met.SessionsStarted, err = m.Int64Counter("vocalsnr.sessions.started",
		metric.WithDescription("Capture sessions started by state."),
	); err != nil {
		return nil, err
	}

	if met.SNR, err = m.Float64Histogram("vocalsnr.snr",
		metric.WithDescription("SNR readings."),
		metric.WithUnit("dB"),
		metric.WithExplicitBucketBoundaries(snrBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BaselineNoisePower, err = m.Float64Histogram("vocalsnr.baseline.noise_power",
		metric.WithDescription("Baseline noise power of successful calibrations."),
		metric.WithExplicitBucketBoundaries(noiseBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordReadError counts a capture loop ended by a read failure.
func (m *Metrics) RecordReadError(ctx context.Context, state, kind string) {
	m.ReadErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", state),
		attribute.String("kind", kind),
	))
}

// RecordAcquisitionFailure counts a failed acquisition.
func (m *Metrics) RecordAcquisitionFailure(ctx context.Context, reason string) {
	m.AcquisitionFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordSessionStart counts a session that acquired a device.
func (m *Metrics) RecordSessionStart(ctx context.Context, state string) {
	m.SessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}
