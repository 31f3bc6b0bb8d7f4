// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"vocalsnr/internal/analysis"
	"vocalsnr/internal/audio"
	"vocalsnr/internal/log"
)

var calibrationAttrs = metric.WithAttributeSet(attribute.NewSet(attribute.String("state", BaselineRecording.String())))

// calibrate averages window power for the calibration duration, or until
// cancelled, and publishes the result.
func (e *Engine) calibrate(w *worker) {
	ctx := context.Background()
	buf := make([]int16, e.capture.WindowSize())

	var sum float64
	var count int
	start := e.now()
	for w.active.Load() && e.now().Sub(start) < e.capture.CalibrationDuration {
		n, err := w.h.src.Read(buf)
		if err != nil {
			e.readFailed(w, err)
			break
		}
		if n < 0 {
			e.readFailed(w, fmt.Errorf("%w: negative sample count %d", audio.ErrDeviceRead, n))
			break
		}
		if n == 0 {
			continue
		}
		n = min(n, len(buf))
		e.analyzer.ApplyWindow(buf, n)
		sum += e.analyzer.Power(buf, n)
		count++
		e.metrics.WindowsProcessed.Add(ctx, 1, calibrationAttrs)
	}

	if count == 0 {
		log.Warnf("Engine: calibration read no windows, baseline left at %.2f", e.BaselineNoisePower())
		e.baselineFailed(ErrNoWindows)
		return
	}

	noise := sum / float64(count)
	e.baseline.Store(math.Float64bits(noise))
	e.metrics.BaselineNoisePower.Record(ctx, noise)

	q := analysis.Classify(noise)
	log.Infof("Engine: baseline noise power %.2f over %d windows (%s)", noise, count, q.Label)
	e.calibration.BaselineQuality(q.Label, q.Level)
	e.calibration.BaselineRecorded()
}

func (e *Engine) baselineFailed(err error) {
	if fs, ok := e.calibration.(CalibrationFailureSink); ok {
		fs.BaselineFailed(err)
	}
}
