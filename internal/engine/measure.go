// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"vocalsnr/internal/analysis"
	"vocalsnr/internal/audio"
)

var testingAttrs = metric.WithAttributeSet(attribute.NewSet(attribute.String("state", Testing.String())))

// measure reports one SNR reading per window until cancelled or a read
// fails.
func (e *Engine) measure(w *worker) {
	ctx := context.Background()
	buf := make([]int16, e.capture.WindowSize())

	for w.active.Load() {
		n, err := w.h.src.Read(buf)
		if err != nil {
			e.readFailed(w, err)
			return
		}
		if n < 0 {
			e.readFailed(w, fmt.Errorf("%w: negative sample count %d", audio.ErrDeviceRead, n))
			return
		}
		if n == 0 {
			continue
		}
		n = min(n, len(buf))
		e.analyzer.ApplyWindow(buf, n)
		snr := analysis.ComputeSNR(e.analyzer.Power(buf, n), e.BaselineNoisePower())

		e.metrics.WindowsProcessed.Add(ctx, 1, testingAttrs)
		e.metrics.SNR.Record(ctx, snr)
		e.testing.IntermediateSNR(snr)
	}
}
