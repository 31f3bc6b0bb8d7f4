// SPDX-License-Identifier: MIT

// Package engine runs capture sessions: it acquires an audio source, drives
// either a baseline calibration or an SNR test on a dedicated goroutine, and
// reports results to the injected sinks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"vocalsnr/internal/analysis"
	"vocalsnr/internal/audio"
	"vocalsnr/internal/config"
	"vocalsnr/internal/log"
	"vocalsnr/internal/observe"
)

// DefaultJoinTimeout bounds how long a start or Release waits for the
// previous capture goroutine.
const DefaultJoinTimeout = 500 * time.Millisecond

// Acquirer obtains a ready audio source.
type Acquirer interface {
	Acquire() (audio.Source, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithAnalyzer replaces the Hann window analyzer.
func WithAnalyzer(a analysis.Analyzer) Option {
	return func(e *Engine) { e.analyzer = a }
}

// WithClock replaces time.Now for measuring the calibration pass.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithJoinTimeout sets the bounded wait for a stopping capture goroutine.
func WithJoinTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.joinTimeout = d
		}
	}
}

// WithMetrics records to m instead of the default instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// handle owns a Source for one session. Interrupt and Stop are skipped once
// the source is released, so a late caller never touches a closed device.
type handle struct {
	src      audio.Source
	mu       sync.Mutex
	released bool
}

func (h *handle) interrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.released {
		h.src.Interrupt()
	}
}

func (h *handle) stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	return h.src.Stop()
}

func (h *handle) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	if err := h.src.Release(); err != nil {
		log.Warnf("Engine: releasing %s source: %v", h.src.Name(), err)
	}
}

func (h *handle) ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.released && h.src.Initialized()
}

// worker is one capture goroutine. active is its own cancellation flag, so
// an abandoned goroutine can never observe a later session's flag.
type worker struct {
	state  State
	h      *handle
	active atomic.Bool
	done   chan struct{}
}

// Engine is a capture session state machine. Its entry points are meant to
// be called from a single consumer goroutine; sinks are called from the
// capture goroutine and must not call back into the Engine synchronously.
type Engine struct {
	acquirer    Acquirer
	testing     TestingSink
	calibration CalibrationSink
	analyzer    analysis.Analyzer
	metrics     *observe.Metrics
	capture     config.Capture
	now         func() time.Time
	joinTimeout time.Duration

	state    atomic.Int32
	baseline atomic.Uint64 // float64 bits

	mu sync.Mutex // serializes entry points

	own    sync.Mutex // guards source and worker
	source *handle
	worker *worker
}

// New returns an idle Engine. Nil sinks are replaced by no-op sinks.
func New(acq Acquirer, testing TestingSink, calibration CalibrationSink, opts ...Option) *Engine {
	if testing == nil {
		testing = NopTestingSink{}
	}
	if calibration == nil {
		calibration = NopCalibrationSink{}
	}
	capture := config.DefaultCapture()
	e := &Engine{
		acquirer:    acq,
		testing:     testing,
		calibration: calibration,
		capture:     capture,
		now:         time.Now,
		joinTimeout: DefaultJoinTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.analyzer == nil {
		e.analyzer = analysis.NewHannAnalyzer(capture.WindowSize())
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// State returns the current session state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// AcquireReady reports whether a live, initialized source is held.
func (e *Engine) AcquireReady() bool {
	e.own.Lock()
	h := e.source
	e.own.Unlock()
	return h != nil && h.ready()
}

// BaselineNoisePower returns the calibrated noise power, or 0 if none.
func (e *Engine) BaselineNoisePower() float64 {
	return math.Float64frombits(e.baseline.Load())
}

// ClearBaseline forgets the calibrated noise power.
func (e *Engine) ClearBaseline() {
	e.baseline.Store(0)
}

// SetBaseline seeds the noise power from a previous run. It is rejected
// while a session is running.
func (e *Engine) SetBaseline(noisePower float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if noisePower <= 0 || math.IsNaN(noisePower) || math.IsInf(noisePower, 0) {
		return fmt.Errorf("invalid baseline noise power %v", noisePower)
	}
	if cur := e.State(); cur != Idle {
		return fmt.Errorf("%w: %s in progress", ErrBusy, cur)
	}
	e.baseline.Store(math.Float64bits(noisePower))
	return nil
}

// StartBaselineRecording begins a calibration pass.
func (e *Engine) StartBaselineRecording() error {
	return e.start(BaselineRecording)
}

// StartTest begins SNR measurement against the current baseline.
func (e *Engine) StartTest() error {
	return e.start(Testing)
}

// Stop asks the running loop to finish. It does not wait; the capture
// goroutine stops the device and returns to Idle on its own.
func (e *Engine) Stop() {
	e.own.Lock()
	w := e.worker
	e.own.Unlock()
	if w != nil {
		w.active.Store(false)
	}
}

// Release stops any session, waits up to the join timeout for the capture
// goroutine and releases the source. It is safe to call repeatedly.
func (e *Engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
}

func (e *Engine) start(target State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cur := e.State(); cur != Idle {
		log.Warnf("Engine: %s rejected, %s in progress", target, cur)
		return fmt.Errorf("%w: %s in progress", ErrBusy, cur)
	}
	if target == Testing && e.BaselineNoisePower() <= 0 {
		log.Warnf("Engine: test rejected, no baseline recorded")
		return ErrNoBaseline
	}

	e.teardownLocked()

	src, err := e.acquirer.Acquire()
	if err != nil {
		e.metrics.RecordAcquisitionFailure(context.Background(), acquisitionReason(err))
		log.Errorf("Engine: acquiring audio source: %v", err)
		e.notifyActive(target, false)
		return fmt.Errorf("acquire audio source: %w", err)
	}

	w := &worker{state: target, h: &handle{src: src}, done: make(chan struct{})}
	w.active.Store(true)

	e.own.Lock()
	e.source = w.h
	e.worker = w
	e.state.Store(int32(target))
	e.own.Unlock()

	e.metrics.RecordSessionStart(context.Background(), target.String())
	log.Infof("Engine: %s started on %s source", target, src.Name())
	e.notifyActive(target, true)
	go e.run(w)
	return nil
}

// teardownLocked signals and joins the current worker, then releases the
// current source. Caller holds e.mu.
func (e *Engine) teardownLocked() {
	e.own.Lock()
	w := e.worker
	e.own.Unlock()

	if w != nil {
		w.active.Store(false)
		w.h.interrupt()
		if !e.join(w) {
			log.Warnf("Engine: %s goroutine did not stop within %v; abandoning it", w.state, e.joinTimeout)
			e.metrics.JoinTimeouts.Add(context.Background(), 1)
			e.own.Lock()
			owned := e.worker == w
			if owned {
				e.worker = nil
				e.state.Store(int32(Idle))
			}
			e.own.Unlock()
			if owned {
				e.notifyActive(w.state, false)
			}
		}
	}

	e.own.Lock()
	h := e.source
	e.source = nil
	e.own.Unlock()
	if h != nil {
		h.release()
	}
}

func (e *Engine) join(w *worker) bool {
	t := time.NewTimer(e.joinTimeout)
	defer t.Stop()
	select {
	case <-w.done:
		return true
	case <-t.C:
		return false
	}
}

// run is the capture goroutine body. Cleanup always runs, in order: stop
// the device, release it, return to Idle, report the microphone inactive,
// drop the worker reference.
func (e *Engine) run(w *worker) {
	defer e.finish(w)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Engine: %s loop panicked: %v", w.state, r)
			e.metrics.RecordReadError(context.Background(), w.state.String(), "unexpected")
		}
	}()

	if err := w.h.src.Start(); err != nil {
		log.Errorf("Engine: starting %s source: %v", w.h.src.Name(), err)
		if w.state == BaselineRecording {
			e.baselineFailed(err)
		}
		return
	}

	switch w.state {
	case BaselineRecording:
		e.calibrate(w)
	case Testing:
		e.measure(w)
	}
}

func (e *Engine) finish(w *worker) {
	if err := w.h.stop(); err != nil {
		log.Warnf("Engine: stopping %s source: %v", w.h.src.Name(), err)
	}

	e.own.Lock()
	if e.source == w.h {
		e.source = nil
	}
	e.own.Unlock()
	w.h.release()

	e.own.Lock()
	owned := e.worker == w
	if owned {
		e.state.Store(int32(Idle))
	}
	e.own.Unlock()

	if owned {
		e.notifyActive(w.state, false)
	}

	e.own.Lock()
	if e.worker == w {
		e.worker = nil
	}
	e.own.Unlock()

	close(w.done)
	log.Debugf("Engine: %s goroutine finished", w.state)
}

// readFailed reports a read error that ended a loop. Errors after the loop
// was cancelled are the expected result of Interrupt.
func (e *Engine) readFailed(w *worker, err error) {
	if !w.active.Load() {
		log.Debugf("Engine: %s read ended after cancel: %v", w.state, err)
		return
	}
	kind := "unexpected"
	if errors.Is(err, audio.ErrDeviceRead) {
		kind = "device"
	}
	e.metrics.RecordReadError(context.Background(), w.state.String(), kind)
	log.Errorf("Engine: %s read failed (%s): %v", w.state, kind, err)
}

func (e *Engine) notifyActive(s State, active bool) {
	if s == Testing {
		e.testing.MicrophoneActive(active)
		return
	}
	e.calibration.MicrophoneActive(active)
}

func acquisitionReason(err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, audio.ErrInvalidParams):
		return "invalid_params"
	case errors.Is(err, audio.ErrAllSourcesExhausted):
		return "sources_exhausted"
	default:
		return "other"
	}
}
