// SPDX-License-Identifier: MIT

// Package dispatch moves engine callbacks off the capture goroutine. Every
// callback becomes an Event that is queued and delivered, in order, on a
// single consumer goroutine.
package dispatch

import (
	"sync"
	"time"

	"vocalsnr/internal/engine"
	"vocalsnr/internal/log"
)

// DefaultQueueSize is the event queue length used when none is configured.
const DefaultQueueSize = 256

// Kind identifies the callback an Event came from.
type Kind int

const (
	KindSNR Kind = iota + 1
	KindMicrophone
	KindBaselineRecorded
	KindBaselineQuality
	KindBaselineFailed
)

func (k Kind) String() string {
	switch k {
	case KindSNR:
		return "snr"
	case KindMicrophone:
		return "microphone"
	case KindBaselineRecorded:
		return "baseline_recorded"
	case KindBaselineQuality:
		return "baseline_quality"
	case KindBaselineFailed:
		return "baseline_failed"
	default:
		return "unknown"
	}
}

// Channel names the sink an Event was delivered through. Both sinks carry a
// microphone callback, so the channel tells them apart.
type Channel string

const (
	ChannelTesting     Channel = "testing"
	ChannelCalibration Channel = "calibration"
)

// Event is one engine callback.
type Event struct {
	Seq     uint64
	Kind    Kind
	Channel Channel
	Time    time.Time

	SNR    float64 // KindSNR
	Active bool    // KindMicrophone
	Label  string  // KindBaselineQuality
	Level  int     // KindBaselineQuality
	Err    error   // KindBaselineFailed
}

// Handler receives events on the consumer goroutine.
type Handler func(Event)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithQueueSize sets the event queue length. Producers block while the
// queue is full.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.size = n
		}
	}
}

// WithDedupMicrophoneState drops a microphone event that repeats the
// previous state of the same channel.
func WithDedupMicrophoneState() Option {
	return func(d *Dispatcher) { d.dedup = true }
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher implements the engine sinks through Testing and Calibration.
type Dispatcher struct {
	size  int
	dedup bool
	now   func() time.Time

	queue   chan Event
	done    chan struct{}
	stopped chan struct{}

	startOnce sync.Once
	closeOnce sync.Once

	// Producers hold sendMu shared for the whole send; Close takes it
	// exclusively, so nothing reaches the queue after the final drain.
	sendMu sync.RWMutex
	closed bool

	mu       sync.Mutex
	handlers []Handler

	// consumer goroutine only
	seq  uint64
	last map[Channel]bool
}

// New returns a Dispatcher. Call Start to begin delivery.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		size:    DefaultQueueSize,
		now:     time.Now,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		last:    make(map[Channel]bool),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.queue = make(chan Event, d.size)
	return d
}

// Subscribe adds h. Handlers run in subscription order.
func (d *Dispatcher) Subscribe(h Handler) {
	if h == nil {
		return
	}
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
}

// Start launches the consumer goroutine. Later calls do nothing.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() { go d.run() })
}

// Close delivers everything already queued, then stops the consumer.
// Events sent after Close are dropped.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		// The consumer must run so producers blocked on a full queue can
		// finish and release sendMu.
		d.Start()
		d.sendMu.Lock()
		d.closed = true
		close(d.done)
		d.sendMu.Unlock()
	})
	<-d.stopped
}

// Testing returns the sink to hand to the engine for test sessions.
func (d *Dispatcher) Testing() engine.TestingSink {
	return testingSink{d}
}

// Calibration returns the sink to hand to the engine for calibration.
func (d *Dispatcher) Calibration() engine.CalibrationSink {
	return calibrationSink{d}
}

func (d *Dispatcher) enqueue(ev Event) {
	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	if d.closed {
		log.Debugf("Dispatcher: dropping %s event after close", ev.Kind)
		return
	}
	ev.Time = d.now()
	d.queue <- ev
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.done:
			for {
				select {
				case ev := <-d.queue:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(ev Event) {
	if ev.Kind == KindMicrophone && d.dedup {
		if prev, ok := d.last[ev.Channel]; ok && prev == ev.Active {
			log.Debugf("Dispatcher: dropping repeated %s microphone state %t", ev.Channel, ev.Active)
			return
		}
		d.last[ev.Channel] = ev.Active
	}

	d.seq++
	ev.Seq = d.seq

	d.mu.Lock()
	handlers := d.handlers
	d.mu.Unlock()

	for _, h := range handlers {
		d.call(h, ev)
	}
}

func (d *Dispatcher) call(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Dispatcher: handler panicked on %s event %d: %v", ev.Kind, ev.Seq, r)
		}
	}()
	h(ev)
}

type testingSink struct{ d *Dispatcher }

func (s testingSink) IntermediateSNR(snr float64) {
	s.d.enqueue(Event{Kind: KindSNR, Channel: ChannelTesting, SNR: snr})
}

func (s testingSink) MicrophoneActive(active bool) {
	s.d.enqueue(Event{Kind: KindMicrophone, Channel: ChannelTesting, Active: active})
}

type calibrationSink struct{ d *Dispatcher }

func (s calibrationSink) BaselineRecorded() {
	s.d.enqueue(Event{Kind: KindBaselineRecorded, Channel: ChannelCalibration})
}

func (s calibrationSink) BaselineQuality(label string, level int) {
	s.d.enqueue(Event{Kind: KindBaselineQuality, Channel: ChannelCalibration, Label: label, Level: level})
}

func (s calibrationSink) MicrophoneActive(active bool) {
	s.d.enqueue(Event{Kind: KindMicrophone, Channel: ChannelCalibration, Active: active})
}

func (s calibrationSink) BaselineFailed(err error) {
	s.d.enqueue(Event{Kind: KindBaselineFailed, Channel: ChannelCalibration, Err: err})
}

var (
	_ engine.TestingSink            = testingSink{}
	_ engine.CalibrationSink        = calibrationSink{}
	_ engine.CalibrationFailureSink = calibrationSink{}
)
