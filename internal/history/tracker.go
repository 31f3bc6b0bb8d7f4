// Package history follows a session from the consumer side: the latest and
// highest SNR of a test, the baseline quality, and a YAML record of past
// sessions.
package history

import (
	"sync"
	"time"

	"vocalsnr/internal/analysis"
	"vocalsnr/internal/dispatch"
)

// Snapshot is the tracker state at one point in time.
type Snapshot struct {
	Latest   float64
	Max      float64
	Readings int
	Rating   string

	Quality      string
	QualityLevel int
	Baseline     bool
	BaselineErr  string

	Testing     bool
	Calibrating bool
}

// MicrophoneActive reports whether any session holds the microphone.
func (s Snapshot) MicrophoneActive() bool {
	return s.Testing || s.Calibrating
}

// Summary describes a finished test session.
type Summary struct {
	Start    time.Time
	End      time.Time
	Max      float64
	Readings int
}

// Tracker folds dispatched events into a Snapshot. Handle is meant to be
// subscribed to a dispatch.Dispatcher.
type Tracker struct {
	mu    sync.Mutex
	snap  Snapshot
	start time.Time
	onEnd func(Summary)
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// OnSessionEnd registers fn to run when a test with at least one reading
// ends. fn runs on the dispatcher goroutine.
func (t *Tracker) OnSessionEnd(fn func(Summary)) {
	t.mu.Lock()
	t.onEnd = fn
	t.mu.Unlock()
}

// Handle applies one event.
func (t *Tracker) Handle(ev dispatch.Event) {
	var (
		ended Summary
		fire  func(Summary)
	)

	t.mu.Lock()
	switch ev.Kind {
	case dispatch.KindSNR:
		t.snap.Latest = ev.SNR
		if t.snap.Readings == 0 || ev.SNR > t.snap.Max {
			t.snap.Max = ev.SNR
		}
		t.snap.Readings++
		t.snap.Rating = analysis.Rating(ev.SNR)
	case dispatch.KindBaselineQuality:
		t.snap.Quality = ev.Label
		t.snap.QualityLevel = ev.Level
	case dispatch.KindBaselineRecorded:
		t.snap.Baseline = true
		t.snap.BaselineErr = ""
	case dispatch.KindBaselineFailed:
		if ev.Err != nil {
			t.snap.BaselineErr = ev.Err.Error()
		}
	case dispatch.KindMicrophone:
		switch ev.Channel {
		case dispatch.ChannelCalibration:
			t.snap.Calibrating = ev.Active
		case dispatch.ChannelTesting:
			if ev.Active {
				t.resetLocked()
				t.start = ev.Time
				t.snap.Testing = true
				break
			}
			if t.snap.Testing && t.snap.Readings > 0 && t.onEnd != nil {
				ended = Summary{Start: t.start, End: ev.Time, Max: t.snap.Max, Readings: t.snap.Readings}
				fire = t.onEnd
			}
			t.snap.Testing = false
		}
	}
	t.mu.Unlock()

	if fire != nil {
		fire(ended)
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Reset clears the test readings. Baseline state is kept.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.resetLocked()
	t.mu.Unlock()
}

func (t *Tracker) resetLocked() {
	t.snap.Latest = 0
	t.snap.Max = 0
	t.snap.Readings = 0
	t.snap.Rating = ""
	t.start = time.Time{}
}
