package transport

import (
	"time"

	"vocalsnr/internal/dispatch"
	"vocalsnr/internal/log"
)

// Transport defines a generic interface for sending session events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Message is the JSON form of a dispatched event.
type Message struct {
	Type    string    `json:"type"`
	Seq     uint64    `json:"seq,omitempty"`
	Channel string    `json:"channel,omitempty"`
	Time    time.Time `json:"time"`
	SNR     *float64  `json:"snr,omitempty"`
	Active  *bool     `json:"active,omitempty"`
	Label   string    `json:"label,omitempty"`
	Level   int       `json:"level,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// FromEvent converts ev to its wire form.
func FromEvent(ev dispatch.Event) Message {
	m := Message{
		Type:    ev.Kind.String(),
		Seq:     ev.Seq,
		Channel: string(ev.Channel),
		Time:    ev.Time,
	}
	switch ev.Kind {
	case dispatch.KindSNR:
		v := ev.SNR
		m.SNR = &v
	case dispatch.KindMicrophone:
		a := ev.Active
		m.Active = &a
	case dispatch.KindBaselineQuality:
		m.Label = ev.Label
		m.Level = ev.Level
	case dispatch.KindBaselineFailed:
		if ev.Err != nil {
			m.Error = ev.Err.Error()
		}
	}
	return m
}

// Forward returns a dispatch handler that sends every event through t.
func Forward(t Transport) dispatch.Handler {
	return func(ev dispatch.Event) {
		if err := t.Send(FromEvent(ev)); err != nil {
			log.Warnf("Transport: sending %s event %d: %v", ev.Kind, ev.Seq, err)
		}
	}
}
