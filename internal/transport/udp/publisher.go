// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"vocalsnr/internal/log"
)

// Status flag bits.
const (
	FlagTesting uint8 = 1 << iota
	FlagCalibrating
	FlagBaseline
)

// PacketSize is the encoded length of a status packet.
const PacketSize = 30

// Status is the session state published in each packet.
type Status struct {
	SNR                float32
	MaxSNR             float32
	BaselineNoisePower float32
	Readings           uint32
	QualityLevel       uint8
	Flags              uint8
}

// StatusFunc returns the current status. It is called from the publisher
// goroutine.
type StatusFunc func() Status

// Packet is a decoded status packet.
type Packet struct {
	Seq       uint32
	Timestamp int64
	Status
}

/*
UDP Packet Structure (BigEndian)

+------------------------------------------------------------------------+
| Field               | Data Type | Size | Description                   |
|---------------------|-----------|------|-------------------------------|
| Sequence Number     | uint32    | 4    | Monotonically increasing      |
| Timestamp           | int64     | 8    | Nanoseconds since epoch       |
| SNR                 | float32   | 4    | Latest reading, dB            |
| Max SNR             | float32   | 4    | Session maximum, dB           |
| Baseline Power      | float32   | 4    | Noise power, 0 if none        |
| Readings            | uint32    | 4    | Readings this test session    |
| Quality Level       | uint8     | 1    | 1 (Excellent) .. 5, 0 if none |
| Flags               | uint8     | 1    | testing|calibrating|baseline  |
+------------------------------------------------------------------------+
*/

// DecodePacket parses a status packet.
func DecodePacket(b []byte) (Packet, error) {
	var p Packet
	if len(b) != PacketSize {
		return p, fmt.Errorf("status packet is %d bytes, want %d", len(b), PacketSize)
	}
	if err := binary.Read(bytes.NewReader(b), binary.BigEndian, &p); err != nil {
		return p, fmt.Errorf("decoding status packet: %w", err)
	}
	return p, nil
}

// UDPPublisher periodically packs the session status and sends it with a
// UDPSender. It runs in a separate goroutine managed by Start and Stop.
type UDPPublisher struct {
	sender   *UDPSender
	status   StatusFunc
	interval time.Duration
	now      func() time.Time

	ticker   *time.Ticker
	doneChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex // protects ticker and doneChan

	sequenceNum  uint32
	packetBuffer *bytes.Buffer
}

// NewUDPPublisher creates a publisher. An interval <= 0 defaults to 100ms.
func NewUDPPublisher(interval time.Duration, sender *UDPSender, status StatusFunc) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("UDPPublisher: UDP sender cannot be nil")
	}
	if status == nil {
		return nil, errors.New("UDPPublisher: status func cannot be nil")
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
		log.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	log.Infof("UDPPublisher: Initializing (Interval: %s)", interval)

	return &UDPPublisher{
		sender:       sender,
		status:       status,
		interval:     interval,
		now:          time.Now,
		packetBuffer: bytes.NewBuffer(make([]byte, 0, PacketSize)),
	}, nil
}

// Start begins publishing. Calling Start while running does nothing.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		log.Warnf("UDPPublisher: Start called but already running.")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Debugf("UDPPublisher: Publisher goroutine started")
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine and waits for it to exit. It is safe
// to call repeatedly.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.doneChan)
	p.ticker.Stop()
	p.ticker = nil
	p.mu.Unlock()

	p.wg.Wait()
	log.Debugf("UDPPublisher: Publisher goroutine finished.")
	return nil
}

func (p *UDPPublisher) buildAndSendPacket() {
	p.sequenceNum++
	pkt := Packet{
		Seq:       p.sequenceNum,
		Timestamp: p.now().UnixNano(),
		Status:    p.status(),
	}

	p.packetBuffer.Reset()
	if err := binary.Write(p.packetBuffer, binary.BigEndian, &pkt); err != nil {
		log.Errorf("UDPPublisher: Error packing status packet: %v", err)
		return
	}
	if err := p.sender.Send(p.packetBuffer.Bytes()); err == nil {
		log.Debugf("UDPPublisher: Sent packet %d (%d bytes)", pkt.Seq, p.packetBuffer.Len())
	}
}

// Close stops the publisher.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)
