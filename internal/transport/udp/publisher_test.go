package udp

import (
	"errors"
	"net"
	"testing"
	"time"
)

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Skipf("UDP loopback unavailable: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPublisher_SendsStatusPackets(t *testing.T) {
	conn := listen(t)
	sender, err := NewUDPSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewUDPSender() error = %v", err)
	}
	defer sender.Close()

	want := Status{
		SNR:                12.5,
		MaxSNR:             18,
		BaselineNoisePower: 300,
		Readings:           42,
		QualityLevel:       2,
		Flags:              FlagTesting | FlagBaseline,
	}
	pub, err := NewUDPPublisher(5*time.Millisecond, sender, func() Status { return want })
	if err != nil {
		t.Fatalf("NewUDPPublisher() error = %v", err)
	}
	stamp := time.Unix(1_750_000_000, 0)
	pub.now = func() time.Time { return stamp }
	pub.Start()
	pub.Start() // no-op
	defer pub.Close()

	buf := make([]byte, 128)
	var prev uint32
	for i := range 2 {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("ReadFromUDP() error = %v", err)
		}
		pkt, err := DecodePacket(buf[:n])
		if err != nil {
			t.Fatalf("DecodePacket() error = %v", err)
		}
		if pkt.Status != want {
			t.Errorf("status = %+v, want %+v", pkt.Status, want)
		}
		if pkt.Timestamp != stamp.UnixNano() {
			t.Errorf("timestamp = %d", pkt.Timestamp)
		}
		if i > 0 && pkt.Seq != prev+1 {
			t.Errorf("seq = %d after %d", pkt.Seq, prev)
		}
		prev = pkt.Seq
	}

	if err := pub.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := pub.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestDecodePacket_Length(t *testing.T) {
	if _, err := DecodePacket(make([]byte, PacketSize-1)); err == nil {
		t.Error("DecodePacket accepted a short packet")
	}
	if _, err := DecodePacket(make([]byte, PacketSize)); err != nil {
		t.Errorf("DecodePacket() error = %v", err)
	}
}

func TestNewUDPPublisher_Validation(t *testing.T) {
	if _, err := NewUDPPublisher(time.Second, nil, func() Status { return Status{} }); err == nil {
		t.Error("accepted nil sender")
	}
	conn := listen(t)
	sender, err := NewUDPSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()
	if _, err := NewUDPPublisher(time.Second, sender, nil); err == nil {
		t.Error("accepted nil status func")
	}
	pub, err := NewUDPPublisher(0, sender, func() Status { return Status{} })
	if err != nil {
		t.Fatal(err)
	}
	if pub.interval != 100*time.Millisecond {
		t.Errorf("default interval = %v", pub.interval)
	}
}

func TestSender_Closed(t *testing.T) {
	conn := listen(t)
	sender, err := NewUDPSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	if err := sender.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := sender.Send([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
}

func TestNewUDPSender_BadAddress(t *testing.T) {
	if _, err := NewUDPSender("not an address"); err == nil {
		t.Error("accepted malformed address")
	}
}
