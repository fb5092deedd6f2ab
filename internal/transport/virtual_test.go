package transport

import (
	"testing"
	"time"
)

func TestVirtualLoopback(t *testing.T) {
	v := NewVirtual(VirtualConfig{GenerateTraffic: false})
	if !v.Connect() {
		t.Fatal("Connect failed")
	}
	defer v.Disconnect()

	if !v.Send(0x1A0, []byte{0x16, 0x22}, false) {
		t.Fatal("Send failed")
	}

	msg, ok := v.Receive(time.Second)
	if !ok {
		t.Fatal("loopback frame not received")
	}
	if msg.Frame.ID != 0x1A0 || msg.Frame.DLC != 2 {
		t.Errorf("unexpected frame: %+v", msg.Frame)
	}
	if msg.Frame.Data[0] != 0x16 || msg.Frame.Data[1] != 0x22 {
		t.Errorf("unexpected payload: %v", msg.Frame.Data)
	}
	if !msg.IsRx {
		t.Error("looped-back frame should be marked as received")
	}
	if msg.Interface != "virtual" {
		t.Errorf("interface = %q, want virtual", msg.Interface)
	}
}

func TestVirtualSendValidation(t *testing.T) {
	v := NewVirtual(VirtualConfig{})
	if !v.Connect() {
		t.Fatal("Connect failed")
	}
	defer v.Disconnect()

	// Standard-frame id above 0x7FF without the extended flag.
	if v.Send(0x800, []byte{1}, false) {
		t.Error("out-of-range standard id should be refused")
	}
	if !v.Send(0x800, []byte{1}, true) {
		t.Error("extended frame with 29-bit id should be accepted")
	}
	// Extended id above the 29-bit range.
	if v.Send(0x20000000, []byte{1}, true) {
		t.Error("id above 29 bits should be refused")
	}
	if v.Send(0x100, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, false) {
		t.Error("payload over 8 bytes should be refused")
	}
}

func TestVirtualSendWhenDisconnected(t *testing.T) {
	v := NewVirtual(VirtualConfig{})
	if v.Send(0x100, []byte{1}, false) {
		t.Error("Send before Connect should fail")
	}

	v.Connect()
	v.Disconnect()
	if v.Send(0x100, []byte{1}, false) {
		t.Error("Send after Disconnect should fail")
	}
}

func TestVirtualReceiveTimeout(t *testing.T) {
	v := NewVirtual(VirtualConfig{GenerateTraffic: false})
	v.Connect()
	defer v.Disconnect()

	start := time.Now()
	if _, ok := v.Receive(50 * time.Millisecond); ok {
		t.Error("Receive on an idle bus should time out")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Receive returned after %v, expected to wait near the timeout", elapsed)
	}

	// Zero timeout polls without blocking.
	if _, ok := v.Receive(0); ok {
		t.Error("zero-timeout poll on an idle bus should report nothing")
	}
}

func TestVirtualTrafficGeneration(t *testing.T) {
	v := NewVirtual(VirtualConfig{GenerateTraffic: true, TrafficRate: 100})
	if !v.Connect() {
		t.Fatal("Connect failed")
	}
	defer v.Disconnect()

	known := make(map[uint32]bool, len(simulatedIDs))
	for _, id := range simulatedIDs {
		known[id] = true
	}

	for i := 0; i < 5; i++ {
		msg, ok := v.Receive(time.Second)
		if !ok {
			t.Fatal("traffic generator produced no frame in time")
		}
		if !known[msg.Frame.ID] {
			t.Errorf("generated frame with unexpected id 0x%X", msg.Frame.ID)
		}
		if !msg.IsRx {
			t.Error("generated traffic should be marked as received")
		}
	}
}

func TestVirtualConnectIdempotent(t *testing.T) {
	v := NewVirtual(VirtualConfig{})
	if !v.Connect() || !v.Connect() {
		t.Fatal("repeated Connect should succeed")
	}
	v.Disconnect()
	v.Disconnect() // second Disconnect is a no-op
}
