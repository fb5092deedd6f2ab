package codec

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"can-testbench/internal/dbc"
)

const codecDBC = `BO_ 256 EngineData: 8 ECU
 SG_ EngineRPM : 0|16@1+ (0.25,0) [0|16383.75] "rpm" Dashboard
 SG_ CoolantTemp : 16|8@1- (1,-40) [-40|215] "degC" Dashboard

BO_ 512 Flags: 2 ECU
 SG_ Motorola : 0|8@0+ (1,0) [0|0] "" Dashboard

BO_ 768 Wide: 8 ECU
 SG_ Counter : 0|64@1+ (1,0) [0|0] "" Dashboard
`

func loadTestRegistry(t *testing.T) *dbc.Registry {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.dbc")
	if err := os.WriteFile(path, []byte(codecDBC), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := dbc.NewRegistry(&dbc.GrammarParser{})
	if _, err := reg.Load(path); err != nil {
		t.Fatalf("failed to load test database: %v", err)
	}
	return reg
}

func TestDecodeLittleEndianUnsigned(t *testing.T) {
	c := New(loadTestRegistry(t))

	// EngineRPM raw 3000 little-endian in bytes 0-1, factor 0.25.
	values, ok := c.Decode(256, []byte{0xB8, 0x0B, 0x00, 0, 0, 0, 0, 0})
	if !ok {
		t.Fatal("Decode reported unknown id")
	}
	if got := values["EngineRPM"]; got != 750 {
		t.Errorf("EngineRPM = %g, want 750", got)
	}
}

func TestDecodeSignedSignExtension(t *testing.T) {
	c := New(loadTestRegistry(t))

	// CoolantTemp raw 0xFF is -1 after sign extension, -41 after offset.
	values, ok := c.Decode(256, []byte{0, 0, 0xFF, 0, 0, 0, 0, 0})
	if !ok {
		t.Fatal("Decode reported unknown id")
	}
	if got := values["CoolantTemp"]; got != -41 {
		t.Errorf("CoolantTemp = %g, want -41", got)
	}
}

func TestDecodeUnknownID(t *testing.T) {
	c := New(loadTestRegistry(t))

	if _, ok := c.Decode(0x7FF, []byte{1, 2, 3}); ok {
		t.Error("Decode should report false for an id no database knows")
	}
}

func TestDecodeShortPayloadZeroPadded(t *testing.T) {
	c := New(loadTestRegistry(t))

	// Only one byte present; the high byte of EngineRPM reads as zero.
	values, ok := c.Decode(256, []byte{0x10})
	if !ok {
		t.Fatal("Decode reported unknown id")
	}
	if got := values["EngineRPM"]; got != 4 {
		t.Errorf("EngineRPM = %g, want 4", got)
	}
	if got := values["CoolantTemp"]; got != -40 {
		t.Errorf("CoolantTemp = %g, want -40", got)
	}
}

func TestDecodeBigEndianRemap(t *testing.T) {
	c := New(loadTestRegistry(t))

	// Start bit 0 big-endian remaps to shift 7: bits 7..14 of the
	// payload word. 0x0180 >> 7 = 3.
	values, ok := c.Decode(512, []byte{0x80, 0x01})
	if !ok {
		t.Fatal("Decode reported unknown id")
	}
	if got := values["Motorola"]; got != 3 {
		t.Errorf("Motorola = %g, want 3", got)
	}
}

func TestDecodeFullWidthSignal(t *testing.T) {
	c := New(loadTestRegistry(t))

	values, ok := c.Decode(768, []byte{0x05, 0, 0, 0, 0, 0, 0, 0})
	if !ok {
		t.Fatal("Decode reported unknown id")
	}
	if got := values["Counter"]; got != 5 {
		t.Errorf("Counter = %g, want 5", got)
	}
}

func TestMessageName(t *testing.T) {
	c := New(loadTestRegistry(t))

	name, ok := c.MessageName(256)
	if !ok || name != "EngineData" {
		t.Errorf("MessageName(256) = %q, %v", name, ok)
	}
	if _, ok := c.MessageName(0x7FF); ok {
		t.Error("MessageName should report false for unknown id")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := New(loadTestRegistry(t))

	in := map[string]float64{
		"EngineRPM":   750,
		"CoolantTemp": 50,
	}
	data, err := c.Encode(256, in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(data) != 8 {
		t.Fatalf("payload length = %d, want declared DLC 8", len(data))
	}

	out, ok := c.Decode(256, data)
	if !ok {
		t.Fatal("Decode reported unknown id")
	}
	for name, want := range in {
		if got := out[name]; math.Abs(got-want) > 1e-9 {
			t.Errorf("%s = %g after round trip, want %g", name, got, want)
		}
	}
}

func TestEncodeUnknownID(t *testing.T) {
	c := New(loadTestRegistry(t))

	if _, err := c.Encode(0x7FF, map[string]float64{"X": 1}); err == nil {
		t.Error("Encode should fail for unknown id")
	}
}

func TestEncodeUnknownSignal(t *testing.T) {
	c := New(loadTestRegistry(t))

	if _, err := c.Encode(256, map[string]float64{"NoSuchSignal": 1}); err == nil {
		t.Error("Encode should fail for unknown signal name")
	}
}

func TestEncodeOutOfRangeDiagnostic(t *testing.T) {
	c := New(loadTestRegistry(t))

	// 500 is above CoolantTemp's declared max of 215; the encode still
	// succeeds but a diagnostic is queued.
	if _, err := c.Encode(256, map[string]float64{"CoolantTemp": 500}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	select {
	case d := <-c.Diagnostics():
		if d.CANID != 256 || d.Signal != "CoolantTemp" {
			t.Errorf("unexpected diagnostic: %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an out-of-range diagnostic")
	}
}

func TestEncodePayloadLengthFollowsDLC(t *testing.T) {
	c := New(loadTestRegistry(t))

	data, err := c.Encode(512, map[string]float64{"Motorola": 1})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(data) != 2 {
		t.Errorf("payload length = %d, want declared DLC 2", len(data))
	}
}
