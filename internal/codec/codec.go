package codec

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"time"

	"can-testbench/internal/dbc"
)

// Diagnostic is a non-fatal codec warning, e.g. an encoded value
// outside the signal's declared physical range
type Diagnostic struct {
	Timestamp time.Time
	CANID     uint32
	Signal    string
	Message   string
}

// Codec decodes and encodes bit-packed signals against the databases
// held by a dbc.Registry. Databases are tried in registration order;
// the first one containing the frame id wins.
type Codec struct {
	registry *dbc.Registry
	diagChan chan Diagnostic
}

// New creates a codec over the given registry
func New(registry *dbc.Registry) *Codec {
	return &Codec{
		registry: registry,
		diagChan: make(chan Diagnostic, 64),
	}
}

// Diagnostics returns the channel of codec warnings
func (c *Codec) Diagnostics() <-chan Diagnostic {
	return c.diagChan
}

// diagnose queues a diagnostic without ever blocking the caller
func (c *Codec) diagnose(canID uint32, signal, message string) {
	d := Diagnostic{
		Timestamp: time.Now().UTC(),
		CANID:     canID,
		Signal:    signal,
		Message:   message,
	}
	select {
	case c.diagChan <- d:
	default:
		log.Printf("codec: diagnostic channel full, dropping: %s", message)
	}
}

// Decode interprets the frame payload as named physical signal values.
// The second return is false when no loaded database recognizes the
// frame id. A failure on one signal does not abort the rest of the
// frame; partial results are returned.
func (c *Codec) Decode(canID uint32, data []byte) (map[string]float64, bool) {
	msg, ok := c.registry.Lookup(canID)
	if !ok {
		return nil, false
	}

	// Missing payload bytes read as zero.
	var padded [8]byte
	copy(padded[:], data)
	raw64 := binary.LittleEndian.Uint64(padded[:])

	values := make(map[string]float64, len(msg.Signals))
	for _, sig := range msg.Signals {
		raw, err := extractBits(raw64, sig)
		if err != nil {
			log.Printf("codec: error decoding signal %s in 0x%X: %v", sig.Name, canID, err)
			c.diagnose(canID, sig.Name, err.Error())
			continue
		}
		values[sig.Name] = float64(raw)*sig.Factor + sig.Offset
	}
	return values, true
}

// MessageName returns the database name of a frame id, if any
func (c *Codec) MessageName(canID uint32) (string, bool) {
	msg, ok := c.registry.Lookup(canID)
	if !ok {
		return "", false
	}
	return msg.Name, true
}

// extractBits pulls the raw signal value out of the payload treated as
// one 64-bit little-endian integer, with two's-complement sign
// extension for signed signals.
//
// The big-endian (Motorola) remap mirrors the established extraction
// formula `adjusted = (7 - bit_in_byte) + byte_index*8`. It is a
// simplified approximation and is kept as-is for compatibility with
// existing databases and logs.
func extractBits(raw64 uint64, sig *dbc.Signal) (int64, error) {
	if sig.Length < 1 || sig.Length > 64 {
		return 0, fmt.Errorf("bit length %d out of range", sig.Length)
	}

	shift := uint(sig.StartBit)
	if sig.ByteOrder == dbc.BigEndian {
		byteIndex := uint(sig.StartBit) / 8
		bitIndex := uint(sig.StartBit) % 8
		shift = (7 - bitIndex) + byteIndex*8
	}

	raw := (raw64 >> shift) & lengthMask(sig.Length)

	if sig.Signed && sig.Length < 64 && raw&(1<<(sig.Length-1)) != 0 {
		return int64(raw) - int64(1)<<sig.Length, nil
	}
	return int64(raw), nil
}

// lengthMask returns a mask of the given width; 64 degenerates to the
// full-width mask
func lengthMask(length uint8) uint64 {
	if length >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << length) - 1
}

// Encode packs named physical values into a payload of the message's
// declared length. Unknown frame ids and unknown signal names are
// reported as errors, never silently dropped. Values outside a
// signal's [min,max] range are accepted but flagged on the
// diagnostics channel.
func (c *Codec) Encode(canID uint32, values map[string]float64) ([]byte, error) {
	msg, ok := c.registry.Lookup(canID)
	if !ok {
		return nil, fmt.Errorf("no loaded database recognizes id 0x%X", canID)
	}

	var raw64 uint64
	for name, value := range values {
		sig, ok := msg.Signal(name)
		if !ok {
			return nil, fmt.Errorf("unknown signal %s for message %s (0x%X)", name, msg.Name, canID)
		}
		if sig.Factor == 0 {
			return nil, fmt.Errorf("signal %s has zero factor", name)
		}

		if sig.Min != nil && sig.Max != nil && (value < *sig.Min || value > *sig.Max) {
			c.diagnose(canID, name, fmt.Sprintf("value %g outside range [%g,%g]",
				value, *sig.Min, *sig.Max))
		}

		raw := int64(math.Round((value - sig.Offset) / sig.Factor))

		shift := uint(sig.StartBit)
		if sig.ByteOrder == dbc.BigEndian {
			byteIndex := uint(sig.StartBit) / 8
			bitIndex := uint(sig.StartBit) % 8
			shift = (7 - bitIndex) + byteIndex*8
		}

		raw64 |= (uint64(raw) & lengthMask(sig.Length)) << shift
	}

	var padded [8]byte
	binary.LittleEndian.PutUint64(padded[:], raw64)

	dlc := msg.DLC
	if dlc > 8 {
		dlc = 8
	}
	out := make([]byte, dlc)
	copy(out, padded[:dlc])
	return out, nil
}
