package models

import (
	"fmt"
	"strings"
	"time"
)

// CANFrame represents a CAN 2.0 frame
type CANFrame struct {
	ID       uint32
	DLC      uint8
	Data     [8]byte
	Extended bool
}

// Validation limits for arbitration identifiers.
const (
	MaxStandardID = 0x7FF
	MaxExtendedID = 0x1FFFFFFF
)

// Validate checks the frame against classical CAN limits
func (f CANFrame) Validate() error {
	if f.DLC > 8 {
		return fmt.Errorf("invalid DLC %d", f.DLC)
	}
	limit := uint32(MaxStandardID)
	if f.Extended {
		limit = MaxExtendedID
	}
	if f.ID > limit {
		return fmt.Errorf("invalid CAN ID 0x%X", f.ID)
	}
	return nil
}

// Payload returns the first DLC bytes of the frame data
func (f CANFrame) Payload() []byte {
	n := f.DLC
	if n > 8 {
		n = 8
	}
	return f.Data[:n]
}

// CANMessage includes the CAN frame and timestamp
type CANMessage struct {
	Frame      CANFrame
	Timestamp  time.Time
	Interface  string
	IsRx       bool
	ScenarioID string
}

// NewMessage builds a timestamped message from raw frame fields
func NewMessage(id uint32, data []byte, extended bool, iface string, isRx bool) CANMessage {
	frame := CANFrame{ID: id, Extended: extended}
	if len(data) > 8 {
		data = data[:8]
	}
	frame.DLC = uint8(len(data))
	copy(frame.Data[:], data)

	return CANMessage{
		Frame:     frame,
		Timestamp: time.Now().UTC(),
		Interface: iface,
		IsRx:      isRx,
	}
}

// Direction returns "incoming" or "outgoing" for log records
func (m CANMessage) Direction() string {
	if m.IsRx {
		return "incoming"
	}
	return "outgoing"
}

// CANMessageResponse represents a CAN message in API response
type CANMessageResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Interface string    `json:"interface"`
	CANID     uint32    `json:"can_id"`
	CANIDHex  string    `json:"can_id_hex"`
	DLC       uint8     `json:"dlc"`
	Data      []uint8   `json:"data"`
	DataHex   string    `json:"data_hex"`
	Direction string    `json:"direction"`
}

// ToResponse converts a message to its API representation
func (m CANMessage) ToResponse() CANMessageResponse {
	return CANMessageResponse{
		Timestamp: m.Timestamp,
		Interface: m.Interface,
		CANID:     m.Frame.ID,
		CANIDHex:  fmt.Sprintf("0x%X", m.Frame.ID),
		DLC:       m.Frame.DLC,
		Data:      m.Frame.Payload(),
		DataHex:   HexBytes(m.Frame.Payload()),
		Direction: m.Direction(),
	}
}

// HexBytes renders data bytes as space-separated hex pairs
func HexBytes(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
