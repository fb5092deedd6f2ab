package transport

import (
	"time"

	"can-testbench/internal/models"
)

// Adapter abstracts sending and receiving CAN frames. Implementations
// cover the virtual simulator bus and real SocketCAN hardware; send
// and receive failures surface as booleans and are logged, never
// panicked. There is no transport-level retransmission.
type Adapter interface {
	// Name identifies the interface for log records ("virtual", "can0").
	Name() string

	// Connect opens the interface. Safe to call when already connected.
	Connect() bool

	// Disconnect closes the interface and stops background work.
	Disconnect()

	// Send transmits one frame. Returns false when disconnected or the
	// frame is invalid.
	Send(id uint32, data []byte, extended bool) bool

	// Receive waits up to timeout for the next incoming frame. A zero
	// timeout polls without blocking. The second return is false when
	// nothing arrived.
	Receive(timeout time.Duration) (models.CANMessage, bool)
}
