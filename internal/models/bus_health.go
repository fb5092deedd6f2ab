package models

import "time"

// BusHealth is a periodic snapshot of a CAN interface's link state and
// counters, taken from the kernel's view of the device
type BusHealth struct {
	Interface string    `json:"interface"`
	Timestamp time.Time `json:"timestamp"`

	// Link state
	State   string `json:"state"` // UP or DOWN
	Bitrate int    `json:"bitrate"`

	// Controller state (ERROR-ACTIVE, ERROR-PASSIVE, BUS-OFF)
	BusState       string `json:"bus_state"`
	TXErrorCounter int    `json:"tx_error_counter"`
	RXErrorCounter int    `json:"rx_error_counter"`
	RestartMS      int    `json:"restart_ms"`

	// Traffic counters
	RXPackets uint64 `json:"rx_packets"`
	RXBytes   uint64 `json:"rx_bytes"`
	RXErrors  uint64 `json:"rx_errors"`
	RXDropped uint64 `json:"rx_dropped"`
	TXPackets uint64 `json:"tx_packets"`
	TXBytes   uint64 `json:"tx_bytes"`
	TXErrors  uint64 `json:"tx_errors"`
	TXDropped uint64 `json:"tx_dropped"`

	BusOffRestarts uint64 `json:"bus_off_restarts"`
}

// Degraded reports whether the controller left the normal
// error-active state
func (h BusHealth) Degraded() bool {
	return h.BusState != "" && h.BusState != "ERROR-ACTIVE"
}
