package database

import (
	"time"

	"can-testbench/internal/models"
)

// Logger is the persistence collaborator consumed by the core. All
// calls are fire-and-forget: they never block the caller and a
// storage failure never fails a scenario.
type Logger interface {
	// LogCANMessage records one frame with its direction and, when sent
	// by a scenario step, the owning scenario id.
	LogCANMessage(msg models.CANMessage)

	// LogEvent records a lifecycle event (scenario_start, scenario_end...).
	LogEvent(eventType, refID, description string)

	// LogError records a component error.
	LogError(source, code, message string)

	Close() error
}

// SignalSink receives decoded signal values for time-series storage
type SignalSink interface {
	WriteSignals(message string, canID uint32, values map[string]float64, ts time.Time)
	Close() error
}

// Nop is a Logger and SignalSink that discards everything; used when
// persistence is disabled and in tests
type Nop struct{}

func (Nop) LogCANMessage(models.CANMessage)                            {}
func (Nop) LogEvent(string, string, string)                            {}
func (Nop) LogError(string, string, string)                            {}
func (Nop) WriteSignals(string, uint32, map[string]float64, time.Time) {}
func (Nop) Close() error                                               { return nil }
