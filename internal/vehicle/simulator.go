package vehicle

import (
	"fmt"
	"log"
	"sync"
	"time"

	"can-testbench/internal/transport"
)

// Controller is the vehicle-state collaborator dispatched to by
// vehicle_control scenario steps
type Controller interface {
	Apply(control string, value any) error
}

// State frame ids published while the engine runs.
const (
	idEngineRPM   = 0x100
	idSpeed       = 0x200
	idCoolantTemp = 0x300
	idThrottle    = 0x400
	idBrake       = 0x500
	idBodyState   = 0x600
)

// State is a snapshot of the simulated vehicle
type State struct {
	EngineRunning  bool
	RPM            int
	Speed          int
	Throttle       int
	Brake          int
	Gear           int
	CoolantTemp    int
	Headlights     bool
	LeftIndicator  bool
	RightIndicator bool
}

// Simulator holds a simple vehicle model and publishes its state as
// CAN frames through the transport while the engine runs
type Simulator struct {
	mu      sync.Mutex
	adapter transport.Adapter
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	state   State
}

// New creates a simulator publishing through the given transport
func New(adapter transport.Adapter) *Simulator {
	return &Simulator{
		adapter: adapter,
		state:   State{Gear: 0, CoolantTemp: 70},
	}
}

// Start launches the simulation loop
func (s *Simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.simulationLoop(s.stopCh, s.done)
	log.Printf("vehicle: simulator started")
}

// Stop halts the simulation loop
func (s *Simulator) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stopCh, s.done
	s.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		log.Printf("vehicle: simulation loop did not stop in time")
	}
	log.Printf("vehicle: simulator stopped")
}

// Running reports whether the simulation loop is active
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// State returns a snapshot of the vehicle state
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Apply handles a vehicle_control step
func (s *Simulator) Apply(control string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch control {
	case "engine":
		on := toBool(value)
		s.state.EngineRunning = on
		if on {
			s.state.RPM = 800
		} else {
			s.state.RPM = 0
			s.state.Speed = 0
		}
	case "throttle":
		s.state.Throttle = clamp(toInt(value), 0, 100)
	case "brake":
		s.state.Brake = clamp(toInt(value), 0, 100)
	case "gear":
		s.state.Gear = clamp(toInt(value), 0, 8)
	case "headlights":
		s.state.Headlights = !s.state.Headlights
	case "indicator_left":
		s.state.LeftIndicator = !s.state.LeftIndicator
	case "indicator_right":
		s.state.RightIndicator = !s.state.RightIndicator
	default:
		return fmt.Errorf("unknown vehicle control: %s", control)
	}

	log.Printf("vehicle: applied control %s = %v", control, value)
	return nil
}

// simulationLoop advances the model and publishes state frames
func (s *Simulator) simulationLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.updateState()
			state := s.state
			s.mu.Unlock()

			if state.EngineRunning {
				s.publishState(state)
			}
		}
	}
}

// updateState advances the toy physics model one tick; callers hold
// the lock
func (s *Simulator) updateState() {
	if !s.state.EngineRunning {
		return
	}

	// RPM follows throttle toward 800 + throttle*52.
	target := 800 + s.state.Throttle*52
	s.state.RPM += (target - s.state.RPM) / 4

	// Speed follows throttle in gear, bleeds off under braking.
	if s.state.Gear > 0 {
		targetSpeed := s.state.Throttle * 2
		s.state.Speed += (targetSpeed - s.state.Speed) / 8
	}
	s.state.Speed -= s.state.Brake * s.state.Speed / 200
	if s.state.Speed < 0 {
		s.state.Speed = 0
	}

	// Coolant warms toward 90 while running.
	if s.state.CoolantTemp < 90 {
		s.state.CoolantTemp++
	}
}

// publishState sends the state frames through the transport
func (s *Simulator) publishState(state State) {
	rpm := state.RPM
	s.adapter.Send(idEngineRPM, []byte{byte(rpm), byte(rpm >> 8), 0, 0, 0, 0, 0, 0}, false)
	s.adapter.Send(idSpeed, []byte{byte(state.Speed), 0, 0, 0, 0, 0, 0, 0}, false)
	s.adapter.Send(idCoolantTemp, []byte{byte(state.CoolantTemp), 0, 0, 0, 0, 0, 0, 0}, false)
	s.adapter.Send(idThrottle, []byte{byte(state.Throttle), 0, 0, 0, 0, 0, 0, 0}, false)
	s.adapter.Send(idBrake, []byte{byte(state.Brake), 0, 0, 0, 0, 0, 0, 0}, false)

	gear := byte(state.Gear & 0x0F)
	var indicators byte
	if state.Headlights {
		indicators |= 0x01
	}
	if state.LeftIndicator {
		indicators |= 0x02
	}
	if state.RightIndicator {
		indicators |= 0x04
	}
	s.adapter.Send(idBodyState, []byte{gear, indicators, 0, 0, 0, 0, 0, 0}, false)
}

func toBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		return v == "true" || v == "on" || v == "1"
	default:
		return false
	}
}

func toInt(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case float64:
		return int(v)
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
