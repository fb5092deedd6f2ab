package transport

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"can-testbench/internal/models"
)

// Catalog of ids synthesized by the virtual traffic generator.
var simulatedIDs = []uint32{
	0x100, // Engine RPM
	0x200, // Vehicle Speed
	0x300, // Coolant Temperature
	0x400, // Throttle Position
	0x500, // Brake Pressure
}

// VirtualConfig controls the virtual bus behavior
type VirtualConfig struct {
	// GenerateTraffic enables the periodic traffic generator.
	GenerateTraffic bool
	// TrafficRate is generated messages per second.
	TrafficRate float64
}

// Virtual is an in-memory CAN interface for testing without hardware.
// Every transmitted frame is looped back into its own receive queue,
// and an optional generator synthesizes periodic traffic for a fixed
// id catalog.
type Virtual struct {
	mu        sync.Mutex
	connected bool
	stopCh    chan struct{}
	done      chan struct{}

	config VirtualConfig
	rxChan chan models.CANMessage
}

// NewVirtual creates a virtual CAN interface
func NewVirtual(config VirtualConfig) *Virtual {
	if config.TrafficRate <= 0 {
		config.TrafficRate = 10.0
	}
	return &Virtual{
		config: config,
		rxChan: make(chan models.CANMessage, 1000),
	}
}

// Name identifies the interface for log records
func (v *Virtual) Name() string { return "virtual" }

// Connect starts the simulation loop; always succeeds
func (v *Virtual) Connect() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.connected {
		return true
	}

	v.stopCh = make(chan struct{})
	v.done = make(chan struct{})
	v.connected = true
	go v.simulationLoop(v.stopCh, v.done)

	log.Printf("transport: connected to virtual CAN interface")
	return true
}

// Disconnect stops the simulation loop
func (v *Virtual) Disconnect() {
	v.mu.Lock()
	if !v.connected {
		v.mu.Unlock()
		return
	}
	v.connected = false
	stop, done := v.stopCh, v.done
	v.mu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		log.Printf("transport: virtual simulation loop did not stop in time")
	}
	log.Printf("transport: disconnected from virtual CAN interface")
}

// Send loops the frame back into the receive queue
func (v *Virtual) Send(id uint32, data []byte, extended bool) bool {
	v.mu.Lock()
	connected := v.connected
	v.mu.Unlock()
	if !connected {
		return false
	}

	msg := models.NewMessage(id, data, extended, v.Name(), false)
	if err := msg.Frame.Validate(); err != nil {
		log.Printf("transport: refusing to send invalid frame: %v", err)
		return false
	}

	rx := msg
	rx.IsRx = true
	v.deliver(rx)
	return true
}

// Receive waits up to timeout for the next frame
func (v *Virtual) Receive(timeout time.Duration) (models.CANMessage, bool) {
	if timeout <= 0 {
		select {
		case msg := <-v.rxChan:
			return msg, true
		default:
			return models.CANMessage{}, false
		}
	}

	select {
	case msg := <-v.rxChan:
		return msg, true
	case <-time.After(timeout):
		return models.CANMessage{}, false
	}
}

// deliver queues a frame, dropping it when the queue is full
func (v *Virtual) deliver(msg models.CANMessage) {
	select {
	case v.rxChan <- msg:
	default:
		log.Printf("transport: virtual receive queue full, dropping frame 0x%X", msg.Frame.ID)
	}
}

// simulationLoop synthesizes periodic traffic until stopped
func (v *Virtual) simulationLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if !v.config.GenerateTraffic {
		<-stop
		return
	}

	interval := time.Duration(float64(time.Second) / v.config.TrafficRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			v.deliver(v.generateMessage())
		}
	}
}

// generateMessage synthesizes one frame for a random catalog id
func (v *Virtual) generateMessage() models.CANMessage {
	id := simulatedIDs[rand.Intn(len(simulatedIDs))]

	var data []byte
	switch id {
	case 0x100: // Engine RPM, 800-6000
		rpm := 800 + rand.Intn(5200)
		data = []byte{byte(rpm), byte(rpm >> 8), 0, 0, 0, 0, 0, 0}
	case 0x200: // Vehicle Speed, 0-200 km/h
		data = []byte{byte(rand.Intn(201)), 0, 0, 0, 0, 0, 0, 0}
	case 0x300: // Coolant Temperature, 60-120 degC
		data = []byte{byte(60 + rand.Intn(61)), 0, 0, 0, 0, 0, 0, 0}
	case 0x400: // Throttle Position, 0-100%
		data = []byte{byte(rand.Intn(101)), 0, 0, 0, 0, 0, 0, 0}
	case 0x500: // Brake Pressure, 0-100%
		data = []byte{byte(rand.Intn(101)), 0, 0, 0, 0, 0, 0, 0}
	default:
		data = make([]byte, 8)
		for i := range data {
			data[i] = byte(rand.Intn(256))
		}
	}

	return models.NewMessage(id, data, false, v.Name(), true)
}
