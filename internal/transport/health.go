package transport

import (
	"fmt"
	"log"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"can-testbench/internal/models"
)

var (
	flagsPattern     = regexp.MustCompile(`<([^>]+)>`)
	bitratePattern   = regexp.MustCompile(`bitrate (\d+)`)
	busStatePattern  = regexp.MustCompile(`state ([A-Z-]+)`)
	berrPattern      = regexp.MustCompile(`berr-counter tx (\d+) rx (\d+)`)
	restartPattern   = regexp.MustCompile(`restart-ms (\d+)`)
	restartedPattern = regexp.MustCompile(`re-started (\d+)`)
)

// HealthMonitor samples a CAN interface's link state and counters at a
// fixed interval. Snapshots are delivered on a channel; a slow consumer
// drops samples rather than stalling the loop.
type HealthMonitor struct {
	ifname   string
	interval time.Duration

	healthChan chan models.BusHealth
	stopCh     chan struct{}
	done       chan struct{}
}

// NewHealthMonitor creates a monitor for the named interface
func NewHealthMonitor(ifname string, interval time.Duration) *HealthMonitor {
	return &HealthMonitor{
		ifname:     ifname,
		interval:   interval,
		healthChan: make(chan models.BusHealth, 10),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Health returns the channel of periodic snapshots
func (m *HealthMonitor) Health() <-chan models.BusHealth {
	return m.healthChan
}

// Start launches the sampling loop
func (m *HealthMonitor) Start() {
	go m.sampleLoop()
}

// Stop halts the sampling loop
func (m *HealthMonitor) Stop() {
	close(m.stopCh)
	<-m.done
}

func (m *HealthMonitor) sampleLoop() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// First sample immediately so startup problems surface fast.
	m.sample()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *HealthMonitor) sample() {
	out, err := exec.Command("ip", "-details", "-statistics", "link", "show", m.ifname).CombinedOutput()
	if err != nil {
		log.Printf("transport: health sample for %s failed: %v", m.ifname, err)
		return
	}

	health, err := parseLinkOutput(string(out))
	if err != nil {
		log.Printf("transport: health sample for %s unreadable: %v", m.ifname, err)
		return
	}
	health.Interface = m.ifname
	health.Timestamp = time.Now().UTC()

	select {
	case m.healthChan <- health:
	default:
		log.Printf("transport: health channel full, dropping sample for %s", m.ifname)
	}
}

// parseLinkOutput extracts the fields of interest from the output of
// `ip -details -statistics link show <dev>`
func parseLinkOutput(output string) (models.BusHealth, error) {
	var health models.BusHealth

	lines := strings.Split(output, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return health, fmt.Errorf("empty link output")
	}

	for i, line := range lines {
		line = strings.TrimSpace(line)

		// Header line: "3: can0: <NOARP,UP,LOWER_UP,ECHO> mtu 16 ... state UP ..."
		if i == 0 {
			if m := flagsPattern.FindStringSubmatch(line); len(m) > 1 {
				if strings.Contains(m[1], "UP") {
					health.State = "UP"
				} else {
					health.State = "DOWN"
				}
			}
			continue
		}

		// "can state ERROR-ACTIVE (berr-counter tx 0 rx 0) restart-ms 100"
		if strings.HasPrefix(line, "can ") {
			if m := busStatePattern.FindStringSubmatch(line); len(m) > 1 {
				health.BusState = m[1]
			}
			if m := berrPattern.FindStringSubmatch(line); len(m) > 2 {
				health.TXErrorCounter, _ = strconv.Atoi(m[1])
				health.RXErrorCounter, _ = strconv.Atoi(m[2])
			}
			if m := restartPattern.FindStringSubmatch(line); len(m) > 1 {
				health.RestartMS, _ = strconv.Atoi(m[1])
			}
		}

		// "bitrate 500000 sample-point 0.875"
		if m := bitratePattern.FindStringSubmatch(line); len(m) > 1 && health.Bitrate == 0 {
			health.Bitrate, _ = strconv.Atoi(m[1])
		}

		// "re-started 2"
		if m := restartedPattern.FindStringSubmatch(line); len(m) > 1 {
			health.BusOffRestarts, _ = strconv.ParseUint(m[1], 10, 64)
		}

		// Counter tables; values sit on the line after the header.
		//   RX: bytes  packets  errors  dropped  overrun mcast
		//   123456     789      0       0        0       0
		if strings.HasPrefix(line, "RX:") && i+1 < len(lines) {
			fields := strings.Fields(lines[i+1])
			if len(fields) >= 4 {
				health.RXBytes, _ = strconv.ParseUint(fields[0], 10, 64)
				health.RXPackets, _ = strconv.ParseUint(fields[1], 10, 64)
				health.RXErrors, _ = strconv.ParseUint(fields[2], 10, 64)
				health.RXDropped, _ = strconv.ParseUint(fields[3], 10, 64)
			}
		}
		if strings.HasPrefix(line, "TX:") && i+1 < len(lines) {
			fields := strings.Fields(lines[i+1])
			if len(fields) >= 4 {
				health.TXBytes, _ = strconv.ParseUint(fields[0], 10, 64)
				health.TXPackets, _ = strconv.ParseUint(fields[1], 10, 64)
				health.TXErrors, _ = strconv.ParseUint(fields[2], 10, 64)
				health.TXDropped, _ = strconv.ParseUint(fields[3], 10, 64)
			}
		}
	}

	return health, nil
}
