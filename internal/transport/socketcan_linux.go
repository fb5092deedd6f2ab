package transport

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"can-testbench/internal/models"
)

const (
	canRaw       = 1
	solCanRaw    = 101
	canRawFilter = 1

	canEffFlag uint32 = 0x80000000
	canRtrFlag uint32 = 0x40000000
	canEffMask uint32 = 0x1FFFFFFF
	canSffMask uint32 = 0x7FF

	// Classical CAN frame is 16 bytes on the wire:
	// 0..3 can_id (with EFF/RTR flags), 4 dlc, 5..7 padding, 8..15 data.
	canFrameSize = 16
)

// SocketCAN is the real-hardware transport adapter over a raw
// SocketCAN socket
type SocketCAN struct {
	mu        sync.Mutex
	connected bool
	socket    int

	ifname  string
	filters []uint32
	msgChan chan models.CANMessage
}

// NewSocketCAN creates an adapter for the named CAN interface
func NewSocketCAN(ifname string, filters []uint32) *SocketCAN {
	return &SocketCAN{
		ifname:  ifname,
		filters: filters,
		socket:  -1,
		msgChan: make(chan models.CANMessage, 1000),
	}
}

// Name identifies the interface for log records
func (s *SocketCAN) Name() string { return s.ifname }

// Connect opens and binds the raw CAN socket and starts the read loop
func (s *SocketCAN) Connect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return true
	}

	socket, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, canRaw)
	if err != nil {
		log.Printf("transport: failed to create CAN socket: %v", err)
		return false
	}

	ifreq, err := unix.NewIfreq(s.ifname)
	if err != nil {
		unix.Close(socket)
		log.Printf("transport: failed to create ifreq: %v", err)
		return false
	}
	if err := unix.IoctlIfreq(socket, unix.SIOCGIFINDEX, ifreq); err != nil {
		unix.Close(socket)
		log.Printf("transport: failed to get interface index for %s: %v", s.ifname, err)
		return false
	}

	addr := &unix.SockaddrCAN{Ifindex: int(ifreq.Uint32())}
	if err := unix.Bind(socket, addr); err != nil {
		unix.Close(socket)
		log.Printf("transport: failed to bind socket to %s: %v", s.ifname, err)
		return false
	}

	s.socket = socket
	s.connected = true

	if len(s.filters) > 0 {
		if err := s.setFilter(s.filters); err != nil {
			log.Printf("transport: failed to set filters on %s: %v", s.ifname, err)
		}
	}

	go s.readLoop(socket)

	log.Printf("transport: connected to CAN interface %s", s.ifname)
	return true
}

// Disconnect closes the socket, which also terminates the read loop
func (s *SocketCAN) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return
	}
	s.connected = false
	unix.Close(s.socket)
	s.socket = -1
	log.Printf("transport: disconnected from CAN interface %s", s.ifname)
}

// Send transmits one frame in the classical can_frame layout
func (s *SocketCAN) Send(id uint32, data []byte, extended bool) bool {
	s.mu.Lock()
	socket := s.socket
	connected := s.connected
	s.mu.Unlock()

	if !connected {
		return false
	}
	if len(data) > 8 {
		log.Printf("transport: refusing to send frame 0x%X with %d data bytes", id, len(data))
		return false
	}

	wireID := id
	if extended {
		wireID = (id & canEffMask) | canEffFlag
	} else {
		wireID = id & canSffMask
	}

	buf := make([]byte, canFrameSize)
	binary.LittleEndian.PutUint32(buf[0:4], wireID)
	buf[4] = uint8(len(data))
	copy(buf[8:], data)

	if _, err := unix.Write(socket, buf); err != nil {
		log.Printf("transport: send error on %s: %v", s.ifname, err)
		return false
	}
	return true
}

// Receive waits up to timeout for the next frame from the read loop
func (s *SocketCAN) Receive(timeout time.Duration) (models.CANMessage, bool) {
	if timeout <= 0 {
		select {
		case msg := <-s.msgChan:
			return msg, true
		default:
			return models.CANMessage{}, false
		}
	}

	select {
	case msg := <-s.msgChan:
		return msg, true
	case <-time.After(timeout):
		return models.CANMessage{}, false
	}
}

// readLoop continuously reads CAN frames from the socket
func (s *SocketCAN) readLoop(socket int) {
	buf := make([]byte, canFrameSize)

	for {
		n, err := unix.Read(socket, buf)
		if err != nil {
			s.mu.Lock()
			connected := s.connected
			s.mu.Unlock()
			if !connected {
				return
			}
			log.Printf("transport: read error on %s: %v", s.ifname, err)
			continue
		}
		if n < canFrameSize {
			log.Printf("transport: incomplete CAN frame received: %d bytes", n)
			continue
		}

		wireID := binary.LittleEndian.Uint32(buf[0:4])
		if wireID&canRtrFlag != 0 {
			continue
		}

		extended := wireID&canEffFlag != 0
		id := wireID & canSffMask
		if extended {
			id = wireID & canEffMask
		}

		dlc := buf[4]
		if dlc > 8 {
			dlc = 8
		}

		msg := models.NewMessage(id, buf[8:8+dlc], extended, s.ifname, true)

		select {
		case s.msgChan <- msg:
		default:
			log.Printf("transport: receive queue full on %s, dropping frame", s.ifname)
		}
	}
}

// setFilter installs exact-match id filters on the raw socket
func (s *SocketCAN) setFilter(filters []uint32) error {
	if len(filters) == 0 {
		return nil
	}

	// CAN filter structure: 8 bytes (4 for id, 4 for mask).
	filterBuf := make([]byte, len(filters)*8)
	for i, id := range filters {
		offset := i * 8
		binary.LittleEndian.PutUint32(filterBuf[offset:], id)
		binary.LittleEndian.PutUint32(filterBuf[offset+4:], 0xFFFFFFFF)
	}

	_, _, errno := unix.Syscall6(
		unix.SYS_SETSOCKOPT,
		uintptr(s.socket),
		uintptr(solCanRaw),
		uintptr(canRawFilter),
		uintptr(unsafe.Pointer(&filterBuf[0])),
		uintptr(len(filterBuf)),
		0,
	)
	if errno != 0 {
		return fmt.Errorf("failed to set filter: %v", errno)
	}
	return nil
}
