package dbc

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ByteOrder identifies the bit-packing convention of a signal.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota // Intel, order code 1
	BigEndian                     // Motorola, order code 0
)

func (o ByteOrder) String() string {
	if o == BigEndian {
		return "big_endian"
	}
	return "little_endian"
}

// Signal describes one bit-packed field within a message payload
type Signal struct {
	Name      string
	StartBit  uint8
	Length    uint8
	ByteOrder ByteOrder
	Signed    bool
	Factor    float64
	Offset    float64
	Min       *float64
	Max       *float64
	Unit      string
	Receivers []string
	Values    map[int64]string
}

// Label returns the value-table label for a raw value, if one exists
func (s *Signal) Label(raw int64) (string, bool) {
	label, ok := s.Values[raw]
	return label, ok
}

// validate enforces the 64-bit payload window at load time
func (s *Signal) validate() error {
	if s.Length < 1 || s.Length > 64 {
		return fmt.Errorf("signal %s: bit length %d out of range 1-64", s.Name, s.Length)
	}
	if int(s.StartBit)+int(s.Length) > 64 {
		return fmt.Errorf("signal %s: start %d + length %d exceeds 64-bit payload window",
			s.Name, s.StartBit, s.Length)
	}
	return nil
}

// Message describes one CAN message and its ordered signal set
type Message struct {
	ID      uint32
	Name    string
	DLC     uint8
	Sender  string
	Signals []*Signal
}

// Signal looks up a signal by name
func (m *Message) Signal(name string) (*Signal, bool) {
	for _, s := range m.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// addSignal appends a signal, replacing any previous one with the same name
func (m *Message) addSignal(sig *Signal) {
	for i, s := range m.Signals {
		if s.Name == sig.Name {
			m.Signals[i] = sig
			return
		}
	}
	m.Signals = append(m.Signals, sig)
}

// Database holds the parsed contents of one message-database file
type Database struct {
	Name     string
	messages map[uint32]*Message
	order    []uint32
}

func newDatabase(name string) *Database {
	return &Database{Name: name, messages: make(map[uint32]*Message)}
}

// addMessage stores a message definition; a duplicate id replaces the
// earlier definition (last wins) with a warning
func (d *Database) addMessage(msg *Message) {
	if _, exists := d.messages[msg.ID]; exists {
		log.Printf("dbc: duplicate message id 0x%X in %s, keeping later definition %s",
			msg.ID, d.Name, msg.Name)
	} else {
		d.order = append(d.order, msg.ID)
	}
	d.messages[msg.ID] = msg
}

// Lookup finds the message definition for a frame id
func (d *Database) Lookup(frameID uint32) (*Message, bool) {
	msg, ok := d.messages[frameID]
	return msg, ok
}

// Messages returns all message definitions in file order
func (d *Database) Messages() []*Message {
	out := make([]*Message, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.messages[id])
	}
	return out
}

// Registry keeps loaded databases in registration order. Codec lookups
// try databases in this order; the first database containing the frame
// id wins.
type Registry struct {
	mu        sync.RWMutex
	parser    Parser
	databases []*Database
}

// NewRegistry creates a registry using the given parser strategy
func NewRegistry(parser Parser) *Registry {
	return &Registry{parser: parser}
}

// Load parses a database file and registers it under its base filename
func (r *Registry) Load(path string) (*Database, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read database file %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	db, err := r.parser.Parse(name, string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse database file %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Reload replaces an earlier database with the same name in place,
	// keeping its position in the lookup order.
	for i, existing := range r.databases {
		if existing.Name == name {
			r.databases[i] = db
			log.Printf("dbc: reloaded database %s with %d messages", name, len(db.messages))
			return db, nil
		}
	}

	r.databases = append(r.databases, db)
	log.Printf("dbc: loaded database %s with %d messages", name, len(db.messages))
	return db, nil
}

// Unload removes a database by name
func (r *Registry) Unload(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, db := range r.databases {
		if db.Name == name {
			r.databases = append(r.databases[:i], r.databases[i+1:]...)
			log.Printf("dbc: unloaded database %s", name)
			return true
		}
	}
	return false
}

// Names returns the names of loaded databases in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.databases))
	for i, db := range r.databases {
		names[i] = db.Name
	}
	return names
}

// Lookup finds the first message definition for a frame id across the
// registered databases, in registration order
func (r *Registry) Lookup(frameID uint32) (*Message, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, db := range r.databases {
		if msg, ok := db.Lookup(frameID); ok {
			return msg, true
		}
	}
	return nil, false
}

// Databases returns a snapshot of the registered databases in order
func (r *Registry) Databases() []*Database {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Database, len(r.databases))
	copy(out, r.databases)
	return out
}
