package dbc

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
)

// RegexParser is the reduced fallback strategy. It recognizes only the
// BO_, SG_ and VAL_ record shapes by pattern matching and ignores
// everything else in the file.
type RegexParser struct{}

var (
	messagePattern = regexp.MustCompile(`BO_ (\d+) (\w+): (\d+) (\w+)`)
	signalPattern  = regexp.MustCompile(`SG_ (\w+) : (\d+)\|(\d+)@(\d+)([+-]) \(([^,]+),([^)]+)\) \[([^|]+)\|([^\]]+)\] "(.*?)" (.*)`)
	valuePattern   = regexp.MustCompile(`VAL_ (\d+) (\w+) (.*?);`)
	valuePair      = regexp.MustCompile(`(-?\d+) "([^"]*)"`)
	messageStart   = regexp.MustCompile(`^BO_ (\d+)`)
)

// Parse parses message, signal and value-table records
func (p *RegexParser) Parse(name, content string) (*Database, error) {
	db := newDatabase(name)

	for _, match := range messagePattern.FindAllStringSubmatch(content, -1) {
		id, _ := strconv.ParseUint(match[1], 10, 32)
		dlc, _ := strconv.ParseUint(match[3], 10, 8)
		if dlc > 8 {
			log.Printf("dbc: %s: message %s has DLC %d, skipping", name, match[2], dlc)
			continue
		}
		db.addMessage(&Message{
			ID:     uint32(id),
			Name:   match[2],
			DLC:    uint8(dlc),
			Sender: match[4],
		})
	}

	// Signals attach to the most recent BO_ record above them.
	var currentID uint32
	var haveMessage bool
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		if m := messageStart.FindStringSubmatch(line); m != nil {
			id, _ := strconv.ParseUint(m[1], 10, 32)
			currentID = uint32(id)
			haveMessage = true
			continue
		}

		m := signalPattern.FindStringSubmatch(line)
		if m == nil || !haveMessage {
			continue
		}

		msg, ok := db.Lookup(currentID)
		if !ok {
			continue
		}

		sig, err := signalFromMatch(m)
		if err != nil {
			log.Printf("dbc: %s: %v", name, err)
			continue
		}
		if err := sig.validate(); err != nil {
			log.Printf("dbc: %s: rejected: %v", name, err)
			continue
		}
		msg.addSignal(sig)
	}

	for _, match := range valuePattern.FindAllStringSubmatch(content, -1) {
		id, _ := strconv.ParseUint(match[1], 10, 32)
		msg, ok := db.Lookup(uint32(id))
		if !ok {
			continue
		}
		sig, ok := msg.Signal(match[2])
		if !ok {
			continue
		}

		values := make(map[int64]string)
		for _, pair := range valuePair.FindAllStringSubmatch(match[3], -1) {
			raw, _ := strconv.ParseInt(pair[1], 10, 64)
			values[raw] = pair[2]
		}
		sig.Values = values
	}

	if len(db.messages) == 0 {
		return nil, fmt.Errorf("no message definitions found")
	}
	return db, nil
}

// signalFromMatch builds a Signal from the submatches of signalPattern
func signalFromMatch(m []string) (*Signal, error) {
	start, err := strconv.ParseUint(m[2], 10, 8)
	if err != nil || start > 63 {
		return nil, fmt.Errorf("signal %s: invalid start bit %q", m[1], m[2])
	}
	length, err := strconv.ParseUint(m[3], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("signal %s: invalid bit length %q", m[1], m[3])
	}

	order := LittleEndian
	if m[4] == "0" {
		order = BigEndian
	}

	factor, err := strconv.ParseFloat(strings.TrimSpace(m[6]), 64)
	if err != nil {
		return nil, fmt.Errorf("signal %s: invalid factor %q", m[1], m[6])
	}
	offset, err := strconv.ParseFloat(strings.TrimSpace(m[7]), 64)
	if err != nil {
		return nil, fmt.Errorf("signal %s: invalid offset %q", m[1], m[7])
	}

	sig := &Signal{
		Name:      m[1],
		StartBit:  uint8(start),
		Length:    uint8(length),
		ByteOrder: order,
		Signed:    m[5] == "-",
		Factor:    factor,
		Offset:    offset,
		Unit:      m[10],
	}

	min, errMin := strconv.ParseFloat(strings.TrimSpace(m[8]), 64)
	max, errMax := strconv.ParseFloat(strings.TrimSpace(m[9]), 64)
	if errMin == nil && errMax == nil && (min != 0 || max != 0) {
		sig.Min = &min
		sig.Max = &max
	}

	for _, recv := range strings.Fields(strings.ReplaceAll(m[11], ",", " ")) {
		sig.Receivers = append(sig.Receivers, recv)
	}

	return sig, nil
}
