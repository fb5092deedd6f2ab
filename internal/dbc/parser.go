package dbc

import (
	"bufio"
	"fmt"
	"log"
	"strconv"
	"strings"
)

// Parser turns the text of a message-database file into a Database.
// Two interchangeable strategies exist: the grammar parser, which
// tokenizes records field by field, and the regex fallback, which
// recognizes only the BO_/SG_/VAL_ record shapes. Both produce the
// same in-memory shape so the codec stays parser-agnostic.
type Parser interface {
	Parse(name, content string) (*Database, error)
}

// Parser strategy names accepted by NewParser.
const (
	StrategyGrammar = "grammar"
	StrategyRegex   = "regex"
)

// NewParser selects a parser strategy by name
func NewParser(strategy string) (Parser, error) {
	switch strategy {
	case StrategyGrammar, "":
		return &GrammarParser{}, nil
	case StrategyRegex:
		return &RegexParser{}, nil
	default:
		return nil, fmt.Errorf("unknown DBC parser strategy: %s", strategy)
	}
}

// GrammarParser is the full line-oriented parser. It walks the file
// record by record, attaching SG_ lines to the preceding BO_ message
// and VAL_ tables to their message/signal pair.
type GrammarParser struct{}

// Parse parses message, signal and value-table records
func (p *GrammarParser) Parse(name, content string) (*Database, error) {
	db := newDatabase(name)

	var current *Message

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.HasPrefix(line, "BO_ "):
			msg, err := parseMessageLine(line)
			if err != nil {
				log.Printf("dbc: %s line %d: %v", name, lineNo, err)
				current = nil
				continue
			}
			db.addMessage(msg)
			current = msg

		case strings.HasPrefix(line, "SG_ "):
			if current == nil {
				log.Printf("dbc: %s line %d: signal record outside message block", name, lineNo)
				continue
			}
			sig, err := parseSignalLine(line)
			if err != nil {
				log.Printf("dbc: %s line %d: %v", name, lineNo, err)
				continue
			}
			if err := sig.validate(); err != nil {
				log.Printf("dbc: %s line %d: rejected: %v", name, lineNo, err)
				continue
			}
			current.addSignal(sig)

		case strings.HasPrefix(line, "VAL_ "):
			if err := parseValueTableLine(line, db); err != nil {
				log.Printf("dbc: %s line %d: %v", name, lineNo, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading database content: %w", err)
	}

	if len(db.messages) == 0 {
		return nil, fmt.Errorf("no message definitions found")
	}
	return db, nil
}

// parseMessageLine parses `BO_ <id> <name>: <dlc> <sender>`
func parseMessageLine(line string) (*Message, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return nil, fmt.Errorf("malformed message record: %q", line)
	}

	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("malformed message id %q: %w", fields[1], err)
	}

	msgName := strings.TrimSuffix(fields[2], ":")
	if msgName == "" {
		return nil, fmt.Errorf("malformed message record: empty name")
	}

	dlc, err := strconv.ParseUint(fields[3], 10, 8)
	if err != nil || dlc > 8 {
		return nil, fmt.Errorf("malformed message DLC %q", fields[3])
	}

	sender := ""
	if len(fields) > 4 {
		sender = fields[4]
	}

	return &Message{
		ID:     uint32(id),
		Name:   msgName,
		DLC:    uint8(dlc),
		Sender: sender,
	}, nil
}

// parseSignalLine parses
// `SG_ <name> : <start>|<len>@<order><sign> (<factor>,<offset>) [<min>|<max>] "<unit>" <receivers>`
func parseSignalLine(line string) (*Signal, error) {
	rest := strings.TrimPrefix(line, "SG_ ")

	colon := strings.Index(rest, ":")
	if colon < 0 {
		return nil, fmt.Errorf("malformed signal record: missing ':'")
	}

	// Multiplexer indicators between the name and the colon are ignored.
	nameFields := strings.Fields(rest[:colon])
	if len(nameFields) == 0 {
		return nil, fmt.Errorf("malformed signal record: empty name")
	}
	sig := &Signal{Name: nameFields[0], Factor: 1.0}

	spec := strings.TrimSpace(rest[colon+1:])
	fields := strings.Fields(spec)
	if len(fields) < 1 {
		return nil, fmt.Errorf("signal %s: missing bit specification", sig.Name)
	}

	if err := parseBitSpec(fields[0], sig); err != nil {
		return nil, err
	}

	for _, field := range fields[1:] {
		switch {
		case strings.HasPrefix(field, "("):
			if err := parseScaleSpec(field, sig); err != nil {
				return nil, err
			}
		case strings.HasPrefix(field, "["):
			if err := parseRangeSpec(field, sig); err != nil {
				return nil, err
			}
		case strings.HasPrefix(field, `"`):
			sig.Unit = strings.Trim(field, `"`)
		default:
			for _, recv := range strings.Split(field, ",") {
				if recv != "" {
					sig.Receivers = append(sig.Receivers, recv)
				}
			}
		}
	}

	return sig, nil
}

// parseBitSpec parses `<start>|<len>@<order><sign>`
func parseBitSpec(spec string, sig *Signal) error {
	pipe := strings.Index(spec, "|")
	at := strings.Index(spec, "@")
	if pipe < 0 || at < pipe || at+2 > len(spec) {
		return fmt.Errorf("signal %s: malformed bit specification %q", sig.Name, spec)
	}

	start, err := strconv.ParseUint(spec[:pipe], 10, 8)
	if err != nil || start > 63 {
		return fmt.Errorf("signal %s: invalid start bit %q", sig.Name, spec[:pipe])
	}
	length, err := strconv.ParseUint(spec[pipe+1:at], 10, 8)
	if err != nil {
		return fmt.Errorf("signal %s: invalid bit length %q", sig.Name, spec[pipe+1:at])
	}

	sig.StartBit = uint8(start)
	sig.Length = uint8(length)

	// Byte-order code: 1 = little-endian (Intel), 0 = big-endian (Motorola).
	switch spec[at+1] {
	case '1':
		sig.ByteOrder = LittleEndian
	case '0':
		sig.ByteOrder = BigEndian
	default:
		return fmt.Errorf("signal %s: invalid byte order code %q", sig.Name, spec[at+1])
	}

	if at+2 < len(spec) {
		sig.Signed = spec[at+2] == '-'
	}
	return nil
}

// parseScaleSpec parses `(<factor>,<offset>)`
func parseScaleSpec(spec string, sig *Signal) error {
	inner := strings.Trim(spec, "()")
	parts := strings.SplitN(inner, ",", 2)
	if len(parts) != 2 {
		return fmt.Errorf("signal %s: malformed scale %q", sig.Name, spec)
	}

	factor, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return fmt.Errorf("signal %s: invalid factor %q", sig.Name, parts[0])
	}
	offset, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return fmt.Errorf("signal %s: invalid offset %q", sig.Name, parts[1])
	}

	sig.Factor = factor
	sig.Offset = offset
	return nil
}

// parseRangeSpec parses `[<min>|<max>]`
func parseRangeSpec(spec string, sig *Signal) error {
	inner := strings.Trim(spec, "[]")
	parts := strings.SplitN(inner, "|", 2)
	if len(parts) != 2 {
		return fmt.Errorf("signal %s: malformed range %q", sig.Name, spec)
	}

	min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return fmt.Errorf("signal %s: invalid minimum %q", sig.Name, parts[0])
	}
	max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return fmt.Errorf("signal %s: invalid maximum %q", sig.Name, parts[1])
	}

	// A [0|0] range means unconstrained in common DBC exports.
	if min != 0 || max != 0 {
		sig.Min = &min
		sig.Max = &max
	}
	return nil
}

// parseValueTableLine parses `VAL_ <id> <signal> <value> "<label>" ... ;`
func parseValueTableLine(line string, db *Database) error {
	rest := strings.TrimPrefix(line, "VAL_ ")
	rest = strings.TrimSuffix(strings.TrimSpace(rest), ";")

	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return fmt.Errorf("malformed value table record")
	}

	id, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return fmt.Errorf("malformed value table id %q: %w", fields[0], err)
	}
	signalName := fields[1]

	msg, ok := db.Lookup(uint32(id))
	if !ok {
		return fmt.Errorf("value table for unknown message id %d", id)
	}
	sig, ok := msg.Signal(signalName)
	if !ok {
		return fmt.Errorf("value table for unknown signal %s in message %d", signalName, id)
	}

	values, err := parseValuePairs(strings.Join(fields[2:], " "))
	if err != nil {
		return err
	}
	sig.Values = values
	return nil
}

// parseValuePairs parses a `<value> "<label>"` sequence
func parseValuePairs(spec string) (map[int64]string, error) {
	values := make(map[int64]string)
	rest := spec
	for {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			break
		}

		space := strings.IndexAny(rest, " \t")
		if space < 0 {
			return nil, fmt.Errorf("malformed value table entry %q", rest)
		}
		raw, err := strconv.ParseInt(rest[:space], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed value table value %q: %w", rest[:space], err)
		}

		rest = strings.TrimSpace(rest[space:])
		if !strings.HasPrefix(rest, `"`) {
			return nil, fmt.Errorf("malformed value table label near %q", rest)
		}
		end := strings.Index(rest[1:], `"`)
		if end < 0 {
			return nil, fmt.Errorf("unterminated value table label near %q", rest)
		}

		values[raw] = rest[1 : end+1]
		rest = rest[end+2:]
	}
	return values, nil
}
