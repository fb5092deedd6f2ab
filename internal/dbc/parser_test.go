package dbc

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDBC = `VERSION ""

BO_ 256 EngineData: 8 ECU
 SG_ EngineRPM : 0|16@1+ (0.25,0) [0|16383.75] "rpm" Dashboard
 SG_ CoolantTemp : 16|8@1- (1,-40) [-40|215] "degC" Dashboard

BO_ 512 VehicleSpeed: 8 ECU
 SG_ Speed : 0|16@1+ (0.01,0) [0|655.35] "km/h" Dashboard
 SG_ GearPosition : 16|4@1+ (1,0) [0|0] "" Dashboard

VAL_ 512 GearPosition 0 "Park" 1 "Reverse" 2 "Neutral" 3 "Drive" ;
`

func TestGrammarParserMessages(t *testing.T) {
	p := &GrammarParser{}
	db, err := p.Parse("sample", sampleDBC)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	msgs := db.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	engine, ok := db.Lookup(256)
	if !ok {
		t.Fatal("message 256 not found")
	}
	if engine.Name != "EngineData" || engine.DLC != 8 || engine.Sender != "ECU" {
		t.Errorf("unexpected message: %+v", engine)
	}
	if len(engine.Signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(engine.Signals))
	}

	rpm, ok := engine.Signal("EngineRPM")
	if !ok {
		t.Fatal("EngineRPM not found")
	}
	if rpm.StartBit != 0 || rpm.Length != 16 || rpm.ByteOrder != LittleEndian || rpm.Signed {
		t.Errorf("unexpected EngineRPM layout: %+v", rpm)
	}
	if rpm.Factor != 0.25 || rpm.Offset != 0 {
		t.Errorf("unexpected EngineRPM scale: factor=%g offset=%g", rpm.Factor, rpm.Offset)
	}
	if rpm.Unit != "rpm" {
		t.Errorf("unexpected unit %q", rpm.Unit)
	}
	if rpm.Min == nil || rpm.Max == nil || *rpm.Max != 16383.75 {
		t.Errorf("unexpected range: %v %v", rpm.Min, rpm.Max)
	}

	temp, _ := engine.Signal("CoolantTemp")
	if !temp.Signed {
		t.Error("CoolantTemp should be signed")
	}
	if temp.Offset != -40 {
		t.Errorf("unexpected CoolantTemp offset %g", temp.Offset)
	}
}

func TestGrammarParserValueTable(t *testing.T) {
	p := &GrammarParser{}
	db, err := p.Parse("sample", sampleDBC)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	speed, _ := db.Lookup(512)
	gear, ok := speed.Signal("GearPosition")
	if !ok {
		t.Fatal("GearPosition not found")
	}

	want := map[int64]string{0: "Park", 1: "Reverse", 2: "Neutral", 3: "Drive"}
	for raw, label := range want {
		got, ok := gear.Label(raw)
		if !ok || got != label {
			t.Errorf("Label(%d) = %q, %v; want %q", raw, got, ok, label)
		}
	}
	if _, ok := gear.Label(9); ok {
		t.Error("Label(9) should not exist")
	}
}

func TestGrammarParserUnconstrainedRange(t *testing.T) {
	p := &GrammarParser{}
	db, err := p.Parse("sample", sampleDBC)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	speed, _ := db.Lookup(512)
	gear, _ := speed.Signal("GearPosition")
	if gear.Min != nil || gear.Max != nil {
		t.Errorf("[0|0] range should be unconstrained, got %v %v", gear.Min, gear.Max)
	}
}

func TestGrammarParserDuplicateIDLastWins(t *testing.T) {
	content := `BO_ 256 First: 8 A
 SG_ Old : 0|8@1+ (1,0) [0|255] "" B

BO_ 256 Second: 8 A
 SG_ New : 0|8@1+ (1,0) [0|255] "" B
`
	p := &GrammarParser{}
	db, err := p.Parse("dup", content)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(db.Messages()) != 1 {
		t.Fatalf("expected 1 message, got %d", len(db.Messages()))
	}
	msg, _ := db.Lookup(256)
	if msg.Name != "Second" {
		t.Errorf("expected later definition to win, got %s", msg.Name)
	}
	if _, ok := msg.Signal("New"); !ok {
		t.Error("signal of later definition missing")
	}
}

func TestGrammarParserRejectsOversizedSignal(t *testing.T) {
	content := `BO_ 256 M: 8 A
 SG_ TooWide : 60|16@1+ (1,0) [0|0] "" B
 SG_ Fine : 0|8@1+ (1,0) [0|255] "" B
`
	p := &GrammarParser{}
	db, err := p.Parse("bad", content)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	msg, _ := db.Lookup(256)
	if _, ok := msg.Signal("TooWide"); ok {
		t.Error("signal exceeding the 64-bit window should be rejected")
	}
	if _, ok := msg.Signal("Fine"); !ok {
		t.Error("valid signal should survive a sibling rejection")
	}
}

func TestGrammarParserEmptyFile(t *testing.T) {
	p := &GrammarParser{}
	if _, err := p.Parse("empty", "VERSION \"\"\n"); err == nil {
		t.Error("expected error for file without message definitions")
	}
}

func TestRegexParserEquivalence(t *testing.T) {
	grammar, _ := (&GrammarParser{}).Parse("sample", sampleDBC)
	regex, err := (&RegexParser{}).Parse("sample", sampleDBC)
	if err != nil {
		t.Fatalf("regex Parse failed: %v", err)
	}

	for _, want := range grammar.Messages() {
		got, ok := regex.Lookup(want.ID)
		if !ok {
			t.Errorf("regex parser missing message 0x%X", want.ID)
			continue
		}
		if got.Name != want.Name || got.DLC != want.DLC {
			t.Errorf("message 0x%X mismatch: %s/%d vs %s/%d",
				want.ID, got.Name, got.DLC, want.Name, want.DLC)
		}
		for _, ws := range want.Signals {
			gs, ok := got.Signal(ws.Name)
			if !ok {
				t.Errorf("regex parser missing signal %s", ws.Name)
				continue
			}
			if gs.StartBit != ws.StartBit || gs.Length != ws.Length ||
				gs.ByteOrder != ws.ByteOrder || gs.Signed != ws.Signed ||
				gs.Factor != ws.Factor || gs.Offset != ws.Offset {
				t.Errorf("signal %s layout mismatch: %+v vs %+v", ws.Name, gs, ws)
			}
		}
	}
}

func TestNewParserStrategies(t *testing.T) {
	if _, err := NewParser(StrategyGrammar); err != nil {
		t.Errorf("grammar strategy: %v", err)
	}
	if _, err := NewParser(StrategyRegex); err != nil {
		t.Errorf("regex strategy: %v", err)
	}
	if _, err := NewParser(""); err != nil {
		t.Errorf("default strategy: %v", err)
	}
	if _, err := NewParser("yacc"); err == nil {
		t.Error("unknown strategy should fail")
	}
}

func TestRegistryLookupOrder(t *testing.T) {
	dir := t.TempDir()

	first := `BO_ 256 FromFirst: 8 A
 SG_ S : 0|8@1+ (1,0) [0|255] "" B
`
	second := `BO_ 256 FromSecond: 8 A
 SG_ S : 0|8@1+ (1,0) [0|255] "" B

BO_ 512 OnlySecond: 8 A
 SG_ S : 0|8@1+ (1,0) [0|255] "" B
`
	firstPath := filepath.Join(dir, "first.dbc")
	secondPath := filepath.Join(dir, "second.dbc")
	if err := os.WriteFile(firstPath, []byte(first), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(secondPath, []byte(second), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(&GrammarParser{})
	if _, err := reg.Load(firstPath); err != nil {
		t.Fatalf("load first: %v", err)
	}
	if _, err := reg.Load(secondPath); err != nil {
		t.Fatalf("load second: %v", err)
	}

	if names := reg.Names(); len(names) != 2 || names[0] != "first" || names[1] != "second" {
		t.Errorf("unexpected registration order: %v", names)
	}

	msg, ok := reg.Lookup(256)
	if !ok || msg.Name != "FromFirst" {
		t.Errorf("earlier database should win for 0x100, got %+v", msg)
	}
	if msg, ok := reg.Lookup(512); !ok || msg.Name != "OnlySecond" {
		t.Errorf("lookup should fall through to later databases, got %+v", msg)
	}

	if !reg.Unload("first") {
		t.Error("Unload(first) should succeed")
	}
	if msg, ok := reg.Lookup(256); !ok || msg.Name != "FromSecond" {
		t.Errorf("after unload, second database should serve 0x100, got %+v", msg)
	}
	if reg.Unload("first") {
		t.Error("double Unload should report false")
	}
}

func TestRegistryReloadKeepsPosition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.dbc")

	v1 := `BO_ 256 Original: 8 A
 SG_ S : 0|8@1+ (1,0) [0|255] "" B
`
	v2 := `BO_ 256 Updated: 8 A
 SG_ S : 0|8@1+ (1,0) [0|255] "" B
`
	if err := os.WriteFile(path, []byte(v1), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(&GrammarParser{})
	if _, err := reg.Load(path); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte(v2), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Load(path); err != nil {
		t.Fatal(err)
	}

	if names := reg.Names(); len(names) != 1 {
		t.Fatalf("reload should replace, not append: %v", names)
	}
	if msg, _ := reg.Lookup(256); msg.Name != "Updated" {
		t.Errorf("reload should serve the new definition, got %s", msg.Name)
	}
}
