package plugin

import (
	"errors"
	"testing"
)

// countingPlugin tracks lifecycle calls
type countingPlugin struct {
	name      string
	initCount int
	cleanups  int
	initErr   error
}

func (p *countingPlugin) Name() string { return p.name }

func (p *countingPlugin) Initialize() error {
	p.initCount++
	return p.initErr
}

func (p *countingPlugin) Cleanup() { p.cleanups++ }

func (p *countingPlugin) ExecuteAction(action string, params map[string]any) (any, error) {
	if action == "echo" {
		return params["message"], nil
	}
	return nil, errors.New("unknown action")
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	p := &countingPlugin{name: "counter"}

	if err := r.Register(p); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(p); err == nil {
		t.Error("duplicate Register should fail")
	}

	if !r.Load("counter") {
		t.Fatal("Load failed")
	}
	if !r.Load("counter") {
		t.Error("loading a loaded plugin should be a no-op success")
	}
	if p.initCount != 1 {
		t.Errorf("Initialize called %d times, want 1", p.initCount)
	}

	if got := r.Loaded(); len(got) != 1 || got[0] != "counter" {
		t.Errorf("Loaded() = %v", got)
	}

	if !r.Unload("counter") {
		t.Error("Unload failed")
	}
	if p.cleanups != 1 {
		t.Errorf("Cleanup called %d times, want 1", p.cleanups)
	}
	if r.Unload("counter") {
		t.Error("unloading an unloaded plugin should report false")
	}
}

func TestRegistryLoadUnknown(t *testing.T) {
	r := NewRegistry()
	if r.Load("ghost") {
		t.Error("loading an unregistered plugin should fail")
	}
}

func TestRegistryLoadInitFailure(t *testing.T) {
	r := NewRegistry()
	p := &countingPlugin{name: "broken", initErr: errors.New("boom")}
	if err := r.Register(p); err != nil {
		t.Fatal(err)
	}

	if r.Load("broken") {
		t.Error("Load should fail when Initialize errors")
	}
	if len(r.Loaded()) != 0 {
		t.Error("failed plugin must not be marked loaded")
	}
}

func TestRegistryExecuteAction(t *testing.T) {
	r := NewRegistry()
	p := &countingPlugin{name: "counter"}
	if err := r.Register(p); err != nil {
		t.Fatal(err)
	}

	if _, err := r.ExecuteAction("counter", "echo", nil); err == nil {
		t.Error("executing on an unloaded plugin should fail")
	}
	if _, err := r.ExecuteAction("ghost", "echo", nil); err == nil {
		t.Error("executing on an unknown plugin should fail")
	}

	r.Load("counter")
	result, err := r.ExecuteAction("counter", "echo", map[string]any{"message": "hi"})
	if err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	if result != "hi" {
		t.Errorf("result = %v, want hi", result)
	}
}

func TestRegistryUnloadAll(t *testing.T) {
	r := NewRegistry()
	a := &countingPlugin{name: "a"}
	b := &countingPlugin{name: "b"}
	r.Register(a)
	r.Register(b)
	r.Load("a")
	r.Load("b")

	r.UnloadAll()
	if a.cleanups != 1 || b.cleanups != 1 {
		t.Errorf("cleanups = %d/%d, want 1/1", a.cleanups, b.cleanups)
	}
	if len(r.Loaded()) != 0 {
		t.Error("plugins still loaded after UnloadAll")
	}
}

func TestLoggerPluginActions(t *testing.T) {
	p := &LoggerPlugin{}
	if err := p.Initialize(); err != nil {
		t.Fatal(err)
	}
	defer p.Cleanup()

	result, err := p.ExecuteAction("log", map[string]any{"message": "checkpoint"})
	if err != nil {
		t.Fatalf("log action failed: %v", err)
	}
	logged, ok := result.(map[string]any)
	if !ok || logged["logged"] != "checkpoint" {
		t.Errorf("unexpected result: %v", result)
	}

	if _, err := p.ExecuteAction("actions", nil); err != nil {
		t.Errorf("actions listing failed: %v", err)
	}
	if _, err := p.ExecuteAction("teleport", nil); err == nil {
		t.Error("unknown action should fail")
	}
}
