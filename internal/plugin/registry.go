package plugin

import (
	"fmt"
	"log"
	"sort"
	"sync"
)

// Plugin is the capability contract for scenario plugins. Plugins are
// registered by name and resolved at load time; there is no runtime
// introspection of plugin objects.
type Plugin interface {
	Name() string
	Initialize() error
	ExecuteAction(action string, params map[string]any) (any, error)
	Cleanup()
}

// Registry owns the set of available plugins and tracks which are
// currently loaded (initialized)
type Registry struct {
	mu        sync.Mutex
	available map[string]Plugin
	loaded    map[string]bool
}

// NewRegistry creates an empty plugin registry
func NewRegistry() *Registry {
	return &Registry{
		available: make(map[string]Plugin),
		loaded:    make(map[string]bool),
	}
}

// Register makes a plugin available for loading
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.available[name]; exists {
		return fmt.Errorf("plugin already registered: %s", name)
	}
	r.available[name] = p
	return nil
}

// Load initializes a registered plugin. Loading an already-loaded
// plugin is a no-op success.
func (r *Registry) Load(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.available[name]
	if !ok {
		log.Printf("plugin: unknown plugin: %s", name)
		return false
	}
	if r.loaded[name] {
		return true
	}

	if err := p.Initialize(); err != nil {
		log.Printf("plugin: failed to initialize %s: %v", name, err)
		return false
	}
	r.loaded[name] = true
	log.Printf("plugin: loaded plugin %s", name)
	return true
}

// Unload cleans up a loaded plugin
func (r *Registry) Unload(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded[name] {
		return false
	}
	r.available[name].Cleanup()
	delete(r.loaded, name)
	log.Printf("plugin: unloaded plugin %s", name)
	return true
}

// UnloadAll cleans up every loaded plugin
func (r *Registry) UnloadAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range r.loaded {
		r.available[name].Cleanup()
		delete(r.loaded, name)
	}
}

// ExecuteAction dispatches an action to a loaded plugin. A nil result
// with nil error is treated by callers as an action failure.
func (r *Registry) ExecuteAction(name, action string, params map[string]any) (any, error) {
	r.mu.Lock()
	p, ok := r.available[name]
	loaded := r.loaded[name]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unknown plugin: %s", name)
	}
	if !loaded {
		return nil, fmt.Errorf("plugin not loaded: %s", name)
	}
	return p.ExecuteAction(action, params)
}

// Loaded returns the names of loaded plugins, sorted
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.loaded))
	for name := range r.loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
