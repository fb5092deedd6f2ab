package scenario

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store loads, validates and persists scenario definitions from a
// directory of JSON or YAML documents. Identifiers come from each
// document's own id field, never from the file name, so files can be
// moved without breaking references.
type Store struct {
	mu         sync.Mutex
	dir        string
	scenarios  map[string]*Definition
	paths      map[string]string // id -> source file
	loadErrors map[string]string // file -> recorded load/validation error
}

// NewStore creates a store over the given directory, creating it if
// needed
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scenario directory %s: %w", dir, err)
	}
	return &Store{
		dir:        dir,
		scenarios:  make(map[string]*Definition),
		paths:      make(map[string]string),
		loadErrors: make(map[string]string),
	}, nil
}

// LoadAll reads every scenario document in the directory. Invalid
// definitions are skipped with a recorded error; a bad file never
// fails the batch.
func (s *Store) LoadAll() (map[string]*Definition, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory %s: %w", s.dir, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.scenarios = make(map[string]*Definition)
	s.paths = make(map[string]string)
	s.loadErrors = make(map[string]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		def, err := parseFile(path)
		if err != nil {
			log.Printf("scenario: error loading %s: %v", path, err)
			s.loadErrors[path] = err.Error()
			continue
		}

		if result := Validate(def); !result.Valid {
			msg := strings.Join(result.Errors, "; ")
			log.Printf("scenario: invalid scenario in %s: %s", path, msg)
			s.loadErrors[path] = msg
			continue
		}

		if prev, dup := s.paths[def.ID]; dup {
			log.Printf("scenario: duplicate id %s in %s (replacing %s)", def.ID, path, prev)
		}
		s.scenarios[def.ID] = def
		s.paths[def.ID] = path
	}

	log.Printf("scenario: loaded %d scenarios from %s", len(s.scenarios), s.dir)
	return s.snapshotLocked(), nil
}

func parseFile(path string) (*Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var def Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &def)
	default:
		err = json.Unmarshal(content, &def)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	return &def, nil
}

// Get returns a loaded definition by id
func (s *Store) Get(id string) (*Definition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.scenarios[id]
	return def, ok
}

// List returns summaries of all loaded definitions, sorted by id
func (s *Store) List() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Summary, 0, len(s.scenarios))
	for _, def := range s.scenarios {
		out = append(out, Summary{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Steps:       len(def.Steps),
			HasPlugins:  len(def.Plugins) > 0,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadErrors returns the per-file errors recorded by the last LoadAll
func (s *Store) LoadErrors() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.loadErrors))
	for k, v := range s.loadErrors {
		out[k] = v
	}
	return out
}

// Save validates and persists a definition as JSON, keeping the cache
// consistent with storage
func (s *Store) Save(def *Definition) error {
	if result := Validate(def); !result.Valid {
		return fmt.Errorf("cannot save invalid scenario: %s", strings.Join(result.Errors, "; "))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, ok := s.paths[def.ID]
	if !ok {
		path = filepath.Join(s.dir, def.ID+".json")
	}

	content, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode scenario %s: %w", def.ID, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write scenario %s: %w", def.ID, err)
	}

	s.scenarios[def.ID] = def
	s.paths[def.ID] = path
	log.Printf("scenario: saved scenario %s to %s", def.ID, path)
	return nil
}

// Delete removes a definition from storage and the cache
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, ok := s.paths[id]
	if !ok {
		path = filepath.Join(s.dir, id+".json")
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete scenario %s: %w", id, err)
	}

	delete(s.scenarios, id)
	delete(s.paths, id)
	log.Printf("scenario: deleted scenario %s", id)
	return nil
}

// snapshotLocked copies the cache map; callers must hold the lock
func (s *Store) snapshotLocked() map[string]*Definition {
	out := make(map[string]*Definition, len(s.scenarios))
	for id, def := range s.scenarios {
		out[id] = def
	}
	return out
}
