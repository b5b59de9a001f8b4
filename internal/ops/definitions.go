package ops

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefinitionFile is the external shared-parameter definition file: the
// source of truth for which GUID a parameter name stands for. It outlives
// any one document.
type DefinitionFile interface {
	// Lookup returns the GUID defined for name.
	Lookup(name string) (uuid.UUID, bool)

	// Define binds name to id, replacing an earlier definition.
	Define(name string, id uuid.UUID) error
}

// MemoryDefinitions is a DefinitionFile held in memory.
type MemoryDefinitions struct {
	mu   sync.Mutex
	defs map[string]uuid.UUID
}

// NewMemoryDefinitions creates an empty definition file.
func NewMemoryDefinitions() *MemoryDefinitions {
	return &MemoryDefinitions{defs: make(map[string]uuid.UUID)}
}

// Lookup implements DefinitionFile.
func (m *MemoryDefinitions) Lookup(name string) (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.defs[name]
	return id, ok
}

// Define implements DefinitionFile.
func (m *MemoryDefinitions) Define(name string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[name] = id
	return nil
}

// Names returns the defined names, sorted.
func (m *MemoryDefinitions) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.defs))
	for name := range m.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FileDefinitions is a DefinitionFile stored as YAML:
//
//	parameters:
//	  Width: 2f7c5a2e-0d0e-4a6e-9c55-2c1f0f3b7a10
//
// Every Define rewrites the file.
type FileDefinitions struct {
	path string
	mem  *MemoryDefinitions
}

type definitionsYAML struct {
	Parameters map[string]string `yaml:"parameters"`
}

// OpenDefinitions loads the definition file at path. A missing file is an
// empty definition file, created on the first Define.
func OpenDefinitions(path string) (*FileDefinitions, error) {
	f := &FileDefinitions{path: path, mem: NewMemoryDefinitions()}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}

	var doc definitionsYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse definitions %s: %w", path, err)
	}
	for name, raw := range doc.Parameters {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("definitions %s: parameter %q: %w", path, name, err)
		}
		f.mem.defs[name] = id
	}
	return f, nil
}

// Lookup implements DefinitionFile.
func (f *FileDefinitions) Lookup(name string) (uuid.UUID, bool) {
	return f.mem.Lookup(name)
}

// Define implements DefinitionFile.
func (f *FileDefinitions) Define(name string, id uuid.UUID) error {
	if err := f.mem.Define(name, id); err != nil {
		return err
	}
	return f.save()
}

func (f *FileDefinitions) save() error {
	doc := definitionsYAML{Parameters: make(map[string]string)}
	for _, name := range f.mem.Names() {
		id, _ := f.mem.Lookup(name)
		doc.Parameters[name] = id.String()
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode definitions: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write definitions: %w", err)
	}
	return nil
}
