package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a sequence of reconstruction passes against one document.
//
// Passes are numbered from 1 in assertions and traces.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists CUE files declaring the components the passes use.
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs"`

	// Document is the id of the document. Default: "doc".
	Document string `yaml:"document,omitempty"`

	// Definitions seeds the shared parameter definition file, name to GUID.
	Definitions map[string]string `yaml:"definitions,omitempty"`

	// Setup entities are committed before the first pass, as a user
	// would create them. They are not owned by any component.
	Setup []EntityStep `yaml:"setup,omitempty"`

	Passes []Pass `yaml:"passes"`

	// Assertions validate the pass results and the final document.
	// Supported types: same_identity, deleted, created, diagnostic,
	// entity_count
	Assertions []Assertion `yaml:"assertions"`
}

// EntityStep is one setup entity.
type EntityStep struct {
	Kind   string         `yaml:"kind"`
	Name   string         `yaml:"name"`
	Pinned bool           `yaml:"pinned,omitempty"`
	Attrs  map[string]any `yaml:"attrs,omitempty"`
}

// Pass is one solve. Either Component and Rows are set, or Steps lists
// several components solved together; steps of per-solution components
// share one Solution.
type Pass struct {
	Component string  `yaml:"component,omitempty"`
	Rows      []Row   `yaml:"rows,omitempty"`
	Expect    *Expect `yaml:"expect,omitempty"`

	Steps []Step `yaml:"steps,omitempty"`

	// Transaction names the Solution's transactions. Default: the
	// scenario name.
	Transaction string `yaml:"transaction,omitempty"`
}

// Step is one component pass inside a multi-step Pass.
type Step struct {
	Component string  `yaml:"component"`
	Rows      []Row   `yaml:"rows"`
	Expect    *Expect `yaml:"expect,omitempty"`
}

// Row is the input of one run. A value {ref: <setup name>} becomes an
// entity reference to that setup entity.
type Row map[string]any

// Expect is checked against one component pass.
type Expect struct {
	// Status is the final transaction status, e.g. "Committed".
	Status string `yaml:"status,omitempty"`

	// Transitions lists the expected transition of every run.
	Transitions []string `yaml:"transitions,omitempty"`

	Aborted bool `yaml:"aborted,omitempty"`
}

// Assertion validates results across passes or the final document.
type Assertion struct {
	// Type specifies the assertion type:
	// - "same_identity": outputs of two passes share ids and unique ids
	// - "deleted": number of previous outputs a pass deleted
	// - "created": number of entities a pass created
	// - "diagnostic": a diagnostic containing a text was produced
	// - "entity_count": entities in the final document
	Type string `yaml:"type"`

	Component string `yaml:"component,omitempty"`

	// Pass selects a pass (from 1) for deleted, created and diagnostic.
	// Zero means every pass for diagnostic.
	Pass int `yaml:"pass,omitempty"`

	// Passes are the two passes compared by same_identity.
	Passes []int `yaml:"passes,omitempty"`

	// Ordinals restricts same_identity to these runs. Default: every run
	// both passes have.
	Ordinals []int `yaml:"ordinals,omitempty"`

	Count int `yaml:"count,omitempty"`

	// Kind filters entity_count.
	Kind string `yaml:"kind,omitempty"`

	// Contains and Level match a diagnostic.
	Contains string `yaml:"contains,omitempty"`
	Level    string `yaml:"level,omitempty"`
}

// Assertion type constants.
const (
	AssertSameIdentity = "same_identity"
	AssertDeleted      = "deleted"
	AssertCreated      = "created"
	AssertDiagnostic   = "diagnostic"
	AssertEntityCount  = "entity_count"
)

// DefaultDocument is the document id of a scenario that names none.
const DefaultDocument = "doc"

// steps returns the component passes of p.
func (p Pass) steps() []Step {
	if len(p.Steps) > 0 {
		return p.Steps
	}
	return []Step{{Component: p.Component, Rows: p.Rows, Expect: p.Expect}}
}

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) {
			scenario.Specs[i] = filepath.Join(base, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}
	if len(s.Passes) == 0 {
		return fmt.Errorf("passes list is required and must be non-empty")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	for i, step := range s.Setup {
		if step.Kind == "" {
			return fmt.Errorf("setup[%d]: kind is required", i)
		}
	}

	for i, p := range s.Passes {
		if err := validatePass(i, &p); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, len(s.Passes)); err != nil {
			return err
		}
	}
	return nil
}

func validatePass(index int, p *Pass) error {
	single := p.Component != "" || p.Rows != nil || p.Expect != nil
	switch {
	case single && len(p.Steps) > 0:
		return fmt.Errorf("passes[%d]: component and steps are exclusive", index)
	case !single && len(p.Steps) == 0:
		return fmt.Errorf("passes[%d]: component or steps is required", index)
	}
	for j, step := range p.steps() {
		if step.Component == "" {
			return fmt.Errorf("passes[%d].steps[%d]: component is required", index, j)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, passes int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Pass < 0 || a.Pass > passes {
		return fmt.Errorf("assertions[%d]: pass %d out of range 1..%d", index, a.Pass, passes)
	}

	switch a.Type {
	case AssertSameIdentity:
		if a.Component == "" {
			return fmt.Errorf("assertions[%d]: component is required for same_identity", index)
		}
		if len(a.Passes) != 2 {
			return fmt.Errorf("assertions[%d]: same_identity compares exactly two passes", index)
		}
		for _, p := range a.Passes {
			if p < 1 || p > passes {
				return fmt.Errorf("assertions[%d]: pass %d out of range 1..%d", index, p, passes)
			}
		}
	case AssertDeleted, AssertCreated:
		if a.Component == "" || a.Pass == 0 {
			return fmt.Errorf("assertions[%d]: component and pass are required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertDiagnostic:
		if a.Contains == "" {
			return fmt.Errorf("assertions[%d]: contains is required for diagnostic", index)
		}
	case AssertEntityCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for entity_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
