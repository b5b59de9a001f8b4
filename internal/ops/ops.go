// Package ops holds the built-in reconstruction operations.
package ops

import (
	"github.com/google/uuid"

	"github.com/roach88/recon/internal/engine"
)

// Options configures the built-in operations.
type Options struct {
	// Definitions backs SharedParameterByName. Default: in memory.
	Definitions DefinitionFile

	// NewUUID generates shared parameter GUIDs. Default: uuid.New.
	NewUUID func() uuid.UUID
}

// Operations returns the built-in operations.
func Operations(opts Options) []engine.Operation {
	if opts.Definitions == nil {
		opts.Definitions = NewMemoryDefinitions()
	}
	return []engine.Operation{
		&SharedParameterByName{Definitions: opts.Definitions, NewUUID: opts.NewUUID},
		LevelByElevation{},
		TagElements{},
	}
}

// NewRegistry returns a registry holding the built-in operations.
func NewRegistry(opts Options) *engine.Registry {
	return engine.NewRegistry().MustRegister(Operations(opts)...)
}
