package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/signature"
)

// Call is one run's view of the world.
type Call struct {
	// Txn is the open transaction on the target document. Every write goes
	// through it.
	Txn document.Txn

	// Current is the entity at this run's ordinal from the previous pass,
	// or nil. Operations update it in place when they can and return it.
	Current *document.Entity

	// Args are the bound inputs.
	Args signature.Args

	// Ordinal is the run's position in the pass, from 0.
	Ordinal int
}

// Operation reconstructs one entity per run.
//
// Reconstruct returns the entity the run produced: call.Current (updated
// in place) to keep its identity, a newly created entity to replace it, or
// nil for no output. Errors are classified with fault.ClassOf.
type Operation interface {
	Descriptor() signature.Descriptor
	Reconstruct(ctx context.Context, call *Call) (*document.Entity, error)
}

// OperationFunc adapts a descriptor and a function into an Operation.
type OperationFunc struct {
	Desc signature.Descriptor
	Fn   func(ctx context.Context, call *Call) (*document.Entity, error)
}

// Descriptor implements Operation.
func (o OperationFunc) Descriptor() signature.Descriptor { return o.Desc }

// Reconstruct implements Operation.
func (o OperationFunc) Reconstruct(ctx context.Context, call *Call) (*document.Entity, error) {
	return o.Fn(ctx, call)
}

// Registry maps operation names to operations and their derived
// signatures. Signatures are derived once, at registration.
type Registry struct {
	cache *signature.Cache
	ops   map[string]registered
}

type registered struct {
	op  Operation
	sig *signature.Signature
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		cache: signature.NewCache(),
		ops:   make(map[string]registered),
	}
}

// Register derives op's signature and adds it. Registering a name twice or
// an operation with an unsupported slot shape fails.
func (r *Registry) Register(op Operation) error {
	d := op.Descriptor()
	if _, dup := r.ops[d.Operation]; dup {
		return fmt.Errorf("operation %q already registered", d.Operation)
	}
	sig, err := r.cache.Derive(d)
	if err != nil {
		return fmt.Errorf("register %s: %w", d.Operation, err)
	}
	r.ops[d.Operation] = registered{op: op, sig: sig}
	return nil
}

// MustRegister is Register that panics. Used for built-in operations.
func (r *Registry) MustRegister(ops ...Operation) *Registry {
	for _, op := range ops {
		if err := r.Register(op); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the operation and its signature.
func (r *Registry) Lookup(name string) (Operation, *signature.Signature, error) {
	reg, ok := r.ops[name]
	if !ok {
		return nil, nil, &UnknownOperationError{Operation: name}
	}
	return reg.op, reg.sig, nil
}

// Names returns the registered operation names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
