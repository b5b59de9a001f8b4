// Package document defines the contract the reconstruction engine expects
// from the external mutable document, and ships a reference Model.
//
// The document is an arena of entities keyed by value.EntityID. Writes happen
// only inside a named transaction; at most one transaction is open per
// document. Committing runs the document's rules, which may report failure
// records; a failure.Preprocessor decides how each commit attempt proceeds.
package document

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/recon/internal/failure"
	"github.com/roach88/recon/internal/value"
)

// Kind is an entity kind. Every kind is a specialization of KindElement.
type Kind string

const (
	KindElement         Kind = "element"
	KindCategory        Kind = "category"
	KindElementType     Kind = "element-type"
	KindMaterial        Kind = "material"
	KindSketchPlane     Kind = "sketch-plane"
	KindLevel           Kind = "level"
	KindGrid            Kind = "grid"
	KindSharedParameter Kind = "shared-parameter"
	KindTag             Kind = "tag"
)

// Kinds lists every known kind.
var Kinds = []Kind{
	KindElement, KindCategory, KindElementType, KindMaterial, KindSketchPlane,
	KindLevel, KindGrid, KindSharedParameter, KindTag,
}

// IsA reports whether k is parent or a specialization of it.
func (k Kind) IsA(parent Kind) bool {
	return k == parent || parent == KindElement
}

// Known reports whether k is one of Kinds.
func (k Kind) Known() bool {
	return slices.Contains(Kinds, k)
}

// Entity is one persistent object in a document.
type Entity struct {
	ID       value.EntityID
	UniqueID uuid.UUID
	Kind     Kind
	Name     string

	// Attrs are the entity's named attributes.
	Attrs value.Object

	// Refs are ids of entities this one depends on.
	Refs []value.EntityID

	// Pinned marks entities owned by the engine.
	Pinned bool

	// Generation increments on every update.
	Generation uint64
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	c := *e
	c.Attrs = e.Attrs.Clone()
	c.Refs = slices.Clone(e.Refs)
	return &c
}

// Attr returns the named attribute or nil.
func (e *Entity) Attr(name string) value.Value {
	if e.Attrs == nil {
		return nil
	}
	return e.Attrs[name]
}

// SetAttr sets a named attribute.
func (e *Entity) SetAttr(name string, v value.Value) {
	if e.Attrs == nil {
		e.Attrs = make(value.Object)
	}
	e.Attrs[name] = v
}

// Reader is the read side of a document.
type Reader interface {
	// ID identifies the document.
	ID() string

	// Get returns the entity or a fault.CodeNotFound error.
	Get(ctx context.Context, id value.EntityID) (*Entity, error)

	// Find returns the first entity of kind with the given name, or nil.
	Find(ctx context.Context, kind Kind, name string) (*Entity, error)

	// List returns every entity accepted by keep, ordered by id.
	// A nil keep accepts all.
	List(ctx context.Context, keep func(*Entity) bool) ([]*Entity, error)
}

// Txn is an open transaction. Writes are only possible through a Txn.
type Txn interface {
	Reader

	// Name is the transaction's name.
	Name() string

	// Active is false once the transaction committed or rolled back.
	Active() bool

	// Create inserts a new entity and returns it with its id assigned.
	Create(ctx context.Context, e *Entity) (*Entity, error)

	// Update stores e over the existing entity with the same id.
	Update(ctx context.Context, e *Entity) (*Entity, error)

	// Delete removes the entity. It returns false if it was already gone.
	Delete(ctx context.Context, id value.EntityID) (bool, error)
}

// Outcome is the result of one commit attempt.
type Outcome int

const (
	// Committed: changes are durable and the transaction is closed.
	Committed Outcome = iota
	// Retry: resolutions were applied; the transaction stays open.
	Retry
	// RolledBack: changes were discarded and the transaction is closed.
	RolledBack
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case Retry:
		return "retry"
	default:
		return "rolled-back"
	}
}

// DialogHandler is notified when a commit attempt reports a failure the host
// would ask the user about.
type DialogHandler interface {
	DialogShowing(r *failure.Record)
}

// CommitOptions configure a commit attempt.
type CommitOptions struct {
	// Preprocessor decides how to handle failure records. When nil, errors
	// roll back and warnings are dropped.
	Preprocessor failure.Preprocessor

	// Dialogs receives interactive failures.
	Dialogs DialogHandler
}

// Document is the full contract used by transaction scopes.
type Document interface {
	Reader

	// Begin opens a named transaction. It fails with fault.CodeStartFailure
	// if the document is held by another writer or already has an open
	// transaction.
	Begin(ctx context.Context, name string) (Txn, error)

	// CommitAttempt runs one commit attempt.
	CommitAttempt(ctx context.Context, tx Txn, opts CommitOptions) (Outcome, error)

	// Rollback discards an open transaction. Rolling back a closed
	// transaction is a no-op.
	Rollback(ctx context.Context, tx Txn) error
}
