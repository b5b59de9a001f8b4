package ops

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/fault"
	"github.com/roach88/recon/internal/signature"
	"github.com/roach88/recon/internal/value"
)

// Shared parameter attributes.
const (
	AttrGUID           = "guid"
	AttrParameterType  = "parameter_type"
	AttrParameterClass = "parameter_class"
	AttrGroup          = "group"
	AttrVisible        = "visible"
	AttrInstance       = "instance"
)

// SharedParameterByName adds a shared parameter definition to a document
// given its name. The GUID comes from the definition file when the name is
// already defined there, so the same name maps to the same parameter in
// every document.
type SharedParameterByName struct {
	Definitions DefinitionFile

	// NewUUID generates GUIDs for names the definition file does not know.
	NewUUID func() uuid.UUID
}

// Descriptor implements engine.Operation.
func (o *SharedParameterByName) Descriptor() signature.Descriptor {
	return signature.Descriptor{
		Operation: "SharedParameterByName",
		Slots: []signature.Slot{
			{Name: "document", Type: signature.DocumentType()},
			{
				Name:        "parameterKey",
				Type:        signature.Ref(signature.Entity(document.KindSharedParameter)),
				Nickname:    "K",
				Description: []string{"New Parameter definition"},
			},
			{
				Name:        "name",
				Type:        signature.Of(value.KindText),
				Description: []string{"Parameter Name"},
			},
			{
				Name:        "overwrite",
				Type:        signature.Optional(signature.Of(value.KindBool)),
				Default:     value.Bool(false),
				Description: []string{"Overwrite Parameter definition if found"},
			},
		},
	}
}

// Reconstruct implements engine.Operation.
func (o *SharedParameterByName) Reconstruct(ctx context.Context, call *engine.Call) (*document.Entity, error) {
	name, _ := call.Args.Text("Name")
	overwrite, _ := call.Args.Bool("Overwrite")
	if name == "" {
		return nil, &fault.Error{Code: fault.CodeMissingArgument, Message: "a parameter name is required", Slot: "Name"}
	}

	existing, err := o.find(ctx, call.Txn, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		reused := call.Current != nil && call.Current.ID == existing.ID
		if !reused && !overwrite {
			return nil, fault.Warning("A parameter called %q is already in the document", name)
		}
		if overwrite {
			if err := o.Definitions.Define(name, guidOf(existing)); err != nil {
				return nil, fmt.Errorf("redefine %q: %w", name, err)
			}
		}
		return existing, nil
	}

	guid, ok := o.Definitions.Lookup(name)
	if !ok {
		guid = o.newUUID()
	}
	if err := o.Definitions.Define(name, guid); err != nil {
		return nil, fmt.Errorf("define %q: %w", name, err)
	}

	return call.Txn.Create(ctx, &document.Entity{
		Kind:     document.KindSharedParameter,
		Name:     name,
		UniqueID: guid,
		Attrs: value.Object{
			AttrGUID:           value.ID(guid),
			AttrParameterType:  ParameterType.Value(member(ParameterType, "Text")),
			AttrParameterClass: ParameterClass.Value(member(ParameterClass, "Shared")),
			AttrGroup:          value.Text("Data"),
			AttrVisible:        value.Bool(true),
			AttrInstance:       value.Bool(true),
		},
	})
}

// find returns the visible, instance-bound text parameter called name.
func (o *SharedParameterByName) find(ctx context.Context, r document.Reader, name string) (*document.Entity, error) {
	all, err := r.List(ctx, func(e *document.Entity) bool {
		if e.Kind != document.KindSharedParameter || e.Name != name {
			return false
		}
		if t, ok := e.Attr(AttrParameterType).(value.Enum); ok && t.Name != "Text" {
			return false
		}
		if v, ok := e.Attr(AttrVisible).(value.Bool); ok && !bool(v) {
			return false
		}
		if v, ok := e.Attr(AttrInstance).(value.Bool); ok && !bool(v) {
			return false
		}
		return true
	})
	if err != nil || len(all) == 0 {
		return nil, err
	}
	// the most recently added definition wins
	return all[len(all)-1], nil
}

func (o *SharedParameterByName) newUUID() uuid.UUID {
	if o.NewUUID != nil {
		return o.NewUUID()
	}
	return uuid.New()
}

func guidOf(e *document.Entity) uuid.UUID {
	if id, ok := e.Attr(AttrGUID).(value.ID); ok {
		return uuid.UUID(id)
	}
	return e.UniqueID
}
