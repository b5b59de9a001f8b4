package ops

import (
	"context"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/signature"
	"github.com/roach88/recon/internal/value"
)

// Level attributes.
const (
	AttrElevation  = "elevation"
	AttrDiscipline = "discipline"
)

// DefaultLevelName names levels created without a name. Clashes are left
// to the document's duplicate-name resolution.
const DefaultLevelName = "Level"

// LevelByElevation creates or updates a level at an elevation.
type LevelByElevation struct{}

// Descriptor implements engine.Operation.
func (LevelByElevation) Descriptor() signature.Descriptor {
	return signature.Descriptor{
		Operation: "LevelByElevation",
		Slots: []signature.Slot{
			{Name: "document", Type: signature.DocumentType()},
			{Name: "level", Type: signature.Ref(signature.Entity(document.KindLevel)), Description: []string{"New Level"}},
			{Name: "elevation", Type: signature.Of(value.KindReal), Description: []string{"Level elevation", "in model units"}},
			{Name: "name", Type: signature.Optional(signature.Of(value.KindText)), Description: []string{"Level name"}},
			{Name: "type", Type: signature.Optional(signature.Entity(document.KindElementType)), Description: []string{"Level type"}},
			{
				Name:        "discipline",
				Type:        signature.Optional(signature.EnumOf(ViewDiscipline)),
				Default:     value.Int(1),
				Description: []string{"Level discipline"},
			},
		},
	}
}

// Reconstruct implements engine.Operation. An existing level is moved and
// renamed in place; its identity never changes.
func (LevelByElevation) Reconstruct(ctx context.Context, call *engine.Call) (*document.Entity, error) {
	elevation, _ := call.Args.Real("Elevation")

	typ, _, err := engine.SolveOptional(ctx, call, "Type", engine.DefaultOfKind(document.KindElementType))
	if err != nil {
		return nil, err
	}

	level := call.Current
	if level == nil {
		level = &document.Entity{Kind: document.KindLevel, Name: DefaultLevelName}
	}
	if name, ok := call.Args.Text("Name"); ok {
		level.Name = name
	}
	level.SetAttr(AttrElevation, value.Real(elevation))
	if disc, ok := call.Args.Enum("Discipline"); ok {
		level.SetAttr(AttrDiscipline, disc)
	}
	typeRef, given := call.Args.Ref("Type")
	if !given {
		typeRef = value.Ref{Document: call.Txn.ID(), ID: typ.ID}
	}
	if _, err := engine.ChangeType(level, typeRef, call.Txn.ID()); err != nil {
		return nil, err
	}

	if call.Current == nil {
		return call.Txn.Create(ctx, level)
	}
	return call.Txn.Update(ctx, level)
}
