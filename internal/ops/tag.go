package ops

import (
	"context"
	"slices"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/fault"
	"github.com/roach88/recon/internal/signature"
	"github.com/roach88/recon/internal/value"
)

// AttrDetail is the detail level a tag is drawn at.
const AttrDetail = "detail"

// TagElements creates or updates one tag referencing a list of elements.
type TagElements struct{}

// Descriptor implements engine.Operation.
func (TagElements) Descriptor() signature.Descriptor {
	return signature.Descriptor{
		Operation: "TagElements",
		Slots: []signature.Slot{
			{Name: "document", Type: signature.DocumentType()},
			{Name: "tag", Type: signature.Ref(signature.Entity(document.KindTag)), Description: []string{"New Tag"}},
			{Name: "elements", Type: signature.List(signature.Entity(document.KindElement)), Description: []string{"Elements to tag"}},
			{Name: "detail", Type: signature.Optional(signature.EnumOf(ViewDetailLevel)), Nickname: "DL", Description: []string{"Detail level"}},
		},
	}
}

// Reconstruct implements engine.Operation. Null list items are skipped; a
// list with nothing left is a warning and produces no tag.
func (TagElements) Reconstruct(ctx context.Context, call *engine.Call) (*document.Entity, error) {
	var refs []value.EntityID
	for _, item := range call.Args.List("Elements") {
		r, ok := item.(value.Ref)
		if !ok || slices.Contains(refs, r.ID) {
			continue
		}
		refs = append(refs, r.ID)
	}
	if len(refs) == 0 {
		return nil, fault.Warning("no elements to tag")
	}

	tag := call.Current
	if tag == nil {
		tag = &document.Entity{Kind: document.KindTag, Name: "Tag"}
	}
	tag.Refs = refs
	if detail, ok := call.Args.Enum("Detail"); ok {
		tag.SetAttr(AttrDetail, detail)
	} else if tag.Attrs != nil {
		delete(tag.Attrs, AttrDetail)
	}

	if call.Current == nil {
		return call.Txn.Create(ctx, tag)
	}
	return call.Txn.Update(ctx, tag)
}
