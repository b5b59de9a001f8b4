package document

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/recon/internal/failure"
	"github.com/roach88/recon/internal/value"
)

// Failure kinds reported by the built-in rules.
const (
	FailureDuplicateName     = "duplicate-name"
	FailureDanglingReference = "dangling-reference"
	FailureUnnamedEntity     = "unnamed-entity"
)

// Rule checks the transaction's entities at commit time.
type Rule struct {
	Kind     string
	Severity failure.Severity

	// Interactive marks records the host would ask the user about.
	Interactive bool

	// Check reports failure records. Entities are ordered by id.
	Check func(entities []*Entity) []*failure.Record

	// Resolve applies the default resolution for one record. A nil Resolve
	// means resolution is not permitted.
	Resolve func(ctx context.Context, tx Txn, r *failure.Record) error
}

// DefaultRules returns the built-in rules in report order.
func DefaultRules() []Rule {
	return []Rule{
		DuplicateNameRule(),
		DanglingReferenceRule(),
		UnnamedEntityRule(KindLevel, KindSharedParameter),
	}
}

// DuplicateNameRule reports entities of the same kind sharing a name.
// The resolution keeps the lowest id and renames the others "Name (n)".
func DuplicateNameRule() Rule {
	return Rule{
		Kind:     FailureDuplicateName,
		Severity: failure.SeverityError,
		Check: func(entities []*Entity) []*failure.Record {
			type key struct {
				kind Kind
				name string
			}
			groups := make(map[key][]value.EntityID)
			var order []key
			for _, e := range entities {
				if e.Name == "" {
					continue
				}
				k := key{e.Kind, e.Name}
				if _, ok := groups[k]; !ok {
					order = append(order, k)
				}
				groups[k] = append(groups[k], e.ID)
			}

			var records []*failure.Record
			for _, k := range order {
				ids := groups[k]
				if len(ids) < 2 {
					continue
				}
				records = append(records, &failure.Record{
					Kind:        FailureDuplicateName,
					Severity:    failure.SeverityError,
					Description: fmt.Sprintf("Duplicate %s name %q", k.kind, k.name),
					Entities:    ids,
				})
			}
			return records
		},
		Resolve: func(ctx context.Context, tx Txn, r *failure.Record) error {
			if len(r.Entities) < 2 {
				return nil
			}
			all, err := tx.List(ctx, nil)
			if err != nil {
				return err
			}
			first, err := tx.Get(ctx, r.Entities[0])
			if err != nil {
				return err
			}
			taken := make(map[string]bool)
			for _, e := range all {
				if e.Kind == first.Kind {
					taken[e.Name] = true
				}
			}

			n := 2
			for _, id := range r.Entities[1:] {
				e, err := tx.Get(ctx, id)
				if err != nil {
					return err
				}
				base := e.Name
				for {
					candidate := fmt.Sprintf("%s (%d)", base, n)
					n++
					if !taken[candidate] {
						e.Name = candidate
						taken[candidate] = true
						break
					}
				}
				if _, err := tx.Update(ctx, e); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// DanglingReferenceRule reports entities referencing missing entities.
// The resolution drops the missing references.
func DanglingReferenceRule() Rule {
	return Rule{
		Kind:     FailureDanglingReference,
		Severity: failure.SeverityError,
		Check: func(entities []*Entity) []*failure.Record {
			exists := make(map[value.EntityID]bool, len(entities))
			for _, e := range entities {
				exists[e.ID] = true
			}
			var records []*failure.Record
			for _, e := range entities {
				for _, ref := range e.Refs {
					if exists[ref] {
						continue
					}
					records = append(records, &failure.Record{
						Kind:        FailureDanglingReference,
						Severity:    failure.SeverityError,
						Description: fmt.Sprintf("%s %d references missing entity %d", e.Kind, e.ID, ref),
						Entities:    []value.EntityID{e.ID},
					})
				}
			}
			return records
		},
		Resolve: func(ctx context.Context, tx Txn, r *failure.Record) error {
			for _, id := range r.Entities {
				e, err := tx.Get(ctx, id)
				if err != nil {
					return err
				}
				refs := e.Refs[:0:0]
				for _, ref := range e.Refs {
					if _, err := tx.Get(ctx, ref); err == nil {
						refs = append(refs, ref)
					}
				}
				e.Refs = refs
				if _, err := tx.Update(ctx, e); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// UnnamedEntityRule warns about entities of the given kinds with no name.
// It has no resolution.
func UnnamedEntityRule(kinds ...Kind) Rule {
	return Rule{
		Kind:     FailureUnnamedEntity,
		Severity: failure.SeverityWarning,
		Check: func(entities []*Entity) []*failure.Record {
			var records []*failure.Record
			for _, e := range entities {
				if e.Name != "" || !slices.Contains(kinds, e.Kind) {
					continue
				}
				records = append(records, &failure.Record{
					Kind:        FailureUnnamedEntity,
					Severity:    failure.SeverityWarning,
					Description: fmt.Sprintf("%s has no name", e.Kind),
					Entities:    []value.EntityID{e.ID},
				})
			}
			return records
		},
	}
}
