package txn

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/recon/internal/document"
)

// Set holds one scope per document for operations that touch several
// documents in one batch. Documents keep their first-use order.
type Set struct {
	name   string
	opts   []Option
	scopes map[string]*Scope
	order  []string
}

// NewSet creates an empty set. Every scope it opens uses name and opts.
func NewSet(name string, opts ...Option) *Set {
	return &Set{
		name:   name,
		opts:   opts,
		scopes: make(map[string]*Scope),
	}
}

// Scope returns the scope for doc, opening it on first use.
func (s *Set) Scope(ctx context.Context, doc document.Document) (*Scope, error) {
	if sc, ok := s.scopes[doc.ID()]; ok {
		return sc, nil
	}
	sc, err := Open(ctx, doc, s.name, s.opts...)
	if err != nil {
		return nil, err
	}
	s.scopes[doc.ID()] = sc
	s.order = append(s.order, doc.ID())
	return sc, nil
}

// Scopes returns the open scopes in first-use order.
func (s *Set) Scopes() []*Scope {
	out := make([]*Scope, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.scopes[id])
	}
	return out
}

// Len returns the number of scopes.
func (s *Set) Len() int { return len(s.order) }

// CommitAll commits every scope independently. One document failing does
// not stop the others; the errors are joined. Every scope is released
// before returning.
func (s *Set) CommitAll(ctx context.Context) error {
	defer s.Release(ctx)

	var errs []error
	for _, id := range s.order {
		sc := s.scopes[id]
		if sc.Status() != Started {
			continue
		}
		if err := sc.Commit(ctx); err != nil {
			errs = append(errs, fmt.Errorf("document %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// RollbackAll rolls back every Started scope.
func (s *Set) RollbackAll(ctx context.Context) error {
	var errs []error
	for _, id := range s.order {
		if err := s.scopes[id].Rollback(ctx); err != nil {
			errs = append(errs, fmt.Errorf("document %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Release releases every scope.
func (s *Set) Release(ctx context.Context) {
	for _, id := range s.order {
		s.scopes[id].Release(ctx)
	}
}
