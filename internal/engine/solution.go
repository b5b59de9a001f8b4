package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/txn"
)

// Solution runs several component passes in one standing transaction per
// document and commits them together.
//
// Every pass joins the scope of its document on first use. Commit then
// takes each document to a terminal state: documents where a pass aborted
// are rolled back, the others are committed independently of each other.
type Solution struct {
	engine *Engine
	id     string
	set    *txn.Set
	claims *ClaimSet

	passes  map[string][]*pass
	order   []*pass
	aborted map[string]bool
	done    bool
}

// NewSolution creates a solution whose transactions are named name and
// resolve the fixable failure kinds first.
func (e *Engine) NewSolution(name string, fixable []string) *Solution {
	s := &Solution{
		engine:  e,
		id:      e.ids.Generate(),
		claims:  NewClaimSet(),
		passes:  make(map[string][]*pass),
		aborted: make(map[string]bool),
	}
	s.set = txn.NewSet(name, e.scopeOptions(fixable, s)...)
	return s
}

// ID returns the solve id shared by every pass of the solution.
func (s *Solution) ID() string { return s.id }

// Solve runs one pass inside the standing transaction of req.Document.
// The Result is completed by Commit.
func (s *Solution) Solve(ctx context.Context, req Request) (*Result, error) {
	if s.done {
		return nil, errors.New("solution already committed")
	}
	p, err := s.engine.newPass(ctx, s.id, req, s.claims)
	if err != nil {
		return nil, err
	}
	scope, err := s.set.Scope(ctx, req.Document)
	if err != nil {
		p.errorDiagnostic(-1, err)
		p.finish(ctx, txn.Uninitialized, nil)
		return p.result, err
	}
	p.scope = scope

	docID := req.Document.ID()
	s.passes[docID] = append(s.passes[docID], p)
	s.order = append(s.order, p)

	if err := p.run(ctx, req.Rows); err != nil {
		s.aborted[docID] = true
		return p.result, err
	}
	return p.result, nil
}

// Commit ends the solution. Every scope is released before it returns.
func (s *Solution) Commit(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true

	var errs []error
	for _, sc := range s.set.Scopes() {
		if !s.aborted[sc.Document().ID()] {
			continue
		}
		if err := sc.Rollback(ctx); err != nil {
			errs = append(errs, fmt.Errorf("document %s: %w", sc.Document().ID(), err))
		}
	}
	if err := s.set.CommitAll(ctx); err != nil {
		errs = append(errs, err)
	}

	// commit diagnostics belong to the document; report them on its first pass
	reported := make(map[string]bool)
	for _, p := range s.order {
		docID := p.doc.ID()
		if reported[docID] {
			p.finish(ctx, p.scope.Status(), nil)
			continue
		}
		reported[docID] = true
		p.finish(ctx, p.scope.Status(), p.scope.Diagnostics())
	}
	return errors.Join(errs...)
}

// Rollback ends the solution, rolling back every document it touched.
func (s *Solution) Rollback(ctx context.Context) error {
	if s.done {
		return nil
	}
	for _, sc := range s.set.Scopes() {
		s.aborted[sc.Document().ID()] = true
	}
	return s.Commit(ctx)
}

// BeforeCommit implements txn.Finalizer for the passes on tx's document.
func (s *Solution) BeforeCommit(ctx context.Context, tx document.Txn) error {
	for _, p := range s.passes[tx.ID()] {
		if err := p.BeforeCommit(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

// Committed implements txn.Finalizer.
func (s *Solution) Committed(ctx context.Context, doc document.Reader, name string, subs txn.Substitutions) {
	for _, p := range s.passes[doc.ID()] {
		p.Committed(ctx, doc, name, subs)
	}
}

// RolledBack implements txn.Finalizer.
func (s *Solution) RolledBack(ctx context.Context, doc document.Reader, name string) {
	for _, p := range s.passes[doc.ID()] {
		p.RolledBack(ctx, doc, name)
	}
}
