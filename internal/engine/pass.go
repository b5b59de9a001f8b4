package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/failure"
	"github.com/roach88/recon/internal/fault"
	"github.com/roach88/recon/internal/signature"
	"github.com/roach88/recon/internal/txn"
	"github.com/roach88/recon/internal/value"
)

// pass is one component's pass over its rows. It is the scope's finalizer.
type pass struct {
	engine *Engine
	comp   Component
	op     Operation
	sig    *signature.Signature
	doc    document.Document
	scope  *txn.Scope
	claims *ClaimSet
	quota  *RunQuota
	logger *slog.Logger

	prev    *RunState
	cursor  *cursor
	result  *Result
	flushed bool
}

func (e *Engine) newPass(ctx context.Context, solveID string, req Request, claims *ClaimSet) (*pass, error) {
	op, sig, err := e.registry.Lookup(req.Component.Operation)
	if err != nil {
		return nil, err
	}
	if req.Component.Name == "" {
		req.Component.Name = req.Component.Operation
	}
	prev, err := e.states.LoadState(ctx, req.Component.Name)
	if err != nil {
		return nil, fmt.Errorf("load state of %s: %w", req.Component.Name, err)
	}
	return &pass{
		engine: e,
		comp:   req.Component,
		op:     op,
		sig:    sig,
		doc:    req.Document,
		claims: claims,
		quota:  NewRunQuota(e.maxRuns),
		logger: e.logger.With("component", req.Component.Name, "document", req.Document.ID()),
		prev:   prev,
		cursor: newCursor(prev),
		result: &Result{
			Solve:         solveID,
			Component:     req.Component.Name,
			Document:      req.Document.ID(),
			Substitutions: make(txn.Substitutions),
		},
	}, nil
}

// run iterates the rows. It returns an AbortError on the first hard
// failure.
func (p *pass) run(ctx context.Context, rows []signature.Source) error {
	for i, row := range rows {
		rr, err := p.runOne(ctx, i, row)
		p.result.Runs = append(p.result.Runs, rr)
		if p.engine.observer != nil {
			p.engine.observer.RunFinished(p.comp.Name, rr.Transition)
		}
		if err != nil {
			p.result.Aborted = true
			p.logger.Warn("pass aborted", "ordinal", i, "error", err)
			return &AbortError{Component: p.comp.Name, Ordinal: i, Err: err}
		}
		p.logger.Debug("run finished",
			"ordinal", i,
			"transition", string(rr.Transition),
			"entity_id", int64(rr.Output.ID),
		)
	}
	return nil
}

func (p *pass) runOne(ctx context.Context, ordinal int, row signature.Source) (RunResult, error) {
	rr := RunResult{Ordinal: ordinal, Transition: Abort}
	if err := p.quota.Check(p.comp.Name); err != nil {
		p.errorDiagnostic(ordinal, err)
		return rr, err
	}

	h, _ := p.cursor.advance()
	prev, err := p.resolve(ctx, h)
	if err != nil {
		p.errorDiagnostic(ordinal, err)
		return rr, err
	}
	rr.Previous = HandleOf(p.doc.ID(), prev)

	if prev != nil && !prev.Pinned {
		p.claim(prev, ordinal)
		rr.Transition = Keep
		rr.Output = rr.Previous
		return rr, nil
	}

	result, err := p.reconstruct(ctx, ordinal, prev, row)
	if err != nil {
		switch {
		case errors.Is(err, ErrNullInput):
		case fault.ClassOf(err) == fault.Soft:
			p.diagnostic(ordinal, failure.LevelWarning, err)
		case fault.ClassOf(err) == fault.Argument:
			p.diagnostic(ordinal, failure.LevelError, err)
		default:
			p.errorDiagnostic(ordinal, err)
			return rr, err
		}
		result = nil
	}

	if result, err = p.reconcile(ctx, ordinal, prev, result); err != nil {
		p.errorDiagnostic(ordinal, err)
		return rr, err
	}

	rr.Output = HandleOf(p.doc.ID(), result)
	rr.Transition = transitionOf(prev, result)
	return rr, nil
}

func transitionOf(prev, result *document.Entity) Transition {
	switch {
	case prev == nil && result == nil:
		return Empty
	case prev == nil:
		return Insert
	case result == nil:
		return Remove
	case prev.ID == result.ID:
		return Update
	default:
		return Replace
	}
}

// resolve returns the live entity for h, or nil when the slot is empty,
// belongs to another document, was deleted, or is stale.
func (p *pass) resolve(ctx context.Context, h Handle) (*document.Entity, error) {
	if h.IsZero() || h.Document != p.doc.ID() {
		return nil, nil
	}
	e, err := p.scope.Txn().Get(ctx, h.ID)
	if err != nil {
		if fault.Is(err, fault.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if e.UniqueID != h.UniqueID {
		p.logger.Debug("stale handle", "entity_id", int64(h.ID))
		return nil, nil
	}
	return e, nil
}

// reconstruct binds the row and invokes the operation.
func (p *pass) reconstruct(ctx context.Context, ordinal int, prev *document.Entity, row signature.Source) (*document.Entity, error) {
	args, err := signature.BindAll(p.sig, row)
	if err != nil {
		return nil, err
	}
	if p.nullRequired(args) {
		return nil, ErrNullInput
	}
	if err := p.checkInputs(ctx, args); err != nil {
		return nil, err
	}

	var current *document.Entity
	if prev != nil {
		current = prev.Clone()
	}
	return p.invoke(ctx, &Call{
		Txn:     p.scope.Txn(),
		Current: current,
		Args:    args,
		Ordinal: ordinal,
	})
}

// invoke calls the operation. A panic becomes a hard failure so the batch
// aborts and its transaction still reaches a terminal state.
func (p *pass) invoke(ctx context.Context, call *Call) (result *document.Entity, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("operation panicked", "operation", p.comp.Operation, "ordinal", call.Ordinal, "panic", r)
			result, err = nil, fault.Structural("operation %s panicked: %v", p.comp.Operation, r)
		}
	}()
	return p.op.Reconstruct(ctx, call)
}

func (p *pass) nullRequired(args signature.Args) bool {
	for _, in := range p.sig.Inputs {
		if !in.Optional && in.Access == signature.Item && args.Get(in.Name).State == signature.Null {
			return true
		}
	}
	return false
}

// checkInputs verifies every entity input lives in the target document and
// has an acceptable kind.
func (p *pass) checkInputs(ctx context.Context, args signature.Args) error {
	for _, in := range p.sig.Inputs {
		if in.EntityKind == "" {
			continue
		}
		for _, ref := range refsOf(args.Get(in.Name)) {
			if ref.Document != p.doc.ID() {
				return &fault.Error{
					Code:     fault.CodeIncompatibleDocument,
					Message:  fmt.Sprintf("entity %d belongs to document %q, not %q", ref.ID, ref.Document, p.doc.ID()),
					Slot:     in.Name,
					Document: p.doc.ID(),
					Entities: []value.EntityID{ref.ID},
				}
			}
			e, err := p.scope.Txn().Get(ctx, ref.ID)
			if err != nil {
				var fe *fault.Error
				if errors.As(err, &fe) && fe.Slot == "" {
					fe.Slot = in.Name
				}
				return err
			}
			if in.EntityKind != document.KindCategory && !e.Kind.IsA(in.EntityKind) {
				return &fault.Error{
					Code:     fault.CodeTypeMismatch,
					Message:  fmt.Sprintf("expected %s, got %s %d", in.EntityKind, e.Kind, e.ID),
					Slot:     in.Name,
					Document: p.doc.ID(),
					Entities: []value.EntityID{e.ID},
				}
			}
		}
	}
	return nil
}

func refsOf(arg signature.Argument) []value.Ref {
	switch v := arg.Value.(type) {
	case value.Ref:
		return []value.Ref{v}
	case value.List:
		var refs []value.Ref
		for _, item := range v {
			if r, ok := item.(value.Ref); ok {
				refs = append(refs, r)
			}
		}
		return refs
	}
	return nil
}

// reconcile carries attributes onto a replacement, deletes the orphan and
// pins and claims the result. It returns the final result entity.
func (p *pass) reconcile(ctx context.Context, ordinal int, prev, result *document.Entity) (*document.Entity, error) {
	tx := p.scope.Txn()

	replaced := prev != nil && result != nil && result.ID != prev.ID
	dirty := false
	if replaced {
		for _, name := range p.comp.CopyAttributes {
			if v := prev.Attr(name); v != nil {
				result.SetAttr(name, v)
				dirty = true
			}
		}
		p.scope.Substitute(prev.ID, result.ID)
		p.result.Substitutions[prev.ID] = result.ID
	}

	if prev != nil && (result == nil || result.ID != prev.ID) {
		if err := p.deleteOrphan(ctx, prev); err != nil {
			return nil, err
		}
	}

	if result == nil {
		return nil, nil
	}
	if !result.Pinned {
		result.Pinned = true
		dirty = true
	}
	if dirty {
		updated, err := tx.Update(ctx, result)
		if err != nil {
			return nil, fmt.Errorf("pin entity %d: %w", result.ID, err)
		}
		result = updated
	}
	p.claim(result, ordinal)
	return result, nil
}

// deleteOrphan deletes e unless another run of this pass claimed it.
// Entities already gone are tolerated.
func (p *pass) deleteOrphan(ctx context.Context, e *document.Entity) error {
	if cl, ok := p.claims.ClaimedBy(p.doc.ID(), e.ID); ok {
		p.logger.Debug("orphan claimed, not deleted", "entity_id", int64(e.ID), "claimed_by", cl.Component, "claim_ordinal", cl.Ordinal)
		return nil
	}
	if _, err := p.scope.Txn().Delete(ctx, e.ID); err != nil {
		return fmt.Errorf("delete orphan %d: %w", e.ID, err)
	}
	return nil
}

func (p *pass) claim(e *document.Entity, ordinal int) {
	p.claims.Claim(p.doc.ID(), e.ID, Claim{Component: p.comp.Name, Ordinal: ordinal})
}

// BeforeCommit implements txn.Finalizer. It deletes the previous outputs
// the pass did not reach.
func (p *pass) BeforeCommit(ctx context.Context, tx document.Txn) error {
	for _, h := range p.cursor.rest() {
		if h.IsZero() || h.Document != tx.ID() {
			continue
		}
		if _, claimed := p.claims.ClaimedBy(h.Document, h.ID); claimed {
			continue
		}
		e, err := p.resolve(ctx, h)
		if err != nil {
			return err
		}
		if e == nil {
			continue
		}
		if _, err := tx.Delete(ctx, e.ID); err != nil {
			return fmt.Errorf("delete leftover %d: %w", e.ID, err)
		}
		p.result.Deleted = append(p.result.Deleted, h)
		p.logger.Debug("leftover deleted", "entity_id", int64(h.ID))
	}
	return nil
}

// Committed implements txn.Finalizer. The output column replaces the
// RunState.
func (p *pass) Committed(ctx context.Context, _ document.Reader, name string, _ txn.Substitutions) {
	next := &RunState{
		Generation: p.prev.Generation + 1,
		Handles:    p.result.Outputs(),
	}
	if err := p.engine.states.SaveState(ctx, p.comp.Name, next); err != nil {
		p.logger.Error("save run state failed", "transaction", name, "error", err)
		p.errorDiagnostic(-1, err)
		return
	}
	p.prev = next
}

// RolledBack implements txn.Finalizer. The outputs are marked failed and
// the RunState is left as it was.
func (p *pass) RolledBack(_ context.Context, _ document.Reader, name string) {
	p.result.Failed = true
	p.logger.Debug("outputs marked failed", "transaction", name)
}

// finish records the terminal status and flushes diagnostics.
func (p *pass) finish(ctx context.Context, status txn.Status, commitDiags []failure.Diagnostic) {
	p.result.Status = status
	for _, d := range commitDiags {
		p.add(-1, d)
	}
	switch status {
	case txn.Uninitialized, txn.Started, txn.Committed:
	default:
		p.add(-1, failure.Diagnostic{
			Level:   failure.LevelError,
			Message: fmt.Sprintf("Transaction %s and aborted.", status),
		})
	}

	if p.engine.observer != nil {
		p.engine.observer.PassFinished(p.comp.Name, status, p.result.Aborted)
	}
	p.flush(ctx)
}

func (p *pass) flush(ctx context.Context) {
	if p.flushed || p.engine.sink == nil || len(p.result.Diagnostics) == 0 {
		return
	}
	p.flushed = true
	if err := p.engine.sink.RecordDiagnostics(ctx, p.result.Diagnostics); err != nil {
		p.logger.Error("record diagnostics failed", "error", err)
	}
}

// diagnostic records err at level.
func (p *pass) diagnostic(ordinal int, level failure.Level, err error) {
	d := failure.Diagnostic{Level: level, Message: messageOf(err)}
	var fe *fault.Error
	if errors.As(err, &fe) {
		d.Kind = string(fe.Code)
		d.Entities = append(d.Entities, fe.Entities...)
	}
	p.add(ordinal, d)
}

func (p *pass) errorDiagnostic(ordinal int, err error) {
	p.diagnostic(ordinal, failure.LevelError, err)
}

func (p *pass) add(ordinal int, d failure.Diagnostic) {
	p.result.Diagnostics = append(p.result.Diagnostics, Diagnostic{
		Diagnostic: d,
		Seq:        p.engine.clock.Next(),
		Solve:      p.result.Solve,
		Component:  p.comp.Name,
		Ordinal:    ordinal,
	})
}

// messageOf renders err on one line. Fault errors render their message
// with the slot, without the code.
func messageOf(err error) string {
	msg := err.Error()
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Message != "" {
		msg = fe.Message
		if fe.Slot != "" {
			msg = fe.Slot + ": " + msg
		}
	}
	return strings.ReplaceAll(msg, "\r\n", " ")
}
