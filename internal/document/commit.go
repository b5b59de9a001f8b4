package document

import (
	"context"
	"fmt"

	"github.com/roach88/recon/internal/failure"
	"github.com/roach88/recon/internal/fault"
)

// CommitAttempt implements Document.
//
// The attempt runs every rule over the transaction's entities. With no
// records the transaction commits. Otherwise the preprocessor decides:
// RollBack rolls back with fault.CodeCommitAborted, RetryCommit leaves the
// transaction open for another attempt, and Continue commits unless errors
// remain, in which case it rolls back with fault.CodeCommitFailed.
func (m *Model) CommitAttempt(ctx context.Context, tx Txn, opts CommitOptions) (Outcome, error) {
	mt, err := m.own(tx)
	if err != nil {
		return RolledBack, err
	}
	if err := mt.check(); err != nil {
		return RolledBack, err
	}

	records, err := m.check(ctx, mt)
	if err != nil {
		_ = m.finish(mt, false)
		return RolledBack, err
	}

	if len(records) == 0 {
		if err := m.finish(mt, true); err != nil {
			return RolledBack, err
		}
		return Committed, nil
	}

	acc := &accessor{model: m, tx: mt, records: records, committing: true}

	if opts.Dialogs != nil {
		for _, r := range records {
			if r.Interactive {
				opts.Dialogs.DialogShowing(r)
			}
		}
	}

	decision := failure.Continue
	if opts.Preprocessor != nil {
		decision = opts.Preprocessor.Preprocess(ctx, acc)
	} else {
		acc.DeleteWarnings()
	}

	m.logger.Debug("commit attempt preprocessed",
		"document", m.id,
		"transaction", mt.name,
		"records", len(records),
		"decision", decision.String(),
	)

	switch decision {
	case failure.RollBack:
		if err := m.finish(mt, false); err != nil {
			return RolledBack, err
		}
		return RolledBack, &fault.Error{
			Code:     fault.CodeCommitAborted,
			Message:  fmt.Sprintf("transaction %q rolled back by failure policy", mt.name),
			Document: m.id,
		}

	case failure.RetryCommit:
		return Retry, nil
	}

	if acc.Severity() >= failure.SeverityError {
		remaining := acc.Records()
		if err := m.finish(mt, false); err != nil {
			return RolledBack, err
		}
		fe := &fault.Error{
			Code:     fault.CodeCommitFailed,
			Message:  fmt.Sprintf("transaction %q has %d unresolved failures", mt.name, len(remaining)),
			Document: m.id,
		}
		for _, r := range remaining {
			fe.Entities = append(fe.Entities, r.Entities...)
		}
		return RolledBack, fe
	}

	if err := m.finish(mt, true); err != nil {
		return RolledBack, err
	}
	return Committed, nil
}

func (m *Model) check(ctx context.Context, tx *modelTxn) ([]*failure.Record, error) {
	entities, err := tx.btx.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("check transaction %q: %w", tx.name, err)
	}
	var records []*failure.Record
	for _, rule := range m.rules {
		for _, r := range rule.Check(entities) {
			if rule.Interactive {
				r.Interactive = true
			}
			records = append(records, r)
		}
	}
	return records, nil
}

func (m *Model) rule(kind string) (Rule, bool) {
	for _, r := range m.rules {
		if r.Kind == kind {
			return r, true
		}
	}
	return Rule{}, false
}

// accessor implements failure.Accessor for one commit attempt.
type accessor struct {
	model      *Model
	tx         *modelTxn
	records    []*failure.Record
	committing bool
}

func (a *accessor) TransactionName() string { return a.tx.name }
func (a *accessor) BeingCommitted() bool    { return a.committing }

func (a *accessor) Severity() failure.Severity {
	max := failure.SeverityNone
	for _, r := range a.records {
		if r.Severity > max {
			max = r.Severity
		}
	}
	return max
}

func (a *accessor) Records() []*failure.Record {
	return append([]*failure.Record(nil), a.records...)
}

func (a *accessor) ResolutionPermitted(r *failure.Record) bool {
	rule, ok := a.model.rule(r.Kind)
	return ok && rule.Resolve != nil
}

func (a *accessor) AttemptedResolutions(r *failure.Record) int {
	return a.tx.attempted[r.Key()]
}

func (a *accessor) Resolve(ctx context.Context, r *failure.Record) error {
	rule, ok := a.model.rule(r.Kind)
	if !ok || rule.Resolve == nil {
		return fault.Structural("failure %q cannot be resolved", r.Kind)
	}
	key := r.Key()
	if a.tx.attempted[key] > 0 {
		return fault.New(fault.CodeAlreadyAttemptedResolution, "failure %s was already resolved once", key)
	}
	a.tx.attempted[key]++

	if err := rule.Resolve(ctx, a.tx, r); err != nil {
		return fmt.Errorf("resolve %s: %w", key, err)
	}
	a.remove(r)
	return nil
}

func (a *accessor) DeleteWarnings() {
	kept := a.records[:0:0]
	for _, r := range a.records {
		if r.Severity != failure.SeverityWarning {
			kept = append(kept, r)
		}
	}
	a.records = kept
}

func (a *accessor) remove(r *failure.Record) {
	kept := a.records[:0:0]
	for _, other := range a.records {
		if other != r {
			kept = append(kept, other)
		}
	}
	a.records = kept
}
