// Package txn wraps document transactions in scopes with a one-directional
// state machine, finalizer hooks and guaranteed release.
//
// Every caller pairs Open with a deferred Release. A scope still Started when
// released is rolled back.
package txn

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/failure"
	"github.com/roach88/recon/internal/fault"
	"github.com/roach88/recon/internal/value"
)

// DefaultMaxAttempts caps commit attempts per Commit call. The failure
// session already bounds retries by the number of distinct failure kinds;
// this cap protects against documents that invent new kinds on every
// attempt.
const DefaultMaxAttempts = 32

// Status is the state of a scope.
type Status int

const (
	Uninitialized Status = iota
	Started
	Committed
	RolledBack
	Error
)

func (s Status) String() string {
	switch s {
	case Started:
		return "Started"
	case Committed:
		return "Committed"
	case RolledBack:
		return "RolledBack"
	case Error:
		return "Error"
	default:
		return "Uninitialized"
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == Committed || s == RolledBack || s == Error
}

// Substitutions maps replaced entity ids to their replacements.
type Substitutions map[value.EntityID]value.EntityID

// Finalizer receives a scope's lifecycle hooks.
type Finalizer interface {
	// BeforeCommit runs inside the transaction right before the first
	// commit attempt. An error rolls the transaction back.
	BeforeCommit(ctx context.Context, tx document.Txn) error

	// Committed runs after a successful commit.
	Committed(ctx context.Context, doc document.Reader, name string, subs Substitutions)

	// RolledBack runs after the transaction was rolled back.
	RolledBack(ctx context.Context, doc document.Reader, name string)
}

// Guard suspends host UI while a commit attempt needs it. Acquire returns
// the release function.
type Guard interface {
	Acquire() (release func())
}

// Observer receives commit outcomes. Used for metrics.
type Observer interface {
	CommitFinished(status Status, attempts int)
}

// Scope is one named transaction on one document.
type Scope struct {
	doc       document.Document
	name      string
	tx        document.Txn
	status    Status
	policy    *failure.Policy
	guard     Guard
	finalizer Finalizer
	observer  Observer
	logger    *slog.Logger

	maxAttempts int
	attempts    int
	subs        Substitutions
	diagnostics []failure.Diagnostic
}

// Option configures a Scope.
type Option func(*Scope)

// WithPolicy sets the failure policy. Without one, commits resolve nothing.
func WithPolicy(p *failure.Policy) Option {
	return func(s *Scope) {
		s.policy = p
	}
}

// WithGuard sets the dialog guard.
func WithGuard(g Guard) Option {
	return func(s *Scope) {
		s.guard = g
	}
}

// WithFinalizer sets the lifecycle hooks.
func WithFinalizer(f Finalizer) Option {
	return func(s *Scope) {
		s.finalizer = f
	}
}

// WithObserver sets the commit observer.
func WithObserver(o Observer) Option {
	return func(s *Scope) {
		s.observer = o
	}
}

// WithMaxAttempts caps commit attempts per Commit call.
func WithMaxAttempts(n int) Option {
	return func(s *Scope) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scope) {
		s.logger = l
	}
}

// Open starts a named transaction on doc.
func Open(ctx context.Context, doc document.Document, name string, opts ...Option) (*Scope, error) {
	s := &Scope{
		doc:         doc,
		name:        name,
		policy:      failure.NewPolicy(nil),
		logger:      slog.Default(),
		maxAttempts: DefaultMaxAttempts,
		subs:        make(Substitutions),
	}
	for _, opt := range opts {
		opt(s)
	}

	tx, err := doc.Begin(ctx, name)
	if err != nil {
		if fault.Is(err, fault.CodeStartFailure) {
			return nil, err
		}
		return nil, &fault.Error{
			Code:     fault.CodeStartFailure,
			Message:  fmt.Sprintf("unable to start transaction %q", name),
			Document: doc.ID(),
			Err:      err,
		}
	}
	s.tx = tx
	s.status = Started
	s.logger.Debug("scope opened", "document", doc.ID(), "transaction", name)
	return s, nil
}

// Name returns the transaction name.
func (s *Scope) Name() string { return s.name }

// Document returns the target document.
func (s *Scope) Document() document.Document { return s.doc }

// Txn returns the open transaction for writes.
func (s *Scope) Txn() document.Txn { return s.tx }

// Status returns the current status.
func (s *Scope) Status() Status { return s.status }

// Attempts returns the number of commit attempts made.
func (s *Scope) Attempts() int { return s.attempts }

// Diagnostics returns the failure diagnostics of the last Commit.
func (s *Scope) Diagnostics() []failure.Diagnostic {
	return append([]failure.Diagnostic(nil), s.diagnostics...)
}

// Substitute records that old was replaced by replacement in this
// transaction.
func (s *Scope) Substitute(old, replacement value.EntityID) {
	s.subs[old] = replacement
}

// Commit runs the before-commit hook and then commit attempts until the
// document commits or rolls back.
func (s *Scope) Commit(ctx context.Context) error {
	if s.status != Started {
		return fault.Structural("cannot commit transaction %q in status %s", s.name, s.status)
	}

	if s.finalizer != nil {
		if err := s.finalizer.BeforeCommit(ctx, s.tx); err != nil {
			if rbErr := s.rollback(ctx); rbErr != nil {
				return fmt.Errorf("before commit: %w (rollback: %v)", err, rbErr)
			}
			return fmt.Errorf("before commit: %w", err)
		}
	}

	session := s.policy.NewSession()
	defer func() {
		s.diagnostics = session.Diagnostics()
	}()

	for {
		if s.attempts >= s.maxAttempts {
			if err := s.rollback(ctx); err != nil {
				return err
			}
			return &fault.Error{
				Code:     fault.CodeCommitAborted,
				Message:  fmt.Sprintf("transaction %q exceeded %d commit attempts", s.name, s.maxAttempts),
				Document: s.doc.ID(),
			}
		}

		out, err := s.attempt(ctx, session)
		switch out {
		case document.Retry:
			s.logger.Debug("retrying commit", "transaction", s.name, "attempt", s.attempts)
			continue
		case document.Committed:
			s.status = Committed
			s.notify()
			s.logger.Info("transaction committed", "document", s.doc.ID(), "transaction", s.name, "attempts", s.attempts)
			if s.finalizer != nil {
				s.finalizer.Committed(ctx, s.doc, s.name, s.subs)
			}
			return nil
		default:
			if s.tx.Active() {
				// the document failed before closing the transaction
				if rbErr := s.doc.Rollback(ctx, s.tx); rbErr != nil {
					s.status = Error
					s.notify()
					return fmt.Errorf("%w (rollback: %v)", err, rbErr)
				}
			}
			s.status = RolledBack
			s.notify()
			s.logger.Warn("transaction rolled back", "document", s.doc.ID(), "transaction", s.name, "error", err)
			if s.finalizer != nil {
				s.finalizer.RolledBack(ctx, s.doc, s.name)
			}
			return err
		}
	}
}

// attempt runs one commit attempt with the dialog guard scoped to it.
func (s *Scope) attempt(ctx context.Context, session *failure.Session) (document.Outcome, error) {
	s.attempts++
	dialogs := &dialogScope{guard: s.guard}
	defer dialogs.close()

	return s.doc.CommitAttempt(ctx, s.tx, document.CommitOptions{
		Preprocessor: session,
		Dialogs:      dialogs,
	})
}

// Rollback rolls back a Started scope. It is a no-op on terminal scopes.
func (s *Scope) Rollback(ctx context.Context) error {
	if s.status != Started {
		return nil
	}
	return s.rollback(ctx)
}

func (s *Scope) rollback(ctx context.Context) error {
	if err := s.doc.Rollback(ctx, s.tx); err != nil {
		s.status = Error
		s.notify()
		return fmt.Errorf("roll back transaction %q: %w", s.name, err)
	}
	s.status = RolledBack
	s.notify()
	s.logger.Debug("scope rolled back", "document", s.doc.ID(), "transaction", s.name)
	if s.finalizer != nil {
		s.finalizer.RolledBack(ctx, s.doc, s.name)
	}
	return nil
}

// Release ends the scope, rolling back if it is still Started. Safe to call
// more than once.
func (s *Scope) Release(ctx context.Context) {
	if s == nil || s.status != Started {
		return
	}
	if err := s.rollback(ctx); err != nil {
		s.logger.Error("release failed", "transaction", s.name, "error", err)
	}
}

func (s *Scope) notify() {
	if s.observer != nil {
		s.observer.CommitFinished(s.status, s.attempts)
	}
}

// dialogScope acquires the guard on the first interactive failure of an
// attempt and releases it when the attempt ends.
type dialogScope struct {
	guard   Guard
	release func()
	shown   int
}

func (d *dialogScope) DialogShowing(r *failure.Record) {
	d.shown++
	if d.release == nil && d.guard != nil {
		d.release = d.guard.Acquire()
	}
}

func (d *dialogScope) close() {
	if d.release != nil {
		d.release()
		d.release = nil
	}
}

// CountingGuard is a Guard that tracks how many acquisitions are held.
type CountingGuard struct {
	held     int
	acquired int
}

// Acquire implements Guard.
func (g *CountingGuard) Acquire() func() {
	g.held++
	g.acquired++
	released := false
	return func() {
		if !released {
			released = true
			g.held--
		}
	}
}

// Held returns the number of unreleased acquisitions.
func (g *CountingGuard) Held() int { return g.held }

// Acquired returns the total number of acquisitions.
func (g *CountingGuard) Acquired() int { return g.acquired }
