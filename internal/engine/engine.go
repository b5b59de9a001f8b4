package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/failure"
	"github.com/roach88/recon/internal/signature"
	"github.com/roach88/recon/internal/txn"
)

// Component is one configured use of an operation. Its Name keys the
// persisted RunState, so two components running the same operation keep
// separate output columns.
type Component struct {
	Name      string
	Operation string

	// Transaction names the document transaction. Defaults to Operation.
	Transaction string

	Strategy Strategy

	// Fixable lists failure kinds to resolve first at commit, in order.
	Fixable []string

	// CopyAttributes are carried from a replaced entity onto its
	// replacement.
	CopyAttributes []string
}

func (c Component) transactionName() string {
	if c.Transaction != "" {
		return c.Transaction
	}
	return c.Operation
}

// Request is one pass of a component: one input row per run.
type Request struct {
	Component Component
	Document  document.Document
	Rows      []signature.Source
}

// Observer receives pass and run outcomes. Used for metrics.
type Observer interface {
	RunFinished(component string, t Transition)
	PassFinished(component string, status txn.Status, aborted bool)
}

// DiagnosticSink persists the diagnostics of a pass.
type DiagnosticSink interface {
	RecordDiagnostics(ctx context.Context, diags []Diagnostic) error
}

// Engine runs component passes.
//
// The engine holds no per-document state besides what its StateStore
// persists; one Engine serves every document and component.
type Engine struct {
	registry *Registry
	states   StateStore
	clock    *Clock
	ids      IDGenerator
	observer Observer
	sink     DiagnosticSink
	logger   *slog.Logger

	maxRuns     int
	maxAttempts int
	scopeOpts   []txn.Option
	policyOpts  []failure.Option
}

// Option configures an Engine.
type Option func(*Engine)

// WithStateStore sets where RunState is kept. Default: in memory.
func WithStateStore(s StateStore) Option {
	return func(e *Engine) {
		e.states = s
	}
}

// WithClock sets the diagnostics clock.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the solve id generator. Default: UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithObserver sets the pass observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithDiagnosticSink sets where pass diagnostics are persisted.
func WithDiagnosticSink(s DiagnosticSink) Option {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMaxRuns limits runs per pass.
func WithMaxRuns(n int) Option {
	return func(e *Engine) {
		e.maxRuns = n
	}
}

// WithMaxCommitAttempts caps commit attempts per transaction.
func WithMaxCommitAttempts(n int) Option {
	return func(e *Engine) {
		e.maxAttempts = n
	}
}

// WithScopeOptions adds options to every transaction scope the engine
// opens, such as a dialog guard or a commit observer.
func WithScopeOptions(opts ...txn.Option) Option {
	return func(e *Engine) {
		e.scopeOpts = append(e.scopeOpts, opts...)
	}
}

// WithPolicyOptions adds options to every failure policy.
func WithPolicyOptions(opts ...failure.Option) Option {
	return func(e *Engine) {
		e.policyOpts = append(e.policyOpts, opts...)
	}
}

// New creates an engine over the registered operations.
func New(registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:    registry,
		states:      NewMemoryStateStore(),
		clock:       NewClock(),
		ids:         UUIDv7Generator{},
		logger:      slog.Default(),
		maxRuns:     DefaultMaxRuns,
		maxAttempts: txn.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's operation registry.
func (e *Engine) Registry() *Registry { return e.registry }

// States returns the engine's state store.
func (e *Engine) States() StateStore { return e.states }

// scopeOptions builds the options for a scope whose finalizer is f.
func (e *Engine) scopeOptions(fixable []string, f txn.Finalizer) []txn.Option {
	policyOpts := append([]failure.Option{failure.WithLogger(e.logger)}, e.policyOpts...)
	opts := []txn.Option{
		txn.WithLogger(e.logger),
		txn.WithMaxAttempts(e.maxAttempts),
		txn.WithPolicy(failure.NewPolicy(fixable, policyOpts...)),
		txn.WithFinalizer(f),
	}
	return append(opts, e.scopeOpts...)
}

// Solve runs one pass of req.Component in its own transaction.
//
// The returned Result is non-nil whenever the operation named by the
// component exists. The error reports a start failure, a hard abort or a
// failed commit; the Result's diagnostics describe each of them too.
func (e *Engine) Solve(ctx context.Context, req Request) (*Result, error) {
	p, err := e.newPass(ctx, e.ids.Generate(), req, NewClaimSet())
	if err != nil {
		return nil, err
	}
	if req.Component.Strategy == PerSolution {
		e.logger.Debug("per-solution component solved alone", "component", req.Component.Name)
	}

	scope, err := txn.Open(ctx, req.Document, req.Component.transactionName(), e.scopeOptions(req.Component.Fixable, p)...)
	if err != nil {
		p.errorDiagnostic(-1, err)
		p.finish(ctx, txn.Uninitialized, nil)
		return p.result, err
	}
	defer scope.Release(ctx)
	p.scope = scope

	runErr := p.run(ctx, req.Rows)

	var endErr error
	if runErr != nil {
		endErr = scope.Rollback(ctx)
	} else {
		endErr = scope.Commit(ctx)
	}
	p.finish(ctx, scope.Status(), scope.Diagnostics())
	return p.result, errors.Join(runErr, endErr)
}
