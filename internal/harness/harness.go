package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/recon/internal/compiler"
	"github.com/roach88/recon/internal/config"
	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/ops"
	"github.com/roach88/recon/internal/signature"
	"github.com/roach88/recon/internal/store"
	"github.com/roach88/recon/internal/testutil"
	"github.com/roach88/recon/internal/value"
)

// Harness is the scenario execution environment. Unique ids and solve ids
// are deterministic, so the same scenario always produces the same trace.
type Harness struct {
	store    *store.Store
	doc      *document.Model
	engine   *engine.Engine
	registry *engine.Registry
	defs     map[string]compiler.Definition
	comps    map[string]engine.Component
	setup    map[string]value.Ref
	logger   *slog.Logger
	scenario *Scenario
}

// Option configures Run.
type Option func(*options)

type options struct {
	store      *store.Store
	config     *config.Config
	logger     *slog.Logger
	newUUID    func() uuid.UUID
	engineOpts []engine.Option
}

// WithStore runs the scenario against st instead of a fresh in-memory
// database.
func WithStore(st *store.Store) Option {
	return func(o *options) {
		o.store = st
	}
}

// WithConfig applies cfg's component defaults and engine settings.
func WithConfig(cfg config.Config) Option {
	return func(o *options) {
		o.config = &cfg
	}
}

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithUUIDSource sets the unique id source of new entities and shared
// parameter GUIDs. Default: a testutil.UUIDSequence, which restarts with
// every run and so only suits fresh stores.
func WithUUIDSource(f func() uuid.UUID) Option {
	return func(o *options) {
		o.newUUID = f
	}
}

// WithEngineOptions adds engine options, such as an observer. They are
// applied last and override the harness defaults.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Open the store (fresh in-memory database by default)
// 2. Compile and validate the component specs
// 3. Commit the setup entities
// 4. Run every pass and check its expect clauses
// 5. Evaluate the assertions
//
// The error reports a scenario that could not be executed. Failed
// expectations are reported in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := &options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(o)
	}

	st := o.store
	if st == nil {
		var err error
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	}

	h, err := newHarness(ctx, scenario, st, o)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	if err := h.executeSetup(ctx); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	for i, p := range scenario.Passes {
		if err := h.executePass(ctx, i+1, p, result); err != nil {
			return nil, fmt.Errorf("pass %d: %w", i+1, err)
		}
	}

	actx := &AssertionContext{Ctx: ctx, Document: h.doc}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(ctx context.Context, s *Scenario, st *store.Store, o *options) (*Harness, error) {
	newUUID := o.newUUID
	if newUUID == nil {
		newUUID = testutil.NewUUIDSequence().Next
	}

	definitions := ops.NewMemoryDefinitions()
	for _, name := range sortedKeys(s.Definitions) {
		id, err := uuid.Parse(s.Definitions[name])
		if err != nil {
			return nil, fmt.Errorf("definition %s: %w", name, err)
		}
		if err := definitions.Define(name, id); err != nil {
			return nil, err
		}
	}
	registry := ops.NewRegistry(ops.Options{Definitions: definitions, NewUUID: newUUID})

	defs, err := loadSpecs(s.Specs)
	if err != nil {
		return nil, err
	}
	if o.config != nil {
		for i := range defs {
			defs[i] = o.config.Apply(defs[i])
		}
	}
	if errs := compiler.Validate(defs, registry, failureKinds()); len(errs) > 0 {
		return nil, fmt.Errorf("invalid components: %w", joinValidation(errs))
	}

	h := &Harness{
		store:    st,
		registry: registry,
		defs:     make(map[string]compiler.Definition, len(defs)),
		comps:    make(map[string]engine.Component, len(defs)),
		setup:    make(map[string]value.Ref),
		logger:   o.logger,
		scenario: s,
	}
	for _, d := range defs {
		c, err := d.Component()
		if err != nil {
			return nil, err
		}
		h.defs[d.Name] = d
		h.comps[d.Name] = c
	}

	docID := s.Document
	if docID == "" {
		docID = DefaultDocument
	}
	h.doc, err = st.OpenDocument(ctx, docID,
		document.WithUUIDSource(newUUID),
		document.WithLogger(o.logger),
	)
	if err != nil {
		return nil, err
	}

	lastSeq, err := st.DiagnosticLog().LastSeq(ctx)
	if err != nil {
		return nil, err
	}

	engineOpts := []engine.Option{
		engine.WithClock(engine.NewClockAt(lastSeq)),
		engine.WithIDGenerator(engine.NewSequenceGenerator(s.Name)),
		engine.WithStateStore(st.StateStore()),
		engine.WithDiagnosticSink(st.DiagnosticLog()),
		engine.WithLogger(o.logger),
	}
	if o.config != nil {
		engineOpts = append(engineOpts, o.config.EngineOptions()...)
	}
	h.engine = engine.New(registry, append(engineOpts, o.engineOpts...)...)
	return h, nil
}

// loadSpecs compiles every spec file, keeping declaration order.
func loadSpecs(paths []string) ([]compiler.Definition, error) {
	var defs []compiler.Definition
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read spec: %w", err)
		}
		found, err := compiler.CompileString(string(src), path)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s: %w", path, err)
		}
		defs = append(defs, found...)
	}
	return defs, nil
}

func failureKinds() []string {
	var kinds []string
	for _, r := range document.DefaultRules() {
		kinds = append(kinds, r.Kind)
	}
	return kinds
}

func joinValidation(errs []compiler.ValidationError) error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return errors.Join(out...)
}

// executeSetup commits the setup entities in one transaction.
func (h *Harness) executeSetup(ctx context.Context) error {
	if len(h.scenario.Setup) == 0 {
		return nil
	}
	tx, err := h.doc.Begin(ctx, "Setup")
	if err != nil {
		return err
	}
	for i, step := range h.scenario.Setup {
		attrs, err := toObject(step.Attrs)
		if err != nil {
			h.doc.Rollback(ctx, tx)
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		e, err := tx.Create(ctx, &document.Entity{
			Kind:   document.Kind(step.Kind),
			Name:   step.Name,
			Attrs:  attrs,
			Pinned: step.Pinned,
		})
		if err != nil {
			h.doc.Rollback(ctx, tx)
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Name != "" {
			h.setup[step.Name] = value.Ref{Document: h.doc.ID(), ID: e.ID}
		}
	}
	outcome, err := h.doc.CommitAttempt(ctx, tx, document.CommitOptions{})
	if err != nil {
		return err
	}
	if outcome != document.Committed {
		return fmt.Errorf("setup did not commit: %v", outcome)
	}
	return nil
}

// executePass runs the steps of pass n in dependency order. From the
// first per-solution step on, every step joins one Solution committed after
// the last step, since a document holds one open transaction at a time.
func (h *Harness) executePass(ctx context.Context, n int, p Pass, result *Result) error {
	steps := p.steps()
	byName := make(map[string]Step, len(steps))
	defs := make([]compiler.Definition, 0, len(steps))
	for _, step := range steps {
		d, ok := h.defs[step.Component]
		if !ok {
			return fmt.Errorf("unknown component %q", step.Component)
		}
		if _, dup := byName[step.Component]; dup {
			return fmt.Errorf("component %q appears twice", step.Component)
		}
		byName[step.Component] = step
		defs = append(defs, d)
	}
	ordered, err := compiler.Order(defs)
	if err != nil {
		return err
	}

	var solution *engine.Solution
	results := make([]*engine.Result, 0, len(ordered))
	for i, d := range ordered {
		comp := h.comps[d.Name]
		rows, err := h.rows(comp, byName[d.Name].Rows)
		if err != nil {
			return h.abandon(ctx, solution, fmt.Errorf("component %s: %w", d.Name, err))
		}
		req := engine.Request{Component: comp, Document: h.doc, Rows: rows}

		if solution == nil && comp.Strategy == engine.PerSolution && len(steps) > 1 {
			solution = h.engine.NewSolution(h.solutionName(p), h.solutionFixable(ordered[i:]))
		}

		var res *engine.Result
		if solution != nil {
			res, err = solution.Solve(ctx, req)
		} else {
			res, err = h.engine.Solve(ctx, req)
		}
		if res == nil {
			return h.abandon(ctx, solution, err)
		}
		if err != nil {
			h.logger.Debug("pass failed", "pass", n, "component", d.Name, "error", err)
		}
		results = append(results, res)
	}
	if solution != nil {
		if err := solution.Commit(ctx); err != nil {
			h.logger.Debug("solution failed", "pass", n, "error", err)
		}
	}

	result.addPass(n, results)
	for _, res := range results {
		if exp := byName[res.Component].Expect; exp != nil {
			for _, msg := range checkExpect(n, res, exp) {
				result.AddError(msg)
			}
		}
	}
	return nil
}

// abandon rolls back the standing transaction of an unfinished pass and
// returns err.
func (h *Harness) abandon(ctx context.Context, solution *engine.Solution, err error) error {
	if solution == nil {
		return err
	}
	return errors.Join(err, solution.Rollback(ctx))
}

func (h *Harness) solutionName(p Pass) string {
	if p.Transaction != "" {
		return p.Transaction
	}
	return h.scenario.Name
}

// solutionFixable collects the fixable kinds of the steps joining the
// solution.
func (h *Harness) solutionFixable(defs []compiler.Definition) []string {
	var kinds []string
	for _, d := range defs {
		for _, k := range d.Fixable {
			if !slices.Contains(kinds, k) {
				kinds = append(kinds, k)
			}
		}
	}
	return kinds
}

// rows converts YAML rows into engine sources. A string given for an enum
// input names its member; an unknown name is left as text for the binder
// to reject.
func (h *Harness) rows(comp engine.Component, in []Row) ([]signature.Source, error) {
	_, sig, err := h.registry.Lookup(comp.Operation)
	if err != nil {
		return nil, err
	}
	out := make([]signature.Source, len(in))
	for i, row := range in {
		src := signature.MapSource{}
		for _, name := range sortedKeys(row) {
			v, err := h.input(row[name])
			if err != nil {
				return nil, fmt.Errorf("row %d: %s: %w", i, name, err)
			}
			if p, ok := sig.Input(name); ok && p.Enum != nil {
				if text, ok := row[name].(string); ok {
					if m, ok := p.Enum.Parse(text); ok {
						v = p.Enum.Value(m)
					}
				}
			}
			src[name] = v
		}
		out[i] = src
	}
	return out, nil
}

// input converts one YAML value, resolving {ref: <setup name>}.
func (h *Harness) input(raw any) (value.Value, error) {
	switch v := raw.(type) {
	case map[string]any:
		if name, ok := v["ref"].(string); ok && len(v) == 1 {
			ref, found := h.setup[name]
			if !found {
				return nil, fmt.Errorf("no setup entity named %q", name)
			}
			return ref, nil
		}
	case []any:
		out := make(value.List, len(v))
		for i, elem := range v {
			ev, err := h.input(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = ev
		}
		return out, nil
	}
	return value.FromNative(raw)
}

func toObject(attrs map[string]any) (value.Object, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	v, err := value.FromNative(attrs)
	if err != nil {
		return nil, err
	}
	return v.(value.Object), nil
}

func checkExpect(n int, res *engine.Result, exp *Expect) []string {
	var errs []string
	if exp.Status != "" && exp.Status != res.Status.String() {
		errs = append(errs, fmt.Sprintf("pass %d %s: status %s, want %s", n, res.Component, res.Status, exp.Status))
	}
	if exp.Aborted != res.Aborted {
		errs = append(errs, fmt.Sprintf("pass %d %s: aborted %t, want %t", n, res.Component, res.Aborted, exp.Aborted))
	}
	if exp.Transitions != nil {
		got := make([]string, len(res.Runs))
		for i, run := range res.Runs {
			got[i] = string(run.Transition)
		}
		if !slices.Equal(got, exp.Transitions) {
			errs = append(errs, fmt.Sprintf("pass %d %s: transitions %v, want %v", n, res.Component, got, exp.Transitions))
		}
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
