package document

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/recon/internal/fault"
	"github.com/roach88/recon/internal/value"
)

// Model is the reference Document over a Backend.
type Model struct {
	id      string
	backend Backend
	rules   []Rule
	newUUID func() uuid.UUID
	logger  *slog.Logger

	mu     sync.Mutex
	active *modelTxn
	holder string
}

// Option configures a Model.
type Option func(*Model)

// WithRules replaces the commit rules.
func WithRules(rules ...Rule) Option {
	return func(m *Model) {
		m.rules = rules
	}
}

// WithExtraRules appends commit rules after the current ones.
func WithExtraRules(rules ...Rule) Option {
	return func(m *Model) {
		m.rules = append(m.rules, rules...)
	}
}

// WithUUIDSource sets the generator for entity unique ids.
func WithUUIDSource(f func() uuid.UUID) Option {
	return func(m *Model) {
		m.newUUID = f
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) {
		m.logger = l
	}
}

// NewModel creates a document identified by id over backend.
func NewModel(id string, backend Backend, opts ...Option) *Model {
	m := &Model{
		id:      id,
		backend: backend,
		rules:   DefaultRules(),
		newUUID: uuid.New,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewMemoryModel is shorthand for a Model over a fresh MemoryBackend.
func NewMemoryModel(id string, opts ...Option) *Model {
	return NewModel(id, NewMemoryBackend(), opts...)
}

// ID implements Reader.
func (m *Model) ID() string {
	return m.id
}

// Lock marks the document as held by another writer. Begin fails until
// Unlock is called.
func (m *Model) Lock(holder string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holder = holder
}

// Unlock releases a Lock.
func (m *Model) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holder = ""
}

// snapshot returns the open transaction's view or the committed state.
func (m *Model) snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		return m.active.btx
	}
	return m.backend
}

// Get implements Reader.
func (m *Model) Get(ctx context.Context, id value.EntityID) (*Entity, error) {
	return get(ctx, m.id, m.snapshot(), id)
}

// Find implements Reader.
func (m *Model) Find(ctx context.Context, kind Kind, name string) (*Entity, error) {
	return find(ctx, m.snapshot(), kind, name)
}

// List implements Reader.
func (m *Model) List(ctx context.Context, keep func(*Entity) bool) ([]*Entity, error) {
	return list(ctx, m.snapshot(), keep)
}

// Begin implements Document.
func (m *Model) Begin(ctx context.Context, name string) (Txn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.holder != "" {
		return nil, &fault.Error{
			Code:     fault.CodeStartFailure,
			Message:  fmt.Sprintf("unable to start transaction %q: document is held by %s", name, m.holder),
			Document: m.id,
		}
	}
	if m.active != nil {
		return nil, &fault.Error{
			Code:     fault.CodeStartFailure,
			Message:  fmt.Sprintf("unable to start transaction %q: transaction %q is already open", name, m.active.name),
			Document: m.id,
		}
	}

	btx, err := m.backend.Begin(ctx)
	if err != nil {
		return nil, &fault.Error{
			Code:     fault.CodeStartFailure,
			Message:  fmt.Sprintf("unable to start transaction %q", name),
			Document: m.id,
			Err:      err,
		}
	}

	tx := &modelTxn{
		model:     m,
		name:      name,
		btx:       btx,
		attempted: make(map[string]int),
	}
	m.active = tx
	m.logger.Debug("transaction started", "document", m.id, "transaction", name)
	return tx, nil
}

// Rollback implements Document.
func (m *Model) Rollback(ctx context.Context, tx Txn) error {
	mt, err := m.own(tx)
	if err != nil {
		return err
	}
	if mt.done {
		return nil
	}
	return m.finish(mt, false)
}

// own checks that tx belongs to this model.
func (m *Model) own(tx Txn) (*modelTxn, error) {
	mt, ok := tx.(*modelTxn)
	if !ok || mt.model != m {
		return nil, fault.Structural("transaction does not belong to document %s", m.id)
	}
	return mt, nil
}

// finish commits or rolls back the backend transaction and closes tx.
func (m *Model) finish(tx *modelTxn, commit bool) error {
	var err error
	if commit {
		err = tx.btx.Commit()
	} else {
		err = tx.btx.Rollback()
	}

	m.mu.Lock()
	tx.done = true
	if m.active == tx {
		m.active = nil
	}
	m.mu.Unlock()

	if err != nil {
		if commit {
			return fmt.Errorf("commit transaction %q: %w", tx.name, err)
		}
		return fmt.Errorf("roll back transaction %q: %w", tx.name, err)
	}

	if commit {
		m.logger.Debug("transaction committed", "document", m.id, "transaction", tx.name)
	} else {
		m.logger.Debug("transaction rolled back", "document", m.id, "transaction", tx.name)
	}
	return nil
}

// modelTxn is the Txn handed out by Model.
type modelTxn struct {
	model *Model
	name  string
	btx   BackendTx
	done  bool

	// attempted counts resolutions per record key for this transaction.
	attempted map[string]int
}

func (t *modelTxn) ID() string   { return t.model.id }
func (t *modelTxn) Name() string { return t.name }

func (t *modelTxn) Active() bool {
	t.model.mu.Lock()
	defer t.model.mu.Unlock()
	return !t.done
}

func (t *modelTxn) check() error {
	if !t.Active() {
		return fault.Structural("transaction %q is no longer active", t.name)
	}
	return nil
}

func (t *modelTxn) Get(ctx context.Context, id value.EntityID) (*Entity, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return get(ctx, t.model.id, t.btx, id)
}

func (t *modelTxn) Find(ctx context.Context, kind Kind, name string) (*Entity, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return find(ctx, t.btx, kind, name)
}

func (t *modelTxn) List(ctx context.Context, keep func(*Entity) bool) ([]*Entity, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return list(ctx, t.btx, keep)
}

func (t *modelTxn) Create(ctx context.Context, e *Entity) (*Entity, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if !e.Kind.Known() {
		return nil, fault.Structural("unknown entity kind %q", e.Kind)
	}
	id, err := t.btx.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate entity id: %w", err)
	}

	created := e.Clone()
	created.ID = id
	if created.UniqueID == uuid.Nil {
		created.UniqueID = t.model.newUUID()
	}
	created.Generation = 1
	if err := t.btx.Put(ctx, created); err != nil {
		return nil, fmt.Errorf("create entity: %w", err)
	}
	return created.Clone(), nil
}

func (t *modelTxn) Update(ctx context.Context, e *Entity) (*Entity, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	current, ok, err := t.btx.Get(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("update entity %d: %w", e.ID, err)
	}
	if !ok {
		return nil, &fault.Error{
			Code:     fault.CodeNotFound,
			Message:  fmt.Sprintf("entity %d does not exist", e.ID),
			Document: t.model.id,
			Entities: []value.EntityID{e.ID},
		}
	}

	updated := e.Clone()
	updated.UniqueID = current.UniqueID
	updated.Kind = current.Kind
	updated.Generation = current.Generation + 1
	if err := t.btx.Put(ctx, updated); err != nil {
		return nil, fmt.Errorf("update entity %d: %w", e.ID, err)
	}
	return updated.Clone(), nil
}

func (t *modelTxn) Delete(ctx context.Context, id value.EntityID) (bool, error) {
	if err := t.check(); err != nil {
		return false, err
	}
	gone, err := t.btx.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete entity %d: %w", id, err)
	}
	return gone, nil
}

func get(ctx context.Context, docID string, s Snapshot, id value.EntityID) (*Entity, error) {
	e, ok, err := s.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get entity %d: %w", id, err)
	}
	if !ok {
		return nil, &fault.Error{
			Code:     fault.CodeNotFound,
			Message:  fmt.Sprintf("entity %d does not exist", id),
			Document: docID,
			Entities: []value.EntityID{id},
		}
	}
	return e, nil
}

func find(ctx context.Context, s Snapshot, kind Kind, name string) (*Entity, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("find %s %q: %w", kind, name, err)
	}
	for _, e := range all {
		if e.Kind == kind && e.Name == name {
			return e, nil
		}
	}
	return nil, nil
}

func list(ctx context.Context, s Snapshot, keep func(*Entity) bool) ([]*Entity, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	if keep == nil {
		return all, nil
	}
	out := all[:0]
	for _, e := range all {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out, nil
}
