package document

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/recon/internal/value"
)

// Snapshot is a consistent view of stored entities.
type Snapshot interface {
	// Get returns the entity and whether it exists.
	Get(ctx context.Context, id value.EntityID) (*Entity, bool, error)

	// List returns every entity ordered by id.
	List(ctx context.Context) ([]*Entity, error)
}

// Backend stores a document's entities.
type Backend interface {
	Snapshot

	// Begin opens a write transaction. Only one is open at a time.
	Begin(ctx context.Context) (BackendTx, error)
}

// BackendTx is a write transaction on a Backend.
type BackendTx interface {
	Snapshot

	// NextID allocates an entity id. Ids are never handed out twice by
	// committed transactions.
	NextID(ctx context.Context) (value.EntityID, error)

	// Put inserts or replaces an entity.
	Put(ctx context.Context, e *Entity) error

	// Delete removes an entity, returning false if it did not exist.
	Delete(ctx context.Context, id value.EntityID) (bool, error)

	Commit() error
	Rollback() error
}

// ErrTxDone is returned when a finished backend transaction is used.
var ErrTxDone = errors.New("document: transaction already finished")

// MemoryBackend keeps entities in memory. Transactions work on a copy that
// replaces the live set on commit.
type MemoryBackend struct {
	mu       sync.Mutex
	entities map[value.EntityID]*Entity
	nextID   value.EntityID
	open     bool
}

// NewMemoryBackend returns an empty backend. The first id is 1.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entities: make(map[value.EntityID]*Entity),
		nextID:   1,
	}
}

func (b *MemoryBackend) Get(_ context.Context, id value.EntityID) (*Entity, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entities[id]
	return e.Clone(), ok, nil
}

func (b *MemoryBackend) List(_ context.Context) ([]*Entity, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sortedClones(b.entities), nil
}

func (b *MemoryBackend) Begin(_ context.Context) (BackendTx, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return nil, errors.New("document: memory backend already has an open transaction")
	}
	b.open = true

	work := make(map[value.EntityID]*Entity, len(b.entities))
	for id, e := range b.entities {
		work[id] = e.Clone()
	}
	return &memoryTx{backend: b, entities: work, nextID: b.nextID}, nil
}

type memoryTx struct {
	backend  *MemoryBackend
	entities map[value.EntityID]*Entity
	nextID   value.EntityID
	done     bool
}

func (t *memoryTx) Get(_ context.Context, id value.EntityID) (*Entity, bool, error) {
	if t.done {
		return nil, false, ErrTxDone
	}
	e, ok := t.entities[id]
	return e.Clone(), ok, nil
}

func (t *memoryTx) List(_ context.Context) ([]*Entity, error) {
	if t.done {
		return nil, ErrTxDone
	}
	return sortedClones(t.entities), nil
}

func (t *memoryTx) NextID(_ context.Context) (value.EntityID, error) {
	if t.done {
		return 0, ErrTxDone
	}
	id := t.nextID
	t.nextID++
	return id, nil
}

func (t *memoryTx) Put(_ context.Context, e *Entity) error {
	if t.done {
		return ErrTxDone
	}
	t.entities[e.ID] = e.Clone()
	return nil
}

func (t *memoryTx) Delete(_ context.Context, id value.EntityID) (bool, error) {
	if t.done {
		return false, ErrTxDone
	}
	if _, ok := t.entities[id]; !ok {
		return false, nil
	}
	delete(t.entities, id)
	return true, nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entities = t.entities
	b.nextID = t.nextID
	b.open = false
	return nil
}

func (t *memoryTx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	b := t.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	return nil
}

func sortedClones(m map[value.EntityID]*Entity) []*Entity {
	ids := slices.Sorted(maps.Keys(m))
	out := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id].Clone())
	}
	return out
}
