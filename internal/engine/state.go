package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/value"
)

// Handle identifies an output entity across passes.
//
// UniqueID detects stale handles: an id that now names a different entity
// (a user deleted and the store reused the slot, or the state was written
// against another copy of the document) resolves to nothing.
type Handle struct {
	Document string         `json:"document"`
	ID       value.EntityID `json:"id"`
	UniqueID uuid.UUID      `json:"unique_id"`
}

// HandleOf returns the handle for e in document doc. A nil entity yields
// the zero handle.
func HandleOf(doc string, e *document.Entity) Handle {
	if e == nil {
		return Handle{}
	}
	return Handle{Document: doc, ID: e.ID, UniqueID: e.UniqueID}
}

// IsZero reports whether h marks an absent output.
func (h Handle) IsZero() bool {
	return h.ID == 0
}

// RunState is the output column of the last committed pass, one handle per
// run ordinal. Zero handles mark runs whose output was absent.
type RunState struct {
	// Generation counts committed passes.
	Generation uint64   `json:"generation"`
	Handles    []Handle `json:"handles"`
}

// Clone returns a deep copy.
func (s *RunState) Clone() *RunState {
	if s == nil {
		return &RunState{}
	}
	return &RunState{
		Generation: s.Generation,
		Handles:    append([]Handle(nil), s.Handles...),
	}
}

// cursor walks a RunState one run at a time.
type cursor struct {
	handles []Handle
	next    int
}

func newCursor(s *RunState) *cursor {
	return &cursor{handles: s.Clone().Handles}
}

// advance returns the handle for the next ordinal. ok is false once the
// previous pass had no output at this position.
func (c *cursor) advance() (h Handle, ok bool) {
	if c.next >= len(c.handles) {
		c.next++
		return Handle{}, false
	}
	h = c.handles[c.next]
	c.next++
	return h, true
}

// rest returns the handles the current pass never reached.
func (c *cursor) rest() []Handle {
	if c.next >= len(c.handles) {
		return nil
	}
	out := c.handles[c.next:]
	c.next = len(c.handles)
	return out
}

// StateStore persists RunState per component.
type StateStore interface {
	// LoadState returns the component's state, or an empty state when the
	// component never committed.
	LoadState(ctx context.Context, component string) (*RunState, error)

	// SaveState replaces the component's state.
	SaveState(ctx context.Context, component string, st *RunState) error
}

// MemoryStateStore keeps RunState in process memory.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]*RunState
}

// NewMemoryStateStore creates an empty store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*RunState)}
}

// LoadState implements StateStore.
func (m *MemoryStateStore) LoadState(_ context.Context, component string) (*RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[component].Clone(), nil
}

// SaveState implements StateStore.
func (m *MemoryStateStore) SaveState(_ context.Context, component string, st *RunState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[component] = st.Clone()
	return nil
}
