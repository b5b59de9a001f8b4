package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/queryir"
	"github.com/roach88/recon/internal/querysql"
	"github.com/roach88/recon/internal/value"
)

// Backend is the document.Backend of one stored document.
type Backend struct {
	store *Store
	id    string

	mu   sync.Mutex
	open bool
}

// Backend returns the backend of document docID, registering the document
// on first use.
func (s *Store) Backend(ctx context.Context, docID string) (*Backend, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id) VALUES (?)
		ON CONFLICT(id) DO NOTHING
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("register document %s: %w", docID, err)
	}
	return &Backend{store: s, id: docID}, nil
}

// OpenDocument returns a document model over the stored document docID.
func (s *Store) OpenDocument(ctx context.Context, docID string, opts ...document.Option) (*document.Model, error) {
	b, err := s.Backend(ctx, docID)
	if err != nil {
		return nil, err
	}
	return document.NewModel(docID, b, opts...), nil
}

// Document returns the id of the backend's document.
func (b *Backend) Document() string { return b.id }

// Get implements document.Snapshot.
func (b *Backend) Get(ctx context.Context, id value.EntityID) (*document.Entity, bool, error) {
	found, err := b.Query(ctx, queryir.Select{
		Document: b.id,
		Filter:   queryir.Equals{Field: queryir.FieldID, Value: value.Int(id)},
		Limit:    1,
	})
	if err != nil || len(found) == 0 {
		return nil, false, err
	}
	return found[0], true, nil
}

// List implements document.Snapshot.
func (b *Backend) List(ctx context.Context) ([]*document.Entity, error) {
	return b.Query(ctx, queryir.Select{Document: b.id})
}

// Query returns the committed entities matching q, ordered by id. The
// query's document is forced to the backend's.
func (b *Backend) Query(ctx context.Context, q queryir.Select) ([]*document.Entity, error) {
	q.Document = b.id
	query, params, err := querysql.Compile(q)
	if err != nil {
		return nil, err
	}

	rows, err := b.store.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	entities := []*document.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return entities, nil
}

// Begin implements document.Backend.
func (b *Backend) Begin(ctx context.Context) (document.BackendTx, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return nil, fmt.Errorf("store: document %s already has an open transaction", b.id)
	}

	var next int64
	if err := b.store.db.QueryRowContext(ctx, `SELECT next_id FROM documents WHERE id = ?`, b.id).Scan(&next); err != nil {
		return nil, fmt.Errorf("read next id of %s: %w", b.id, err)
	}
	b.open = true
	return &backendTx{
		backend: b,
		ctx:     context.WithoutCancel(ctx),
		puts:    make(map[value.EntityID]*document.Entity),
		deletes: make(map[value.EntityID]bool),
		nextID:  value.EntityID(next),
	}, nil
}

func (b *Backend) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
}

// backendTx buffers writes over the committed entities.
type backendTx struct {
	backend *Backend
	ctx     context.Context
	puts    map[value.EntityID]*document.Entity
	deletes map[value.EntityID]bool
	nextID  value.EntityID
	done    bool
}

func (t *backendTx) Get(ctx context.Context, id value.EntityID) (*document.Entity, bool, error) {
	if t.done {
		return nil, false, document.ErrTxDone
	}
	if t.deletes[id] {
		return nil, false, nil
	}
	if e, ok := t.puts[id]; ok {
		return e.Clone(), true, nil
	}
	return t.backend.Get(ctx, id)
}

func (t *backendTx) List(ctx context.Context) ([]*document.Entity, error) {
	if t.done {
		return nil, document.ErrTxDone
	}
	committed, err := t.backend.List(ctx)
	if err != nil {
		return nil, err
	}
	merged := make(map[value.EntityID]*document.Entity, len(committed)+len(t.puts))
	for _, e := range committed {
		if !t.deletes[e.ID] {
			merged[e.ID] = e
		}
	}
	for id, e := range t.puts {
		merged[id] = e.Clone()
	}
	out := make([]*document.Entity, 0, len(merged))
	for _, id := range slices.Sorted(maps.Keys(merged)) {
		out = append(out, merged[id])
	}
	return out, nil
}

func (t *backendTx) NextID(_ context.Context) (value.EntityID, error) {
	if t.done {
		return 0, document.ErrTxDone
	}
	id := t.nextID
	t.nextID++
	return id, nil
}

func (t *backendTx) Put(_ context.Context, e *document.Entity) error {
	if t.done {
		return document.ErrTxDone
	}
	t.puts[e.ID] = e.Clone()
	delete(t.deletes, e.ID)
	return nil
}

func (t *backendTx) Delete(ctx context.Context, id value.EntityID) (bool, error) {
	_, ok, err := t.Get(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	delete(t.puts, id)
	t.deletes[id] = true
	return true, nil
}

// Commit applies the buffered writes in one SQL transaction, in id order.
func (t *backendTx) Commit() error {
	if t.done {
		return document.ErrTxDone
	}
	t.done = true
	defer t.backend.release()

	db := t.backend.store.db
	tx, err := db.BeginTx(t.ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, id := range slices.Sorted(maps.Keys(t.deletes)) {
		if _, err := tx.ExecContext(t.ctx, `DELETE FROM entities WHERE document = ? AND id = ?`, t.backend.id, int64(id)); err != nil {
			return fmt.Errorf("delete entity %d: %w", id, err)
		}
	}
	for _, id := range slices.Sorted(maps.Keys(t.puts)) {
		if err := putEntity(t.ctx, tx, t.backend.id, t.puts[id]); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(t.ctx, `UPDATE documents SET next_id = ? WHERE id = ?`, int64(t.nextID), t.backend.id); err != nil {
		return fmt.Errorf("advance next id: %w", err)
	}
	return tx.Commit()
}

func (t *backendTx) Rollback() error {
	if t.done {
		return document.ErrTxDone
	}
	t.done = true
	t.backend.release()
	return nil
}

func putEntity(ctx context.Context, tx *sql.Tx, docID string, e *document.Entity) error {
	attrs, err := marshalAttrs(e.Attrs)
	if err != nil {
		return fmt.Errorf("put entity %d: %w", e.ID, err)
	}
	refs, err := marshalRefs(e.Refs)
	if err != nil {
		return fmt.Errorf("put entity %d: %w", e.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities
		(document, id, unique_id, kind, name, attrs, refs, pinned, generation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document, id) DO UPDATE SET
			unique_id = excluded.unique_id,
			kind = excluded.kind,
			name = excluded.name,
			attrs = excluded.attrs,
			refs = excluded.refs,
			pinned = excluded.pinned,
			generation = excluded.generation
	`,
		docID,
		int64(e.ID),
		e.UniqueID.String(),
		string(e.Kind),
		e.Name,
		attrs,
		refs,
		e.Pinned,
		int64(e.Generation),
	)
	if err != nil {
		return fmt.Errorf("put entity %d: %w", e.ID, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntity scans the querysql.Columns of one row.
func scanEntity(row rowScanner) (*document.Entity, error) {
	var (
		id         int64
		uniqueID   string
		kind       string
		name       string
		attrsJSON  string
		refsJSON   string
		pinned     bool
		generation int64
	)
	if err := row.Scan(&id, &uniqueID, &kind, &name, &attrsJSON, &refsJSON, &pinned, &generation); err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}

	uid, err := uuid.Parse(uniqueID)
	if err != nil {
		return nil, fmt.Errorf("entity %d: unique id: %w", id, err)
	}
	attrs, err := unmarshalAttrs(attrsJSON)
	if err != nil {
		return nil, fmt.Errorf("entity %d: %w", id, err)
	}
	refs, err := unmarshalRefs(refsJSON)
	if err != nil {
		return nil, fmt.Errorf("entity %d: %w", id, err)
	}

	return &document.Entity{
		ID:         value.EntityID(id),
		UniqueID:   uid,
		Kind:       document.Kind(kind),
		Name:       name,
		Attrs:      attrs,
		Refs:       refs,
		Pinned:     pinned,
		Generation: uint64(generation),
	}, nil
}

// marshalAttrs encodes attributes as canonical JSON.
func marshalAttrs(attrs value.Object) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	data, err := value.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("marshal attrs: %w", err)
	}
	return string(data), nil
}

func unmarshalAttrs(data string) (value.Object, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	v, err := value.Unmarshal([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal attrs: %w", err)
	}
	obj, ok := v.(value.Object)
	if !ok {
		return nil, errors.New("unmarshal attrs: not an object")
	}
	return obj, nil
}

func marshalRefs(refs []value.EntityID) (string, error) {
	if refs == nil {
		refs = []value.EntityID{}
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("marshal refs: %w", err)
	}
	return string(data), nil
}

func unmarshalRefs(data string) ([]value.EntityID, error) {
	var refs []value.EntityID
	if err := json.Unmarshal([]byte(data), &refs); err != nil {
		return nil, fmt.Errorf("unmarshal refs: %w", err)
	}
	if len(refs) == 0 {
		return nil, nil
	}
	return refs, nil
}
