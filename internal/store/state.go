package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/recon/internal/engine"
)

// StateStore returns the engine.StateStore persisted in the run_state
// table.
func (s *Store) StateStore() *StateStore {
	return &StateStore{db: s.db}
}

// StateStore persists each component's RunState as JSON.
type StateStore struct {
	db *sql.DB
}

// LoadState implements engine.StateStore. A component that never
// committed has the zero state.
func (s *StateStore) LoadState(ctx context.Context, component string) (*engine.RunState, error) {
	var (
		generation int64
		handles    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT generation, handles FROM run_state WHERE component = ?
	`, component).Scan(&generation, &handles)
	if errors.Is(err, sql.ErrNoRows) {
		return &engine.RunState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state of %s: %w", component, err)
	}

	st := &engine.RunState{Generation: uint64(generation)}
	if err := json.Unmarshal([]byte(handles), &st.Handles); err != nil {
		return nil, fmt.Errorf("decode state of %s: %w", component, err)
	}
	return st, nil
}

// SaveState implements engine.StateStore.
func (s *StateStore) SaveState(ctx context.Context, component string, st *engine.RunState) error {
	handles := st.Handles
	if handles == nil {
		handles = []engine.Handle{}
	}
	data, err := json.Marshal(handles)
	if err != nil {
		return fmt.Errorf("encode state of %s: %w", component, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_state (component, generation, handles) VALUES (?, ?, ?)
		ON CONFLICT(component) DO UPDATE SET
			generation = excluded.generation,
			handles = excluded.handles
	`, component, int64(st.Generation), string(data))
	if err != nil {
		return fmt.Errorf("save state of %s: %w", component, err)
	}
	return nil
}

// Components lists the components with a saved state, sorted.
func (s *StateStore) Components(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT component FROM run_state ORDER BY component ASC`)
	if err != nil {
		return nil, fmt.Errorf("query run state: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan run state: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run state: %w", err)
	}
	return names, nil
}
