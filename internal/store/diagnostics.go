package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/failure"
	"github.com/roach88/recon/internal/value"
)

// DiagnosticLog returns the engine.DiagnosticSink writing to the
// diagnostics table.
func (s *Store) DiagnosticLog() *DiagnosticLog {
	return &DiagnosticLog{db: s.db}
}

// DiagnosticLog is the append-only diagnostics log.
type DiagnosticLog struct {
	db *sql.DB
}

// RecordDiagnostics implements engine.DiagnosticSink. The batch is
// written in one transaction.
func (l *DiagnosticLog) RecordDiagnostics(ctx context.Context, diags []engine.Diagnostic) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record diagnostics: %w", err)
	}
	defer tx.Rollback()

	for _, d := range diags {
		entities := d.Entities
		if entities == nil {
			entities = []value.EntityID{}
		}
		ids, err := json.Marshal(entities)
		if err != nil {
			return fmt.Errorf("record diagnostics: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO diagnostics
			(seq, solve, component, ordinal, level, kind, message, entities, resolution)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			d.Seq,
			d.Solve,
			d.Component,
			d.Ordinal,
			d.Level.String(),
			d.Kind,
			d.Message,
			string(ids),
			int(d.Resolution),
		)
		if err != nil {
			return fmt.Errorf("record diagnostic %d: %w", d.Seq, err)
		}
	}
	return tx.Commit()
}

// DiagnosticFilter narrows ReadDiagnostics. Zero fields match everything.
type DiagnosticFilter struct {
	Solve     string
	Component string
}

// ReadDiagnostics returns the logged diagnostics matching f, ordered by
// seq.
func (l *DiagnosticLog) ReadDiagnostics(ctx context.Context, f DiagnosticFilter) ([]engine.Diagnostic, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT seq, solve, component, ordinal, level, kind, message, entities, resolution
		FROM diagnostics
		WHERE (? = '' OR solve = ?) AND (? = '' OR component = ?)
		ORDER BY seq ASC
	`, f.Solve, f.Solve, f.Component, f.Component)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer rows.Close()

	diags := []engine.Diagnostic{}
	for rows.Next() {
		var (
			d          engine.Diagnostic
			level      string
			entities   string
			resolution int
		)
		if err := rows.Scan(&d.Seq, &d.Solve, &d.Component, &d.Ordinal, &level, &d.Kind, &d.Message, &entities, &resolution); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		d.Level = levelOf(level)
		d.Resolution = failure.Resolution(resolution)
		if err := json.Unmarshal([]byte(entities), &d.Entities); err != nil {
			return nil, fmt.Errorf("diagnostic %d: entities: %w", d.Seq, err)
		}
		if len(d.Entities) == 0 {
			d.Entities = nil
		}
		diags = append(diags, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostics: %w", err)
	}
	return diags, nil
}

// LastSeq returns the highest logged seq, or 0 for an empty log. Engines
// solving against an existing database resume their clock after it.
func (l *DiagnosticLog) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := l.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM diagnostics`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq, nil
}

func levelOf(s string) failure.Level {
	switch s {
	case failure.LevelWarning.String():
		return failure.LevelWarning
	case failure.LevelError.String():
		return failure.LevelError
	default:
		return failure.LevelRemark
	}
}
