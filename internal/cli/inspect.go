package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/store"
	"github.com/roach88/recon/internal/value"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database  string
	Document  string // optional - only this document
	Component string // optional - only this component's state and diagnostics
	Solve     string // optional - only diagnostics of this solve
}

// EntityInfo is one entity of a document.
type EntityInfo struct {
	ID       int64           `json:"id"`
	UniqueID string          `json:"unique_id"`
	Kind     string          `json:"kind"`
	Name     string          `json:"name,omitempty"`
	Pinned   bool            `json:"pinned,omitempty"`
	Attrs    json.RawMessage `json:"attrs,omitempty"`
	Refs     []int64         `json:"refs,omitempty"`
}

// DocumentInfo lists the entities of one document.
type DocumentInfo struct {
	ID       string       `json:"id"`
	Entities []EntityInfo `json:"entities"`
}

// ComponentState is the persisted run state of one component.
type ComponentState struct {
	Component  string          `json:"component"`
	Generation uint64          `json:"generation"`
	Handles    []engine.Handle `json:"handles"`
}

// DiagnosticInfo is one logged diagnostic.
type DiagnosticInfo struct {
	Seq       int64  `json:"seq"`
	Solve     string `json:"solve"`
	Component string `json:"component"`
	Ordinal   int    `json:"ordinal"`
	Level     string `json:"level"`
	Kind      string `json:"kind,omitempty"`
	Text      string `json:"text"`
}

// InspectResult holds the inspect output.
type InspectResult struct {
	Documents   []DocumentInfo   `json:"documents"`
	States      []ComponentState `json:"states"`
	Diagnostics []DiagnosticInfo `json:"diagnostics"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show documents, run state and diagnostics",
		Long: `Show the contents of a recon database.

The output includes:
- Documents: every entity with its id, unique id, kind and attributes
- States: the handles each component used in its last committed pass
- Diagnostics: the diagnostics log in the order it was written

Examples:
  recon inspect --db ./model.db
  recon inspect --db ./model.db --component Levels
  recon inspect --db ./model.db --document tower --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: config database)")
	cmd.Flags().StringVar(&opts.Document, "document", "", "only show this document")
	cmd.Flags().StringVar(&opts.Component, "component", "", "only show this component")
	cmd.Flags().StringVar(&opts.Solve, "solve", "", "only show diagnostics of this solve id")

	return cmd
}

func runInspect(opts *InspectOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	path := opts.Database
	if path == "" {
		path = opts.Config.Database
	}

	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	result, err := inspectStore(ctx, st, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read database", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(result, func(w io.Writer) { writeInspectText(w, result) })
}

func inspectStore(ctx context.Context, st *store.Store, opts *InspectOptions) (*InspectResult, error) {
	result := &InspectResult{
		Documents:   []DocumentInfo{},
		States:      []ComponentState{},
		Diagnostics: []DiagnosticInfo{},
	}

	docs, err := st.Documents(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range docs {
		if opts.Document != "" && id != opts.Document {
			continue
		}
		b, err := st.Backend(ctx, id)
		if err != nil {
			return nil, err
		}
		entities, err := b.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", id, err)
		}
		info := DocumentInfo{ID: id, Entities: make([]EntityInfo, 0, len(entities))}
		for _, e := range entities {
			ei, err := entityInfo(e)
			if err != nil {
				return nil, fmt.Errorf("document %s: %w", id, err)
			}
			info.Entities = append(info.Entities, ei)
		}
		result.Documents = append(result.Documents, info)
	}

	states := st.StateStore()
	components, err := states.Components(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range components {
		if opts.Component != "" && name != opts.Component {
			continue
		}
		rs, err := states.LoadState(ctx, name)
		if err != nil {
			return nil, err
		}
		result.States = append(result.States, ComponentState{Component: name, Generation: rs.Generation, Handles: rs.Handles})
	}

	diags, err := st.DiagnosticLog().ReadDiagnostics(ctx, store.DiagnosticFilter{Solve: opts.Solve, Component: opts.Component})
	if err != nil {
		return nil, err
	}
	for _, d := range diags {
		result.Diagnostics = append(result.Diagnostics, DiagnosticInfo{
			Seq:       d.Seq,
			Solve:     d.Solve,
			Component: d.Component,
			Ordinal:   d.Ordinal,
			Level:     d.Level.String(),
			Kind:      d.Kind,
			Text:      d.Text(),
		})
	}
	return result, nil
}

func entityInfo(e *document.Entity) (EntityInfo, error) {
	info := EntityInfo{
		ID:       int64(e.ID),
		UniqueID: e.UniqueID.String(),
		Kind:     string(e.Kind),
		Name:     e.Name,
		Pinned:   e.Pinned,
	}
	if len(e.Attrs) > 0 {
		attrs, err := value.Marshal(e.Attrs)
		if err != nil {
			return info, fmt.Errorf("entity %d: %w", e.ID, err)
		}
		info.Attrs = attrs
	}
	for _, r := range e.Refs {
		info.Refs = append(info.Refs, int64(r))
	}
	return info, nil
}

func writeInspectText(w io.Writer, r *InspectResult) {
	for _, doc := range r.Documents {
		fmt.Fprintf(w, "Document %s (%d entities)\n", doc.ID, len(doc.Entities))
		for _, e := range doc.Entities {
			pin := " "
			if e.Pinned {
				pin = "*"
			}
			fmt.Fprintf(w, "  %s %4d  %-16s %-20q %s", pin, e.ID, e.Kind, e.Name, e.UniqueID)
			if len(e.Attrs) > 0 {
				fmt.Fprintf(w, "  %s", e.Attrs)
			}
			fmt.Fprintln(w)
		}
	}

	if len(r.States) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Run state:")
		for _, s := range r.States {
			ids := make([]int64, len(s.Handles))
			for i, h := range s.Handles {
				ids[i] = int64(h.ID)
			}
			fmt.Fprintf(w, "  %s (generation %d): %v\n", s.Component, s.Generation, ids)
		}
	}

	if len(r.Diagnostics) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Diagnostics:")
		for _, d := range r.Diagnostics {
			fmt.Fprintf(w, "  [%d] %s %s #%d %s: %s\n", d.Seq, d.Solve, d.Component, d.Ordinal, d.Level, d.Text)
		}
	}
}
