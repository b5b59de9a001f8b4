package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/signature"
	"github.com/roach88/recon/internal/value"
)

// ParamInfo describes one derived parameter.
type ParamInfo struct {
	Position    int      `json:"position"`
	Name        string   `json:"name"`
	Nickname    string   `json:"nickname,omitempty"`
	Description string   `json:"description,omitempty"`
	Kind        string   `json:"kind"`
	Access      string   `json:"access"`
	Optional    bool     `json:"optional,omitempty"`
	Default     string   `json:"default,omitempty"`
	EntityKind  string   `json:"entity_kind,omitempty"`
	Enum        string   `json:"enum,omitempty"`
	Members     []string `json:"members,omitempty"`
}

// OperationInfo is the derived signature of one operation.
type OperationInfo struct {
	Operation string      `json:"operation"`
	Output    ParamInfo   `json:"output"`
	Inputs    []ParamInfo `json:"inputs"`
	Filter    string      `json:"filter"`
}

// NewOpsCommand creates the ops command.
func NewOpsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ops [operation]...",
		Short: "List registered operations and their signatures",
		Long: `List the built-in operations with the signatures derived from their
descriptors: the output parameter, every input with its access, default
and enumeration, and the entity filter used to select input entities.

Examples:
  recon ops
  recon ops LevelByElevation --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOps(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runOps(opts *RootOptions, names []string, cmd *cobra.Command) error {
	registry := newRegistry()
	if len(names) == 0 {
		names = registry.Names()
	}

	infos := make([]OperationInfo, 0, len(names))
	for _, name := range names {
		_, sig, err := registry.Lookup(name)
		if err != nil {
			return WrapExitError(ExitCommandError, "unknown operation", err)
		}
		info, err := operationInfo(sig)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to describe operation", err)
		}
		infos = append(infos, info)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(infos, func(w io.Writer) { writeOpsText(w, infos) })
}

func operationInfo(sig *signature.Signature) (OperationInfo, error) {
	info := OperationInfo{
		Operation: sig.Operation,
		Inputs:    make([]ParamInfo, 0, len(sig.Inputs)),
		Filter:    sig.Filter.String(),
	}
	var err error
	if info.Output, err = paramInfo(sig.Output); err != nil {
		return info, err
	}
	for _, p := range sig.Inputs {
		pi, err := paramInfo(p)
		if err != nil {
			return info, err
		}
		info.Inputs = append(info.Inputs, pi)
	}
	return info, nil
}

func paramInfo(p signature.Param) (ParamInfo, error) {
	info := ParamInfo{
		Position:    p.Position,
		Name:        p.Name,
		Nickname:    p.Nickname,
		Description: p.Description,
		Kind:        string(p.Kind),
		Access:      p.Access.String(),
		Optional:    p.Optional,
		EntityKind:  string(p.EntityKind),
	}
	if !value.IsNull(p.Default) {
		data, err := value.Marshal(p.Default)
		if err != nil {
			return info, fmt.Errorf("default of %s: %w", p.Name, err)
		}
		info.Default = string(data)
	}
	if p.Enum != nil {
		info.Enum = p.Enum.Name
		info.Members = p.Enum.Names()
	}
	return info, nil
}

func writeOpsText(w io.Writer, infos []OperationInfo) {
	for i, op := range infos {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s -> %s (%s)\n", op.Operation, op.Output.Name, describeType(op.Output))
		for _, p := range op.Inputs {
			fmt.Fprintf(w, "  %d %-12s %s", p.Position, p.Name, describeType(p))
			if p.Optional {
				fmt.Fprint(w, " optional")
			}
			if p.Default != "" {
				fmt.Fprintf(w, " default=%s", p.Default)
			}
			if p.Description != "" {
				fmt.Fprintf(w, "  %s", p.Description)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "  filter: %s\n", op.Filter)
	}
}

func describeType(p ParamInfo) string {
	t := p.Kind
	switch {
	case p.EntityKind != "":
		t = p.EntityKind
	case p.Enum != "":
		t = p.Enum + "{" + strings.Join(p.Members, ",") + "}"
	}
	if p.Access == "list" {
		t = "[]" + t
	}
	return t
}
