package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/compiler"
	"github.com/roach88/recon/internal/document"
	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/ops"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool                       `json:"valid"`
	Components []string                   `json:"components,omitempty"`
	Errors     []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <components-dir>",
		Short: "Validate component definitions",
		Long: `Validate the CUE component definitions in a directory.

Checks every component against the registered operations, the known
failure kinds and the dependency graph formed by "after". All errors are
reported, not only the first.

Examples:
  recon validate ./components
  recon validate ./components --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadComponents(dir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)

	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			line := 0
			if loadErr.Pos.IsValid() {
				line = loadErr.Pos.Line()
			}
			validationErrors = append(validationErrors, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    line,
			})
		}
	}

	defs := make([]compiler.Definition, len(loadResult.Definitions))
	names := make([]string, len(defs))
	for i, d := range loadResult.Definitions {
		formatter.VerboseLog("Validating component: %s", d.Name)
		defs[i] = opts.Config.Apply(d)
		names[i] = d.Name
	}
	validationErrors = append(validationErrors, validateDefinitions(defs, newRegistry())...)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}
	return outputValidateSuccess(formatter, names)
}

// validateDefinitions checks defs against registry and the document's
// built-in failure kinds.
func validateDefinitions(defs []compiler.Definition, registry *engine.Registry) []compiler.ValidationError {
	return compiler.Validate(defs, registry, failureKinds())
}

func failureKinds() []string {
	rules := document.DefaultRules()
	kinds := make([]string, len(rules))
	for i, r := range rules {
		kinds[i] = r.Kind
	}
	return kinds
}

// newRegistry returns the registry of the built-in operations.
func newRegistry() *engine.Registry {
	return ops.NewRegistry(ops.Options{})
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, names []string) error {
	return formatter.Success(ValidationResult{Valid: true, Components: names}, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %d component(s) valid\n", len(names))
	})
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.JSON() {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
