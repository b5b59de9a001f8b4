package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/engine"
	"github.com/roach88/recon/internal/failure"
	"github.com/roach88/recon/internal/harness"
	"github.com/roach88/recon/internal/metrics"
	"github.com/roach88/recon/internal/store"
	"github.com/roach88/recon/internal/txn"
)

// SolveOptions holds flags for the solve command.
type SolveOptions struct {
	*RootOptions
	Database string // overrides the configured database
	Filter   string // scenario filter (glob pattern)
	Metrics  bool   // print metrics after the summary
	Golden   bool   // compare traces with golden files, fresh store per scenario
	Update   bool   // rewrite golden files
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Passes int      `json:"passes"`
	Runs   int      `json:"runs"`
	Errors []string `json:"errors,omitempty"`
}

// SolveResult holds the overall result.
type SolveResult struct {
	Database  string           `json:"database,omitempty"`
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
	Metrics   string           `json:"metrics,omitempty"`
}

// NewSolveCommand creates the solve command.
func NewSolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "solve <scenario>...",
		Short: "Run scenario passes against a document",
		Long: `Run the passes of one or more scenarios against a SQLite document.

Each argument is a scenario file or a directory searched for *.yaml and
*.yml files. Run state and diagnostics are kept in the database, so solving
again reconciles with the entities of earlier runs.

With --golden every scenario runs against a fresh in-memory store with
deterministic ids and its trace is compared with golden/<name>.golden next
to the scenario file.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, database errors, etc.)

Examples:
  recon solve ./scenarios/levels.yaml --db ./model.db
  recon solve ./scenarios --filter "level*" --metrics
  recon solve ./scenarios --golden --update`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: config database)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print metrics in Prometheus text format")
	cmd.Flags().BoolVar(&opts.Golden, "golden", false, "compare traces with golden files")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files (implies --golden)")

	return cmd
}

func runSolve(opts *SolveOptions, args []string, cmd *cobra.Command) error {
	if opts.Update {
		opts.Golden = true
	}

	var files []string
	for _, arg := range args {
		found, err := findScenarioFiles(arg, opts.Filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		files = append(files, found...)
	}

	result := SolveResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	if len(files) == 0 {
		if opts.Format == "json" {
			return outputSolveJSON(cmd, result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	var st *store.Store
	if !opts.Golden {
		result.Database = opts.Database
		if result.Database == "" {
			result.Database = opts.Config.Database
		}
		var err error
		st, err = store.Open(result.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
	}

	var rec *metrics.Recorder
	if opts.Metrics || opts.Config.Metrics.Enabled {
		rec = metrics.New()
	}

	for _, file := range files {
		sr := solveScenario(cmd, opts, file, st, rec)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if rec != nil {
		text, err := rec.Expose()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to expose metrics", err)
		}
		result.Metrics = text
	}

	if opts.Format == "json" {
		return outputSolveJSON(cmd, result)
	}
	return outputSolveText(cmd, result)
}

// findScenarioFiles returns path itself if it is a file, or the YAML files
// below it. The filter matches file names without extension.
func findScenarioFiles(path string, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(filepath.Base(p), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	return files, err
}

func solveScenario(cmd *cobra.Command, opts *SolveOptions, file string, st *store.Store, rec *metrics.Recorder) ScenarioResult {
	w := cmd.OutOrStdout()
	text := opts.Format != "json"
	fail := func(name string, errs ...string) ScenarioResult {
		if text {
			fmt.Fprintf(w, "✗ %s\n", name)
			for _, e := range errs {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		return ScenarioResult{Name: name, File: file, Errors: errs}
	}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return fail(filepath.Base(file), fmt.Sprintf("failed to load scenario: %v", err))
	}

	runOpts := []harness.Option{
		harness.WithConfig(opts.Config),
		harness.WithLogger(slog.Default()),
	}
	var engineOpts []engine.Option
	if st != nil {
		runOpts = append(runOpts, harness.WithStore(st), harness.WithUUIDSource(uuid.New))
		engineOpts = append(engineOpts, engine.WithIDGenerator(engine.UUIDv7Generator{}))
	}
	if rec != nil {
		engineOpts = append(engineOpts,
			engine.WithObserver(rec),
			engine.WithScopeOptions(txn.WithObserver(rec)),
			engine.WithPolicyOptions(failure.WithObserver(rec)),
		)
	}
	runOpts = append(runOpts, harness.WithEngineOptions(engineOpts...))

	result, err := harness.Run(cmd.Context(), scenario, runOpts...)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}

	sr := ScenarioResult{Name: scenario.Name, File: file, Pass: result.Pass, Passes: len(result.Passes), Errors: result.Errors}
	for _, ev := range result.Trace {
		if ev.Type == harness.EventRun {
			sr.Runs++
		}
	}

	if opts.Golden {
		if msg := checkGolden(file, scenario.Name, result, opts.Update); msg != "" {
			sr.Pass = false
			sr.Errors = append(sr.Errors, msg)
		}
	}

	if !text {
		return sr
	}
	if !sr.Pass {
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		return sr
	}
	fmt.Fprintf(w, "✓ %s (%d pass(es), %d run(s))\n", sr.Name, sr.Passes, sr.Runs)
	return sr
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile, name string) string {
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

// checkGolden compares or rewrites the golden trace and returns an error
// message, or "" when it matches.
func checkGolden(scenarioFile, name string, result *harness.Result, update bool) string {
	snapshot := harness.TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	data, err := snapshot.Marshal()
	if err != nil {
		return fmt.Sprintf("failed to marshal trace: %v", err)
	}

	path := goldenFilePath(scenarioFile, name)
	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Sprintf("failed to create golden directory: %v", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Sprintf("failed to write golden file: %v", err)
		}
		return ""
	}

	golden, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("failed to read golden file: %v", err)
	}
	if !bytes.Equal(golden, data) {
		return "trace does not match golden file (run with --update to regenerate)"
	}
	return ""
}

// outputSolveJSON outputs the result as JSON.
func outputSolveJSON(cmd *cobra.Command, result SolveResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_SCENARIO_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputSolveText outputs the summary as text.
func outputSolveText(cmd *cobra.Command, result SolveResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Metrics != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, result.Metrics)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
