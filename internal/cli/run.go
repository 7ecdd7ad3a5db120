package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rewind/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name  string              `json:"name"`
	Pass  bool                `json:"pass"`
	Error string              `json:"error,omitempty"`
	Final map[string][]string `json:"final,omitempty"`
}

// RunResult holds the overall run result.
type RunResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml | scenarios-dir>",
		Short: "Run undo/redo scenarios",
		Long: `Execute one scenario file, or every scenario in a directory.

Each scenario runs against its own fresh database: schema DDL, then the
steps (SQL mutations interleaved with barrier/undo/redo/freeze/unfreeze),
with the final tracked-table contents reported at the end.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, malformed scenario, etc.)

Examples:
  rewind run ./scenarios
  rewind run ./scenarios/checkout.yaml --format json
  rewind run ./scenarios --db-dir /tmp/rewind`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db-dir", "", "directory for scenario databases (default: temp dir)")

	return cmd
}

func runScenarios(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenarios, err := loadScenarios(path)
	if err != nil {
		formatter.Error("LOAD_FAILED", err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenarios", err)
	}
	if len(scenarios) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenarios found in %s", path))
	}

	dbDir := opts.Database
	if dbDir == "" {
		dbDir, err = os.MkdirTemp("", "rewind-run-")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create database directory", err)
		}
		defer os.RemoveAll(dbDir)
	}

	result := RunResult{Total: len(scenarios)}
	for _, sc := range scenarios {
		formatter.VerboseLog("running scenario %s", sc.Name)
		sr := ScenarioResult{Name: sc.Name}

		trace, err := harness.Run(cmd.Context(), sc, filepath.Join(dbDir, sc.Name+".db"))
		if err != nil {
			sr.Error = err.Error()
			result.Failed++
		} else {
			sr.Pass = true
			sr.Final = trace.Final
			result.Passed++
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printRunText(formatter, result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
	}
	return nil
}

// loadScenarios loads a single scenario file or every scenario in a
// directory, depending on what the path points at.
func loadScenarios(path string) ([]*harness.Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return harness.LoadScenarioDir(path)
	}
	sc, err := harness.LoadScenario(path)
	if err != nil {
		return nil, err
	}
	return []*harness.Scenario{sc}, nil
}

func printRunText(f *OutputFormatter, result RunResult) {
	for _, sr := range result.Scenarios {
		if sr.Pass {
			fmt.Fprintf(f.Writer, "PASS %s\n", sr.Name)
			tables := make([]string, 0, len(sr.Final))
			for tbl := range sr.Final {
				tables = append(tables, tbl)
			}
			sort.Strings(tables)
			for _, tbl := range tables {
				fmt.Fprintf(f.Writer, "  %s: [%s]\n", tbl, strings.Join(sr.Final[tbl], ", "))
			}
		} else {
			fmt.Fprintf(f.Writer, "FAIL %s: %s\n", sr.Name, sr.Error)
		}
	}
	fmt.Fprintf(f.Writer, "%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
