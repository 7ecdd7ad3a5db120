package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rewind/internal/store"
	"github.com/roach88/rewind/internal/undo"
)

// TriggersOptions holds flags for the triggers command.
type TriggersOptions struct {
	*RootOptions
	Database string
}

// TriggerReport describes the generated trigger script for one table.
type TriggerReport struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	SQL     string   `json:"sql"`
}

// NewTriggersCommand creates the triggers command.
func NewTriggersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TriggersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "triggers <table...>",
		Short: "Show the change-recording triggers for tables",
		Long: `Print the trigger SQL that activation would install for the given
tables, based on their column layout in the database.

Example:
  rewind triggers --db app.db orders order_lines`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showTriggers(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func showTriggers(opts *TriggersOptions, tables []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	reports := make([]TriggerReport, 0, len(tables))
	for _, tbl := range tables {
		cols, err := st.Columns(cmd.Context(), tbl)
		if err != nil {
			formatter.Error("UNKNOWN_TABLE", err.Error(), nil)
			return WrapExitError(ExitCommandError, "table introspection failed", err)
		}
		reports = append(reports, TriggerReport{
			Table:   tbl,
			Columns: cols,
			SQL:     undo.TriggerSQL(tbl, cols),
		})
	}

	if opts.Format == "json" {
		return formatter.Success(reports)
	}
	var b strings.Builder
	for _, r := range reports {
		b.WriteString(r.SQL)
	}
	_, err = cmd.OutOrStdout().Write([]byte(b.String()))
	return err
}
