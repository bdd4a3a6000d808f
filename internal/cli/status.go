package cli

import (
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/openmart/retailgen/internal/engine"
	"github.com/openmart/retailgen/internal/sink"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database       string
	CheckpointPath string
}

// StatusReport is the status command's result payload.
type StatusReport struct {
	HasHistoricalData bool           `json:"has_historical_data"`
	LastGenerated     time.Time      `json:"last_generated,omitempty"`
	TablesComplete    int            `json:"tables_complete"`
	Rows              map[string]int `json:"rows,omitempty"`
}

func (r StatusReport) String() string {
	if !r.HasHistoricalData {
		return "no generation has completed yet"
	}
	p := message.NewPrinter(language.English)
	var b strings.Builder
	p.Fprintf(&b, "generated through %s (%d tables complete)\n",
		r.LastGenerated.Format("2006-01-02"), r.TablesComplete)
	tables := make([]string, 0, len(r.Rows))
	for t := range r.Rows {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		p.Fprintf(&b, "  %-22s %12d\n", t, r.Rows[t])
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show checkpoint position and database row counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "retailgen.db", "SQLite database path")
	cmd.Flags().StringVar(&opts.CheckpointPath, "checkpoint", "retailgen.checkpoint.json", "checkpoint path")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cp, err := engine.LoadCheckpoint(opts.CheckpointPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load checkpoint", err)
	}

	report := StatusReport{HasHistoricalData: cp.HasHistoricalData}
	if cp.HasHistoricalData {
		report.LastGenerated = cp.LastGenerated
		for _, done := range cp.Tables {
			if done {
				report.TablesComplete++
			}
		}
	}

	// Row counts are best-effort: a missing database is not an error
	// when the checkpoint says nothing ran yet.
	if _, statErr := os.Stat(opts.Database); statErr == nil {
		db, err := sink.OpenSQLite(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "open database", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				slog.Error("closing database", "error", closeErr)
			}
		}()
		counts, err := db.TableCounts(cmd.Context())
		if err != nil {
			return WrapExitError(ExitCommandError, "count rows", err)
		}
		report.Rows = counts
	}

	return formatter.Success(report)
}
