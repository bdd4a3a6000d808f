package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/openmart/retailgen/internal/config"
	"github.com/openmart/retailgen/internal/engine"
	"github.com/openmart/retailgen/internal/model"
	"github.com/openmart/retailgen/internal/refdata"
	"github.com/openmart/retailgen/internal/rng"
	"github.com/openmart/retailgen/internal/sink"
	"github.com/openmart/retailgen/internal/temporal"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	ConfigPath     string
	Database       string
	CheckpointPath string
	Fresh          bool
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate facts for the configured date range",
		Long: `Generate the configured date range into a SQLite database.

A checkpoint file records how far generation has gotten. Re-running with
an extended end date resumes from the checkpoint and appends only the
new facts; the combined output is byte-identical to a single full run.

Example:
  retailgen generate --config retailgen.yaml
  retailgen generate --config retailgen.yaml --db /tmp/demo.db --fresh`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config (defaults apply when omitted)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "output SQLite path (overrides config)")
	cmd.Flags().StringVar(&opts.CheckpointPath, "checkpoint", "", "checkpoint path (overrides config)")
	cmd.Flags().BoolVar(&opts.Fresh, "fresh", false, "ignore any existing checkpoint and regenerate from scratch")

	return cmd
}

func runGenerate(opts *GenerateOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.Database != "" {
		cfg.OutputPath = opts.Database
	}
	if opts.CheckpointPath != "" {
		cfg.CheckpointPath = opts.CheckpointPath
	}

	cp := engine.Checkpoint{}
	if !opts.Fresh {
		cp, err = engine.LoadCheckpoint(cfg.CheckpointPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "load checkpoint", err)
		}
	}

	cal, err := loadCalendar(cfg.CalendarPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load calendar", err)
	}

	ref, err := refdata.Build(cfg.Reference, rng.New(cfg.Seed))
	if err != nil {
		return WrapExitError(ExitCommandError, "build reference data", err)
	}

	snk, err := sink.OpenSQLite(cfg.OutputPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer func() {
		if closeErr := snk.Close(); closeErr != nil {
			slog.Error("closing database", "error", closeErr)
		}
	}()

	eng, err := engine.New(cfg, ref, temporal.NewPattern(cal), snk)
	if err != nil {
		return WrapExitError(ExitCommandError, "wire engine", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	slog.Info("generating",
		"start", cfg.Start.Format("2006-01-02"),
		"end", cfg.End.Format("2006-01-02"),
		"seed", cfg.Seed,
		"stores", len(ref.Stores))

	newCP, sum, err := eng.Run(ctx, cp)
	if err != nil {
		return WrapExitError(ExitCommandError, "generation failed", err)
	}
	if err := newCP.Save(cfg.CheckpointPath); err != nil {
		return WrapExitError(ExitCommandError, "save checkpoint", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"days":           sum.Days,
			"generated":      sum.Generated,
			"dropped":        sum.Dropped,
			"flags":          len(sum.Flags),
			"deferred_units": sum.DeferredUnits,
			"checkpoint":     newCP.LastGenerated,
		})
	}
	return formatter.Success(renderSummary(sum))
}

// renderSummary formats per-table counts with thousands separators.
func renderSummary(sum *engine.Summary) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder
	p.Fprintf(&b, "generated %d day(s)\n", sum.Days)
	for _, table := range model.Tables {
		p.Fprintf(&b, "  %-22s %12d\n", table, sum.Generated[table])
	}
	if len(sum.Dropped) > 0 {
		reasons := make([]string, 0, len(sum.Dropped))
		for r := range sum.Dropped {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			p.Fprintf(&b, "  dropped/%-14s %12d\n", r, sum.Dropped[r])
		}
	}
	if sum.DeferredUnits > 0 {
		p.Fprintf(&b, "  deferred units         %12d\n", sum.DeferredUnits)
	}
	if n := len(sum.Flags); n > 0 {
		p.Fprintf(&b, "  consistency flags      %12d\n", n)
	}
	return strings.TrimRight(b.String(), "\n")
}

func loadCalendar(path string) (temporal.Calendar, error) {
	if path == "" {
		return temporal.DefaultCalendar()
	}
	return temporal.LoadCalendar(path)
}

// signalContext cancels on SIGINT/SIGTERM so a long run stops cleanly
// between days and the checkpoint on disk stays valid.
func signalContext(cmd *cobra.Command) (context.Context, func()) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", fmt.Sprint(sig))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
