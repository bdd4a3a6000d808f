package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmart/retailgen/internal/config"
	"github.com/openmart/retailgen/internal/engine"
	"github.com/openmart/retailgen/internal/refdata"
	"github.com/openmart/retailgen/internal/rng"
	"github.com/openmart/retailgen/internal/sink"
	"github.com/openmart/retailgen/internal/temporal"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	ConfigPath  string
	Determinism bool
	Days        int
}

// ValidationOutcome is the validate command's result payload.
type ValidationOutcome struct {
	Valid         bool   `json:"valid"`
	Deterministic *bool  `json:"deterministic,omitempty"`
	Hash          string `json:"hash,omitempty"`
}

func (v ValidationOutcome) String() string {
	s := "config ok"
	if v.Deterministic != nil {
		if *v.Deterministic {
			s += fmt.Sprintf("\ndeterminism ok (hash %s)", v.Hash[:12])
		} else {
			s += "\ndeterminism FAILED: repeated runs differ"
		}
	}
	return s
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and optionally check determinism",
		Long: `Validate the configuration against the embedded schema.

With --determinism, additionally runs the first day(s) of the range
twice in memory and compares output hashes. Should never fail; a
failure means the build is broken, not the config.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateConfig(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config")
	cmd.Flags().BoolVar(&opts.Determinism, "determinism", false, "run a double-generation determinism check")
	cmd.Flags().IntVar(&opts.Days, "days", 1, "days to generate for the determinism check")

	return cmd
}

func runValidateConfig(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return formatter.Failure(ExitFailure, err.Error())
	}

	outcome := ValidationOutcome{Valid: true}
	if opts.Determinism {
		ok, hash, err := checkDeterminism(cmd.Context(), cfg, opts.Days)
		if err != nil {
			return WrapExitError(ExitCommandError, "determinism check", err)
		}
		outcome.Deterministic = &ok
		outcome.Hash = hash
		if !ok {
			_ = formatter.Success(outcome)
			return NewExitError(ExitFailure, "repeated runs produced different output")
		}
	}
	return formatter.Success(outcome)
}

// checkDeterminism generates the first days of the range twice into
// memory sinks and compares content hashes.
func checkDeterminism(ctx context.Context, cfg *config.Config, days int) (bool, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	run := func() (string, error) {
		trial := *cfg
		if end := trial.Start.AddDate(0, 0, days); end.Before(trial.End) {
			trial.End = end
		}
		cal, err := loadCalendar(trial.CalendarPath)
		if err != nil {
			return "", err
		}
		ref, err := refdata.Build(trial.Reference, rng.New(trial.Seed))
		if err != nil {
			return "", err
		}
		mem := sink.NewMemory()
		eng, err := engine.New(&trial, ref, temporal.NewPattern(cal), mem)
		if err != nil {
			return "", err
		}
		if _, _, err := eng.Run(ctx, engine.Checkpoint{}); err != nil {
			return "", err
		}
		return mem.Hash(), nil
	}

	first, err := run()
	if err != nil {
		return false, "", err
	}
	second, err := run()
	if err != nil {
		return false, "", err
	}
	return first == second, first, nil
}
