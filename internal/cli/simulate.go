package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Replay a scripted scenario on in-memory engines",
		Long: `Replay a YAML scenario against in-memory custody engines with a
manual clock, then print every step result, emitted signal and final balance.

Exits 1 if any step failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runSimulate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	sc, err := LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "load scenario", err)
	}
	formatter.VerboseLog("Loaded %d step(s) from %s", len(sc.Steps), path)

	var logger *slog.Logger
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(formatter.ErrWriter, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	sim, err := NewSimulator(cmd.Context(), sc.Start, sc.Admins, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "build engines", err)
	}
	defer sim.Close()

	report := sim.Run(sc)
	if err := formatter.Success(report); err != nil {
		return err
	}
	if report.Failed > 0 {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d step(s) failed", report.Failed)}
	}
	return nil
}
