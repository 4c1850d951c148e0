package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/xraph/custody"
	"github.com/xraph/custody/api"
	"github.com/xraph/custody/observability"
)

type serveFlags struct {
	addr     string
	scenario string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only custody API over in-memory engines",
		Long: `Serve the read-only custody API and Prometheus metrics over
in-memory engines, optionally seeded by replaying a scenario first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(rootOpts, f, cmd)
		},
	}

	cmd.Flags().StringVar(&f.addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&f.scenario, "scenario", "", "scenario file to seed state with")

	return cmd
}

func runServe(opts *RootOptions, f *serveFlags, cmd *cobra.Command) error {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	sc := &Scenario{}
	if f.scenario != "" {
		loaded, err := LoadScenario(f.scenario)
		if err != nil {
			return WrapExitError(ExitCommandError, "load scenario", err)
		}
		sc = loaded
	}

	sim, err := NewSimulator(cmd.Context(), sc.Start, sc.Admins, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "build engines", err)
	}
	defer sim.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	if err := sim.Custody.Plugins().Register(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))); err != nil {
		return err
	}

	if len(sc.Steps) > 0 {
		report := sim.Run(sc)
		logger.Info("scenario replayed",
			"name", report.Name,
			"steps", len(report.Steps),
			"failed", report.Failed,
		)
	}

	return serveHTTP(cmd.Context(), f.addr, sim.Custody, reg, logger)
}

func serveHTTP(ctx context.Context, addr string, c *custody.Custody, reg *prometheus.Registry, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := api.NewRouter(api.NewHandler(c, api.WithLogger(logger), api.WithMetrics(reg)))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("custody api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("custody api shutting down")
	return srv.Shutdown(shutdownCtx)
}
