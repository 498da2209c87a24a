// Command reconcile inspects and repairs cached short/return rollups of
// delivery sheets outside the HTTP service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pharmaerp/backend/internal/bootstrap"
	"github.com/pharmaerp/backend/internal/infrastructure/config"
	"github.com/pharmaerp/backend/internal/infrastructure/logger"
	"github.com/pharmaerp/backend/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	tenantFlag  string
	logLevel    string
	concurrency int
	lookback    time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "reconcile",
	Short:         "Check and repair delivery sheet short/return totals",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	checkCmd := &cobra.Command{
		Use:   "check ALIAS...",
		Short: "Report whether top sheets disagree with their logs",
		Args:  cobra.MinimumNArgs(1),
		RunE:  withDelivery(runCheck),
	}
	checkCmd.Flags().IntVar(&concurrency, "concurrency", 4, "Sheets checked in parallel")

	fixCmd := &cobra.Command{
		Use:   "fix ALIAS",
		Short: "Rebuild every rollup reachable from a top sheet",
		Args:  cobra.ExactArgs(1),
		RunE:  withDelivery(runFix),
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Check and repair every active sheet in the lookback window",
		Args:  cobra.NoArgs,
		RunE:  withDelivery(runSweep),
	}
	sweepCmd.Flags().DurationVar(&lookback, "lookback", 7*24*time.Hour, "How far back sheet dates are inspected")

	drainCmd := &cobra.Command{
		Use:   "drain",
		Short: "Process pending cascade tasks until none are left",
		Args:  cobra.NoArgs,
		RunE:  withDelivery(runDrain),
	}

	for _, cmd := range []*cobra.Command{checkCmd, fixCmd} {
		cmd.Flags().StringVar(&tenantFlag, "tenant", "", "Tenant the sheets belong to")
		_ = cmd.MarkFlagRequired("tenant")
	}
	rootCmd.AddCommand(checkCmd, fixCmd, sweepCmd, drainCmd)
}

type runFunc func(ctx context.Context, d *bootstrap.Delivery, log *zap.Logger, args []string) error

// withDelivery loads configuration, opens the database and assembles the
// delivery container before run
func withDelivery(run runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		log, err := logger.New(logger.Config{Level: logLevel, Format: "console", Output: "stderr"})
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		db, err := persistence.NewDatabase(&cfg.Database,
			persistence.WithLogger(log, logger.MapGormLogLevel(logLevel), cfg.Telemetry.DBSlowQueryThresh))
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		opts, err := bootstrap.OptionsFromConfig(cfg)
		if err != nil {
			return err
		}
		return run(cmd.Context(), bootstrap.NewDelivery(db.DB, opts, log), log, args)
	}
}

func tenantID() (uuid.UUID, error) {
	id, err := uuid.Parse(tenantFlag)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --tenant %q: %w", tenantFlag, err)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCheck(ctx context.Context, d *bootstrap.Delivery, log *zap.Logger, aliases []string) error {
	tenant, err := tenantID()
	if err != nil {
		return err
	}

	type result struct {
		Alias      string `json:"alias"`
		Mismatched bool   `json:"mismatched"`
		Report     any    `json:"report"`
	}
	results := make([]result, len(aliases))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, alias := range aliases {
		g.Go(func() error {
			sheet, err := d.Sheets.FindByAlias(ctx, tenant, alias)
			if err != nil {
				return fmt.Errorf("sheet %s: %w", alias, err)
			}
			report, err := d.Reconciler.IsShortReturnAmountMismatched(ctx, tenant, sheet.ID)
			if err != nil {
				return fmt.Errorf("sheet %s: %w", alias, err)
			}
			results[i] = result{Alias: alias, Mismatched: report.Mismatched, Report: report}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	mismatched := 0
	for _, r := range results {
		if r.Mismatched {
			mismatched++
		}
	}
	log.Info("Check finished", zap.Int("sheets", len(results)), zap.Int("mismatched", mismatched))
	return printJSON(results)
}

func runFix(ctx context.Context, d *bootstrap.Delivery, log *zap.Logger, args []string) error {
	tenant, err := tenantID()
	if err != nil {
		return err
	}
	result, err := d.Reconciler.RepairByAlias(ctx, tenant, args[0])
	if err != nil {
		return err
	}
	log.Info("Repair finished",
		zap.String("alias", result.Alias),
		zap.Bool("was_mismatched", result.Before.Mismatched),
		zap.Bool("still_mismatched", result.After.Mismatched),
	)
	return printJSON(result)
}

func runSweep(ctx context.Context, d *bootstrap.Delivery, _ *zap.Logger, _ []string) error {
	result, err := d.Reconciler.Sweep(ctx, time.Now().Add(-lookback))
	if err != nil {
		return err
	}
	if err := printJSON(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d sheets could not be repaired", result.Failed)
	}
	return nil
}

func runDrain(ctx context.Context, d *bootstrap.Delivery, log *zap.Logger, _ []string) error {
	var total int
	for {
		res, err := d.Processor.ProcessOnce(ctx)
		if err != nil {
			return err
		}
		if res.Claimed == 0 {
			break
		}
		total += res.Claimed
		log.Debug("Processed cascade batch",
			zap.Int("claimed", res.Claimed),
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Int("dead", res.Dead),
		)
		if res.Sent == 0 {
			// everything left is waiting for its backoff
			break
		}
	}
	log.Info("Cascade drained", zap.Int("tasks", total))
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
