package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/clock"
	"github.com/smallbiznis/fuelledger/internal/config"
	"github.com/smallbiznis/fuelledger/internal/customer"
	"github.com/smallbiznis/fuelledger/internal/invoice"
	"github.com/smallbiznis/fuelledger/internal/ledger"
	"github.com/smallbiznis/fuelledger/internal/lock"
	"github.com/smallbiznis/fuelledger/internal/migration"
	"github.com/smallbiznis/fuelledger/internal/observability"
	"github.com/smallbiznis/fuelledger/internal/payment"
	"github.com/smallbiznis/fuelledger/internal/sale"
	"github.com/smallbiznis/fuelledger/internal/scheduler"
	"github.com/smallbiznis/fuelledger/internal/server"
	"github.com/smallbiznis/fuelledger/internal/shift"
	storeprovider "github.com/smallbiznis/fuelledger/internal/store/provider"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "fuelledger",
	Short:   "Fuel station shift reconciliation and credit account ledger",
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			// Core Infrastructure
			config.Module,
			observability.Module,
			fx.Provide(NewSnowflakeNode),
			storeprovider.Module,
			lock.Module,
			clock.Module,

			// Functional Domains
			domainModules(),
			migration.Module,
			scheduler.Module,
			server.Module,
		)
		app.Run()
		return app.Err()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply store migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), migration.Module)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the scheduler jobs once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(),
			lock.Module,
			clock.Module,
			fx.Provide(scheduler.ProvideConfig, scheduler.New),
			fx.Invoke(func(lc fx.Lifecycle, sched *scheduler.Scheduler) {
				lc.Append(fx.Hook{OnStart: sched.RunOnce})
			}),
		)
	},
}

func domainModules() fx.Option {
	return fx.Options(
		customer.Module,
		ledger.Module,
		shift.Module,
		sale.Module,
		invoice.Module,
		payment.Module,
	)
}

// runOnce starts an app built from the shared infrastructure plus opts and
// stops it as soon as every start hook has returned.
func runOnce(ctx context.Context, opts ...fx.Option) error {
	if ctx == nil {
		ctx = context.Background()
	}
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(NewSnowflakeNode),
		storeprovider.Module,
		domainModules(),
		fx.Options(opts...),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	return app.Stop(stopCtx)
}

func NewSnowflakeNode(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.SnowflakeNode, err)
	}
	return node, nil
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fuelledger: %v\n", err)
		os.Exit(1)
	}
}
