// Package cmd defines and implements the CLI commands for the harvester
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricewatch/meli-harvester/internal/app"
	"github.com/pricewatch/meli-harvester/internal/config"
	"github.com/pricewatch/meli-harvester/internal/harvest"
	"github.com/pricewatch/meli-harvester/internal/ledger"
	"github.com/pricewatch/meli-harvester/internal/review"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application surface commands use. It exists so tests can
// inject a mock application.
type App interface {
	Close()
	GetConfig() config.Config
	GetLogger() *zap.Logger
	GetClock() harvest.Clock
	GetQueue() harvest.WorkQueue
	GetStore() harvest.RecordStore
	GetArchive() harvest.Archive
	GetFetcher() harvest.Fetcher
	GetReviewer() review.Reviewer
	GetLedger() ledger.Ledger
}

// newApp is the application factory. It is a variable so tests can swap in
// a mock factory.
var newApp func(ctx context.Context, cfg config.Config) (App, error) = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.NewApp(ctx, cfg)
}

// newRootCmd creates and configures the root command. Subcommands pull the
// initialized App out of the command context.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "A two-phase price harvester for marketplace offer listings.",
		Long: `harvester tracks marketplace offer listings in two phases: the
discover phase crawls listing pages and seeds product records onto a work
queue, and the collect phase drains the queue, fetches each product's detail
page, and enriches the seeded records.`,

		// Runs after flags are parsed but before the subcommand's RunE,
		// so every subcommand finds a ready App in its context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is environment-only)")

	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
