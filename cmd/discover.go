package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricewatch/meli-harvester/internal/config"
	"github.com/pricewatch/meli-harvester/internal/discovery"
	"github.com/pricewatch/meli-harvester/internal/ledger"
)

// newDiscoverCmd creates the 'discover' subcommand. One invocation crawls
// the configured offer listings and seeds a work item per new listing.
func newDiscoverCmd() *cobra.Command {
	var (
		maxPages int
		maxItems int
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Crawls offer listings and enqueues work items",
		Long: `Walks the configured marketplace offer listing pages, normalizes
each product card, stores a seed record, and enqueues a work item for the
collect phase. Listings already seen in this run are skipped.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiscoverCommand(cmd, maxPages, maxItems)
		},
	}

	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "override the configured page limit")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "override the configured item limit")

	return cmd
}

func runDiscoverCommand(cmd *cobra.Command, maxPages, maxItems int) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()
	cfg := appInstance.GetConfig()

	producer, err := discovery.NewProducer(
		appInstance.GetStore(),
		appInstance.GetQueue(),
		appInstance.GetClock(),
		logger,
	)
	if err != nil {
		return fmt.Errorf("init producer: %w", err)
	}

	spiderCfg := discovery.SpiderConfig{
		StartURLs:      cfg.Discovery.StartURLs,
		AllowedDomains: cfg.Discovery.AllowedDomains,
		UserAgent:      cfg.Discovery.UserAgent,
		MaxPages:       cfg.Discovery.MaxPages,
		MaxItems:       cfg.Discovery.MaxItems,
		Delay:          time.Duration(cfg.Discovery.DelaySeconds) * time.Second,
		Selectors:      listingSelectors(cfg.Discovery.Selectors),
	}
	if maxPages > 0 {
		spiderCfg.MaxPages = maxPages
	}
	if maxItems > 0 {
		spiderCfg.MaxItems = maxItems
	}

	spider, err := discovery.NewSpider(spiderCfg, producer, appInstance.GetClock(), logger)
	if err != nil {
		return fmt.Errorf("init spider: %w", err)
	}

	record := beginRun(cmd.Context(), appInstance, ledger.PhaseDiscover)

	runErr := spider.Run(cmd.Context())
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	// For discovery runs the batch counter tracks pages crawled and the
	// message counter tracks items seeded.
	pages, items := spider.Stats()
	record.Batches = int(pages)
	record.Messages = int(items)
	finishRun(cmd.Context(), appInstance, record, runErr)

	if runErr != nil {
		return fmt.Errorf("run discovery: %w", runErr)
	}

	logger.Info("Discover command finished.",
		zap.Int64("pages", pages),
		zap.Int64("items", items),
	)
	return nil
}

func listingSelectors(s config.Selectors) discovery.Selectors {
	return discovery.Selectors{
		Card:          s.Card,
		Title:         s.Title,
		CurrentPrice:  s.CurrentPrice,
		OriginalPrice: s.OriginalPrice,
		PubURL:        s.PubURL,
		Seller:        s.Seller,
		Brand:         s.Brand,
		Rating:        s.Rating,
		Reviews:       s.Reviews,
		NextPage:      s.NextPage,
	}
}
