package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricewatch/meli-harvester/internal/collector"
	"github.com/pricewatch/meli-harvester/internal/harvest"
	"github.com/pricewatch/meli-harvester/internal/ledger"
)

// newCollectCmd creates the 'collect' subcommand. One invocation is one
// collection run: it drains queued work items, fetches each product's detail
// page, and commits the enriched fields.
func newCollectCmd() *cobra.Command {
	var (
		maxBatches  int
		maxMessages int
		maxRetries  int
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Drains the work queue and enriches seeded product records",
		Long: `Claims batches of queued work items, resolves each to its seeded
record, fetches the product detail page with bounded retries, and commits
the extracted fields. Items are acknowledged only once they reach a
terminal outcome, so an interrupted run can be resumed safely.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollectCommand(cmd, maxBatches, maxMessages, maxRetries)
		},
	}

	cmd.Flags().IntVar(&maxBatches, "max-batches", 0, "override the configured batch limit")
	cmd.Flags().IntVar(&maxMessages, "max-messages", 0, "override the configured batch size")
	cmd.Flags().IntVar(&maxRetries, "max-retries", -1, "override the configured soft-failure retry limit")

	return cmd
}

func runCollectCommand(cmd *cobra.Command, maxBatches, maxMessages, maxRetries int) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()
	cfg := appInstance.GetConfig()

	dispatcherCfg := collector.Config{
		MaxBatches:          cfg.Collector.MaxBatches,
		MaxMessagesPerBatch: cfg.Collector.MaxMessagesPerBatch,
		MaxRetries:          cfg.Collector.MaxRetries,
		VisibilityWindow:    cfg.VisibilityWindow(),
		WaitTime:            cfg.ClaimWait(),
		StopOnPartialBatch:  cfg.Collector.StopOnPartialBatch,
		PlaceholderTitle:    cfg.Collector.PlaceholderTitle,
		Country:             cfg.Fetcher.Country,
		ReviewTimeout:       time.Duration(cfg.Review.TimeoutSeconds) * time.Second,
	}
	if maxBatches > 0 {
		dispatcherCfg.MaxBatches = maxBatches
	}
	if maxMessages > 0 {
		dispatcherCfg.MaxMessagesPerBatch = maxMessages
	}
	if maxRetries >= 0 {
		dispatcherCfg.MaxRetries = maxRetries
	}

	dispatcher, err := collector.NewDispatcher(dispatcherCfg, collector.Deps{
		Queue:    appInstance.GetQueue(),
		Store:    appInstance.GetStore(),
		Fetcher:  appInstance.GetFetcher(),
		Archive:  appInstance.GetArchive(),
		Reviewer: appInstance.GetReviewer(),
		Clock:    appInstance.GetClock(),
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("init dispatcher: %w", err)
	}
	dispatcher.SetBackoff(retryBackoff)

	record := beginRun(cmd.Context(), appInstance, ledger.PhaseCollect)

	summary, runErr := dispatcher.Run(cmd.Context())

	record.Batches = summary.Batches
	record.Messages = summary.Messages
	record.Committed = summary.Committed
	record.Poison = summary.Poison
	record.Succeeded = summary.Outcomes[harvest.OutcomeSuccess]
	record.SoftExhausted = summary.Outcomes[harvest.OutcomeSoftExhausted]
	record.HardFailures = summary.Outcomes[harvest.OutcomeHardFailure]
	record.ResolverMisses = summary.Outcomes[harvest.OutcomeResolverMiss]
	finishRun(cmd.Context(), appInstance, record, runErr)

	if runErr != nil {
		return fmt.Errorf("run collection: %w", runErr)
	}

	logger.Info("Collect command finished.",
		zap.Int("batches", summary.Batches),
		zap.Int("messages", summary.Messages),
		zap.Int("committed", summary.Committed),
		zap.Int("poison", summary.Poison),
	)
	return nil
}

// retryBackoff doubles the delay per soft-failure attempt, capped at 30s.
func retryBackoff(attempt int) time.Duration {
	const maxDelay = 30 * time.Second
	if attempt < 1 {
		return 0
	}
	// 2^5 seconds already exceeds the cap; larger shifts would overflow.
	if attempt > 6 {
		return maxDelay
	}
	d := time.Second << (attempt - 1)
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// beginRun opens a ledger record. The ledger is advisory: failure to record
// a run is logged but never blocks the run itself.
func beginRun(ctx context.Context, appInstance App, phase string) ledger.RunRecord {
	record, err := appInstance.GetLedger().BeginRun(ctx, phase)
	if err != nil {
		appInstance.GetLogger().Warn("Failed to record run start", zap.String("phase", phase), zap.Error(err))
		return ledger.RunRecord{Phase: phase, Status: ledger.StatusRunning}
	}
	return record
}

func finishRun(ctx context.Context, appInstance App, record ledger.RunRecord, runErr error) {
	now := appInstance.GetClock().Now()
	record.FinishedAt = &now
	record.Status = ledger.StatusSucceeded
	if runErr != nil {
		record.Status = ledger.StatusFailed
		msg := runErr.Error()
		record.Error = &msg
	}
	if err := appInstance.GetLedger().FinishRun(ctx, record); err != nil {
		appInstance.GetLogger().Warn("Failed to record run finish",
			zap.String("phase", record.Phase),
			zap.Error(err),
		)
	}
}
