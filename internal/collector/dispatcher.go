// Package collector drains the work queue and enriches seeded product
// records. Processing is at-least-once: a message is acknowledged only after
// its item reaches a terminal outcome, so an interrupted run redelivers
// in-flight items once their visibility window lapses, and commits are
// idempotent partial updates so redelivery is safe.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pricewatch/meli-harvester/internal/archive"
	"github.com/pricewatch/meli-harvester/internal/harvest"
	"github.com/pricewatch/meli-harvester/internal/metrics"
	"github.com/pricewatch/meli-harvester/internal/review"
)

// Config holds the settings for one collection run.
type Config struct {
	MaxBatches          int
	MaxMessagesPerBatch int
	MaxRetries          int
	VisibilityWindow    time.Duration
	WaitTime            time.Duration
	// StopOnPartialBatch ends the run after a batch smaller than
	// MaxMessagesPerBatch, treating it as the queue running dry.
	StopOnPartialBatch bool
	PlaceholderTitle   string
	Country            string
	ReviewTimeout      time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxBatches <= 0 {
		c.MaxBatches = 50
	}
	if c.MaxMessagesPerBatch <= 0 {
		c.MaxMessagesPerBatch = 10
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.VisibilityWindow <= 0 {
		c.VisibilityWindow = 5 * time.Minute
	}
	if c.PlaceholderTitle == "" {
		c.PlaceholderTitle = DefaultPlaceholderTitle
	}
	if c.ReviewTimeout <= 0 {
		c.ReviewTimeout = 10 * time.Second
	}
}

// Deps are the collaborators a Dispatcher drives. Archive and Reviewer are
// optional; the rest are required.
type Deps struct {
	Queue    harvest.WorkQueue
	Store    harvest.RecordStore
	Fetcher  harvest.Fetcher
	Archive  harvest.Archive
	Reviewer review.Reviewer
	Clock    harvest.Clock
	Logger   *zap.Logger
}

// Dispatcher runs the batch claim loop for one collection run.
type Dispatcher struct {
	cfg      Config
	queue    harvest.WorkQueue
	store    harvest.RecordStore
	fetcher  harvest.Fetcher
	archive  harvest.Archive
	reviewer review.Reviewer
	clock    harvest.Clock
	logger   *zap.Logger
	backoff  func(attempt int) time.Duration
}

// NewDispatcher validates the dependencies and builds a Dispatcher.
func NewDispatcher(cfg Config, deps Deps) (*Dispatcher, error) {
	if deps.Queue == nil {
		return nil, fmt.Errorf("work queue is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg.applyDefaults()
	return &Dispatcher{
		cfg:      cfg,
		queue:    deps.Queue,
		store:    deps.Store,
		fetcher:  deps.Fetcher,
		archive:  deps.Archive,
		reviewer: deps.Reviewer,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}, nil
}

// SetBackoff installs a delay between soft-failure retries. The default is
// no delay.
func (d *Dispatcher) SetBackoff(fn func(attempt int) time.Duration) {
	d.backoff = fn
}

// RunSummary aggregates what one collection run did.
type RunSummary struct {
	Batches     int
	Messages    int
	Poison      int
	Committed   int
	AckFailures int
	Outcomes    map[harvest.Outcome]int
	Started     time.Time
	Finished    time.Time
}

// Run claims batches until a stop condition is reached: MaxBatches claimed,
// an empty batch, or (when configured) a partial batch. A queue backend
// error aborts the run; unprocessed messages stay claimable.
func (d *Dispatcher) Run(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{
		Outcomes: make(map[harvest.Outcome]int),
		Started:  d.clock.Now(),
	}
	defer func() { summary.Finished = d.clock.Now() }()

	opts := harvest.ClaimOptions{
		MaxMessages:      d.cfg.MaxMessagesPerBatch,
		VisibilityWindow: d.cfg.VisibilityWindow,
		WaitTime:         d.cfg.WaitTime,
	}

	for batch := 1; batch <= d.cfg.MaxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("run canceled: %w", err)
		}

		msgs, err := d.queue.Claim(ctx, opts)
		if err != nil {
			return summary, fmt.Errorf("claim batch %d: %w", batch, err)
		}
		summary.Batches++
		metrics.ObserveBatch()

		if len(msgs) == 0 {
			d.logger.Info("Queue drained", zap.Int("batches", summary.Batches))
			return summary, nil
		}

		for _, msg := range msgs {
			summary.Messages++
			d.process(ctx, msg, &summary)
		}

		if d.cfg.StopOnPartialBatch && len(msgs) < d.cfg.MaxMessagesPerBatch {
			d.logger.Info("Stopping on partial batch",
				zap.Int("batch_size", len(msgs)),
				zap.Int("max_messages", d.cfg.MaxMessagesPerBatch),
			)
			return summary, nil
		}
	}
	d.logger.Info("Reached batch limit", zap.Int("max_batches", d.cfg.MaxBatches))
	return summary, nil
}

// process drives one claimed message to a terminal outcome. Messages that
// cannot be parsed are poison: logged and deleted so they stop redelivering.
// Infrastructure errors before a terminal outcome leave the message
// unacknowledged for redelivery.
func (d *Dispatcher) process(ctx context.Context, msg harvest.Message, summary *RunSummary) {
	item, err := parseWorkItem(msg.Body)
	if err != nil {
		d.logger.Warn("Dropping malformed message",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		summary.Poison++
		d.ack(ctx, msg, summary)
		return
	}

	target, err := d.store.Resolve(ctx, item.SellerID, item.URLID)
	if errors.Is(err, harvest.ErrNotSeeded) {
		d.logger.Warn("Work item has no seeded record",
			zap.String("seller_id", item.SellerID),
			zap.String("url_id", item.URLID),
		)
		d.finish(ctx, msg, summary, harvest.ItemResult{Item: item, Outcome: harvest.OutcomeResolverMiss})
		return
	}
	if err != nil {
		d.logger.Error("Resolve failed, leaving message for redelivery",
			zap.String("seller_id", item.SellerID),
			zap.String("url_id", item.URLID),
			zap.Error(err),
		)
		return
	}

	result, attempts, outcome, fetchErr := d.fetchWithRetries(ctx, target.FetchURL)
	metrics.ObserveFetchAttempts(attempts)
	if outcome == "" {
		// Interrupted mid-fetch; the visibility window will redeliver.
		d.logger.Warn("Fetch interrupted, leaving message for redelivery",
			zap.String("url", target.FetchURL),
			zap.Error(fetchErr),
		)
		return
	}

	itemResult := harvest.ItemResult{
		Item:     item,
		Outcome:  outcome,
		Attempts: attempts,
		FetchURL: target.FetchURL,
	}

	switch outcome {
	case harvest.OutcomeSuccess:
		d.commit(ctx, &itemResult, result)
		d.snapshot(ctx, &itemResult, result)
		if d.reviewer != nil && result.Product != nil {
			d.runReview(ctx, item, *result.Product)
		}
	case harvest.OutcomeSoftExhausted:
		d.logger.Warn("Retries exhausted on placeholder page",
			zap.String("url", target.FetchURL),
			zap.Int("attempts", attempts),
		)
		// The placeholder page occasionally still carries extracted
		// fields; keep whatever the last attempt observed.
		if result.Product != nil && !result.Product.Empty() {
			d.commit(ctx, &itemResult, result)
		}
	case harvest.OutcomeHardFailure:
		d.logger.Error("Fetch failed",
			zap.String("url", target.FetchURL),
			zap.Int("attempts", attempts),
			zap.Error(fetchErr),
		)
	}

	d.finish(ctx, msg, summary, itemResult)
	if itemResult.Committed {
		summary.Committed++
	}
}

// commit writes the observed detail fields as a partial update. A commit
// failure does not change the item's outcome; the store never creates
// records here, and redelivered items simply rewrite the same fields.
func (d *Dispatcher) commit(ctx context.Context, itemResult *harvest.ItemResult, result harvest.FetchResult) {
	if result.Product == nil || result.Product.Empty() {
		d.logger.Warn("Page fetched but no detail fields extracted",
			zap.String("url", itemResult.FetchURL),
		)
		return
	}
	item := itemResult.Item
	if _, err := d.store.Update(ctx, item.SellerID, item.URLID, result.Product.Fields()); err != nil {
		itemResult.CommitErr = err
		metrics.ObserveCommitFailure()
		d.logger.Error("Commit failed",
			zap.String("seller_id", item.SellerID),
			zap.String("url_id", item.URLID),
			zap.Error(err),
		)
		return
	}
	itemResult.Committed = true
}

// snapshot archives the raw payload when an archive is configured. Archive
// failures are logged and do not affect the outcome.
func (d *Dispatcher) snapshot(ctx context.Context, itemResult *harvest.ItemResult, result harvest.FetchResult) {
	if d.archive == nil || len(result.Raw) == 0 {
		return
	}
	contentType := sniffContentType(result.Raw)
	item := itemResult.Item
	path := archive.SnapshotPath(d.clock.Now(), item.SellerID, item.URLID, archive.ExtForContentType(contentType))
	uri, err := d.archive.PutObject(ctx, path, contentType, result.Raw)
	if err != nil {
		d.logger.Error("Failed to archive snapshot",
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	itemResult.ArchiveURI = uri
}

func (d *Dispatcher) runReview(ctx context.Context, item harvest.WorkItem, details harvest.ProductDetails) {
	rctx, cancel := context.WithTimeout(ctx, d.cfg.ReviewTimeout)
	defer cancel()
	verdict, err := d.reviewer.Review(rctx, item, details)
	if err != nil {
		d.logger.Warn("Advisory review failed",
			zap.String("seller_id", item.SellerID),
			zap.String("url_id", item.URLID),
			zap.Error(err),
		)
		return
	}
	if !verdict.Acceptable {
		d.logger.Warn("Advisory review flagged record",
			zap.String("seller_id", item.SellerID),
			zap.String("url_id", item.URLID),
			zap.Strings("issues", verdict.Issues),
			zap.String("confidence", verdict.Confidence),
		)
	}
}

// finish records the terminal outcome and acknowledges the message. All
// terminal outcomes acknowledge, including failures: the item had its chance
// and redelivering it would repeat the same result.
func (d *Dispatcher) finish(ctx context.Context, msg harvest.Message, summary *RunSummary, itemResult harvest.ItemResult) {
	if itemResult.Outcome != "" {
		summary.Outcomes[itemResult.Outcome]++
		metrics.ObserveItem(string(itemResult.Outcome))
	}
	d.ack(ctx, msg, summary)
}

func (d *Dispatcher) ack(ctx context.Context, msg harvest.Message, summary *RunSummary) {
	if err := d.queue.Acknowledge(ctx, msg.Receipt); err != nil {
		summary.AckFailures++
		metrics.ObserveAckFailure()
		d.logger.Error("Failed to acknowledge message",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

func parseWorkItem(body []byte) (harvest.WorkItem, error) {
	var item harvest.WorkItem
	if err := json.Unmarshal(body, &item); err != nil {
		return harvest.WorkItem{}, fmt.Errorf("decode work item: %w", err)
	}
	if item.SellerID == "" || item.URLID == "" {
		return harvest.WorkItem{}, fmt.Errorf("work item missing key pair")
	}
	return item, nil
}

func sniffContentType(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return "application/json"
	}
	return "text/html"
}
