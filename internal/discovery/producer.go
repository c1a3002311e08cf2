package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pricewatch/meli-harvester/internal/harvest"
	"github.com/pricewatch/meli-harvester/internal/identity"
	"github.com/pricewatch/meli-harvester/internal/metrics"
)

// Producer persists seed records and enqueues the matching work items.
// The enqueue is gated on the seed commit: a record that failed to persist
// must not surface in the queue, or the collector would hit a resolver miss.
type Producer struct {
	store  harvest.RecordStore
	queue  harvest.WorkQueue
	dedup  *Dedup
	clock  harvest.Clock
	logger *zap.Logger
}

// NewProducer wires a producer. Each producer carries its own per-run dedup
// set.
func NewProducer(store harvest.RecordStore, queue harvest.WorkQueue, clock harvest.Clock, logger *zap.Logger) (*Producer, error) {
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if queue == nil {
		return nil, fmt.Errorf("work queue is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Producer{
		store:  store,
		queue:  queue,
		dedup:  NewDedup(),
		clock:  clock,
		logger: logger,
	}, nil
}

// Publish stores the seed and enqueues its work item. Duplicate key pairs
// within the run are skipped silently.
func (p *Producer) Publish(ctx context.Context, seed harvest.SeedRecord) error {
	key := identity.DedupKey(seed.SellerID, seed.URLID)
	if p.dedup.Seen(key) {
		metrics.ObserveDedupSkip()
		p.logger.Debug("Skipping duplicate listing",
			zap.String("seller_id", seed.SellerID),
			zap.String("url_id", seed.URLID),
		)
		return nil
	}

	if err := p.store.PutSeed(ctx, seed); err != nil {
		return fmt.Errorf("put seed %s/%s: %w", seed.SellerID, seed.URLID, err)
	}

	body, err := json.Marshal(harvest.WorkItem{
		SellerID:         seed.SellerID,
		URLID:            seed.URLID,
		InsertedAt:       p.clock.Now().UTC().Format(time.RFC3339),
		ProcessingStatus: "pending",
	})
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}

	attributes := map[string]string{
		"has_discount": strconv.FormatBool(seed.HasDiscount),
	}
	msgID, err := p.queue.Send(ctx, body, attributes, seed.SellerID)
	if err != nil {
		return fmt.Errorf("enqueue work item %s/%s: %w", seed.SellerID, seed.URLID, err)
	}

	metrics.ObserveEnqueued()
	p.logger.Debug("Enqueued work item",
		zap.String("seller_id", seed.SellerID),
		zap.String("url_id", seed.URLID),
		zap.String("message_id", msgID),
	)
	return nil
}
