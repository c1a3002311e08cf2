package harvest

import (
	"context"
	"errors"
	"time"
)

// ErrNotSeeded is returned by RecordStore.Resolve when the key pair has no
// stored record. It is a terminal, non-error outcome for the caller: skip
// the fetch and acknowledge the message.
var ErrNotSeeded = errors.New("record not seeded")

// WorkQueue provides claim/acknowledge/send semantics over the work queue.
type WorkQueue interface {
	// Claim receives up to opts.MaxMessages messages, hiding each from
	// other consumers for opts.VisibilityWindow.
	Claim(ctx context.Context, opts ClaimOptions) ([]Message, error)

	// Acknowledge deletes one in-flight message by its receipt token.
	Acknowledge(ctx context.Context, receipt string) error

	// Send enqueues a message body with attributes. A non-empty groupID
	// requests FIFO grouping/deduplication where the backend supports it.
	Send(ctx context.Context, body []byte, attributes map[string]string, groupID string) (string, error)
}

// RecordStore is the key-value store holding product records.
type RecordStore interface {
	// Resolve looks up the stored fetch target for a key pair, returning
	// ErrNotSeeded on a miss.
	Resolve(ctx context.Context, sellerID, urlID string) (ResolvedTarget, error)

	// PutSeed writes the full record produced by the discovery phase.
	PutSeed(ctx context.Context, seed SeedRecord) error

	// Update applies a partial update to an existing record, writing only
	// the given fields. It never creates records; the seed must exist.
	Update(ctx context.Context, sellerID, urlID string, fields map[string]any) (map[string]any, error)
}

// Fetcher fetches one detail page, returning the structured payload plus
// the rendered page title used for soft-failure detection.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResult, error)
}

// Archive persists raw payload snapshots and returns a URI.
type Archive interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
