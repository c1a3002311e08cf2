// Package memory provides a work queue for local development and tests.
// It models the backend's visibility semantics: claimed messages are hidden
// for the requested window and become re-claimable if not acknowledged, and
// each claim issues a fresh receipt that invalidates earlier ones.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pricewatch/meli-harvester/internal/harvest"
)

// ErrUnknownReceipt is returned when an acknowledgment carries a receipt
// that does not match any current in-flight claim.
var ErrUnknownReceipt = errors.New("unknown or stale receipt")

type message struct {
	id         string
	body       []byte
	attributes map[string]string
	visibleAt  time.Time
	receipt    string
	deleted    bool
}

// Queue is an in-memory work queue with visibility windows.
type Queue struct {
	mu       sync.Mutex
	messages []*message
	clock    harvest.Clock
	seq      int
	claimSeq int
}

// NewQueue constructs a Queue using the given clock.
func NewQueue(clock harvest.Clock) *Queue {
	return &Queue{clock: clock}
}

// Send appends a message. The groupID is accepted for interface parity but
// has no ordering effect in memory.
func (q *Queue) Send(_ context.Context, body []byte, attributes map[string]string, _ string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	id := fmt.Sprintf("msg-%d", q.seq)
	attrs := make(map[string]string, len(attributes))
	for k, v := range attributes {
		attrs[k] = v
	}
	q.messages = append(q.messages, &message{
		id:         id,
		body:       append([]byte(nil), body...),
		attributes: attrs,
		visibleAt:  q.clock.Now(),
	})
	return id, nil
}

// Claim returns up to opts.MaxMessages visible messages, hiding each for
// opts.VisibilityWindow. Each claim issues a new receipt; a receipt from an
// earlier claim of the same message no longer acknowledges it.
func (q *Queue) Claim(ctx context.Context, opts harvest.ClaimOptions) ([]harvest.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("claim canceled: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	var out []harvest.Message
	for _, m := range q.messages {
		if len(out) >= opts.MaxMessages {
			break
		}
		if m.deleted || m.visibleAt.After(now) {
			continue
		}
		q.claimSeq++
		m.receipt = fmt.Sprintf("rcpt-%s-%d", m.id, q.claimSeq)
		m.visibleAt = now.Add(opts.VisibilityWindow)
		out = append(out, harvest.Message{
			ID:         m.id,
			Body:       append([]byte(nil), m.body...),
			Receipt:    m.receipt,
			Attributes: m.attributes,
		})
	}
	return out, nil
}

// Acknowledge deletes the message matching the receipt.
func (q *Queue) Acknowledge(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.messages {
		if m.deleted || m.receipt != receipt {
			continue
		}
		m.deleted = true
		return nil
	}
	return ErrUnknownReceipt
}

// Depth reports how many messages remain undeleted, visible or not.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, m := range q.messages {
		if !m.deleted {
			n++
		}
	}
	return n
}
