package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pricewatch/meli-harvester/internal/harvest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newQueueWithClock() (*Queue, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1000, 0).UTC()}
	return NewQueue(clk), clk
}

func TestClaimHidesMessageForVisibilityWindow(t *testing.T) {
	t.Parallel()

	q, clk := newQueueWithClock()
	ctx := context.Background()

	_, err := q.Send(ctx, []byte(`{"seller_id":"s"}`), nil, "")
	require.NoError(t, err)

	opts := harvest.ClaimOptions{MaxMessages: 10, VisibilityWindow: 30 * time.Second}
	first, err := q.Claim(ctx, opts)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Still in flight: a second claim sees nothing.
	second, err := q.Claim(ctx, opts)
	require.NoError(t, err)
	require.Empty(t, second)

	// After the window expires the message is re-claimable.
	clk.Advance(31 * time.Second)
	third, err := q.Claim(ctx, opts)
	require.NoError(t, err)
	require.Len(t, third, 1)
	require.Equal(t, first[0].ID, third[0].ID)
}

func TestAcknowledgeDeletesMessage(t *testing.T) {
	t.Parallel()

	q, _ := newQueueWithClock()
	ctx := context.Background()

	_, err := q.Send(ctx, []byte("body"), map[string]string{"has_discount": "true"}, "")
	require.NoError(t, err)

	msgs, err := q.Claim(ctx, harvest.ClaimOptions{MaxMessages: 1, VisibilityWindow: time.Minute})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, q.Acknowledge(ctx, msgs[0].Receipt))
	require.Zero(t, q.Depth())
}

func TestAcknowledgeWithStaleReceiptFails(t *testing.T) {
	t.Parallel()

	q, clk := newQueueWithClock()
	ctx := context.Background()

	_, err := q.Send(ctx, []byte("body"), nil, "")
	require.NoError(t, err)

	opts := harvest.ClaimOptions{MaxMessages: 1, VisibilityWindow: time.Second}
	first, err := q.Claim(ctx, opts)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Let the claim expire and re-claim: the first receipt is now stale.
	clk.Advance(2 * time.Second)
	second, err := q.Claim(ctx, opts)
	require.NoError(t, err)
	require.Len(t, second, 1)

	require.ErrorIs(t, q.Acknowledge(ctx, first[0].Receipt), ErrUnknownReceipt)
	require.NoError(t, q.Acknowledge(ctx, second[0].Receipt))
}

func TestClaimRespectsMaxMessages(t *testing.T) {
	t.Parallel()

	q, _ := newQueueWithClock()
	ctx := context.Background()

	for range 5 {
		_, err := q.Send(ctx, []byte("body"), nil, "")
		require.NoError(t, err)
	}

	msgs, err := q.Claim(ctx, harvest.ClaimOptions{MaxMessages: 3, VisibilityWindow: time.Minute})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, 5, q.Depth())
}

func TestClaimHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	q, _ := newQueueWithClock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Claim(ctx, harvest.ClaimOptions{MaxMessages: 1})
	require.Error(t, err)
}
