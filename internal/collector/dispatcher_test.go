package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	memarchive "github.com/pricewatch/meli-harvester/internal/archive/memory"
	"github.com/pricewatch/meli-harvester/internal/harvest"
	memqueue "github.com/pricewatch/meli-harvester/internal/queue/memory"
	"github.com/pricewatch/meli-harvester/internal/review"
	memstore "github.com/pricewatch/meli-harvester/internal/store/memory"
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

type fetchStep struct {
	result harvest.FetchResult
	err    error
}

// scriptedFetcher plays back a per-URL sequence of results, repeating the
// last step once the script runs out.
type scriptedFetcher struct {
	mu    sync.Mutex
	steps map[string][]fetchStep
	calls int
}

func (f *scriptedFetcher) Fetch(_ context.Context, req harvest.FetchRequest) (harvest.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	script := f.steps[req.URL]
	if len(script) == 0 {
		return harvest.FetchResult{}, fmt.Errorf("no script for %s", req.URL)
	}
	step := script[0]
	if len(script) > 1 {
		f.steps[req.URL] = script[1:]
	}
	return step.result, step.err
}

func productResult(title string) fetchStep {
	return fetchStep{result: harvest.FetchResult{
		PageTitle:  title,
		StatusCode: 200,
		Product: &harvest.ProductDetails{
			Currency:     "UYU",
			Availability: "InStock",
			Description:  "desc",
		},
		Raw: []byte(`{"result": {}}`),
	}}
}

func placeholderResult() fetchStep {
	return fetchStep{result: harvest.FetchResult{PageTitle: "Mercado Libre Uruguay", StatusCode: 200}}
}

type funcStore struct {
	resolve func(ctx context.Context, sellerID, urlID string) (harvest.ResolvedTarget, error)
	update  func(ctx context.Context, sellerID, urlID string, fields map[string]any) (map[string]any, error)
}

func (s *funcStore) Resolve(ctx context.Context, sellerID, urlID string) (harvest.ResolvedTarget, error) {
	return s.resolve(ctx, sellerID, urlID)
}

func (s *funcStore) PutSeed(context.Context, harvest.SeedRecord) error { return nil }

func (s *funcStore) Update(ctx context.Context, sellerID, urlID string, fields map[string]any) (map[string]any, error) {
	return s.update(ctx, sellerID, urlID, fields)
}

type recordingReviewer struct {
	mu    sync.Mutex
	calls []harvest.WorkItem
}

func (r *recordingReviewer) Review(_ context.Context, item harvest.WorkItem, _ harvest.ProductDetails) (review.Verdict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, item)
	return review.Verdict{Acceptable: true, Confidence: "high"}, nil
}

func enqueueItem(t *testing.T, q *memqueue.Queue, sellerID, urlID string) {
	t.Helper()
	body, err := json.Marshal(harvest.WorkItem{
		SellerID:         sellerID,
		URLID:            urlID,
		InsertedAt:       "2026-01-07T12:00:00Z",
		ProcessingStatus: "pending",
	})
	require.NoError(t, err)
	_, err = q.Send(context.Background(), body, nil, sellerID)
	require.NoError(t, err)
}

func seed(t *testing.T, store *memstore.Store, sellerID, urlID, pubURL string) {
	t.Helper()
	err := store.PutSeed(context.Background(), harvest.SeedRecord{
		SellerID: sellerID,
		URLID:    urlID,
		Title:    "Seeded product",
		PubURL:   pubURL,
	})
	require.NoError(t, err)
}

func TestRunMixedBatch(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	queue := memqueue.NewQueue(clk)
	store := memstore.NewStore()
	arch := memarchive.New()
	reviewer := &recordingReviewer{}

	seed(t, store, "s1", "u1", "https://item/1")
	seed(t, store, "s2", "u2", "https://item/2")
	seed(t, store, "s3", "u3", "https://item/3")
	// s4/u4 is deliberately never seeded.

	enqueueItem(t, queue, "s1", "u1")
	enqueueItem(t, queue, "s2", "u2")
	enqueueItem(t, queue, "s3", "u3")
	enqueueItem(t, queue, "s4", "u4")
	_, err := queue.Send(context.Background(), []byte("not json"), nil, "")
	require.NoError(t, err)

	fetcher := &scriptedFetcher{steps: map[string][]fetchStep{
		"https://item/1": {productResult("iPhone 15 Pro Max 256GB")},
		"https://item/2": {placeholderResult()},
		"https://item/3": {{err: fmt.Errorf("connection reset")}},
	}}

	dispatcher, err := NewDispatcher(Config{
		MaxBatches:          3,
		MaxMessagesPerBatch: 5,
		MaxRetries:          2,
	}, Deps{
		Queue:    queue,
		Store:    store,
		Fetcher:  fetcher,
		Archive:  arch,
		Reviewer: reviewer,
		Clock:    clk,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	summary, err := dispatcher.Run(context.Background())
	require.NoError(t, err)

	// Every message reached a terminal outcome and was acknowledged.
	require.Equal(t, 0, queue.Depth())
	require.Equal(t, 5, summary.Messages)
	require.Equal(t, 1, summary.Poison)
	require.Equal(t, 1, summary.Committed)
	require.Equal(t, 0, summary.AckFailures)
	require.Equal(t, map[harvest.Outcome]int{
		harvest.OutcomeSuccess:       1,
		harvest.OutcomeSoftExhausted: 1,
		harvest.OutcomeHardFailure:   1,
		harvest.OutcomeResolverMiss:  1,
	}, summary.Outcomes)

	// The second batch came back empty and ended the run.
	require.Equal(t, 2, summary.Batches)

	// Soft failure burned all attempts, the hard failure just one.
	require.Equal(t, 1+3+1, fetcher.calls)

	// The successful item committed exactly the observed fields.
	record, ok := store.Record("s1", "u1")
	require.True(t, ok)
	require.Equal(t, "UYU", record["currency"])
	require.Equal(t, "InStock", record["availability"])
	require.Equal(t, "desc", record["description"])
	require.NotContains(t, record, "mainImage")

	// One archived snapshot, partitioned by the run date.
	require.Equal(t, 1, arch.Len())
	obj, ok := arch.Get("collect/year=2023/month=11/day=14/s1-u1.json")
	require.True(t, ok)
	require.Equal(t, "application/json", obj.ContentType)

	// Only the successful item was reviewed.
	require.Len(t, reviewer.calls, 1)
	require.Equal(t, "s1", reviewer.calls[0].SellerID)
}

func TestRunRetriesPlaceholderThenSucceeds(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	queue := memqueue.NewQueue(clk)
	store := memstore.NewStore()
	seed(t, store, "s1", "u1", "https://item/1")
	enqueueItem(t, queue, "s1", "u1")

	fetcher := &scriptedFetcher{steps: map[string][]fetchStep{
		"https://item/1": {placeholderResult(), placeholderResult(), productResult("Samsung Galaxy S24")},
	}}

	dispatcher, err := NewDispatcher(Config{MaxRetries: 3, StopOnPartialBatch: true}, Deps{
		Queue:   queue,
		Store:   store,
		Fetcher: fetcher,
		Clock:   clk,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)

	summary, err := dispatcher.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, fetcher.calls)
	require.Equal(t, 1, summary.Outcomes[harvest.OutcomeSuccess])
	require.Equal(t, 1, summary.Committed)
	require.Equal(t, 0, queue.Depth())
}

func TestRunSoftExhaustedCommitsLastObservedFields(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	queue := memqueue.NewQueue(clk)
	store := memstore.NewStore()
	seed(t, store, "s1", "u1", "https://item/1")
	enqueueItem(t, queue, "s1", "u1")

	// Every attempt hits the placeholder title, but the final one still
	// carries extracted fields.
	withFields := fetchStep{result: harvest.FetchResult{
		PageTitle:  "Mercado Libre Uruguay",
		StatusCode: 200,
		Product:    &harvest.ProductDetails{Currency: "UYU", Description: "parcial"},
		Raw:        []byte(`{"result": {}}`),
	}}
	fetcher := &scriptedFetcher{steps: map[string][]fetchStep{
		"https://item/1": {placeholderResult(), placeholderResult(), withFields},
	}}

	dispatcher, err := NewDispatcher(Config{MaxRetries: 2, StopOnPartialBatch: true}, Deps{
		Queue:   queue,
		Store:   store,
		Fetcher: fetcher,
		Clock:   clk,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)

	summary, err := dispatcher.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, fetcher.calls)
	require.Equal(t, 1, summary.Outcomes[harvest.OutcomeSoftExhausted])
	require.Equal(t, 1, summary.Committed)
	require.Equal(t, 0, queue.Depth())

	record, ok := store.Record("s1", "u1")
	require.True(t, ok)
	require.Equal(t, "UYU", record["currency"])
	require.Equal(t, "parcial", record["description"])
}

func TestRunSoftExhaustedWithoutFieldsSkipsCommit(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	queue := memqueue.NewQueue(clk)
	store := memstore.NewStore()
	seed(t, store, "s1", "u1", "https://item/1")
	enqueueItem(t, queue, "s1", "u1")

	fetcher := &scriptedFetcher{steps: map[string][]fetchStep{
		"https://item/1": {placeholderResult()},
	}}

	dispatcher, err := NewDispatcher(Config{MaxRetries: 1, StopOnPartialBatch: true}, Deps{
		Queue:   queue,
		Store:   store,
		Fetcher: fetcher,
		Clock:   clk,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)

	summary, err := dispatcher.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Outcomes[harvest.OutcomeSoftExhausted])
	require.Equal(t, 0, summary.Committed)
	require.Equal(t, 0, queue.Depth())

	record, ok := store.Record("s1", "u1")
	require.True(t, ok)
	require.NotContains(t, record, "currency")
}

func TestRunStopsOnPartialBatch(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	queue := memqueue.NewQueue(clk)
	store := memstore.NewStore()
	seed(t, store, "s1", "u1", "https://item/1")
	enqueueItem(t, queue, "s1", "u1")

	fetcher := &scriptedFetcher{steps: map[string][]fetchStep{
		"https://item/1": {productResult("Product")},
	}}

	dispatcher, err := NewDispatcher(Config{
		MaxBatches:          50,
		MaxMessagesPerBatch: 10,
		StopOnPartialBatch:  true,
	}, Deps{
		Queue:   queue,
		Store:   store,
		Fetcher: fetcher,
		Clock:   clk,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)

	summary, err := dispatcher.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Batches)
	require.Equal(t, 1, summary.Messages)
}

type failingQueue struct{}

func (failingQueue) Claim(context.Context, harvest.ClaimOptions) ([]harvest.Message, error) {
	return nil, fmt.Errorf("backend unavailable")
}
func (failingQueue) Acknowledge(context.Context, string) error { return nil }
func (failingQueue) Send(context.Context, []byte, map[string]string, string) (string, error) {
	return "", nil
}

func TestRunAbortsOnQueueError(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	dispatcher, err := NewDispatcher(Config{}, Deps{
		Queue:   failingQueue{},
		Store:   memstore.NewStore(),
		Fetcher: &scriptedFetcher{},
		Clock:   clk,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)

	summary, err := dispatcher.Run(context.Background())
	require.ErrorContains(t, err, "backend unavailable")
	require.Equal(t, 0, summary.Batches)
}

func TestRunLeavesMessageOnResolveInfraError(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	queue := memqueue.NewQueue(clk)
	enqueueItem(t, queue, "s1", "u1")

	store := &funcStore{
		resolve: func(context.Context, string, string) (harvest.ResolvedTarget, error) {
			return harvest.ResolvedTarget{}, fmt.Errorf("throughput exceeded")
		},
	}

	dispatcher, err := NewDispatcher(Config{StopOnPartialBatch: true}, Deps{
		Queue:   queue,
		Store:   store,
		Fetcher: &scriptedFetcher{},
		Clock:   clk,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)

	summary, err := dispatcher.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, summary.Outcomes)
	// Not acknowledged: the message redelivers after its visibility window.
	require.Equal(t, 1, queue.Depth())
}

func TestRunAcksAfterCommitFailure(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	queue := memqueue.NewQueue(clk)
	enqueueItem(t, queue, "s1", "u1")

	store := &funcStore{
		resolve: func(context.Context, string, string) (harvest.ResolvedTarget, error) {
			return harvest.ResolvedTarget{FetchURL: "https://item/1"}, nil
		},
		update: func(context.Context, string, string, map[string]any) (map[string]any, error) {
			return nil, fmt.Errorf("conditional check failed")
		},
	}
	fetcher := &scriptedFetcher{steps: map[string][]fetchStep{
		"https://item/1": {productResult("Product")},
	}}

	dispatcher, err := NewDispatcher(Config{StopOnPartialBatch: true}, Deps{
		Queue:   queue,
		Store:   store,
		Fetcher: fetcher,
		Clock:   clk,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)

	summary, err := dispatcher.Run(context.Background())
	require.NoError(t, err)
	// The terminal outcome stands and the message is acknowledged even
	// though the commit was rejected.
	require.Equal(t, 1, summary.Outcomes[harvest.OutcomeSuccess])
	require.Equal(t, 0, summary.Committed)
	require.Equal(t, 0, queue.Depth())
}

func TestNewDispatcherValidation(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	base := Deps{
		Queue:   failingQueue{},
		Store:   memstore.NewStore(),
		Fetcher: &scriptedFetcher{},
		Clock:   clk,
		Logger:  zap.NewNop(),
	}

	for name, mutate := range map[string]func(*Deps){
		"missing queue":   func(d *Deps) { d.Queue = nil },
		"missing store":   func(d *Deps) { d.Store = nil },
		"missing fetcher": func(d *Deps) { d.Fetcher = nil },
		"missing clock":   func(d *Deps) { d.Clock = nil },
		"missing logger":  func(d *Deps) { d.Logger = nil },
	} {
		t.Run(name, func(t *testing.T) {
			deps := base
			mutate(&deps)
			_, err := NewDispatcher(Config{}, deps)
			require.Error(t, err)
		})
	}
}

func TestParseWorkItem(t *testing.T) {
	t.Parallel()

	item, err := parseWorkItem([]byte(`{"seller_id":"a","url_id":"b","inserted_at":"t","processing_status":"pending"}`))
	require.NoError(t, err)
	require.Equal(t, "a", item.SellerID)
	require.Equal(t, "b", item.URLID)

	_, err = parseWorkItem([]byte("nope"))
	require.Error(t, err)

	_, err = parseWorkItem([]byte(`{"seller_id":"a"}`))
	require.ErrorContains(t, err, "missing key pair")
}
