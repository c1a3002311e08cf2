package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/pricewatch/meli-harvester/internal/harvest"
)

// fetchWithRetries drives one work item through the fetch attempt loop:
// a transport error is immediately terminal, a placeholder page title is a
// soft failure retried up to MaxRetries times, and anything else succeeds.
// The returned attempt count includes the first try.
//
// A non-nil error with outcome OutcomeHardFailure is a terminal transport
// failure; a context error is returned as-is so the caller can leave the
// message unacknowledged.
func (d *Dispatcher) fetchWithRetries(ctx context.Context, fetchURL string) (harvest.FetchResult, int, harvest.Outcome, error) {
	request := harvest.FetchRequest{
		URL:            fetchURL,
		Render:         true,
		ExtractProduct: true,
		Country:        d.cfg.Country,
	}

	var last harvest.FetchResult
	maxAttempts := d.cfg.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := d.fetcher.Fetch(ctx, request)
		if err != nil {
			if ctx.Err() != nil {
				return result, attempt, "", fmt.Errorf("fetch interrupted: %w", ctx.Err())
			}
			return result, attempt, harvest.OutcomeHardFailure, err
		}
		if !isPlaceholderTitle(result.PageTitle, d.cfg.PlaceholderTitle) {
			return result, attempt, harvest.OutcomeSuccess, nil
		}
		last = result
		if attempt < maxAttempts {
			if err := d.waitBeforeRetry(ctx, attempt); err != nil {
				return last, attempt, "", err
			}
		}
	}
	return last, maxAttempts, harvest.OutcomeSoftExhausted, nil
}

// waitBeforeRetry sleeps for the configured backoff, if any. Retries are
// immediate by default; the soft-failure signal is an origin-side block, not
// load, so waiting rarely helps.
func (d *Dispatcher) waitBeforeRetry(ctx context.Context, attempt int) error {
	if d.backoff == nil {
		return nil
	}
	delay := d.backoff(attempt)
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry wait canceled: %w", ctx.Err())
	}
}
