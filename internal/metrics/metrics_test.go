package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, harvestItemsTotal)
	require.NotNil(t, harvestBatchesTotal)
}

func TestObserveItemCountsByOutcome(t *testing.T) {
	Init()

	before := testutil.ToFloat64(harvestItemsTotal.WithLabelValues("success"))
	ObserveItem("success")
	ObserveItem("success")
	after := testutil.ToFloat64(harvestItemsTotal.WithLabelValues("success"))

	require.InDelta(t, before+2, after, 0.001)
}

func TestObserveFetchAttemptsIgnoresNonPositive(t *testing.T) {
	Init()

	before := testutil.ToFloat64(harvestFetchAttemptsTotal)
	ObserveFetchAttempts(0)
	ObserveFetchAttempts(-1)
	ObserveFetchAttempts(3)
	after := testutil.ToFloat64(harvestFetchAttemptsTotal)

	require.InDelta(t, before+3, after, 0.001)
}

func TestObserversAreNilSafeBeforeInit(t *testing.T) {
	// Observers must not panic even if Init was somehow skipped; the
	// guards make instrumentation optional for library consumers.
	ObserveBatch()
	ObserveCommitFailure()
	ObserveAckFailure()
	ObserveEnqueued()
	ObserveDedupSkip()
}
