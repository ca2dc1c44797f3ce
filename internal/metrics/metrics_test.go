package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if filterVerdictsTotal == nil || sendsTotal == nil || runsTotal == nil ||
		itemsScannedTotal == nil || pauseTransitionsTotal == nil || runActive == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserversRecord(t *testing.T) {
	Init()

	before := testutil.ToFloat64(sendsTotal.WithLabelValues("delivered"))
	ObserveSend("delivered")
	if got := testutil.ToFloat64(sendsTotal.WithLabelValues("delivered")); got != before+1 {
		t.Errorf("expected delivered count %v, got %v", before+1, got)
	}

	before = testutil.ToFloat64(filterVerdictsTotal.WithLabelValues("rejected", "stale"))
	ObserveFilter(false, "stale")
	if got := testutil.ToFloat64(filterVerdictsTotal.WithLabelValues("rejected", "stale")); got != before+1 {
		t.Errorf("expected stale reject count %v, got %v", before+1, got)
	}

	before = testutil.ToFloat64(itemsScannedTotal.WithLabelValues("search-1"))
	ObserveItemsScanned("search-1", 7)
	ObserveItemsScanned("search-1", 0)
	if got := testutil.ToFloat64(itemsScannedTotal.WithLabelValues("search-1")); got != before+7 {
		t.Errorf("expected scanned count %v, got %v", before+7, got)
	}

	SetRunActive(true)
	if got := testutil.ToFloat64(runActive); got != 1 {
		t.Errorf("expected run gauge 1, got %v", got)
	}
	SetRunActive(false)
	if got := testutil.ToFloat64(runActive); got != 0 {
		t.Errorf("expected run gauge 0, got %v", got)
	}

	ObserveHTTPRequest("GET", "/v1/status", 200, 25*time.Millisecond)
	ObservePauseTransition("paused")
	ObserveRun("completed")
}

func TestObserversNilSafeBeforeInit(t *testing.T) {
	// Collectors may be nil in unit tests that never call Init.
	saved := sendsTotal
	sendsTotal = nil
	defer func() { sendsTotal = saved }()

	ObserveSend("delivered")
}
