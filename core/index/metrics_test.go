package index

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testCounterValue(t *testing.T) float64 {
	t.Helper()
	return testutil.ToFloat64(PathLRUWarmupDroppedTotal)
}
