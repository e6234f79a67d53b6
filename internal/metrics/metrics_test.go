package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("/healthz", 200)
		IncSlotConflict("server")
		IncStatusChange("pending", "confirmed")
		IncNotification("telegram", "dropped")
	})

	before := testutil.ToFloat64(leadsCreated)
	IncLeadCreated()
	assert.Equal(t, before+1, testutil.ToFloat64(leadsCreated))

	assert.Equal(t, float64(1), testutil.ToFloat64(slotConflicts.WithLabelValues("server")))
}
