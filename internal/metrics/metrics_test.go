package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bustrack/internal/models"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()

	c.LocationAccepted("driver")
	c.LocationAccepted("driver")
	c.LocationRejected("rate_limited")
	c.SubscribersDropped(3)
	c.ConnectionOpened(models.RiderRoleStudent)
	c.ConnectionOpened(models.RiderRoleStudent)
	c.ConnectionClosed(models.RiderRoleStudent)
	c.RouteResolved(true, 20*time.Millisecond)
	c.HistoryPrunedAdd(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.LocationsAccepted.WithLabelValues("driver")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.LocationsRejected.WithLabelValues("rate_limited")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.SubscribersDrop))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Connections.WithLabelValues("student")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RoutesResolved.WithLabelValues("true")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.HistoryPruned))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.NATSSetConnected(true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "bustrack_nats_connected 1")
}
