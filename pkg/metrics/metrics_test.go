package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avion-commerce/storefront-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutMetrics_HandlerExposesCounters(t *testing.T) {
	m := metrics.NewCheckoutMetrics()
	m.Outcomes.WithLabelValues("Failed", "ReservingStock", "InsufficientStock").Inc()
	m.Reservations.WithLabelValues("ok").Add(2)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Reservations.WithLabelValues("ok")))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Contains(t, string(body), `avion_checkout_outcomes_total{kind="InsufficientStock",state="Failed",step="ReservingStock"} 1`)
}
