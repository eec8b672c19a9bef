package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreRegistered(t *testing.T) {
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"livetodo_subscriptions_active",
		"livetodo_subscriptions_registered_total",
		"livetodo_subscriptions_torn_down_total",
		"livetodo_callbacks_delivered_total",
		"livetodo_callback_panics_total",
		"livetodo_rpc_connections",
	} {
		assert.True(t, names[want], want)
	}
}

func TestRPCRequestsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(RPCRequests.WithLabelValues("todos.add", "error"))
	RPCRequests.WithLabelValues("todos.add", "error").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RPCRequests.WithLabelValues("todos.add", "error")))
}
