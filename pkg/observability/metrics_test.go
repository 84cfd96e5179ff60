package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectorIsSingleton(t *testing.T) {
	ResetForTesting()
	first := NewCollector("graphom")
	second := NewCollector("graphom")
	assert.Same(t, first, second)
}

func TestRecordSave(t *testing.T) {
	ResetForTesting()
	c := NewCollector("graphom")

	c.RecordSave(3, nil)
	c.RecordSave(0, errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(c.Saves.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.Saves.WithLabelValues("failure")))
}

func TestObserveStoreOperation(t *testing.T) {
	ResetForTesting()
	c := NewCollector("graphom")

	c.ObserveStoreOperation("apply_write", 5*time.Millisecond, nil)
	c.ObserveStoreOperation("apply_write", 5*time.Millisecond, errors.New("boom"))
	c.ObserveStoreOperation("fetch_subgraph", time.Millisecond, nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.StoreOperations.WithLabelValues("apply_write", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.StoreOperations.WithLabelValues("apply_write", "failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.StoreOperations.WithLabelValues("fetch_subgraph", "success")))
}

func TestRegistryGathersAllMetrics(t *testing.T) {
	ResetForTesting()
	c := NewCollector("graphom")
	c.SessionsOpened.Inc()
	c.RecordLoad(nil)
	c.RecordDelete(nil)

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["graphom_sessions_opened_total"])
	assert.True(t, names["graphom_loads_total"])
	assert.True(t, names["graphom_deletes_total"])
}
