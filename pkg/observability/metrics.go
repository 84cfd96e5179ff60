package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Global metrics instance for singleton pattern
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds all Prometheus metrics for the mapping library
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// Session metrics
	SessionsOpened prometheus.Counter
	Saves          *prometheus.CounterVec
	Loads          *prometheus.CounterVec
	Deletes        *prometheus.CounterVec

	// Delta metrics
	DeltaEntities prometheus.Histogram

	// Store metrics
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	// Use singleton pattern to avoid duplicate registration in tests
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	// Return existing collector if already created
	if globalCollector != nil {
		return globalCollector
	}

	// Create a new registry for this collector
	registry := prometheus.NewRegistry()

	sessionsOpened := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Total number of sessions opened",
		},
	)

	saves := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Total number of save operations",
		},
		[]string{"status"},
	)

	loads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Total number of load operations",
		},
		[]string{"status"},
	)

	deletes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletes_total",
			Help:      "Total number of delete operations",
		},
		[]string{"status"},
	)

	deltaEntities := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delta_entities_per_save",
			Help:      "Number of changed entities covered by one save",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	storeOperations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"operation", "status"},
	)

	storeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Register all metrics with the registry
	registry.MustRegister(
		sessionsOpened,
		saves,
		loads,
		deletes,
		deltaEntities,
		storeOperations,
		storeDuration,
	)

	globalCollector = &Collector{
		registry:        registry,
		SessionsOpened:  sessionsOpened,
		Saves:           saves,
		Loads:           loads,
		Deletes:         deletes,
		DeltaEntities:   deltaEntities,
		StoreOperations: storeOperations,
		StoreDuration:   storeDuration,
	}
	return globalCollector
}

// Registry returns the prometheus registry holding the collector's metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveStoreOperation records one store round trip
func (c *Collector) ObserveStoreOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.StoreOperations.WithLabelValues(operation, status).Inc()
	c.StoreDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// statusLabel maps an error to the status label used by operation counters
func statusLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordSave records the outcome of one save operation
func (c *Collector) RecordSave(entities int, err error) {
	c.Saves.WithLabelValues(statusLabel(err)).Inc()
	if err == nil {
		c.DeltaEntities.Observe(float64(entities))
	}
}

// RecordLoad records the outcome of one load operation
func (c *Collector) RecordLoad(err error) {
	c.Loads.WithLabelValues(statusLabel(err)).Inc()
}

// RecordDelete records the outcome of one delete operation
func (c *Collector) RecordDelete(err error) {
	c.Deletes.WithLabelValues(statusLabel(err)).Inc()
}

// ResetForTesting clears the global collector so tests can start fresh
func ResetForTesting() {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()
	globalCollector = nil
}
