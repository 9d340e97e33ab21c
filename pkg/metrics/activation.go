package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

/*
ActivationMetrics tracks the spreading activation engine. Counters are kept
twice: as plain fields for the snapshot map handed to tools and the CLI, and as
prometheus collectors on a private registry for scraping.
*/
type ActivationMetrics struct {
	mu sync.RWMutex

	// Activation metrics
	TotalActivations   int64
	ExpandedNodes      int64
	ActivatedNodes     int64
	CrossModalTriggers int64
	ActivationTime     time.Duration

	// Prefetch metrics
	PrefetchedNodes int64
	PrefetchHits    int64
	CacheEvictions  int64

	registry    *prometheus.Registry
	activations prometheus.Counter
	expanded    prometheus.Counter
	activated   prometheus.Counter
	crossModal  prometheus.Counter
	prefetched  prometheus.Counter
	hits        prometheus.Counter
	evictions   prometheus.Counter
	duration    prometheus.Histogram
}

// NewActivationMetrics creates a new ActivationMetrics instance
func NewActivationMetrics() *ActivationMetrics {
	m := &ActivationMetrics{
		registry: prometheus.NewRegistry(),
		activations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall", Subsystem: "activation", Name: "runs_total",
			Help: "Spreading activation invocations.",
		}),
		expanded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall", Subsystem: "activation", Name: "expanded_nodes_total",
			Help: "Nodes expanded during spreading activation.",
		}),
		activated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall", Subsystem: "activation", Name: "activated_nodes_total",
			Help: "Nodes returned above the activation threshold.",
		}),
		crossModal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall", Subsystem: "activation", Name: "cross_modal_total",
			Help: "Cross-modal vector lookups triggered by highly activated nodes.",
		}),
		prefetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall", Subsystem: "prefetch", Name: "nodes_total",
			Help: "Nodes placed in the prefetch cache by priming.",
		}),
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall", Subsystem: "prefetch", Name: "hits_total",
			Help: "Prefetched nodes later used by a retrieval.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "recall", Subsystem: "prefetch", Name: "evictions_total",
			Help: "Entries evicted from the prefetch cache.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "recall", Subsystem: "activation", Name: "duration_seconds",
			Help:    "Spreading activation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}

	m.registry.MustRegister(
		m.activations, m.expanded, m.activated, m.crossModal,
		m.prefetched, m.hits, m.evictions, m.duration,
	)

	return m
}

// Registry exposes the collectors for an HTTP handler.
func (m *ActivationMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordActivation records one spreading activation run
func (m *ActivationMetrics) RecordActivation(expanded, activated, crossModal int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalActivations++
	m.ExpandedNodes += int64(expanded)
	m.ActivatedNodes += int64(activated)
	m.CrossModalTriggers += int64(crossModal)
	m.ActivationTime += duration

	m.activations.Inc()
	m.expanded.Add(float64(expanded))
	m.activated.Add(float64(activated))
	m.crossModal.Add(float64(crossModal))
	m.duration.Observe(duration.Seconds())
}

// RecordPrefetch records nodes placed in the cache by a priming run
func (m *ActivationMetrics) RecordPrefetch(prefetched int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PrefetchedNodes += int64(prefetched)
	m.prefetched.Add(float64(prefetched))
}

// RecordHits records prefetched nodes that a retrieval went on to use
func (m *ActivationMetrics) RecordHits(hits int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PrefetchHits += int64(hits)
	m.hits.Add(float64(hits))
}

func (m *ActivationMetrics) RecordEviction(evicted int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CacheEvictions += int64(evicted)
	m.evictions.Add(float64(evicted))
}

// GetMetrics returns a snapshot of the current metrics
func (m *ActivationMetrics) GetMetrics() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var avg, hitRate float64

	if m.TotalActivations > 0 {
		avg = m.ActivationTime.Seconds() / float64(m.TotalActivations)
	}

	if m.PrefetchedNodes > 0 {
		hitRate = float64(m.PrefetchHits) / float64(m.PrefetchedNodes)
	}

	return map[string]any{
		"total_activations":    m.TotalActivations,
		"expanded_nodes":       m.ExpandedNodes,
		"activated_nodes":      m.ActivatedNodes,
		"cross_modal_triggers": m.CrossModalTriggers,
		"avg_activation_time":  avg,
		"prefetched_nodes":     m.PrefetchedNodes,
		"prefetch_hits":        m.PrefetchHits,
		"prefetch_hit_rate":    hitRate,
		"cache_evictions":      m.CacheEvictions,
	}
}
