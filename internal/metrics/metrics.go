package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sessiongate"

var (
	// DecisionsTotal counts connection verdicts by mode and outcome.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Connection verdicts by mode, outcome, and reason.",
	}, []string{"mode", "outcome", "reason"})

	// RebuildsTotal counts ruleset rebuild attempts by trigger and status.
	RebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ruleset_rebuilds_total",
		Help:      "Ruleset rebuild attempts by trigger and status.",
	}, []string{"trigger", "status"})

	// RulesetSize tracks the current number of entries per matcher field.
	RulesetSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ruleset_size",
		Help:      "Entries in the current ruleset per matcher field.",
	}, []string{"matcher"})

	// MutationsTotal counts rule create/delete requests by action and status.
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rule_mutations_total",
		Help:      "Rule create/delete requests by action and status.",
	}, []string{"action", "status"})

	// ExpiryLookupFailures counts failed expiry-suffix queries.
	ExpiryLookupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "expiry_lookup_failures_total",
		Help:      "Expiry-suffix queries that failed and were omitted.",
	})

	// JobsEnqueued counts mutation jobs placed into the worker channel.
	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_enqueued_total",
		Help:      "Mutation jobs placed into the worker channel.",
	}, []string{"action"})

	// JobsDropped counts mutation jobs discarded without a store write.
	JobsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_dropped_total",
		Help:      "Mutation jobs discarded without a store write.",
	}, []string{"reason"})

	// JobsProcessed counts worker completions.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_processed_total",
		Help:      "Worker job completions.",
	}, []string{"action", "status"})

	// WorkerQueueDepth tracks the current mutation job channel length.
	WorkerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_queue_depth",
		Help:      "Current mutation job channel buffer depth.",
	})

	// CacheSizeBytes tracks the bbolt snapshot cache file size.
	CacheSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_size_bytes",
		Help:      "bbolt snapshot cache on-disk size in bytes.",
	})

	// BusPublished counts bus messages published per topic.
	BusPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_published_total",
		Help:      "Bus messages published per topic.",
	}, []string{"topic"})
)
