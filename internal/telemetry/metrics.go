// Package telemetry provides Prometheus metrics for the memory engine.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetrievalSourceFailures counts degraded retrieval sources.
	// Labels: source (memstream, casebase, rulesbase)
	RetrievalSourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guidanced",
			Subsystem: "retrieval",
			Name:      "source_failures_total",
			Help:      "Total number of retrieval sources that failed or timed out and were degraded to an empty result",
		},
		[]string{"source"},
	)

	// RetrievalDuration tracks end-to-end context assembly latency.
	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "guidanced",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Duration of full retrieval fan-out in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// ValidationResults counts validator outcomes.
	// Labels: outcome (pass, fail, review), source (rule_based, judge_consensus)
	ValidationResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guidanced",
			Subsystem: "compliance",
			Name:      "validation_results_total",
			Help:      "Total number of validation results by outcome and deciding stage",
		},
		[]string{"outcome", "source"},
	)

	// JudgeAbstentions counts judges that timed out or errored during
	// consensus evaluation.
	JudgeAbstentions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "guidanced",
			Subsystem: "compliance",
			Name:      "judge_abstentions_total",
			Help:      "Total number of judge evaluations that abstained (timeout or error)",
		},
	)

	// RulesLearned counts rules created by the reflection pipeline.
	RulesLearned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "guidanced",
			Subsystem: "learning",
			Name:      "rules_learned_total",
			Help:      "Total number of guidance rules created from failed interactions",
		},
	)

	// CasesExtracted counts cases stored by the success path.
	CasesExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "guidanced",
			Subsystem: "learning",
			Name:      "cases_extracted_total",
			Help:      "Total number of cases extracted from successful interactions",
		},
	)

	// ReflectionTerminations counts reflection runs that ended without a
	// rule. Labels: stage (reflect, validate, refine, judge)
	ReflectionTerminations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guidanced",
			Subsystem: "learning",
			Name:      "reflection_terminations_total",
			Help:      "Total number of reflection runs terminated without producing a rule, by stage",
		},
		[]string{"stage"},
	)
)
