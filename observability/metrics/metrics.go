// Package metrics exposes the TAPLE-domain Prometheus counters: events
// applied, quorum rounds won or lost, evaluation failures, distribution
// pushes, and validation rejections (including the GovernanceVersionTooHigh
// case, since that one specifically signals a node has fallen behind on
// governance). Grounded on the teacher's use of
// github.com/prometheus/client_golang for its own chain metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taple",
		Subsystem: "ledger",
		Name:      "events_applied_total",
		Help:      "Events successfully applied to a subject's chain, by outcome.",
	}, []string{"accepted"})

	QuorumRounds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taple",
		Subsystem: "governance",
		Name:      "quorum_rounds_total",
		Help:      "Quorum checks performed, by stage and result.",
	}, []string{"stage", "result"})

	EvaluationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taple",
		Subsystem: "evaluator",
		Name:      "evaluation_failures_total",
		Help:      "Contract evaluations that threw or returned an invalid state.",
	})

	DistributionPushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taple",
		Subsystem: "distribution",
		Name:      "pushes_total",
		Help:      "Event push attempts to peers, by result.",
	}, []string{"result"})

	ValidationRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taple",
		Subsystem: "validation",
		Name:      "rejections_total",
		Help:      "Validation proofs rejected, by reason.",
	}, []string{"reason"})

	GovernanceVersionTooHigh = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taple",
		Subsystem: "validation",
		Name:      "governance_version_too_high_total",
		Help:      "Validation attempts that found the event's governance version older than this node's known governance version.",
	})
)

func init() {
	prometheus.MustRegister(
		EventsApplied,
		QuorumRounds,
		EvaluationFailures,
		DistributionPushes,
		ValidationRejections,
		GovernanceVersionTooHigh,
	)
}
