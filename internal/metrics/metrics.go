// Package metrics holds the Prometheus collectors shared across the
// discovery pipeline and the API server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ScansTotal counts finished scans by mode and outcome.
	ScansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callboard",
		Name:      "scans_total",
		Help:      "Discovery scans finished, by mode and outcome",
	}, []string{"mode", "outcome"})

	// CandidatesEvaluated counts candidates that completed a relevance check.
	CandidatesEvaluated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "callboard",
		Name:      "candidates_evaluated_total",
		Help:      "Candidate URLs fully evaluated (fetched and relevance-checked)",
	})

	// OpportunitiesAccepted counts drafts accepted by the agent.
	OpportunitiesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "callboard",
		Name:      "opportunities_accepted_total",
		Help:      "Opportunities accepted as drafts by the discovery agent",
	})

	// InferenceRequests counts provider calls by outcome.
	InferenceRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callboard",
		Name:      "inference_requests_total",
		Help:      "Inference provider requests, by provider and outcome",
	}, []string{"provider", "outcome"})

	// CredentialCooldowns counts rate-limit cooldowns applied to API keys.
	CredentialCooldowns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callboard",
		Name:      "credential_cooldowns_total",
		Help:      "API credentials placed on cooldown after rate-limit responses",
	}, []string{"provider"})

	// PageFetches counts proxy-chain fetches by outcome.
	PageFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callboard",
		Name:      "page_fetches_total",
		Help:      "Page fetch attempts through the proxy chain, by outcome",
	}, []string{"outcome"})

	// SearchQueries counts web search queries by outcome.
	SearchQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "callboard",
		Name:      "search_queries_total",
		Help:      "Web search queries issued, by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		ScansTotal,
		CandidatesEvaluated,
		OpportunitiesAccepted,
		InferenceRequests,
		CredentialCooldowns,
		PageFetches,
		SearchQueries,
	)
}
