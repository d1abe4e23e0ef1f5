package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine collectors, registered on the default registry and exposed on
// /metrics alongside the standard Go collectors.
var (
	MatchesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_matches_created_total",
		Help: "Matches created from successful queue pairings.",
	})

	MatchesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_matches_finished_total",
		Help: "Matches finished, by outcome.",
	}, []string{"outcome"}) // "win" or "draw"

	ActiveMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_active_matches",
		Help: "Currently live matches held in the in-memory store.",
	})

	PairingCommitsLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_pairing_commits_lost_total",
		Help: "Pairing attempts abandoned because a candidate left the queue first.",
	})

	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_persistence_failures_total",
		Help: "Best-effort persistence writes that failed during live play.",
	})
)
