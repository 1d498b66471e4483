package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/pubquiz/internal/errors"
)

const namespace = "pubquiz"

var (
	teamRegistrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "team_registrations_total",
		Help:      "Team registrations by outcome.",
	}, []string{"outcome"})

	scoreSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "score_submissions_total",
		Help:      "Round score submissions by round and outcome.",
	}, []string{"round", "outcome"})

	rollovers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quiz_rollovers_total",
		Help:      "Archive-and-rollover invocations by outcome.",
	}, []string{"outcome"})

	rolloverDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "quiz_rollover_duration_seconds",
		Help:      "Duration of the archive-and-rollover transaction.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	archiveDeletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archive_deletions_total",
		Help:      "Archive deletions by outcome.",
	}, []string{"outcome"})

	leaderboardCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "leaderboard_cache_total",
		Help:      "Leaderboard cache lookups by result.",
	}, []string{"result"})
)

// Outcome labels an operation result: "ok", the error reason, or "error".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}

	e := errors.Convert(err)
	if e.Reason == "" {
		return "error"
	}

	return string(e.Reason)
}

func ObserveTeamRegistration(err error) {
	teamRegistrations.WithLabelValues(Outcome(err)).Inc()
}

func ObserveScoreSubmission(round string, err error) {
	scoreSubmissions.WithLabelValues(round, Outcome(err)).Inc()
}

func ObserveRollover(start time.Time, err error) {
	rollovers.WithLabelValues(Outcome(err)).Inc()
	rolloverDuration.Observe(time.Since(start).Seconds())
}

func ObserveArchiveDeletion(err error) {
	archiveDeletions.WithLabelValues(Outcome(err)).Inc()
}

func ObserveLeaderboardCache(hit bool) {
	if hit {
		leaderboardCache.WithLabelValues("hit").Inc()
		return
	}
	leaderboardCache.WithLabelValues("miss").Inc()
}
