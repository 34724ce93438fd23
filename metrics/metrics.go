package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/glubean/runcore/types"
)

const (
	MetricsNamespace = "runcore"
)

var (
	Debug          bool = true
	terminalStates      = []types.RunState{
		types.StatePassed, types.StateFailed, types.StateSkipped,
		types.StateErrored, types.StateTimeout,
	}
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of runner dispatches by terminal state",
	}, []string{
		"task",
		"run_id",
		"state",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the most recent run per task",
	}, []string{
		"task",
		"run_id",
	})

	staleArtifactsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "stale_artifacts_ignored_total",
		Help:      "Count of artifact writes rejected by the correlation check",
	})

	debugSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "debug_sessions_total",
		Help:      "Count of debug sessions by end reason",
	}, []string{
		"reason",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordRun(task string, runID string, state types.RunState, duration time.Duration) {
	if !isTerminalState(state) {
		log.Error("RecordRun - non-terminal state", "state", state)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "runs_total",
			"task", task,
			"run_id", runID,
			"state", state,
			"duration", duration)
	}
	runsTotal.WithLabelValues(task, runID, string(state)).Inc()
	runDuration.WithLabelValues(task, runID).Set(duration.Seconds())
}

func RecordStaleArtifact() {
	if Debug {
		log.Debug("metric inc", "m", "stale_artifacts_ignored_total")
	}
	staleArtifactsTotal.Inc()
}

func RecordDebugSessionEnd(reason string) {
	if Debug {
		log.Debug("metric inc", "m", "debug_sessions_total", "reason", reason)
	}
	debugSessionsTotal.WithLabelValues(reason).Inc()
}

func isTerminalState(state types.RunState) bool {
	return slices.Contains(terminalStates, state)
}
