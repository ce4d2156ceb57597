package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc/codes"

	"github.com/victornm/prizewheel/internal/errors"
)

const namespace = "prizewheel"

var (
	spinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "spins_total",
		Help:      "Resolved spins.",
	}, []string{"forced", "no_duplicate"})

	spinFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "spin_failures_total",
		Help:      "Spins that could not be resolved, by reason.",
	}, []string{"reason"})

	spinsSettledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "spins_settled_total",
		Help:      "Spins whose reveal fired.",
	})
)

func ObserveSpin(forced, noDuplicate bool) {
	spinsTotal.WithLabelValues(strconv.FormatBool(forced), strconv.FormatBool(noDuplicate)).Inc()
}

func ObserveSpinSettled() {
	spinsSettledTotal.Inc()
}

// ObserveSpinFailure counts a failed spin under its error reason, falling back to the code name.
func ObserveSpinFailure(err error) {
	e := errors.Convert(err)

	reason := e.Reason
	if reason == "" {
		reason = codes.Code(e.Code).String()
	}

	spinFailuresTotal.WithLabelValues(reason).Inc()
}
