package flow

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Signing protocol metrics
var (
	mFlowsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgerflow",
		Subsystem: "flow",
		Name:      "started_total",
		Help:      "Number of protocol instances started",
	}, []string{"role", "command"})
	mFlowsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgerflow",
		Subsystem: "flow",
		Name:      "finished_total",
		Help:      "Number of protocol instances that reached a terminal state",
	}, []string{"role", "outcome"})
	mSignatureWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ledgerflow",
		Subsystem: "flow",
		Name:      "signature_wait_seconds",
		Help:      "Time spent collecting counterparty signatures",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})
	mActiveResponders = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledgerflow",
		Subsystem: "flow",
		Name:      "active_responders",
		Help:      "Number of responder instances in progress",
	})
)

// MetricsObserver counts terminal states by role and outcome.
var MetricsObserver Observer = ObserverFunc(countOutcome)

func countOutcome(_ context.Context, ev FlowEvent) {
	switch ev.State {
	case InitiatorDone.String():
		mFlowsFinished.WithLabelValues(ev.Role, "done").Inc()
	case InitiatorFailed.String():
		mFlowsFinished.WithLabelValues(ev.Role, "failed").Inc()
	}
}
