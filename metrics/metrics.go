// Package metrics exposes the node's operational counters and histograms
// as named Prometheus series, plus OpenCensus spans around each round's
// stages.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/trace"
)

// Diagnostics is the process-wide set of counters and histograms a node
// updates as it runs. All fields are safe for concurrent use.
type Diagnostics struct {
	BadMessages    *prometheus.CounterVec
	RoundDuration  prometheus.Histogram
	SyncAbandons   *prometheus.CounterVec
	RoundsComplete prometheus.Counter
	RoundsAborted  prometheus.Counter
}

// NewDiagnostics registers every series against reg (pass
// prometheus.DefaultRegisterer in production, a fresh Registry in tests).
func NewDiagnostics(reg prometheus.Registerer) *Diagnostics {
	d := &Diagnostics{
		BadMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotpocket",
			Name:      "bad_messages_total",
			Help:      "Peer messages rejected, by reason.",
		}, []string{"reason"}),
		RoundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hotpocket",
			Name:      "round_duration_seconds",
			Help:      "Wall-clock time spent per consensus round.",
			Buckets:   prometheus.DefBuckets,
		}),
		SyncAbandons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotpocket",
			Name:      "sync_abandons_total",
			Help:      "State/log sync subtree requests abandoned after exceeding the resubmission threshold.",
		}, []string{"kind"}),
		RoundsComplete: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotpocket",
			Name:      "rounds_committed_total",
			Help:      "Consensus rounds that reached stage-3 quorum and committed.",
		}),
		RoundsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hotpocket",
			Name:      "rounds_aborted_total",
			Help:      "Consensus rounds that failed to reach stage-3 quorum.",
		}),
	}
	reg.MustRegister(d.BadMessages, d.RoundDuration, d.SyncAbandons, d.RoundsComplete, d.RoundsAborted)
	return d
}

// round-duration OpenCensus measure, registered once at package init.
var roundDurationMeasure = stats.Float64("hotpocket/round_duration_ms", "consensus round duration", stats.UnitMilliseconds)

func init() {
	err := view.Register(&view.View{
		Name:        "hotpocket/round_duration_ms",
		Description: roundDurationMeasure.Description(),
		Measure:     roundDurationMeasure,
		Aggregation: view.Distribution(10, 50, 100, 250, 500, 1000, 2500, 5000),
	})
	if err != nil {
		panic(err)
	}
}

// StartRoundSpan opens an OpenCensus trace span for one consensus round.
func StartRoundSpan(ctx context.Context, seqNo uint64) (context.Context, *trace.Span) {
	ctx, span := trace.StartSpan(ctx, "hotpocket.round")
	span.AddAttributes(trace.Int64Attribute("seq_no", int64(seqNo)))
	return ctx, span
}

// RecordRoundDuration records both the Prometheus histogram and the
// OpenCensus distribution for one round's wall-clock duration in
// milliseconds.
func (d *Diagnostics) RecordRoundDuration(ctx context.Context, ms float64) {
	d.RoundDuration.Observe(ms / 1000)
	stats.Record(ctx, roundDurationMeasure.M(ms))
}
