package jdoc

import (
	"github.com/drpcorg/jdoc/jdoc_errors"
	"github.com/drpcorg/jdoc/oplog"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what mutation contexts do. A nil *Metrics is valid
// and counts nothing.
type Metrics struct {
	ops     *prometheus.CounterVec
	patches prometheus.Counter
	elided  prometheus.Counter
	faults  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg,
// unless reg is nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jdoc",
			Name:      "ops_total",
			Help:      "Operations emitted, by action",
		}, []string{"action"}),
		patches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jdoc",
			Name:      "patches_total",
			Help:      "Patches handed to the applier and accepted",
		}),
		elided: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jdoc",
			Name:      "elided_total",
			Help:      "Mutation calls that changed nothing and were skipped",
		}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jdoc",
			Name:      "faults_total",
			Help:      "Aborted mutation calls, by fault kind",
		}, []string{"kind"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.ops, m.patches, m.elided, m.faults} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) op(action oplog.Action, n int) {
	if m != nil && n > 0 {
		m.ops.WithLabelValues(action.String()).Add(float64(n))
	}
}

func (m *Metrics) patch() {
	if m != nil {
		m.patches.Inc()
	}
}

func (m *Metrics) elide() {
	if m != nil {
		m.elided.Inc()
	}
}

func (m *Metrics) fault(err error) {
	if m != nil {
		m.faults.WithLabelValues(jdoc_errors.Kind(err)).Inc()
	}
}
