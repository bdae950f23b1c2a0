package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Sync counts document writes, push deliveries and insight requests. A nil
// *Sync is valid and records nothing.
type Sync struct {
	saves      *prometheus.CounterVec
	broadcasts prometheus.Counter
	pushes     prometheus.Counter
	insights   *prometheus.CounterVec
}

func NewSync(reg prometheus.Registerer) *Sync {
	if reg == nil {
		return nil
	}
	saves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "packwise_trip_saves_total",
		Help: "Trip document writes by target and outcome.",
	}, []string{"target", "outcome"})
	broadcasts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "packwise_trip_broadcasts_total",
		Help: "Trip documents pushed to subscribers.",
	})
	pushes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "packwise_trip_pushes_applied_total",
		Help: "Pushed trip documents applied by client sessions.",
	})
	insights := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "packwise_insight_requests_total",
		Help: "Insight generation requests by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(saves, broadcasts, pushes, insights)
	return &Sync{saves: saves, broadcasts: broadcasts, pushes: pushes, insights: insights}
}

func (s *Sync) Save(target string, err error) {
	if s == nil {
		return
	}
	s.saves.WithLabelValues(normalizeLabel(target), outcome(err)).Inc()
}

func (s *Sync) Broadcast() {
	if s == nil {
		return
	}
	s.broadcasts.Inc()
}

func (s *Sync) PushApplied() {
	if s == nil {
		return
	}
	s.pushes.Inc()
}

func (s *Sync) Insight(err error) {
	if s == nil {
		return
	}
	s.insights.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}
