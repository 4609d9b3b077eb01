package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ExperimentMetrics counts engine decisions and relayed event deliveries. It
// satisfies the abtest-engine Observer and DeliveryObserver ports.
type ExperimentMetrics struct {
	assignments   *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	deliveryDelay *prometheus.HistogramVec
}

// NewExperimentMetrics registers the counters on reg. A nil reg uses the
// process-wide default registerer.
func NewExperimentMetrics(reg prometheus.Registerer) *ExperimentMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &ExperimentMetrics{
		assignments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsfinder",
			Subsystem: "abtest",
			Name:      "assignments_total",
			Help:      "Assignment resolutions by campaign, variant and resolution (existing, created, race_lost, fallback).",
		}, []string{"campaign_id", "variant_id", "resolution"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsfinder",
			Subsystem: "abtest",
			Name:      "outcomes_total",
			Help:      "Recorded outcomes by campaign, variant, success flag and replay flag.",
		}, []string{"campaign_id", "variant_id", "success", "replayed"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsfinder",
			Subsystem: "abtest",
			Name:      "events_delivered_total",
			Help:      "Outbox events consumed from the bus by event type and campaign.",
		}, []string{"event_type", "campaign_id"}),
		deliveryDelay: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "newsfinder",
			Subsystem: "abtest",
			Name:      "event_delivery_lag_seconds",
			Help:      "Time from an event occurring to its consumption from the bus.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"event_type"}),
	}
}

func (m *ExperimentMetrics) AssignmentResolved(campaignID string, variantID string, resolution string) {
	m.assignments.WithLabelValues(campaignID, variantID, resolution).Inc()
}

func (m *ExperimentMetrics) OutcomeRecorded(campaignID string, variantID string, success bool, replayed bool) {
	m.outcomes.WithLabelValues(campaignID, variantID, strconv.FormatBool(success), strconv.FormatBool(replayed)).Inc()
}

func (m *ExperimentMetrics) EventDelivered(eventType string, campaignID string, lag time.Duration) {
	m.deliveries.WithLabelValues(eventType, campaignID).Inc()
	m.deliveryDelay.WithLabelValues(eventType).Observe(lag.Seconds())
}
