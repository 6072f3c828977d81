package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the daemon's Prometheus instruments. Constructed once at
// startup against the process registry; tests pass a fresh registry so
// repeated construction does not collide.
type Metrics struct {
	EventsPublished     *prometheus.CounterVec
	WebhookDeliveries   *prometheus.CounterVec
	WebhooksAbandoned   prometheus.Counter
	LiveSubscribers     prometheus.Gauge
	SubscriberOverflows prometheus.Counter
	CommandDuration     *prometheus.HistogramVec
}

// New registers and returns the metric set.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paynode",
			Name:      "events_published_total",
			Help:      "Events durably appended to the ledger, by kind.",
		}, []string{"kind"}),
		WebhookDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paynode",
			Name:      "webhook_deliveries_total",
			Help:      "Webhook delivery attempts, by outcome.",
		}, []string{"outcome"}),
		WebhooksAbandoned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "paynode",
			Name:      "webhook_abandoned_total",
			Help:      "Deliveries abandoned after exhausting the retry budget.",
		}),
		LiveSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "paynode",
			Name:      "live_subscribers",
			Help:      "Currently connected event stream subscribers.",
		}),
		SubscriberOverflows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "paynode",
			Name:      "subscriber_overflows_total",
			Help:      "Subscribers dropped because their queue overflowed.",
		}),
		CommandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paynode",
			Name:      "command_duration_seconds",
			Help:      "Command handling latency, by command type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
	}
}
