package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "clinic"

// WebhookMetrics exposes counters/histograms for scheduling webhook deliveries.
type WebhookMetrics struct {
	deliveries *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	m := &WebhookMetrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Scheduling webhook deliveries by trigger event and outcome",
		}, []string{"trigger", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of scheduling webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"trigger"}),
	}
	register(reg, m.deliveries, m.latency)
	return m
}

func (m *WebhookMetrics) ObserveDelivery(trigger, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(trigger, outcome).Inc()
}

func (m *WebhookMetrics) ObserveLatency(trigger string, seconds float64) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(trigger).Observe(seconds)
}

// AppointmentMetrics counts status transitions.
type AppointmentMetrics struct {
	transitions *prometheus.CounterVec
}

func NewAppointmentMetrics(reg prometheus.Registerer) *AppointmentMetrics {
	m := &AppointmentMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Appointment status transitions by origin status, target status and trigger source",
		}, []string{"from", "to", "source"}),
	}
	register(reg, m.transitions)
	return m
}

func (m *AppointmentMetrics) ObserveTransition(from, to, source string) {
	if m == nil {
		return
	}
	if from == "" {
		from = "none"
	}
	m.transitions.WithLabelValues(from, to, source).Inc()
}

// NotificationMetrics counts outbound notification attempts.
type NotificationMetrics struct {
	sends *prometheus.CounterVec
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	m := &NotificationMetrics{
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sends_total",
			Help:      "Notification sends by template and status",
		}, []string{"template", "status"}),
	}
	register(reg, m.sends)
	return m
}

func (m *NotificationMetrics) ObserveSend(template string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.sends.WithLabelValues(template, status).Inc()
}

// CascadeMetrics tracks user deletion phases and rows removed per collection.
type CascadeMetrics struct {
	phases  *prometheus.CounterVec
	deleted *prometheus.CounterVec
}

func NewCascadeMetrics(reg prometheus.Registerer) *CascadeMetrics {
	m := &CascadeMetrics{
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "phases_total",
			Help:      "Cascade deletion phase results",
		}, []string{"phase", "status"}),
		deleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cascade",
			Name:      "deleted_records_total",
			Help:      "Dependent records removed by cascade deletion",
		}, []string{"collection"}),
	}
	register(reg, m.phases, m.deleted)
	return m
}

func (m *CascadeMetrics) ObservePhase(phase string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.phases.WithLabelValues(phase, status).Inc()
}

func (m *CascadeMetrics) ObserveDeleted(collection string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.deleted.WithLabelValues(collection).Add(float64(n))
}

func register(reg prometheus.Registerer, cs ...prometheus.Collector) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(cs...)
}
