package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
)

type appMetrics struct {
	webhooks      *metrics.WebhookMetrics
	appointments  *metrics.AppointmentMetrics
	notifications *metrics.NotificationMetrics
	cascade       *metrics.CascadeMetrics
}

// setupMetrics registers every collector on a private registry and returns the
// /metrics handler serving it.
func setupMetrics() (http.Handler, *appMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &appMetrics{
		webhooks:      metrics.NewWebhookMetrics(registry),
		appointments:  metrics.NewAppointmentMetrics(registry),
		notifications: metrics.NewNotificationMetrics(registry),
		cascade:       metrics.NewCascadeMetrics(registry),
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}), m
}
