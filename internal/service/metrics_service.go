package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	bookingOps      *prometheus.CounterVec
	slotPlanHits    prometheus.Counter
	slotPlanMisses  prometheus.Counter
	outboundTasks   *prometheus.CounterVec
}

// NewMetricsService registers the API's Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	bookingOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_operations_total",
		Help: "Booking lifecycle operations by outcome",
	}, []string{"operation", "outcome"})

	slotPlanHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slot_plan_cache_hits_total",
		Help: "Slot plan lookups served from cache",
	})

	slotPlanMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slot_plan_cache_misses_total",
		Help: "Slot plan lookups computed from source data",
	})

	outboundTasks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbound_tasks_total",
		Help: "Outbound calendar and notification tasks by outcome",
	}, []string{"queue", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, bookingOps, slotPlanHits, slotPlanMisses, outboundTasks, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		bookingOps:      bookingOps,
		slotPlanHits:    slotPlanHits,
		slotPlanMisses:  slotPlanMisses,
		outboundTasks:   outboundTasks,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordBookingOperation counts one lifecycle operation and its outcome,
// for example ("create", "conflict") or ("cancel", "ok").
func (m *MetricsService) RecordBookingOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookingOps.WithLabelValues(operation, outcome).Inc()
}

// RecordSlotPlanLookup counts a slot plan cache hit or miss.
func (m *MetricsService) RecordSlotPlanLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.slotPlanHits.Inc()
	} else {
		m.slotPlanMisses.Inc()
	}
}

// RecordOutboundTask counts one dispatched side-effect task outcome.
func (m *MetricsService) RecordOutboundTask(queue, outcome string) {
	if m == nil {
		return
	}
	m.outboundTasks.WithLabelValues(queue, outcome).Inc()
}
