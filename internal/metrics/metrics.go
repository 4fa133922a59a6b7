// Package metrics exposes circulation counters and HTTP latency to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrlokans/librapp/internal/circulation"
)

const namespace = "librapp"

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	checkouts       prometheus.Counter
	checkins        prometheus.Counter
	rejections      *prometheus.CounterVec
	finePayments    prometheus.Counter
	finesCollected  prometheus.Counter
	overdueDays     prometheus.Histogram
	requestDuration *prometheus.HistogramVec
}

var _ circulation.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		checkouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Loans created.",
		}),
		checkins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkins_total",
			Help:      "Loans closed.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_rejections_total",
			Help:      "Checkouts refused, by reason.",
		}, []string{"reason"}),
		finePayments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fine_payments_total",
			Help:      "Fine payments recorded.",
		}),
		finesCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fines_collected_cents_total",
			Help:      "Fine amounts settled, in cents. Change handed back is excluded.",
		}),
		overdueDays: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkin_overdue_days",
			Help:      "Days overdue at checkin.",
			Buckets:   []float64{0, 1, 3, 7, 14, 30, 60},
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.checkouts,
		m.checkins,
		m.rejections,
		m.finePayments,
		m.finesCollected,
		m.overdueDays,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) LoanCheckedOut(context.Context, circulation.LoanView) {
	m.checkouts.Inc()
}

func (m *Metrics) LoanCheckedIn(_ context.Context, loan circulation.LoanView) {
	m.checkins.Inc()
	m.overdueDays.Observe(float64(loan.OverdueDays))
}

func (m *Metrics) CheckoutRejected(_ context.Context, kind circulation.Kind) {
	m.rejections.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) FinePaid(_ context.Context, p circulation.PaymentResult) {
	m.finePayments.Inc()
	applied := p.Tendered.Sub(p.Change)
	if applied.IsPositive() {
		m.finesCollected.Add(float64(applied.Shift(2).Round(0).IntPart()))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request latency labelled by the matched route
// template, so path parameters do not explode cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
