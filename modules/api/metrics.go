package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh outcomes reported to an Observer.
const (
	RefreshSucceeded = "succeeded"
	RefreshRejected  = "rejected"
	RefreshErrored   = "errored"
	RefreshShared    = "shared"
)

// Observer receives client metrics.
type Observer interface {
	ObserveRequest(method string, status int, d time.Duration)
	RecordRefresh(result string)
	RecordRetry()
	RecordLogout()
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, int, time.Duration) {}
func (nopObserver) RecordRefresh(string)                      {}
func (nopObserver) RecordRetry()                              {}
func (nopObserver) RecordLogout()                             {}

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_client_requests_total",
		Help: "HTTP requests sent to the Remote API, by method and status code (0 = transport failure)",
	}, []string{"method", "code"})
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_client_request_duration_seconds",
		Help:    "Latency of HTTP requests sent to the Remote API",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_client_refresh_total",
		Help: "Token refresh attempts by outcome",
	}, []string{"result"})
	retryTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_client_retry_total",
		Help: "Requests resent after a successful refresh",
	})
	logoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_client_forced_logout_total",
		Help: "Sessions ended because a refresh was impossible or rejected",
	})
)

type prometheusObserver struct{}

// NewPrometheusObserver reports to the default Prometheus registry.
func NewPrometheusObserver() Observer {
	return prometheusObserver{}
}

func (prometheusObserver) ObserveRequest(method string, status int, d time.Duration) {
	requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (prometheusObserver) RecordRefresh(result string) {
	refreshTotal.WithLabelValues(result).Inc()
}

func (prometheusObserver) RecordRetry() {
	retryTotal.Inc()
}

func (prometheusObserver) RecordLogout() {
	logoutTotal.Inc()
}
