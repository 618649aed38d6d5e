package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ledger_listener"

// Collectors holds the service's prometheus collectors. A nil *Collectors is a no-op.
type Collectors struct {
	fetchTotal    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	priceTotal    *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Balance fetches by venue and outcome.",
		}, []string{"venue", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Balance fetch latency per venue, retries included.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"venue"}),
		priceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_fetch_total",
			Help:      "Price feed requests by outcome (fresh, last_known, none, disabled).",
		}, []string{"outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	reg.MustRegister(c.fetchTotal, c.fetchDuration, c.priceTotal, c.httpDuration)
	return c
}

// ObserveFetch records one settled gateway call
func (c *Collectors) ObserveFetch(venue string, ok bool, d time.Duration) {
	if c == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	c.fetchTotal.WithLabelValues(venue, outcome).Inc()
	c.fetchDuration.WithLabelValues(venue).Observe(d.Seconds())
}

// ObservePrice records the outcome of one price request
func (c *Collectors) ObservePrice(outcome string) {
	if c == nil {
		return
	}
	c.priceTotal.WithLabelValues(outcome).Inc()
}

// ObserveRequest records one served HTTP request
func (c *Collectors) ObserveRequest(route, method string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}
