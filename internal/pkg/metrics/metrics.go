package metrics

import (
	"time"

	"github.com/labstack/echo-contrib/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
)

// See the init func for proper descriptions and prometheus names!
// In case you add a metric here later, make sure to include it in the
// MetricList method or you'll going to have a bad time.
var (
	metrics struct {
		startTime             *prometheus.Metric
		availableEndpoints    *prometheus.Metric
		dispatchRequestsCnt   *prometheus.Metric
		endpointAttemptsCnt   *prometheus.Metric
		endpointResponseTime  *prometheus.Metric
		dispatchLatency       *prometheus.Metric
		dispatchRetries       *prometheus.Metric
		httpResponsesTotalCnt *prometheus.Metric
	}

	metricList []*prometheus.Metric

	latencyBuckets  = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}
	attemptsBuckets = []float64{0, 1, 2, 3, 4, 5, 8}
)

// Needed by echo-contrib so echo can register and collect these metrics
func MetricList() []*prometheus.Metric {
	return metricList
}

// Creates and populates the metric definitions
// This is where all the prometheus metrics, names and labels are specified
func init() {
	initMetric(&metrics.startTime, newGauge("startTime", "start_time", "gateway start time"))
	initMetric(&metrics.availableEndpoints, newGauge("availableEndpoints", "available_endpoints", "endpoints not cooling down"))
	initMetric(&metrics.dispatchRequestsCnt, newCounter("dispatchRequestsCnt", "dispatch_requests",
		"dispatched rpc calls by outcome", []string{"method", "outcome"}))
	initMetric(&metrics.endpointAttemptsCnt, newCounter("endpointAttemptsCnt", "endpoint_attempts",
		"upstream attempts by endpoint and outcome", []string{"endpoint", "outcome"}))
	initMetric(&metrics.endpointResponseTime, newHistogram("endpointResponseTime", "endpoint_response_time",
		"the time it took to fetch data from an endpoint", []string{"endpoint"}, latencyBuckets))
	initMetric(&metrics.dispatchLatency, newHistogram("dispatchLatency", "dispatch_latency",
		"the time it took to dispatch the call", []string{"method", "cached"}, latencyBuckets))
	initMetric(&metrics.dispatchRetries, newHistogram("dispatchRetries", "dispatch_retries",
		"failed attempts before the final outcome", []string{"method"}, attemptsBuckets))
	initMetric(&metrics.httpResponsesTotalCnt, newCounter("httpResponsesTotalCnt", "http_responses_total",
		"http responses by method and success", []string{"method", "success"}))
}

func initMetric(dest **prometheus.Metric, metric *prometheus.Metric) {
	*dest = metric
	metricList = append(metricList, metric)
}

// collectors are nil until echo-contrib registers them, e.g. in unit tests
func counterVec(m *prometheus.Metric) (*prom.CounterVec, bool) {
	c, ok := m.MetricCollector.(*prom.CounterVec)
	return c, ok
}

func histogramVec(m *prometheus.Metric) (*prom.HistogramVec, bool) {
	h, ok := m.MetricCollector.(*prom.HistogramVec)
	return h, ok
}

func gauge(m *prometheus.Metric) (prom.Gauge, bool) {
	g, ok := m.MetricCollector.(prom.Gauge)
	return g, ok
}

func InitStartTime() {
	if g, ok := gauge(metrics.startTime); ok {
		g.Set(float64(time.Now().UTC().Unix()))
	}
}

func ObserveAvailableEndpoints(n int) {
	if g, ok := gauge(metrics.availableEndpoints); ok {
		g.Set(float64(n))
	}
}

func IncDispatchRequestsCnt(method, outcome string) {
	if c, ok := counterVec(metrics.dispatchRequestsCnt); ok {
		c.WithLabelValues(methodLabel(method), outcome).Inc()
	}
}

func IncEndpointAttemptsCnt(endpoint, outcome string) {
	if c, ok := counterVec(metrics.endpointAttemptsCnt); ok {
		c.WithLabelValues(endpoint, outcome).Inc()
	}
}

func ObserveEndpointResponseTime(endpoint string, d time.Duration) {
	if h, ok := histogramVec(metrics.endpointResponseTime); ok {
		h.WithLabelValues(endpoint).Observe(float64(d.Milliseconds()))
	}
}

func ObserveDispatchLatency(method string, cached bool, d time.Duration) {
	if h, ok := histogramVec(metrics.dispatchLatency); ok {
		h.WithLabelValues(methodLabel(method), boolLabel(cached)).Observe(float64(d.Milliseconds()))
	}
}

func ObserveDispatchRetries(method string, retries int) {
	if h, ok := histogramVec(metrics.dispatchRetries); ok {
		h.WithLabelValues(methodLabel(method)).Observe(float64(retries))
	}
}

func IncHttpResponsesTotalCnt(method string, success bool) {
	if c, ok := counterVec(metrics.httpResponsesTotalCnt); ok {
		c.WithLabelValues(methodLabel(method), boolLabel(success)).Inc()
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}

	return "false"
}
