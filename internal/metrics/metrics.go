package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	// Gateway metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Account sequence metrics
	accountRuns    *prometheus.CounterVec
	accountsActive prometheus.Gauge
	tasksTotal     *prometheus.CounterVec
	farmStatus     *prometheus.CounterVec
	boostClaimed   prometheus.Counter

	// Scheduler metrics
	roundsTotal    prometheus.Counter
	roundDuration  prometheus.Histogram
	nextRoundDelay prometheus.Gauge

	// API metrics
	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
}

// NewCollector registers every metric on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests. A nil *Collector records
// nothing.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	c := &Collector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of remote request attempts",
			},
			[]string{"method", "result"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Remote request attempt duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method"},
		),
		accountRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "account_runs_total",
				Help:      "Total number of account sequences by result",
			},
			[]string{"result"},
		),
		accountsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "accounts_active",
				Help:      "Account sequences currently running",
			},
		),
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total number of popit tasks by outcome",
			},
			[]string{"outcome"},
		),
		farmStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "farm_status_total",
				Help:      "Farm states observed or produced",
			},
			[]string{"status"},
		),
		boostClaimed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "boost_claimed_total",
				Help:      "Boost claimed from unclaimed rewards and farms",
			},
		),
		roundsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rounds_total",
				Help:      "Total number of completed rounds",
			},
		),
		roundDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "round_duration_seconds",
				Help:      "Duration of a full round in seconds",
				Buckets:   []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),
		nextRoundDelay: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "next_round_delay_seconds",
				Help:      "Delay scheduled before the next round",
			},
		),
		apiRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of status API requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		apiDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "Status API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}

	return c
}

func (c *Collector) RecordRequest(method string, success bool, seconds float64) {
	if c == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	c.requestsTotal.WithLabelValues(method, result).Inc()
	c.requestDuration.WithLabelValues(method).Observe(seconds)
}

func (c *Collector) RecordAccountRun(success bool) {
	if c == nil {
		return
	}
	if success {
		c.accountRuns.WithLabelValues("success").Inc()
	} else {
		c.accountRuns.WithLabelValues("failure").Inc()
	}
}

func (c *Collector) AccountStarted() {
	if c == nil {
		return
	}
	c.accountsActive.Inc()
}

func (c *Collector) AccountFinished() {
	if c == nil {
		return
	}
	c.accountsActive.Dec()
}

func (c *Collector) RecordTasks(executed, skipped, failed int) {
	if c == nil {
		return
	}
	c.tasksTotal.WithLabelValues("executed").Add(float64(executed))
	c.tasksTotal.WithLabelValues("skipped").Add(float64(skipped))
	c.tasksTotal.WithLabelValues("failed").Add(float64(failed))
}

func (c *Collector) RecordFarmStatus(status string) {
	if c == nil {
		return
	}
	c.farmStatus.WithLabelValues(status).Inc()
}

func (c *Collector) RecordBoostClaimed(amount float64) {
	if c == nil {
		return
	}
	if amount > 0 {
		c.boostClaimed.Add(amount)
	}
}

func (c *Collector) RecordRound(seconds float64, nextDelaySeconds int) {
	if c == nil {
		return
	}
	c.roundsTotal.Inc()
	c.roundDuration.Observe(seconds)
	c.nextRoundDelay.Set(float64(nextDelaySeconds))
}

func (c *Collector) RecordAPIRequest(method, endpoint, status string) {
	if c == nil {
		return
	}
	c.apiRequests.WithLabelValues(method, endpoint, status).Inc()
}

func (c *Collector) RecordAPIDuration(method, endpoint string, seconds float64) {
	if c == nil {
		return
	}
	c.apiDuration.WithLabelValues(method, endpoint).Observe(seconds)
}
