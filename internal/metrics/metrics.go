// Package metrics exposes Prometheus instruments for the price check pipeline.
// A nil *Pipeline is valid and records nothing.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config adds constant labels to every series.
type Config struct {
	ServiceName string
	Environment string
}

// Pipeline holds the counters and histograms of one process.
type Pipeline struct {
	scrapes       *prometheus.CounterVec
	scrapeLatency *prometheus.HistogramVec
	retries       *prometheus.CounterVec
	limiterWait   *prometheus.HistogramVec
	penalties     *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	runProducts   *prometheus.CounterVec
	alerts        *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
}

// New registers the pipeline metrics. A nil registerer uses the default one.
func New(registerer prometheus.Registerer, cfg Config) *Pipeline {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "cheapfinder"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	p := &Pipeline{
		scrapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricecheck_scrape_attempts_total",
			Help:        "Price fetch attempts by retailer and outcome.",
			ConstLabels: constLabels,
		}, []string{"retailer", "outcome"}),
		scrapeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pricecheck_scrape_duration_seconds",
			Help:        "Latency of a single price fetch attempt.",
			Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
			ConstLabels: constLabels,
		}, []string{"retailer"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricecheck_scrape_retries_total",
			Help:        "Retried price fetches by retailer and failure kind.",
			ConstLabels: constLabels,
		}, []string{"retailer", "kind"}),
		limiterWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "pricecheck_ratelimit_wait_seconds",
			Help:        "Time spent waiting for a per-domain request slot.",
			Buckets:     []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			ConstLabels: constLabels,
		}, []string{"domain"}),
		penalties: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricecheck_ratelimit_penalties_total",
			Help:        "Backoff penalties applied to a domain after a block.",
			ConstLabels: constLabels,
		}, []string{"domain"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricecheck_runs_total",
			Help:        "Finished check runs by trigger and final state.",
			ConstLabels: constLabels,
		}, []string{"trigger", "state"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "pricecheck_run_duration_seconds",
			Help:        "Wall time of a full check run.",
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 2700, 3600},
			ConstLabels: constLabels,
		}),
		runProducts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricecheck_run_products_total",
			Help:        "Products processed by run result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricecheck_alert_events_total",
			Help:        "Alert events created by kind.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pricecheck_alert_deliveries_total",
			Help:        "Alert delivery outcomes by channel and status.",
			ConstLabels: constLabels,
		}, []string{"channel", "status"}),
	}

	registerer.MustRegister(
		p.scrapes,
		p.scrapeLatency,
		p.retries,
		p.limiterWait,
		p.penalties,
		p.runs,
		p.runDuration,
		p.runProducts,
		p.alerts,
		p.deliveries,
	)
	return p
}

// ObserveScrape records one fetch attempt.
func (p *Pipeline) ObserveScrape(retailer, outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.scrapes.WithLabelValues(retailer, outcome).Inc()
	p.scrapeLatency.WithLabelValues(retailer).Observe(d.Seconds())
}

func (p *Pipeline) ObserveRetry(retailer, kind string) {
	if p == nil {
		return
	}
	p.retries.WithLabelValues(retailer, kind).Inc()
}

func (p *Pipeline) ObserveLimiterWait(domain string, d time.Duration) {
	if p == nil {
		return
	}
	p.limiterWait.WithLabelValues(domain).Observe(d.Seconds())
}

func (p *Pipeline) ObservePenalty(domain string) {
	if p == nil {
		return
	}
	p.penalties.WithLabelValues(domain).Inc()
}

// ObserveRun records a finished run and its per-product counts.
func (p *Pipeline) ObserveRun(trigger, state string, d time.Duration, ok, failed, skipped int) {
	if p == nil {
		return
	}
	p.runs.WithLabelValues(trigger, state).Inc()
	p.runDuration.Observe(d.Seconds())
	p.runProducts.WithLabelValues("ok").Add(float64(ok))
	p.runProducts.WithLabelValues("failed").Add(float64(failed))
	p.runProducts.WithLabelValues("skipped").Add(float64(skipped))
}

func (p *Pipeline) ObserveAlert(kind string) {
	if p == nil {
		return
	}
	p.alerts.WithLabelValues(kind).Inc()
}

func (p *Pipeline) ObserveDelivery(channel, status string) {
	if p == nil {
		return
	}
	p.deliveries.WithLabelValues(channel, status).Inc()
}
