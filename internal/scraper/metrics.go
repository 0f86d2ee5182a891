package scraper

import (
	"sort"
	"sync"
	"time"

	"github.com/cheapfinder/backend/internal/model"
)

// RetailerMetrics holds per-retailer counts for a single check run.
type RetailerMetrics struct {
	Retailer      string        `json:"retailer"`
	Attempted     int           `json:"attempted"`
	OK            int           `json:"ok"`
	NotFound      int           `json:"not_found"`
	ParseErrors   int           `json:"parse_errors"`
	Blocked       int           `json:"blocked"`
	NetworkErrors int           `json:"network_errors"`
	LastError     string        `json:"last_error,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Healthy reports whether at least half of the retailer's tasks reached the
// product page. A missing product still proves the scraper works.
func (m RetailerMetrics) Healthy() bool {
	if m.Attempted == 0 {
		return true
	}
	return float64(m.OK+m.NotFound)/float64(m.Attempted) >= 0.5
}

// MetricsCollector collects and aggregates scrape outcomes per retailer.
type MetricsCollector struct {
	mu          sync.RWMutex
	currentRun  map[string]*RetailerMetrics
	lastRun     map[string]*RetailerMetrics
	totalRuns   int
	lastRunTime time.Time
}

// NewMetricsCollector creates a new MetricsCollector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		currentRun: make(map[string]*RetailerMetrics),
		lastRun:    make(map[string]*RetailerMetrics),
	}
}

// Record adds the terminal outcome of one task.
func (mc *MetricsCollector) Record(retailer string, outcome model.Outcome, duration time.Duration, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m, ok := mc.currentRun[retailer]
	if !ok {
		m = &RetailerMetrics{Retailer: retailer}
		mc.currentRun[retailer] = m
	}

	m.Attempted++
	m.Duration += duration
	switch outcome {
	case model.OutcomeOK:
		m.OK++
	case model.OutcomeNotFound:
		m.NotFound++
	case model.OutcomeParseError:
		m.ParseErrors++
	case model.OutcomeBlocked:
		m.Blocked++
	default:
		m.NetworkErrors++
	}
	if err != nil {
		m.LastError = err.Error()
	}
}

// FinishRun marks the current run as complete and moves metrics to lastRun
func (mc *MetricsCollector) FinishRun() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.totalRuns++
	mc.lastRunTime = time.Now()
	mc.lastRun = mc.currentRun
	mc.currentRun = make(map[string]*RetailerMetrics)
}

// GetLastRunMetrics returns metrics from the last completed run
func (mc *MetricsCollector) GetLastRunMetrics() map[string]RetailerMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make(map[string]RetailerMetrics, len(mc.lastRun))
	for k, v := range mc.lastRun {
		result[k] = *v
	}
	return result
}

// HealthStatus represents the health of the price check pipeline
type HealthStatus struct {
	Healthy            bool              `json:"healthy"`
	LastRunTime        time.Time         `json:"last_run_time"`
	NextRunTime        time.Time         `json:"next_run_time"`
	TotalRuns          int               `json:"total_runs"`
	TotalRetailers     int               `json:"total_retailers"`
	HealthyRetailers   int               `json:"healthy_retailers"`
	UnhealthyRetailers []string          `json:"unhealthy_retailers,omitempty"`
	RetailerStatuses   map[string]string `json:"retailer_statuses"`
	Message            string            `json:"message,omitempty"`
}

// GetHealthStatus summarizes the last run. The pipeline is healthy when at
// least 70% of the retailers seen in the last run were healthy.
func (mc *MetricsCollector) GetHealthStatus(nextRunTime time.Time, totalRetailers int) HealthStatus {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	status := HealthStatus{
		LastRunTime:      mc.lastRunTime,
		NextRunTime:      nextRunTime,
		TotalRuns:        mc.totalRuns,
		TotalRetailers:   totalRetailers,
		RetailerStatuses: make(map[string]string),
	}

	if len(mc.lastRun) == 0 {
		status.Healthy = true
		status.Message = "No price check runs recorded yet"
		return status
	}

	var unhealthy []string
	for retailer, m := range mc.lastRun {
		if m.Healthy() {
			status.HealthyRetailers++
			status.RetailerStatuses[retailer] = "healthy"
			continue
		}
		unhealthy = append(unhealthy, retailer)
		status.RetailerStatuses[retailer] = "unhealthy: " + m.LastError
	}
	sort.Strings(unhealthy)
	status.UnhealthyRetailers = unhealthy

	status.Healthy = float64(status.HealthyRetailers)/float64(len(mc.lastRun)) >= 0.7
	if status.Healthy {
		status.Message = "Price checks are operating normally"
	} else {
		status.Message = "Some retailers are experiencing issues"
	}

	return status
}
