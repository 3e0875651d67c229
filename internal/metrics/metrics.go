// Package metrics provides Prometheus metrics for monitoring the scraper.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total requests by endpoint and status.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perchd_requests_total",
			Help: "Total number of requests processed",
		},
		[]string{"endpoint", "status"},
	)

	// RequestDuration tracks request duration by endpoint.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "perchd_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
		},
		[]string{"endpoint"},
	)

	// ActivePages shows pages currently leased from the browser pool.
	ActivePages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perchd_active_pages",
			Help: "Pages currently leased from the browser pool",
		},
	)

	// ActiveScrapes shows scrape operations currently admitted.
	ActiveScrapes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perchd_active_scrapes",
			Help: "Scrape operations currently in flight",
		},
	)

	// PagesAcquired counts total page leases granted.
	PagesAcquired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "perchd_pages_acquired_total",
			Help: "Total page leases granted by the pool",
		},
	)

	// PoolRejections counts admission-gate rejections and slot exhaustions.
	PoolRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perchd_pool_rejections_total",
			Help: "Total pool rejections by reason",
		},
		[]string{"reason"},
	)

	// BrowserRestarts counts browser restarts.
	BrowserRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "perchd_browser_restarts_total",
			Help: "Total browser restarts",
		},
	)

	// AccountsScraped counts account scrapes by outcome.
	AccountsScraped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perchd_accounts_scraped_total",
			Help: "Total account scrapes by outcome",
		},
		[]string{"outcome"},
	)

	// PostsExtracted counts extracted posts.
	PostsExtracted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "perchd_posts_extracted_total",
			Help: "Total posts extracted",
		},
	)

	// MemoryUsageBytes shows current memory usage.
	MemoryUsageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perchd_memory_usage_bytes",
			Help: "Current memory usage in bytes (alloc)",
		},
	)

	// MemorySysBytes shows system memory obtained.
	MemorySysBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perchd_memory_sys_bytes",
			Help: "Total memory obtained from system",
		},
	)

	// GoroutineCount shows current goroutine count.
	GoroutineCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perchd_goroutines",
			Help: "Current number of goroutines",
		},
	)

	// BuildInfo provides build information as labels.
	BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "perchd_build_info",
			Help: "Build information",
		},
		[]string{"version", "go_version"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ActivePages,
		ActiveScrapes,
		PagesAcquired,
		PoolRejections,
		BrowserRestarts,
		AccountsScraped,
		PostsExtracted,
		MemoryUsageBytes,
		MemorySysBytes,
		GoroutineCount,
		BuildInfo,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}

// StartMemoryCollector starts a goroutine that periodically updates memory metrics.
func StartMemoryCollector(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			updateMemoryMetrics()
		case <-stopCh:
			return
		}
	}
}

// updateMemoryMetrics updates memory-related metrics.
func updateMemoryMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	MemoryUsageBytes.Set(float64(m.Alloc))
	MemorySysBytes.Set(float64(m.Sys))
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordRequest records metrics for a completed request.
func RecordRequest(endpoint, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(endpoint, status).Inc()
	RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordAccountScrape records one account scrape outcome.
func RecordAccountScrape(outcome string, posts int) {
	AccountsScraped.WithLabelValues(outcome).Inc()
	if posts > 0 {
		PostsExtracted.Add(float64(posts))
	}
}

// UpdatePoolMetrics updates browser pool gauges from a stats snapshot.
func UpdatePoolMetrics(activePages, activeScrapes int) {
	ActivePages.Set(float64(activePages))
	ActiveScrapes.Set(float64(activeScrapes))
}
