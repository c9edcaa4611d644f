package prometheus

import (
	"strconv"
	"time"
)

// AppMetrics holds every metric the platform exports.
type AppMetrics struct {
	// HTTP layer
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec
	HTTPActiveRequests  GaugeVec

	// Molecule layer
	MoleculesRegisteredTotal CounterVec
	MoleculeParseFailures    CounterVec
	MoleculeRegistryTotal    GaugeVec
	FingerprintDuration      HistogramVec

	// Screening layer
	ScreeningRunsTotal    CounterVec
	ScreeningRunDuration  HistogramVec
	ScreeningHitCount     HistogramVec
	ScreeningCorpusSize   GaugeVec
	ScreeningQueueDepth   GaugeVec
	ScreeningActiveWorkers GaugeVec
	ScreeningRetries      CounterVec

	// Toxicity layer
	ToxicityTrainDuration   HistogramVec
	ToxicityPredictDuration HistogramVec
	ToxicityPredictionsTotal CounterVec
	ToxicityModelRMSE       GaugeVec

	// Provider layer
	ProviderRequestsTotal   CounterVec
	ProviderRequestDuration HistogramVec
	ProviderRetriesTotal    CounterVec

	// Similarity network
	GraphNodesTotal    GaugeVec
	GraphEdgesTotal    GaugeVec
	GraphQueryDuration HistogramVec

	// Infrastructure
	DBQueryDuration        HistogramVec
	CacheHitsTotal         CounterVec
	CacheMissesTotal       CounterVec
	MessageProcessDuration HistogramVec

	// System health
	HealthCheckStatus GaugeVec
	ErrorsTotal       CounterVec
}

var (
	DefaultHTTPDurationBuckets      = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultScreeningDurationBuckets = []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600}
	DefaultTrainDurationBuckets     = []float64{1, 5, 15, 30, 60, 180, 600, 1800}
	DefaultDBDurationBuckets        = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5}
	DefaultHitCountBuckets          = []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000}
)

// NewAppMetrics registers every platform metric on the collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	m := &AppMetrics{}

	// HTTP
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "path")
	m.HTTPActiveRequests = collector.RegisterGauge("http_active_requests", "Active HTTP requests", "method", "path")

	// Molecule
	m.MoleculesRegisteredTotal = collector.RegisterCounter("molecules_registered_total", "Molecules registered", "source", "status")
	m.MoleculeParseFailures = collector.RegisterCounter("molecule_parse_failures_total", "SMILES parse failures", "source")
	m.MoleculeRegistryTotal = collector.RegisterGauge("molecule_registry_total", "Registered molecules", "store")
	m.FingerprintDuration = collector.RegisterHistogram("fingerprint_duration_seconds", "Fingerprint computation duration", DefaultDBDurationBuckets, "type")

	// Screening
	m.ScreeningRunsTotal = collector.RegisterCounter("screening_runs_total", "Screening runs", "mode", "status")
	m.ScreeningRunDuration = collector.RegisterHistogram("screening_run_duration_seconds", "Screening run duration", DefaultScreeningDurationBuckets, "mode")
	m.ScreeningHitCount = collector.RegisterHistogram("screening_hit_count", "Hits per screening run", DefaultHitCountBuckets, "mode")
	m.ScreeningCorpusSize = collector.RegisterGauge("screening_corpus_size", "Corpus molecules per run mode", "mode")
	m.ScreeningQueueDepth = collector.RegisterGauge("screening_queue_depth", "Pending screening runs", "priority")
	m.ScreeningActiveWorkers = collector.RegisterGauge("screening_active_workers", "Active screening workers", "mode")
	m.ScreeningRetries = collector.RegisterCounter("screening_retries_total", "Screening task retries", "mode", "reason")

	// Toxicity
	m.ToxicityTrainDuration = collector.RegisterHistogram("toxicity_train_duration_seconds", "Model training duration", DefaultTrainDurationBuckets, "model")
	m.ToxicityPredictDuration = collector.RegisterHistogram("toxicity_predict_duration_seconds", "Prediction duration", DefaultDBDurationBuckets, "model")
	m.ToxicityPredictionsTotal = collector.RegisterCounter("toxicity_predictions_total", "Toxicity predictions served", "model", "status")
	m.ToxicityModelRMSE = collector.RegisterGauge("toxicity_model_rmse", "Cross-validated RMSE of the active model", "model")

	// Providers
	m.ProviderRequestsTotal = collector.RegisterCounter("provider_requests_total", "External provider requests", "provider", "operation", "status")
	m.ProviderRequestDuration = collector.RegisterHistogram("provider_request_duration_seconds", "External provider latency", DefaultHTTPDurationBuckets, "provider", "operation")
	m.ProviderRetriesTotal = collector.RegisterCounter("provider_retries_total", "External provider retries", "provider")

	// Similarity network
	m.GraphNodesTotal = collector.RegisterGauge("graph_nodes_total", "Similarity network nodes", "node_type")
	m.GraphEdgesTotal = collector.RegisterGauge("graph_edges_total", "Similarity network edges", "edge_type")
	m.GraphQueryDuration = collector.RegisterHistogram("graph_query_duration_seconds", "Graph query duration", DefaultDBDurationBuckets, "query_type")

	// Infrastructure
	m.DBQueryDuration = collector.RegisterHistogram("db_query_duration_seconds", "Database query duration", DefaultDBDurationBuckets, "db", "operation")
	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Cache misses", "cache")
	m.MessageProcessDuration = collector.RegisterHistogram("mq_process_duration_seconds", "Message processing duration", DefaultHTTPDurationBuckets, "topic")

	// System health
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Health check status (1=up, 0=down)", "component")
	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Total errors", "component", "error_type")

	return m
}

// Helpers

func RecordHTTPRequest(metrics *AppMetrics, method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordRegistration(metrics *AppMetrics, source string, ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	metrics.MoleculesRegisteredTotal.WithLabelValues(source, status).Inc()
}

func RecordScreeningRun(metrics *AppMetrics, mode, status string, duration time.Duration, hits int) {
	metrics.ScreeningRunsTotal.WithLabelValues(mode, status).Inc()
	metrics.ScreeningRunDuration.WithLabelValues(mode).Observe(duration.Seconds())
	metrics.ScreeningHitCount.WithLabelValues(mode).Observe(float64(hits))
}

func RecordProviderCall(metrics *AppMetrics, provider, operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	metrics.ProviderRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	metrics.ProviderRequestDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

func RecordDBQuery(metrics *AppMetrics, db, operation string, duration time.Duration, err error) {
	metrics.DBQueryDuration.WithLabelValues(db, operation).Observe(duration.Seconds())
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues(db, "query_error").Inc()
	}
}

func RecordCacheAccess(metrics *AppMetrics, cache string, hit bool) {
	if hit {
		metrics.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		metrics.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func RecordError(metrics *AppMetrics, component, errorType string) {
	metrics.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
