package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PipelineRuns    *prometheus.CounterVec
	RecordsGeocoded *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	APIErrors       prometheus.Counter
	RequestSeconds  *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		PipelineRuns: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "faultmap_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome.",
		}, []string{"outcome"}),
		RecordsGeocoded: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "faultmap_records_geocoded_total",
			Help: "Total number of geocoded fault records by status.",
		}, []string{"status"}),
		CacheLookups: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "faultmap_geocode_cache_lookups_total",
			Help: "Total number of geocode cache lookups by result.",
		}, []string{"result"}),
		APIErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "faultmap_geocode_provider_api_errors_total",
			Help: "Total number of errors received from the geocoding provider API.",
		}),
		RequestSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "faultmap_geocode_provider_request_duration_seconds",
			Help:    "Duration of requests to the geocoding provider API.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}
}
