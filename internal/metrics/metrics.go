package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sink — единая точка сбора метрик роутера. Создается явно в main и
// передается компонентам как зависимость, никаких глобальных синглтонов.
type Sink struct {
	// Latency: полный цикл обработки одного входящего сообщения
	IngestDuration *prometheus.HistogramVec

	// Traffic: исходы пайплайна по кодам (ACCEPTED, AGENT_NOT_FOUND, ...)
	IngestOutcomes *prometheus.CounterVec

	// Операции каталога: длительность + статус (success/error)
	DirectoryOpDuration *prometheus.HistogramVec

	// Кэш резолва: hit / negative_hit / miss
	CacheEvents *prometheus.CounterVec

	// Ошибки публикации в брокер
	PublishErrors *prometheus.CounterVec

	// Health-репорты агентов по статусу (healthy/unhealthy)
	HealthReports *prometheus.CounterVec
}

// NewSink регистрирует коллекторы в переданном Registerer.
// Null Object Pattern: если reg == nil, используется приватный реестр —
// юнит-тесты получают изолированный Sink без общего состояния.
func NewSink(reg prometheus.Registerer) *Sink {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Sink{
		IngestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "router_ingest_duration_seconds",
			Help:    "Histogram of message ingestion latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),

		IngestOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "router_ingest_outcomes_total",
			Help: "Total number of ingestion attempts by terminal outcome.",
		}, []string{"outcome"}),

		DirectoryOpDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "router_directory_op_duration_seconds",
			Help:    "Histogram of CAMS directory operation latencies.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"op", "status"}),

		CacheEvents: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "router_directory_cache_events_total",
			Help: "Directory cache lookups by result.",
		}, []string{"result"}), // hit, negative_hit, miss

		PublishErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "router_publish_errors_total",
			Help: "Total number of failed broker publishes.",
		}, []string{"topic"}),

		HealthReports: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "router_agent_health_reports_total",
			Help: "Agent health reports by reported status.",
		}, []string{"health_status"}),
	}
}
