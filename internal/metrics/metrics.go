package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics содержит все метрики приложения
type Metrics struct {
	logger   *zap.Logger
	registry *prometheus.Registry

	// Счетчики
	commands     *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
	jobs         *prometheus.CounterVec

	// Гистограммы
	jobDuration   *prometheus.HistogramVec
	audioDuration prometheus.Histogram

	// Gauge метрики
	queueLength prometheus.Gauge
	inFlight    prometheus.Gauge
	freeSlots   prometheus.Gauge

	// Мьютекс для thread-safety
	mu sync.RWMutex
}

// New создает новый экземпляр метрик с собственным реестром
func New(logger *zap.Logger) *Metrics {
	m := &Metrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),

		// Счетчики команд протокола
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tts_commands_total",
				Help: "Общее количество принятых команд",
			},
			[]string{"kind"}, // exit, synth_text, synth_csv, synth_setting
		),

		// Счетчики ошибок разбора
		decodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tts_decode_errors_total",
				Help: "Общее количество строк, которые не удалось разобрать",
			},
			[]string{"kind"}, // malformed, unknown_command, source_unavailable, invalid_field
		),

		// Счетчики заданий
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tts_jobs_total",
				Help: "Общее количество заданий синтеза",
			},
			[]string{"status"}, // enqueued, succeeded, failed
		),

		// Гистограмма времени выполнения задания
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tts_job_duration_seconds",
				Help:    "Время выполнения задания синтеза в секундах",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),

		// Гистограмма длительности синтезированной речи
		audioDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tts_audio_duration_seconds",
				Help:    "Длительность синтезированного звука в секундах",
				Buckets: []float64{0.5, 1, 2, 3, 5, 10, 20, 30, 60},
			},
		),

		queueLength: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tts_queue_length",
				Help: "Количество заданий в очереди",
			},
		),

		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tts_jobs_in_flight",
				Help: "Количество выполняющихся заданий",
			},
		),

		freeSlots: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tts_worker_free_slots",
				Help: "Количество свободных слотов пула",
			},
		),
	}

	// Регистрируем все метрики
	m.registry.MustRegister(
		m.commands,
		m.decodeErrors,
		m.jobs,
		m.jobDuration,
		m.audioDuration,
		m.queueLength,
		m.inFlight,
		m.freeSlots,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// IncrementCounter увеличивает счетчик
func (m *Metrics) IncrementCounter(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var counter *prometheus.CounterVec

	switch name {
	case "tts_commands_total":
		counter = m.commands
	case "tts_decode_errors_total":
		counter = m.decodeErrors
	case "tts_jobs_total":
		counter = m.jobs
	default:
		m.logger.Error("неизвестная метрика", zap.String("name", name))
		return
	}

	counter.WithLabelValues(labels...).Inc()
}

// SetGauge устанавливает значение gauge метрики
func (m *Metrics) SetGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var gauge prometheus.Gauge

	switch name {
	case "tts_queue_length":
		gauge = m.queueLength
	case "tts_jobs_in_flight":
		gauge = m.inFlight
	case "tts_worker_free_slots":
		gauge = m.freeSlots
	default:
		m.logger.Error("неизвестная gauge метрика", zap.String("name", name))
		return
	}

	gauge.Set(value)
}

// ObserveHistogram добавляет наблюдение в гистограмму
func (m *Metrics) ObserveHistogram(name string, value float64, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch name {
	case "tts_job_duration_seconds":
		m.jobDuration.WithLabelValues(labels...).Observe(value)
	case "tts_audio_duration_seconds":
		m.audioDuration.Observe(value)
	default:
		m.logger.Error("неизвестная гистограмма", zap.String("name", name))
	}
}

// RecordCommand записывает принятую команду
func (m *Metrics) RecordCommand(kind string) {
	m.IncrementCounter("tts_commands_total", kind)
}

// RecordDecodeError записывает строку, которую не удалось разобрать
func (m *Metrics) RecordDecodeError(kind string) {
	m.IncrementCounter("tts_decode_errors_total", kind)
}

// RecordEnqueued записывает задания, поставленные в очередь
func (m *Metrics) RecordEnqueued(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs.WithLabelValues("enqueued").Add(float64(n))
}

// RecordJob записывает завершенное задание
func (m *Metrics) RecordJob(success bool, seconds float64) {
	status := "succeeded"
	if !success {
		status = "failed"
	}

	m.IncrementCounter("tts_jobs_total", status)
	m.ObserveHistogram("tts_job_duration_seconds", seconds, status)
}

// RecordAudio записывает длительность синтезированного звука
func (m *Metrics) RecordAudio(seconds float64) {
	m.ObserveHistogram("tts_audio_duration_seconds", seconds)
}

// SetPoolState обновляет состояние очереди и пула
func (m *Metrics) SetPoolState(queued, inFlight, free int) {
	m.SetGauge("tts_queue_length", float64(queued))
	m.SetGauge("tts_jobs_in_flight", float64(inFlight))
	m.SetGauge("tts_worker_free_slots", float64(free))
}

// Registry возвращает реестр метрик
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler возвращает HTTP handler для метрик
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
