package metrics

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// StatusFunc возвращает текущее состояние диспетчера для /status
type StatusFunc func() any

// Handler обрабатывает HTTP запросы для метрик
type Handler struct {
	metrics *Metrics
	status  StatusFunc
	logger  *zap.Logger
}

// NewHandler создает новый обработчик метрик
func NewHandler(metrics *Metrics, status StatusFunc, logger *zap.Logger) *Handler {
	return &Handler{
		metrics: metrics,
		status:  status,
		logger:  logger,
	}
}

// MetricsHandler возвращает HTTP handler для Prometheus метрик
func (h *Handler) MetricsHandler() http.Handler {
	return h.metrics.Handler()
}

// HealthHandler возвращает статус здоровья сервиса
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","service":"game-tts"}`))
}

// StatusHandler возвращает состояние очереди и пула
func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.status()); err != nil {
		h.logger.Error("ошибка кодирования статуса", zap.Error(err))
	}
}

// Routes регистрирует все обработчики
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h.MetricsHandler())
	mux.HandleFunc("/health", h.HealthHandler)
	mux.HandleFunc("/status", h.StatusHandler)
	return mux
}
