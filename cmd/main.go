package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"game-tts/internal/audio"
	"game-tts/internal/command"
	"game-tts/internal/config"
	"game-tts/internal/dispatcher"
	"game-tts/internal/intake"
	"game-tts/internal/jobs"
	"game-tts/internal/metrics"
	"game-tts/internal/queue"
	"game-tts/internal/scheduler"
	"game-tts/internal/store"
	"game-tts/internal/tracker"
	"game-tts/internal/tts"
	"game-tts/internal/worker"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	logger, err := initLogger(&cfg.App)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("запуск сервиса синтеза речи",
		zap.Int("max_workers", cfg.Dispatcher.MaxWorkers),
		zap.String("output_format", cfg.Output.Format),
		zap.String("history_driver", cfg.History.Driver))

	// Сигналы переводят диспетчер в режим завершения
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	synthesizer := initSynthesizer(sigCtx, cfg, logger)

	// Сохранение аудио
	var converter *audio.Converter
	if cfg.Output.Format == audio.FormatOGG {
		converter = audio.NewConverter(cfg.Output.FFmpegPath, logger)
		if err := converter.Available(); err != nil {
			logger.Warn("FFmpeg недоступен, задания будут завершаться ошибкой", zap.Error(err))
		}
	}
	writer, err := audio.NewWriter(cfg.Output.Dir, cfg.Output.Format, cfg.Output.SampleRate, converter, logger)
	if err != nil {
		logger.Fatal("ошибка инициализации выходного каталога", zap.Error(err))
	}
	logger.Info("аудио сохраняется в каталог",
		zap.String("output_dir", writer.Dir()),
		zap.String("format", writer.Format()))

	// История заданий необязательна
	history, err := store.Open(sigCtx, cfg, logger)
	if err != nil {
		logger.Error("история заданий недоступна, продолжаем без неё", zap.Error(err))
	}
	if history != nil {
		defer history.Close()
	}

	// Инициализация метрик
	metricsSystem := metrics.New(logger)

	// Сборка конвейера
	jobQueue := queue.New()
	completions := tracker.New(logger)
	pool := worker.NewPool(cfg.Dispatcher.MaxWorkers, synthesizer, writer, cfg.Synthesis.SpeechParams(), completions, logger)
	replies := dispatcher.NewJSONReplyWriter(os.Stdout)

	var recorder dispatcher.Recorder
	if history != nil {
		recorder = history
	}
	disp := dispatcher.New(jobQueue, pool, completions, replies, recorder, metricsSystem, logger)

	decoder := command.NewDecoder(command.NewCSVBatchReader(logger), cfg.Dispatcher.SpeakerCount, logger)
	listener := intake.NewListener(decoder, jobs.NewFactory(), disp, replies, metricsSystem, logger)

	// Фоновые задачи обслуживания
	statsScheduler := scheduler.NewScheduler(logger)
	statsScheduler.AddJob("stats_report", scheduler.NewStatsReportJob(disp, logger))

	cleanupScheduler := scheduler.NewScheduler(logger)
	if history != nil && cfg.History.RetentionDays > 0 {
		retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		cleanupScheduler.AddJob("history_cleanup", scheduler.NewHistoryCleanupJob(history, retention, logger))
	}

	// Фоновые горутины живут, пока работает диспетчер
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancelRun()
		return disp.Run(sigCtx)
	})

	if cfg.App.MetricsEnabled {
		handler := metrics.NewHandler(metricsSystem, func() any { return disp.Snapshot() }, logger)
		g.Go(func() error {
			return startMetricsServer(gctx, cfg.App.Port, handler, logger)
		})
	}

	g.Go(func() error {
		statsScheduler.Start(gctx, cfg.Dispatcher.StatsPeriod)
		return nil
	})
	g.Go(func() error {
		cleanupScheduler.Start(gctx, cfg.History.CleanupInterval)
		return nil
	})

	// Чтение stdin может блокироваться, поэтому вне группы
	go func() {
		if err := listener.Run(sigCtx, os.Stdin); err != nil {
			logger.Error("ошибка чтения команд", zap.Error(err))
		}
	}()

	logger.Info("сервис запущен и ожидает команды")

	if err := g.Wait(); err != nil {
		logger.Error("сервис завершился с ошибкой", zap.Error(err))
	}
	pool.Wait()

	logger.Info("сервис завершен", zap.Any("stats", disp.Snapshot()))
}

// initLogger инициализирует логгер.
// stdout занят ответами, поэтому логи идут в stderr и файлы.
func initLogger(app *config.AppConfig) (*zap.Logger, error) {
	var cfg zap.Config
	if app.IsDevelopment() {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = app.GetLogLevel()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	for _, path := range []string{app.LogFile, app.ErrorLogFile} {
		if path == "" {
			continue
		}
		// Создаем директорию для логов если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ошибка создания директории логов: %w", err)
		}
	}
	if app.LogFile != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, app.LogFile)
	}
	if app.ErrorLogFile != "" {
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, app.ErrorLogFile)
	}

	return cfg.Build()
}

// initSynthesizer проверяет сервис синтеза и при недоступности переходит в деградированный режим
func initSynthesizer(ctx context.Context, cfg *config.Config, logger *zap.Logger) tts.Synthesizer {
	service := tts.NewHTTPService(logger, cfg.Synthesis.BaseURL, cfg.Synthesis.Timeout)

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := service.HealthCheck(checkCtx); err != nil {
		logger.Error("сервис синтеза недоступен, задания будут завершаться ошибкой",
			zap.String("base_url", cfg.Synthesis.BaseURL),
			zap.Error(err))
		return tts.Unavailable{Cause: err}
	}

	logger.Info("сервис синтеза доступен", zap.String("base_url", cfg.Synthesis.BaseURL))
	return service
}

// startMetricsServer запускает HTTP сервер для метрик и состояния
func startMetricsServer(ctx context.Context, port int, handler *metrics.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP сервер метрик запущен", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			// Без метрик сервис продолжает работу
			logger.Error("ошибка HTTP сервера метрик", zap.Error(err))
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown HTTP сервера
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ошибка при остановке HTTP сервера метрик", zap.Error(err))
	}

	logger.Info("HTTP сервер метрик остановлен")
	return nil
}
