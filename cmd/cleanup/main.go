package main

import (
	"context"
	"flag"
	"log"
	"time"

	"game-tts/internal/config"
	"game-tts/internal/migrations"
	"game-tts/internal/store"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

func main() {
	var (
		days   = flag.Int("days", 0, "Удалить записи старше указанного числа дней (0 = HISTORY_RETENTION_DAYS)")
		status = flag.String("status", "", "Удалять только записи с этим статусом (succeeded, failed)")
		dryRun = flag.Bool("dry-run", false, "Показать что будет удалено без фактического удаления")
		recent = flag.Int("recent", 0, "Вывести указанное число последних записей")
		migr   = flag.Bool("migrations", false, "Вывести статус миграций PostgreSQL и выйти")
	)
	flag.Parse()

	// Инициализация логгера
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Ошибка инициализации логгера:", err)
	}
	defer logger.Sync()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	ctx := context.Background()

	if *migr {
		if cfg.History.Driver != config.HistoryDriverPostgres {
			logger.Fatal("Статус миграций доступен только для HISTORY_DRIVER=postgres")
		}
		if err := migrations.GetMigrationStatus(ctx, cfg, logger); err != nil {
			logger.Fatal("Ошибка получения статуса миграций", zap.Error(err))
		}
		return
	}

	history, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Ошибка подключения к истории заданий", zap.Error(err))
	}
	if history == nil {
		logger.Fatal("История заданий отключена (HISTORY_DRIVER=none)")
	}
	defer history.Close()

	if *recent > 0 {
		printRecent(ctx, history, *recent, logger)
	}

	retentionDays := *days
	if retentionDays <= 0 {
		retentionDays = cfg.History.RetentionDays
	}
	if retentionDays <= 0 {
		logger.Info("Срок хранения не задан, очистка пропущена")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	count, err := history.DeleteOlderThan(ctx, cutoff, *status, *dryRun)
	if err != nil {
		logger.Fatal("Ошибка очистки истории заданий", zap.Error(err))
	}

	if *dryRun {
		logger.Info("DRY RUN: записи будут удалены",
			zap.Int64("count", count),
			zap.String("older_than", humanize.Time(cutoff)),
			zap.Time("cutoff", cutoff),
			zap.String("status", *status))
		return
	}

	logger.Info("Очистка истории заданий завершена успешно",
		zap.Int64("deleted", count),
		zap.Time("cutoff", cutoff),
		zap.String("status", *status))
}

// printRecent выводит последние записи истории
func printRecent(ctx context.Context, history store.History, limit int, logger *zap.Logger) {
	records, err := history.Recent(ctx, limit)
	if err != nil {
		logger.Error("Ошибка получения истории заданий", zap.Error(err))
		return
	}

	for _, rec := range records {
		logger.Info("Запись истории",
			zap.String("request_id", rec.RequestID),
			zap.String("file_name", rec.FileName),
			zap.Int("speaker_id", rec.SpeakerID),
			zap.String("status", string(rec.Status)),
			zap.String("error", rec.Error),
			zap.String("output_path", rec.OutputPath),
			zap.Time("completed_at", rec.CompletedAt),
			zap.String("age", humanize.Time(rec.CompletedAt)),
			zap.Int64("duration_ms", rec.DurationMS))
	}
}
