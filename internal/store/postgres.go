package store

import (
	"context"
	"fmt"
	"time"

	"game-tts/internal/config"
	"game-tts/internal/migrations"
	"game-tts/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// PostgresHistory хранит историю заданий в PostgreSQL
type PostgresHistory struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresHistory применяет миграции и создает пул подключений
func NewPostgresHistory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*PostgresHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := migrations.RunMigrations(ctx, cfg, logger); err != nil {
		return nil, err
	}

	// Создание пула подключений
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	// Настройка пула
	poolConfig.MaxConns = 4
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	// База может подниматься дольше процесса
	backoff := retry.WithMaxRetries(5, retry.NewExponential(200*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.Ping(ctx); err != nil {
			logger.Warn("база данных недоступна, повторяем", zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка проверки подключения к базе данных: %w", err)
	}

	logger.Info("успешное подключение к базе данных PostgreSQL")

	return &PostgresHistory{db: db, logger: logger}, nil
}

// Record сохраняет запись о выполненном задании
func (h *PostgresHistory) Record(ctx context.Context, rec models.JobRecord) error {
	query := `
		INSERT INTO job_history (request_id, file_name, speaker_id, text, status, error, output_path, submitted_at, completed_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (file_name) DO NOTHING`

	_, err := h.db.Exec(ctx, query,
		rec.RequestID, rec.FileName, rec.SpeakerID, rec.Text, string(rec.Status), rec.Error,
		rec.OutputPath, rec.SubmittedAt.UTC(), rec.CompletedAt.UTC(), rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения истории задания %s: %w", rec.FileName, err)
	}
	return nil
}

// Recent возвращает последние завершенные задания
func (h *PostgresHistory) Recent(ctx context.Context, limit int) ([]models.JobRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM job_history ORDER BY completed_at DESC LIMIT $1`

	rows, err := h.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории заданий: %w", err)
	}
	defer rows.Close()

	var records []models.JobRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			h.logger.Error("ошибка сканирования записи истории", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения истории заданий: %w", err)
	}
	return records, nil
}

// DeleteOlderThan удаляет устаревшие записи истории
func (h *PostgresHistory) DeleteOlderThan(ctx context.Context, cutoff time.Time, status string, dryRun bool) (int64, error) {
	where := `completed_at < $1`
	args := []any{cutoff.UTC()}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}

	if dryRun {
		var count int64
		if err := h.db.QueryRow(ctx, `SELECT COUNT(*) FROM job_history WHERE `+where, args...).Scan(&count); err != nil {
			return 0, fmt.Errorf("ошибка подсчета устаревших записей: %w", err)
		}
		return count, nil
	}

	result, err := h.db.Exec(ctx, `DELETE FROM job_history WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления устаревших записей: %w", err)
	}
	return result.RowsAffected(), nil
}

// Close закрывает подключение к базе данных
func (h *PostgresHistory) Close() error {
	h.logger.Info("закрытие подключения к базе данных")
	h.db.Close()
	return nil
}
