package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"game-tts/internal/migrations"
	"game-tts/pkg/models"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteHistory хранит историю заданий в локальном файле SQLite
type SQLiteHistory struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite открывает базу, настраивает её и применяет миграции
func OpenSQLite(ctx context.Context, path, migrationPath string, logger *zap.Logger) (*SQLiteHistory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога базы данных: %w", err)
	}

	// busy_timeout задается в DSN, чтобы действовать на каждом соединении пула
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка проверки подключения к базе данных: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("ошибка установки %q: %w", pragma, err)
		}
	}

	if err := migrations.Up(ctx, db, goose.DialectSQLite3, migrationPath, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("история заданий в SQLite", zap.String("path", path))

	return &SQLiteHistory{db: db, logger: logger}, nil
}

// Record сохраняет запись о выполненном задании
func (h *SQLiteHistory) Record(ctx context.Context, rec models.JobRecord) error {
	query := `
		INSERT OR IGNORE INTO job_history (request_id, file_name, speaker_id, text, status, error, output_path, submitted_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := h.db.ExecContext(ctx, query,
		rec.RequestID, rec.FileName, rec.SpeakerID, rec.Text, string(rec.Status), rec.Error,
		rec.OutputPath, rec.SubmittedAt.UTC(), rec.CompletedAt.UTC(), rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("ошибка сохранения истории задания %s: %w", rec.FileName, err)
	}
	return nil
}

// Recent возвращает последние завершенные задания
func (h *SQLiteHistory) Recent(ctx context.Context, limit int) ([]models.JobRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM job_history ORDER BY completed_at DESC LIMIT ?`

	rows, err := h.db.QueryContext(ctx, query, limit)
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
func (h *SQLiteHistory) DeleteOlderThan(ctx context.Context, cutoff time.Time, status string, dryRun bool) (int64, error) {
	where := `completed_at < ?`
	args := []any{cutoff.UTC()}
	if status != "" {
		where += ` AND status = ?`
		args = append(args, status)
	}

	if dryRun {
		var count int64
		if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_history WHERE `+where, args...).Scan(&count); err != nil {
			return 0, fmt.Errorf("ошибка подсчета устаревших записей: %w", err)
		}
		return count, nil
	}

	result, err := h.db.ExecContext(ctx, `DELETE FROM job_history WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления устаревших записей: %w", err)
	}
	return result.RowsAffected()
}

// Close закрывает базу данных
func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}
