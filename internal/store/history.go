package store

import (
	"context"
	"fmt"
	"time"

	"game-tts/internal/config"
	"game-tts/pkg/models"

	"go.uber.org/zap"
)

// History представляет интерфейс для хранения истории выполненных заданий
type History interface {
	Record(ctx context.Context, rec models.JobRecord) error
	Recent(ctx context.Context, limit int) ([]models.JobRecord, error)
	// DeleteOlderThan удаляет записи, завершенные до cutoff.
	// status ограничивает удаление одним статусом, пустая строка - все.
	DeleteOlderThan(ctx context.Context, cutoff time.Time, status string, dryRun bool) (int64, error)
	Close() error
}

// Open открывает хранилище истории согласно конфигурации.
// Для драйвера none возвращает nil без ошибки.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (History, error) {
	switch cfg.History.Driver {
	case config.HistoryDriverNone, "":
		logger.Info("история заданий отключена")
		return nil, nil
	case config.HistoryDriverSQLite:
		h, err := OpenSQLite(ctx, cfg.History.SQLitePath, cfg.Database.MigrationPath, logger)
		if err != nil {
			return nil, err
		}
		return h, nil
	case config.HistoryDriverPostgres:
		h, err := NewPostgresHistory(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return h, nil
	default:
		return nil, fmt.Errorf("неизвестный драйвер истории: %s", cfg.History.Driver)
	}
}

const selectColumns = `request_id, file_name, speaker_id, text, status, error, output_path, submitted_at, completed_at, duration_ms`

// rowScanner объединяет pgx.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.JobRecord, error) {
	var (
		rec    models.JobRecord
		status string
	)
	err := row.Scan(
		&rec.RequestID, &rec.FileName, &rec.SpeakerID, &rec.Text, &status, &rec.Error,
		&rec.OutputPath, &rec.SubmittedAt, &rec.CompletedAt, &rec.DurationMS,
	)
	if err != nil {
		return rec, err
	}
	rec.Status = models.OutcomeStatus(status)
	return rec, nil
}
