package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"

	"game-tts/internal/config"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var embedded embed.FS

// Up применяет миграции к открытому подключению.
// migrationPath переопределяет встроенные миграции, если каталог существует.
func Up(ctx context.Context, db *sql.DB, dialect goose.Dialect, migrationPath string, logger *zap.Logger) error {
	provider, err := newProvider(db, dialect, migrationPath, logger)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	for _, r := range results {
		logger.Info("миграция применена",
			zap.Int64("version", r.Source.Version),
			zap.String("path", r.Source.Path),
			zap.Duration("duration", r.Duration))
	}
	return nil
}

// Status выводит в лог состояние миграций
func Status(ctx context.Context, db *sql.DB, dialect goose.Dialect, migrationPath string, logger *zap.Logger) error {
	provider, err := newProvider(db, dialect, migrationPath, logger)
	if err != nil {
		return err
	}

	statuses, err := provider.Status(ctx)
	if err != nil {
		return fmt.Errorf("ошибка получения статуса миграций: %w", err)
	}

	for _, s := range statuses {
		logger.Info("статус миграции",
			zap.Int64("version", s.Source.Version),
			zap.String("path", s.Source.Path),
			zap.String("state", string(s.State)),
			zap.Time("applied_at", s.AppliedAt))
	}
	return nil
}

// RunMigrations применяет миграции к базе данных PostgreSQL
func RunMigrations(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("начало применения миграций")

	// Создаем временное подключение к базе данных для миграций
	db, err := sql.Open("postgres", cfg.Database.GetURL())
	if err != nil {
		return fmt.Errorf("ошибка подключения к базе данных для миграций: %w", err)
	}
	defer db.Close()

	if err := Up(ctx, db, goose.DialectPostgres, cfg.Database.MigrationPath, logger); err != nil {
		return err
	}

	logger.Info("миграции успешно применены")
	return nil
}

// GetMigrationStatus возвращает статус миграций PostgreSQL
func GetMigrationStatus(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("проверка статуса миграций")

	db, err := sql.Open("postgres", cfg.Database.GetURL())
	if err != nil {
		return fmt.Errorf("ошибка подключения к базе данных для миграций: %w", err)
	}
	defer db.Close()

	return Status(ctx, db, goose.DialectPostgres, cfg.Database.MigrationPath, logger)
}

func newProvider(db *sql.DB, dialect goose.Dialect, migrationPath string, logger *zap.Logger) (*goose.Provider, error) {
	fsys, err := migrationFS(migrationPath, logger)
	if err != nil {
		return nil, err
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	return provider, nil
}

// migrationFS определяет источник миграций
func migrationFS(migrationPath string, logger *zap.Logger) (fs.FS, error) {
	if migrationPath != "" {
		if info, err := os.Stat(migrationPath); err == nil && info.IsDir() {
			logger.Info("используем путь к миграциям из конфигурации", zap.String("path", migrationPath))
			return os.DirFS(migrationPath), nil
		}
		logger.Warn("каталог миграций не найден, используем встроенные миграции", zap.String("path", migrationPath))
	}

	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения встроенных миграций: %w", err)
	}
	return sub, nil
}
