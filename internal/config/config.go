package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"game-tts/pkg/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Драйверы истории заданий
const (
	HistoryDriverNone     = "none"
	HistoryDriverPostgres = "postgres"
	HistoryDriverSQLite   = "sqlite"
)

// Config содержит все конфигурационные параметры приложения
type Config struct {
	Dispatcher DispatcherConfig
	Synthesis  SynthesisConfig
	Output     OutputConfig
	History    HistoryConfig
	Database   DatabaseConfig
	App        AppConfig
}

// DispatcherConfig содержит настройки пула воркеров
type DispatcherConfig struct {
	MaxWorkers   int
	SpeakerCount int // 0 - без ограничения
	StatsPeriod  time.Duration
}

// SynthesisConfig содержит настройки сервиса синтеза речи
type SynthesisConfig struct {
	BaseURL   string
	Timeout   time.Duration // 0 - без таймаута
	Speed     float64
	VarianceA float64
	VarianceB float64
}

// OutputConfig содержит настройки сохранения аудио
type OutputConfig struct {
	Dir        string
	Format     string // wav, ogg
	SampleRate int
	FFmpegPath string
}

// HistoryConfig содержит настройки истории выполненных заданий
type HistoryConfig struct {
	Driver          string
	SQLitePath      string
	RetentionDays   int
	CleanupInterval time.Duration
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MigrationPath string
}

type AppConfig struct {
	Env            string
	LogLevel       string
	LogFile        string
	ErrorLogFile   string
	Port           int
	MetricsEnabled bool
}

// Load загружает конфигурацию из переменных окружения и .env
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Dispatcher
	cfg.Dispatcher.MaxWorkers = getEnvIntDefault("MAX_WORKERS", 2)
	cfg.Dispatcher.SpeakerCount = getEnvIntDefault("SPEAKER_COUNT", 0)
	cfg.Dispatcher.StatsPeriod = getEnvDurationDefault("STATS_PERIOD", time.Minute)

	// Synthesis
	cfg.Synthesis.BaseURL = getEnvDefault("SYNTH_BASE_URL", "http://localhost:5002")
	cfg.Synthesis.Timeout = getEnvDurationDefault("SYNTH_TIMEOUT", 0)
	cfg.Synthesis.Speed = getEnvFloatDefault("SPEECH_SPEED", 1.1)
	cfg.Synthesis.VarianceA = getEnvFloatDefault("SPEECH_VAR_A", 0.345)
	cfg.Synthesis.VarianceB = getEnvFloatDefault("SPEECH_VAR_B", 0.4)

	// Output
	cfg.Output.Dir = getEnvDefault("OUTPUT_DIR", "temp_output")
	cfg.Output.Format = getEnvDefault("OUTPUT_FORMAT", "wav")
	cfg.Output.SampleRate = getEnvIntDefault("OUTPUT_SAMPLE_RATE", 22050)
	cfg.Output.FFmpegPath = getEnvDefault("FFMPEG_PATH", "ffmpeg")

	// History
	cfg.History.Driver = getEnvDefault("HISTORY_DRIVER", HistoryDriverNone)
	cfg.History.SQLitePath = getEnvDefault("HISTORY_SQLITE_PATH", "data/history.db")
	cfg.History.RetentionDays = getEnvIntDefault("HISTORY_RETENTION_DAYS", 30)
	cfg.History.CleanupInterval = getEnvDurationDefault("HISTORY_CLEANUP_INTERVAL", 6*time.Hour)

	// Database
	cfg.Database.Host = getEnvDefault("DB_HOST", "localhost")
	cfg.Database.Port = getEnvIntDefault("DB_PORT", 5432)
	cfg.Database.User = os.Getenv("DB_USER")
	cfg.Database.Password = os.Getenv("DB_PASSWORD")
	cfg.Database.Name = os.Getenv("DB_NAME")
	cfg.Database.SSLMode = getEnvDefault("DB_SSL_MODE", "disable")
	cfg.Database.MigrationPath = os.Getenv("MIGRATION_PATH")

	// App
	cfg.App.Env = getEnvDefault("APP_ENV", "development")
	cfg.App.LogLevel = getEnvDefault("LOG_LEVEL", "info")
	cfg.App.LogFile = getEnvDefault("LOG_FILE", "logs/app.log")
	cfg.App.ErrorLogFile = getEnvDefault("ERROR_LOG_FILE", "logs/error.log")
	cfg.App.Port = getEnvIntDefault("APP_PORT", 8080)
	cfg.App.MetricsEnabled = getEnvBoolDefault("METRICS_ENABLED", true)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("ошибка валидации конфигурации: %w", err)
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// validateConfig проверяет корректность конфигурации
func validateConfig(config *Config) error {
	if config.Dispatcher.MaxWorkers < 1 {
		return fmt.Errorf("MAX_WORKERS должен быть не меньше 1")
	}
	if config.Dispatcher.SpeakerCount < 0 {
		return fmt.Errorf("SPEAKER_COUNT не может быть отрицательным")
	}
	if config.Synthesis.BaseURL == "" {
		return fmt.Errorf("SYNTH_BASE_URL не установлен")
	}
	if config.Synthesis.Speed <= 0 {
		return fmt.Errorf("SPEECH_SPEED должен быть положительным")
	}
	if config.Output.Dir == "" {
		return fmt.Errorf("OUTPUT_DIR не установлен")
	}
	if config.Output.Format != "wav" && config.Output.Format != "ogg" {
		return fmt.Errorf("поддерживаются только OUTPUT_FORMAT: wav, ogg")
	}
	if config.Output.SampleRate <= 0 {
		return fmt.Errorf("OUTPUT_SAMPLE_RATE должен быть положительным")
	}

	switch config.History.Driver {
	case HistoryDriverNone:
	case HistoryDriverSQLite:
		if config.History.SQLitePath == "" {
			return fmt.Errorf("HISTORY_SQLITE_PATH не установлен")
		}
	case HistoryDriverPostgres:
		if config.Database.Host == "" {
			return fmt.Errorf("DB_HOST не установлен")
		}
		if config.Database.User == "" {
			return fmt.Errorf("DB_USER не установлен")
		}
		if config.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD не установлен")
		}
		if config.Database.Name == "" {
			return fmt.Errorf("DB_NAME не установлен")
		}
	default:
		return fmt.Errorf("поддерживаются только HISTORY_DRIVER: none, postgres, sqlite")
	}

	return nil
}

// GetDSN возвращает строку подключения к базе данных
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetURL возвращает строку подключения в формате URL (для lib/pq)
func (c *DatabaseConfig) GetURL() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction проверяет, запущено ли приложение в продакшн режиме
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// GetLogLevel возвращает уровень логирования в формате zap
func (c *AppConfig) GetLogLevel() zap.AtomicLevel {
	switch c.LogLevel {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}

// SpeechParams возвращает параметры речи по умолчанию из конфигурации
func (c *SynthesisConfig) SpeechParams() models.SpeechParams {
	return models.SpeechParams{
		Speed:     c.Speed,
		VarianceA: c.VarianceA,
		VarianceB: c.VarianceB,
	}
}
