package scheduler

import (
	"context"
	"fmt"
	"time"

	"game-tts/internal/dispatcher"

	"go.uber.org/zap"
)

// HistoryCleaner удаляет устаревшие записи истории
type HistoryCleaner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time, status string, dryRun bool) (int64, error)
}

// HistoryCleanupJob удаляет записи истории старше срока хранения
type HistoryCleanupJob struct {
	history   HistoryCleaner
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewHistoryCleanupJob создает задачу очистки истории
func NewHistoryCleanupJob(history HistoryCleaner, retention time.Duration, logger *zap.Logger) *HistoryCleanupJob {
	return &HistoryCleanupJob{
		history:   history,
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

// Run удаляет устаревшие записи
func (j *HistoryCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)

	deleted, err := j.history.DeleteOlderThan(ctx, cutoff, "", false)
	if err != nil {
		return fmt.Errorf("ошибка очистки истории заданий: %w", err)
	}

	if deleted > 0 {
		j.logger.Info("удалены устаревшие записи истории",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
	return nil
}

// SnapshotSource отдает текущее состояние диспетчера
type SnapshotSource interface {
	Snapshot() dispatcher.Snapshot
}

// StatsReportJob периодически пишет состояние диспетчера в лог
type StatsReportJob struct {
	source SnapshotSource
	logger *zap.Logger
}

// NewStatsReportJob создает задачу отчета о состоянии
func NewStatsReportJob(source SnapshotSource, logger *zap.Logger) *StatsReportJob {
	return &StatsReportJob{source: source, logger: logger}
}

// Run пишет снимок состояния
func (j *StatsReportJob) Run(_ context.Context) error {
	snap := j.source.Snapshot()
	j.logger.Info("состояние диспетчера",
		zap.String("state", snap.State),
		zap.Int("queued", snap.Queued),
		zap.Int("in_flight", snap.InFlight),
		zap.Int("free_slots", snap.FreeSlots),
		zap.Int("peak_queued", snap.PeakQueued),
		zap.Int64("enqueued", snap.Enqueued),
		zap.Int64("succeeded", snap.Succeeded),
		zap.Int64("failed", snap.Failed))
	return nil
}
