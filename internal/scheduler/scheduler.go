package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Job интерфейс для периодических задач
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc позволяет использовать функцию как задачу
type JobFunc func(ctx context.Context) error

// Run вызывает функцию
func (f JobFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type namedJob struct {
	name string
	job  Job
}

// Scheduler запускает периодические задачи обслуживания
type Scheduler struct {
	logger *zap.Logger
	jobs   []namedJob
}

// NewScheduler создает новый планировщик задач
func NewScheduler(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
	}
}

// AddJob добавляет задачу в планировщик
func (s *Scheduler) AddJob(name string, job Job) {
	s.jobs = append(s.jobs, namedJob{name: name, job: job})
}

// Len возвращает количество задач
func (s *Scheduler) Len() int {
	return len(s.jobs)
}

// Start выполняет задачи сразу и затем с указанным интервалом до отмены ctx
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 || len(s.jobs) == 0 {
		return
	}

	s.logger.Info("запуск планировщика задач",
		zap.Duration("interval", interval),
		zap.Int("jobs_count", len(s.jobs)))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("остановка планировщика задач")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет все задачи по одному разу
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		if err := s.runJob(ctx, j); err != nil {
			s.logger.Error("ошибка выполнения задачи",
				zap.Error(err),
				zap.String("job", j.name))
			continue
		}
		s.logger.Debug("задача выполнена",
			zap.String("job", j.name),
			zap.Duration("duration", time.Since(started)))
	}
}

// runJob изолирует панику задачи от планировщика
func (s *Scheduler) runJob(ctx context.Context, j namedJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника в задаче %s: %v", j.name, r)
		}
	}()
	return j.job.Run(ctx)
}
