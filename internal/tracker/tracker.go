package tracker

import (
	"sync"
	"time"

	"game-tts/internal/worker"
	"game-tts/pkg/models"

	"go.uber.org/zap"
)

// Completion описывает завершенное задание
type Completion struct {
	Handle      worker.TaskHandle
	Job         models.Job
	Outcome     models.TaskOutcome
	CompletedAt time.Time
}

type finished struct {
	handle  worker.TaskHandle
	outcome models.TaskOutcome
	at      time.Time
}

// Tracker ведет учет выполняющихся заданий.
// Каждый дескриптор сообщается из Poll ровно один раз.
type Tracker struct {
	mu       sync.Mutex
	active   map[worker.TaskHandle]models.Job
	finished []finished
	ready    chan struct{}
	logger   *zap.Logger
}

// New создает новый трекер
func New(logger *zap.Logger) *Tracker {
	return &Tracker{
		active: make(map[worker.TaskHandle]models.Job),
		ready:  make(chan struct{}, 1),
		logger: logger,
	}
}

// Track регистрирует выполняющееся задание
func (t *Tracker) Track(handle worker.TaskHandle, job models.Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.active[handle]; ok {
		t.logger.Error("дескриптор уже отслеживается",
			zap.Uint64("handle", uint64(handle)),
			zap.String("file_name", existing.FileName))
		return
	}
	t.active[handle] = job
}

// Complete принимает результат из горутины задания
func (t *Tracker) Complete(handle worker.TaskHandle, outcome models.TaskOutcome) {
	t.mu.Lock()
	t.finished = append(t.finished, finished{handle: handle, outcome: outcome, at: time.Now()})
	t.mu.Unlock()

	select {
	case t.ready <- struct{}{}:
	default:
	}
}

// Poll возвращает задания, завершившиеся с прошлого вызова, и удаляет их из учета
func (t *Tracker) Poll() []Completion {
	t.mu.Lock()
	pending := t.finished
	t.finished = nil

	if len(pending) == 0 {
		t.mu.Unlock()
		return nil
	}

	completions := make([]Completion, 0, len(pending))
	for _, f := range pending {
		job, ok := t.active[f.handle]
		if !ok {
			t.logger.Warn("результат для неизвестного или уже обработанного дескриптора",
				zap.Uint64("handle", uint64(f.handle)),
				zap.String("status", string(f.outcome.Status)))
			continue
		}
		delete(t.active, f.handle)
		completions = append(completions, Completion{
			Handle:      f.handle,
			Job:         job,
			Outcome:     f.outcome,
			CompletedAt: f.at,
		})
	}
	t.mu.Unlock()

	for _, c := range completions {
		if c.Outcome.IsFailed() {
			t.logger.Error("задание завершилось ошибкой",
				zap.String("request_id", c.Job.RequestID),
				zap.String("file_name", c.Job.FileName),
				zap.Int("speaker_id", c.Job.SpeakerID),
				zap.Duration("duration", c.Outcome.Duration),
				zap.Error(c.Outcome.Err))
			continue
		}
		t.logger.Info("задание выполнено",
			zap.String("request_id", c.Job.RequestID),
			zap.String("file_name", c.Job.FileName),
			zap.String("path", c.Outcome.OutputPath),
			zap.Duration("duration", c.Outcome.Duration))
	}

	return completions
}

// Ready возвращает канал, сигнализирующий о новых завершениях
func (t *Tracker) Ready() <-chan struct{} {
	return t.ready
}

// InFlight возвращает количество отслеживаемых заданий
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}
