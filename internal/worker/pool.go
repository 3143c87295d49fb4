package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"game-tts/pkg/models"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxWorkers количество слотов по умолчанию
const DefaultMaxWorkers = 2

// TaskHandle непрозрачная ссылка на выполняющееся задание
type TaskHandle uint64

// Synthesizer синтезирует речь для одной реплики
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, speakerID int, params models.SpeechParams) (models.AudioClip, error)
}

// Saver сохраняет синтезированный звук и возвращает путь к файлу
type Saver interface {
	Save(ctx context.Context, fileName string, clip models.AudioClip) (string, error)
}

// Reporter получает информацию о жизненном цикле заданий
type Reporter interface {
	// Track вызывается до запуска задания
	Track(handle TaskHandle, job models.Job)
	// Complete вызывается из горутины задания и не должен блокироваться
	Complete(handle TaskHandle, outcome models.TaskOutcome)
}

// Pool выполняет задания синтеза с ограниченным параллелизмом.
// Слот занимается при отправке и освобождается вызовом Release.
type Pool struct {
	maxWorkers  int
	sem         *semaphore.Weighted
	synthesizer Synthesizer
	saver       Saver
	defaults    models.SpeechParams
	reporter    Reporter
	logger      *zap.Logger

	mu   sync.Mutex
	held map[TaskHandle]struct{}

	nextHandle atomic.Uint64
	running    atomic.Int64
	peak       atomic.Int64
	wg         sync.WaitGroup
}

// NewPool создает пул воркеров
func NewPool(maxWorkers int, synthesizer Synthesizer, saver Saver, defaults models.SpeechParams, reporter Reporter, logger *zap.Logger) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	return &Pool{
		maxWorkers:  maxWorkers,
		sem:         semaphore.NewWeighted(int64(maxWorkers)),
		synthesizer: synthesizer,
		saver:       saver,
		defaults:    defaults,
		reporter:    reporter,
		logger:      logger,
		held:        make(map[TaskHandle]struct{}, maxWorkers),
	}
}

// Submit ждет свободный слот и запускает задание
func (p *Pool) Submit(ctx context.Context, job models.Job) (TaskHandle, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("ожидание свободного слота прервано: %w", err)
	}
	return p.start(ctx, job), nil
}

// TrySubmit запускает задание, если есть свободный слот
func (p *Pool) TrySubmit(ctx context.Context, job models.Job) (TaskHandle, bool) {
	if !p.sem.TryAcquire(1) {
		return 0, false
	}
	return p.start(ctx, job), true
}

// Release освобождает слот задания. Повторный вызов для того же дескриптора игнорируется.
func (p *Pool) Release(handle TaskHandle) {
	p.mu.Lock()
	_, ok := p.held[handle]
	delete(p.held, handle)
	p.mu.Unlock()

	if !ok {
		p.logger.Warn("попытка освободить неизвестный слот", zap.Uint64("handle", uint64(handle)))
		return
	}
	p.sem.Release(1)
}

// Free возвращает количество свободных слотов
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxWorkers - len(p.held)
}

// MaxWorkers возвращает размер пула
func (p *Pool) MaxWorkers() int {
	return p.maxWorkers
}

// Running возвращает количество заданий, выполняющихся прямо сейчас
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// PeakRunning возвращает максимальное число одновременно выполнявшихся заданий
func (p *Pool) PeakRunning() int {
	return int(p.peak.Load())
}

// Wait ждет завершения всех запущенных горутин заданий
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) start(ctx context.Context, job models.Job) TaskHandle {
	handle := TaskHandle(p.nextHandle.Add(1))

	p.mu.Lock()
	p.held[handle] = struct{}{}
	p.mu.Unlock()

	p.reporter.Track(handle, job)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		outcome := p.run(ctx, job)
		p.reporter.Complete(handle, outcome)
	}()

	return handle
}

// run выполняет задание и превращает любую ошибку или панику в неуспешный результат
func (p *Pool) run(ctx context.Context, job models.Job) (outcome models.TaskOutcome) {
	started := time.Now()

	n := p.running.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	defer p.running.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("паника в задании синтеза",
				zap.String("file_name", job.FileName),
				zap.Any("panic", r))
			outcome = models.Failed(&ExecutionError{
				Stage: StagePanic,
				Job:   job,
				Err:   fmt.Errorf("%v", r),
			}, time.Since(started))
		}
	}()

	params := job.Params.Apply(p.defaults)

	p.logger.Debug("начинаем синтез",
		zap.String("file_name", job.FileName),
		zap.Int("speaker_id", job.SpeakerID),
		zap.Float64("speed", params.Speed))

	clip, err := p.synthesizer.Synthesize(ctx, job.Text, job.SpeakerID, params)
	if err != nil {
		return models.Failed(&ExecutionError{Stage: StageSynthesize, Job: job, Err: err}, time.Since(started))
	}

	path, err := p.saver.Save(ctx, job.FileName, clip)
	if err != nil {
		return models.Failed(&ExecutionError{Stage: StageSave, Job: job, Err: err}, time.Since(started))
	}

	outcome = models.Succeeded(path, time.Since(started))
	outcome.AudioLength = clip.Duration()
	return outcome
}
