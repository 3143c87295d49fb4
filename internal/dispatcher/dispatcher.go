package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"game-tts/internal/metrics"
	"game-tts/internal/queue"
	"game-tts/internal/tracker"
	"game-tts/internal/worker"
	"game-tts/pkg/models"

	"go.uber.org/zap"
)

const recordTimeout = 5 * time.Second

// ErrNotAccepting возвращается при постановке заданий после команды exit
var ErrNotAccepting = errors.New("диспетчер больше не принимает задания")

// ErrNoFreeSlot возвращается, если пул не принял задание несмотря на свободный слот
var ErrNoFreeSlot = errors.New("нет свободного слота в пуле")

// State состояние цикла диспетчера
type State int32

const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Recorder сохраняет историю выполненных заданий
type Recorder interface {
	Record(ctx context.Context, rec models.JobRecord) error
}

// Snapshot описывает состояние диспетчера в момент вызова
type Snapshot struct {
	State      string `json:"state"`
	Queued     int    `json:"queued"`
	InFlight   int    `json:"in_flight"`
	FreeSlots  int    `json:"free_slots"`
	MaxWorkers int    `json:"max_workers"`
	PeakQueued int    `json:"peak_queued"`
	Enqueued   int64  `json:"enqueued"`
	Submitted  int64  `json:"submitted"`
	Succeeded  int64  `json:"succeeded"`
	Failed     int64  `json:"failed"`
}

// Dispatcher связывает очередь, пул воркеров и трекер завершений
type Dispatcher struct {
	queue    *queue.JobQueue
	pool     *worker.Pool
	tracker  *tracker.Tracker
	replies  ReplyWriter
	recorder Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger

	state atomic.Int32

	// acceptMu не дает заданию попасть в очередь после остановки приема
	acceptMu  sync.RWMutex
	accepting bool
	exit      chan struct{}
	exitOnce  sync.Once

	enqueued  atomic.Int64
	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// New создает новый диспетчер. recorder и metrics могут быть nil.
func New(q *queue.JobQueue, pool *worker.Pool, tr *tracker.Tracker, replies ReplyWriter, recorder Recorder, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		queue:    q,
		pool:     pool,
		tracker:  tr,
		replies:  replies,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		exit:     make(chan struct{}),

		accepting: true,
	}
	d.state.Store(int32(StateRunning))
	return d
}

// Enqueue ставит задания в очередь
func (d *Dispatcher) Enqueue(jobs ...models.Job) error {
	d.acceptMu.RLock()
	defer d.acceptMu.RUnlock()

	if !d.accepting {
		return ErrNotAccepting
	}
	for _, job := range jobs {
		d.queue.Enqueue(job)
		d.logger.Debug("задание поставлено в очередь",
			zap.String("request_id", job.RequestID),
			zap.String("file_name", job.FileName),
			zap.Int("speaker_id", job.SpeakerID))
	}
	d.enqueued.Add(int64(len(jobs)))
	if d.metrics != nil && len(jobs) > 0 {
		d.metrics.RecordEnqueued(len(jobs))
	}
	return nil
}

// Exit прекращает прием заданий и переводит диспетчер в режим дренажа
func (d *Dispatcher) Exit() {
	d.stopAccepting()
	d.exitOnce.Do(func() {
		close(d.exit)
	})
}

// State возвращает текущее состояние цикла
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Run выполняет цикл диспетчера до завершения дренажа.
// Отмена ctx равносильна команде exit: выполняющиеся задания не прерываются.
func (d *Dispatcher) Run(ctx context.Context) error {
	taskCtx := context.WithoutCancel(ctx)
	exit := d.exit
	done := ctx.Done()

	d.logger.Info("диспетчер запущен", zap.Int("max_workers", d.pool.MaxWorkers()))

	for {
		d.reap(taskCtx)
		d.dispatch(taskCtx)
		d.updateGauges()

		if d.State() == StateDraining && d.queue.IsEmpty() && d.tracker.InFlight() == 0 {
			d.state.Store(int32(StateStopped))
			snap := d.Snapshot()
			d.logger.Info("все задания выполнены, диспетчер остановлен",
				zap.Int64("succeeded", snap.Succeeded),
				zap.Int64("failed", snap.Failed))
			if err := d.replies.WriteMarker(MarkerWorkCompleted); err != nil {
				d.logger.Error("не удалось отправить маркер завершения", zap.Error(err))
			}
			return nil
		}

		select {
		case <-d.queue.Ready():
		case <-d.tracker.Ready():
		case <-exit:
			exit = nil
			d.beginDrain("получена команда exit")
		case <-done:
			done = nil
			d.beginDrain("контекст отменен")
		}
	}
}

func (d *Dispatcher) beginDrain(reason string) {
	if d.State() != StateRunning {
		return
	}
	d.stopAccepting()
	d.state.Store(int32(StateDraining))
	d.logger.Info("прием заданий остановлен, дожидаемся выполнения",
		zap.String("reason", reason),
		zap.Int("queued", d.queue.Len()),
		zap.Int("in_flight", d.tracker.InFlight()))
}

func (d *Dispatcher) stopAccepting() {
	d.acceptMu.Lock()
	d.accepting = false
	d.acceptMu.Unlock()
}

// dispatch отправляет задания из очереди, пока есть свободные слоты
func (d *Dispatcher) dispatch(ctx context.Context) {
	for d.pool.Free() > 0 {
		job, ok := d.queue.TryDequeue()
		if !ok {
			return
		}
		// слоты освобождает только этот цикл, поэтому при Free() > 0 слот есть
		if _, ok := d.pool.TrySubmit(ctx, job); !ok {
			d.logger.Error("нет свободного слота для задания", zap.String("file_name", job.FileName))
			d.finish(ctx, job, models.Failed(ErrNoFreeSlot, 0), time.Now())
			continue
		}
		d.submitted.Add(1)
	}
}

// reap забирает завершенные задания, сообщает о них и освобождает слоты
func (d *Dispatcher) reap(ctx context.Context) {
	for _, c := range d.tracker.Poll() {
		d.finish(ctx, c.Job, c.Outcome, c.CompletedAt)
		d.pool.Release(c.Handle)
	}
}

func (d *Dispatcher) finish(ctx context.Context, job models.Job, outcome models.TaskOutcome, completedAt time.Time) {
	if outcome.IsFailed() {
		d.failed.Add(1)
	} else {
		d.succeeded.Add(1)
	}

	if d.metrics != nil {
		d.metrics.RecordJob(!outcome.IsFailed(), outcome.Duration.Seconds())
		if outcome.AudioLength > 0 {
			d.metrics.RecordAudio(outcome.AudioLength.Seconds())
		}
	}

	if err := d.replies.WriteReply(NewReply(job, outcome)); err != nil {
		d.logger.Error("не удалось отправить результат задания",
			zap.String("file_name", job.FileName),
			zap.Error(err))
	}

	if d.recorder == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	if err := d.recorder.Record(recordCtx, models.NewJobRecord(job, outcome, completedAt)); err != nil {
		d.logger.Warn("не удалось сохранить историю задания",
			zap.String("file_name", job.FileName),
			zap.Error(err))
	}
}

func (d *Dispatcher) updateGauges() {
	if d.metrics == nil {
		return
	}
	d.metrics.SetPoolState(d.queue.Len(), d.tracker.InFlight(), d.pool.Free())
}

// Snapshot возвращает текущее состояние диспетчера
func (d *Dispatcher) Snapshot() Snapshot {
	stats := d.queue.Stats()
	return Snapshot{
		State:      d.State().String(),
		Queued:     stats.CurrentSize,
		InFlight:   d.tracker.InFlight(),
		FreeSlots:  d.pool.Free(),
		MaxWorkers: d.pool.MaxWorkers(),
		PeakQueued: stats.PeakSize,
		Enqueued:   d.enqueued.Load(),
		Submitted:  d.submitted.Load(),
		Succeeded:  d.succeeded.Load(),
		Failed:     d.failed.Load(),
	}
}
