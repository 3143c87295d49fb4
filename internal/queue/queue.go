package queue

import (
	"sync"
	"time"

	"game-tts/pkg/models"
)

// Stats содержит счетчики очереди
type Stats struct {
	TotalEnqueued int64
	TotalDequeued int64
	CurrentSize   int
	PeakSize      int
	LastEnqueue   time.Time
	LastDequeue   time.Time
}

// JobQueue представляет неограниченную FIFO очередь заданий.
// Безопасна для одного производителя и нескольких потребителей,
// каждое задание выдается не более одного раза.
type JobQueue struct {
	mu    sync.Mutex
	items []models.Job
	head  int
	stats Stats

	// ready получает сигнал после каждой постановки, сигналы схлопываются
	ready chan struct{}
}

// New создает пустую очередь
func New() *JobQueue {
	return &JobQueue{
		ready: make(chan struct{}, 1),
	}
}

// Enqueue добавляет задание в конец очереди. Никогда не блокируется.
func (q *JobQueue) Enqueue(job models.Job) {
	q.mu.Lock()
	q.items = append(q.items, job)
	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = time.Now()
	if size := q.lenLocked(); size > q.stats.PeakSize {
		q.stats.PeakSize = size
	}
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryDequeue извлекает задание из головы очереди без ожидания
func (q *JobQueue) TryDequeue() (models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lenLocked() == 0 {
		return models.Job{}, false
	}

	job := q.items[q.head]
	q.items[q.head] = models.Job{}
	q.head++

	// освобождаем прочитанную часть среза
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}

	q.stats.TotalDequeued++
	q.stats.LastDequeue = time.Now()
	return job, true
}

// IsEmpty проверяет, есть ли ожидающие задания
func (q *JobQueue) IsEmpty() bool {
	return q.Len() == 0
}

// Len возвращает количество ожидающих заданий
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Ready возвращает канал, в который приходит сигнал после постановки задания
func (q *JobQueue) Ready() <-chan struct{} {
	return q.ready
}

// Stats возвращает снимок счетчиков очереди
func (q *JobQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = q.lenLocked()
	return stats
}

func (q *JobQueue) lenLocked() int {
	return len(q.items) - q.head
}
