package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"game-tts/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSynthesizer возвращает клип или ошибку в зависимости от текста
type fakeSynthesizer struct {
	mu     sync.Mutex
	calls  []models.SpeechParams
	delay  time.Duration
	failOn string
	panic  string
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string, speakerID int, params models.SpeechParams) (models.AudioClip, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return models.AudioClip{}, ctx.Err()
		}
	}
	if text == f.panic {
		panic("модель упала")
	}
	if text == f.failOn {
		return models.AudioClip{}, errors.New("синтез не удался")
	}
	return models.AudioClip{Samples: []float32{0.1, -0.1}, SampleRate: 22050}, nil
}

// fakeSaver запоминает сохраненные файлы
type fakeSaver struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (f *fakeSaver) Save(_ context.Context, fileName string, _ models.AudioClip) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, fileName)
	return "out/" + fileName + ".wav", nil
}

// collectingReporter сразу освобождает слот и собирает результаты
type collectingReporter struct {
	mu       sync.Mutex
	pool     *Pool
	tracked  map[TaskHandle]models.Job
	outcomes map[string]models.TaskOutcome
	done     chan struct{}
}

func newCollectingReporter() *collectingReporter {
	return &collectingReporter{
		tracked:  make(map[TaskHandle]models.Job),
		outcomes: make(map[string]models.TaskOutcome),
		done:     make(chan struct{}, 1000),
	}
}

func (r *collectingReporter) Track(handle TaskHandle, job models.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked[handle] = job
}

func (r *collectingReporter) Complete(handle TaskHandle, outcome models.TaskOutcome) {
	r.mu.Lock()
	job := r.tracked[handle]
	r.outcomes[job.FileName] = outcome
	r.mu.Unlock()

	r.pool.Release(handle)
	r.done <- struct{}{}
}

func (r *collectingReporter) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("дождались только %d из %d заданий", i, n)
		}
	}
}

func newTestPool(maxWorkers int, synth Synthesizer, saver Saver) (*Pool, *collectingReporter) {
	reporter := newCollectingReporter()
	pool := NewPool(maxWorkers, synth, saver, models.DefaultSpeechParams(), reporter, zap.NewNop())
	reporter.pool = pool
	return pool, reporter
}

func TestPool_Success(t *testing.T) {
	saver := &fakeSaver{}
	pool, reporter := newTestPool(2, &fakeSynthesizer{}, saver)

	handle, err := pool.Submit(context.Background(), models.Job{FileName: "tts_1_a", Text: "Hallo"})
	require.NoError(t, err)
	assert.NotZero(t, handle)

	reporter.wait(t, 1)
	pool.Wait()

	outcome := reporter.outcomes["tts_1_a"]
	assert.Equal(t, models.OutcomeSucceeded, outcome.Status)
	assert.Equal(t, "out/tts_1_a.wav", outcome.OutputPath)
	assert.Equal(t, []string{"tts_1_a"}, saver.saved)
	assert.Equal(t, 2, pool.Free())
}

func TestPool_ParamsOverrides(t *testing.T) {
	synth := &fakeSynthesizer{}
	pool, reporter := newTestPool(1, synth, &fakeSaver{})

	speed := 1.5
	_, err := pool.Submit(context.Background(), models.Job{
		FileName: "a",
		Text:     "x",
		Params:   models.SpeechOverrides{Speed: &speed},
	})
	require.NoError(t, err)
	reporter.wait(t, 1)

	require.Len(t, synth.calls, 1)
	assert.Equal(t, 1.5, synth.calls[0].Speed)
	assert.Equal(t, models.DefaultSpeechVarianceA, synth.calls[0].VarianceA)
	assert.Equal(t, models.DefaultSpeechVarianceB, synth.calls[0].VarianceB)
}

func TestPool_FailingJobDoesNotAffectOthers(t *testing.T) {
	saver := &fakeSaver{}
	pool, reporter := newTestPool(2, &fakeSynthesizer{failOn: "kaputt", panic: "panik"}, saver)

	for _, job := range []models.Job{
		{FileName: "bad", Text: "kaputt"},
		{FileName: "good", Text: "gut"},
		{FileName: "panicked", Text: "panik"},
		{FileName: "after", Text: "danach"},
	} {
		_, err := pool.Submit(context.Background(), job)
		require.NoError(t, err)
	}
	reporter.wait(t, 4)

	bad := reporter.outcomes["bad"]
	assert.True(t, bad.IsFailed())
	var execErr *ExecutionError
	require.ErrorAs(t, bad.Err, &execErr)
	assert.Equal(t, StageSynthesize, execErr.Stage)

	panicked := reporter.outcomes["panicked"]
	assert.True(t, panicked.IsFailed())
	require.ErrorAs(t, panicked.Err, &execErr)
	assert.Equal(t, StagePanic, execErr.Stage)

	assert.False(t, reporter.outcomes["good"].IsFailed())
	assert.False(t, reporter.outcomes["after"].IsFailed())
	assert.ElementsMatch(t, []string{"good", "after"}, saver.saved)
}

func TestPool_SaveFailure(t *testing.T) {
	saveErr := errors.New("диск заполнен")
	pool, reporter := newTestPool(1, &fakeSynthesizer{}, &fakeSaver{err: saveErr})

	_, err := pool.Submit(context.Background(), models.Job{FileName: "a", Text: "x"})
	require.NoError(t, err)
	reporter.wait(t, 1)

	outcome := reporter.outcomes["a"]
	assert.True(t, outcome.IsFailed())
	assert.ErrorIs(t, outcome.Err, saveErr)

	var execErr *ExecutionError
	require.ErrorAs(t, outcome.Err, &execErr)
	assert.Equal(t, StageSave, execErr.Stage)
}

func TestPool_MaxConcurrency(t *testing.T) {
	const maxWorkers = 3
	pool, reporter := newTestPool(maxWorkers, &fakeSynthesizer{delay: 10 * time.Millisecond}, &fakeSaver{})

	for i := 0; i < 20; i++ {
		_, err := pool.Submit(context.Background(), models.Job{FileName: string(rune('a' + i)), Text: "x"})
		require.NoError(t, err)
		assert.LessOrEqual(t, pool.Running(), maxWorkers)
	}
	reporter.wait(t, 20)
	pool.Wait()

	assert.LessOrEqual(t, pool.PeakRunning(), maxWorkers)
	assert.Equal(t, maxWorkers, pool.Free())
}

func TestPool_TrySubmitWhenFull(t *testing.T) {
	block := make(chan struct{})
	synth := &blockingSynthesizer{release: block}
	reporter := &nopReporter{}
	pool := NewPool(1, synth, &fakeSaver{}, models.DefaultSpeechParams(), reporter, zap.NewNop())

	handle, ok := pool.TrySubmit(context.Background(), models.Job{FileName: "a", Text: "x"})
	require.True(t, ok)
	assert.Equal(t, 0, pool.Free())

	_, ok = pool.TrySubmit(context.Background(), models.Job{FileName: "b", Text: "x"})
	assert.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pool.Submit(ctx, models.Job{FileName: "c", Text: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
	pool.Wait()

	// слот остается занятым до явного освобождения
	assert.Equal(t, 0, pool.Free())
	pool.Release(handle)
	assert.Equal(t, 1, pool.Free())

	pool.Release(handle)
	assert.Equal(t, 1, pool.Free())
}

func TestNewPool_DefaultSize(t *testing.T) {
	pool := NewPool(0, &fakeSynthesizer{}, &fakeSaver{}, models.DefaultSpeechParams(), &nopReporter{}, zap.NewNop())
	assert.Equal(t, DefaultMaxWorkers, pool.MaxWorkers())
	assert.Equal(t, DefaultMaxWorkers, pool.Free())
}

type blockingSynthesizer struct {
	release chan struct{}
}

func (b *blockingSynthesizer) Synthesize(_ context.Context, _ string, _ int, _ models.SpeechParams) (models.AudioClip, error) {
	<-b.release
	return models.AudioClip{SampleRate: 22050}, nil
}

type nopReporter struct{}

func (nopReporter) Track(TaskHandle, models.Job)           {}
func (nopReporter) Complete(TaskHandle, models.TaskOutcome) {}
