package models

import (
	"time"
)

// Значения параметров речи по умолчанию
const (
	DefaultSpeechSpeed     = 1.1
	DefaultSpeechVarianceA = 0.345
	DefaultSpeechVarianceB = 0.4
)

// SpeechParams представляет параметры синтеза речи
type SpeechParams struct {
	Speed     float64 `json:"speech_speed"`
	VarianceA float64 `json:"speech_var_a"`
	VarianceB float64 `json:"speech_var_b"`
}

// DefaultSpeechParams возвращает параметры речи по умолчанию
func DefaultSpeechParams() SpeechParams {
	return SpeechParams{
		Speed:     DefaultSpeechSpeed,
		VarianceA: DefaultSpeechVarianceA,
		VarianceB: DefaultSpeechVarianceB,
	}
}

// SpeechOverrides содержит параметры речи, заданные в команде.
// Нулевой указатель означает значение по умолчанию.
type SpeechOverrides struct {
	Speed     *float64 `json:"speed,omitempty"`
	VarianceA *float64 `json:"variance_a,omitempty"`
	VarianceB *float64 `json:"variance_b,omitempty"`
}

// Apply накладывает переопределения на базовые параметры
func (o SpeechOverrides) Apply(base SpeechParams) SpeechParams {
	if o.Speed != nil {
		base.Speed = *o.Speed
	}
	if o.VarianceA != nil {
		base.VarianceA = *o.VarianceA
	}
	if o.VarianceB != nil {
		base.VarianceB = *o.VarianceB
	}
	return base
}

// Job представляет единицу работы синтеза.
// После постановки в очередь задание не изменяется.
type Job struct {
	ID          uint64          `json:"id"`
	RequestID   string          `json:"request_id"`
	SpeakerID   int             `json:"speaker_id"`
	Voice       string          `json:"voice,omitempty"`
	Text        string          `json:"text"`
	FileName    string          `json:"file_name"`
	Params      SpeechOverrides `json:"params"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// AudioClip представляет результат синтеза: моно сэмплы в диапазоне [-1.414, 1.414]
type AudioClip struct {
	Samples    []float32
	SampleRate int
}

// Duration возвращает длительность клипа
func (c AudioClip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// OutcomeStatus описывает итог выполнения задания
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
)

// TaskOutcome представляет результат выполнения задания воркером
type TaskOutcome struct {
	Status      OutcomeStatus `json:"status"`
	Err         error         `json:"-"`
	OutputPath  string        `json:"output_path,omitempty"`
	Duration    time.Duration `json:"duration"`
	AudioLength time.Duration `json:"audio_length,omitempty"`
}

// Succeeded возвращает успешный результат
func Succeeded(path string, duration time.Duration) TaskOutcome {
	return TaskOutcome{Status: OutcomeSucceeded, OutputPath: path, Duration: duration}
}

// Failed возвращает неуспешный результат
func Failed(err error, duration time.Duration) TaskOutcome {
	return TaskOutcome{Status: OutcomeFailed, Err: err, Duration: duration}
}

// IsFailed проверяет, завершилось ли задание ошибкой
func (o TaskOutcome) IsFailed() bool {
	return o.Status == OutcomeFailed
}

// JobRecord представляет запись истории выполненного задания
type JobRecord struct {
	RequestID   string        `json:"request_id" db:"request_id"`
	FileName    string        `json:"file_name" db:"file_name"`
	SpeakerID   int           `json:"speaker_id" db:"speaker_id"`
	Text        string        `json:"text" db:"text"`
	Status      OutcomeStatus `json:"status" db:"status"`
	Error       string        `json:"error,omitempty" db:"error"`
	OutputPath  string        `json:"output_path,omitempty" db:"output_path"`
	SubmittedAt time.Time     `json:"submitted_at" db:"submitted_at"`
	CompletedAt time.Time     `json:"completed_at" db:"completed_at"`
	DurationMS  int64         `json:"duration_ms" db:"duration_ms"`
}

// NewJobRecord собирает запись истории из задания и результата
func NewJobRecord(job Job, outcome TaskOutcome, completedAt time.Time) JobRecord {
	rec := JobRecord{
		RequestID:   job.RequestID,
		FileName:    job.FileName,
		SpeakerID:   job.SpeakerID,
		Text:        job.Text,
		Status:      outcome.Status,
		OutputPath:  outcome.OutputPath,
		SubmittedAt: job.SubmittedAt,
		CompletedAt: completedAt,
		DurationMS:  outcome.Duration.Milliseconds(),
	}
	if outcome.Err != nil {
		rec.Error = outcome.Err.Error()
	}
	return rec
}

// JobReply представляет строку ответа вызывающему процессу
type JobReply struct {
	RequestID string        `json:"RequestID"`
	FileName  string        `json:"FileName"`
	Status    OutcomeStatus `json:"Status"`
	Path      string        `json:"Path,omitempty"`
	Error     string        `json:"Error,omitempty"`
}
