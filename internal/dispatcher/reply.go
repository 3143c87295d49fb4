package dispatcher

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"game-tts/pkg/models"
)

// Маркеры, которые ожидает вызывающий процесс
const (
	MarkerRequestsSent  = "All task requests sent"
	MarkerWorkCompleted = "All work completed"
)

// ReplyWriter передает результаты заданий вызывающему процессу
type ReplyWriter interface {
	WriteReply(reply models.JobReply) error
	WriteMarker(marker string) error
}

// JSONReplyWriter пишет по одной JSON строке на задание
type JSONReplyWriter struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewJSONReplyWriter создает новый писатель ответов
func NewJSONReplyWriter(w io.Writer) *JSONReplyWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONReplyWriter{w: w, enc: enc}
}

// WriteReply пишет строку результата задания
func (r *JSONReplyWriter) WriteReply(reply models.JobReply) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.enc.Encode(reply); err != nil {
		return fmt.Errorf("ошибка записи ответа: %w", err)
	}
	return nil
}

// WriteMarker пишет служебную строку протокола
func (r *JSONReplyWriter) WriteMarker(marker string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := fmt.Fprintln(r.w, marker); err != nil {
		return fmt.Errorf("ошибка записи маркера: %w", err)
	}
	return nil
}

// NewReply собирает ответ по заданию и его результату
func NewReply(job models.Job, outcome models.TaskOutcome) models.JobReply {
	reply := models.JobReply{
		RequestID: job.RequestID,
		FileName:  job.FileName,
		Status:    outcome.Status,
		Path:      outcome.OutputPath,
	}
	if outcome.Err != nil {
		reply.Error = outcome.Err.Error()
	}
	return reply
}
