package jobs

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"game-tts/internal/command"
	"game-tts/pkg/models"
)

const (
	defaultPrefix   = "tts"
	maxPrefixLength = 64
	stampLayout     = "20060102150405"
)

// Factory превращает команды синтеза в задания очереди.
// Время постановки строго возрастает между вызовами, поэтому имена файлов
// не совпадают даже при одновременной постановке и грубых часах.
type Factory struct {
	mu     sync.Mutex
	now    func() time.Time
	last   time.Time
	nextID uint64
}

// NewFactory создает новую фабрику заданий
func NewFactory() *Factory {
	return &Factory{now: time.Now}
}

// NewFactoryWithClock создает фабрику с заданным источником времени
func NewFactoryWithClock(now func() time.Time) *Factory {
	return &Factory{now: now}
}

// FromCommand возвращает задания для всех реплик команды
func (f *Factory) FromCommand(cmd command.Command) []models.Job {
	texts := command.Texts(cmd)
	if len(texts) == 0 {
		return nil
	}

	jobs := make([]models.Job, 0, len(texts))
	for _, text := range texts {
		jobs = append(jobs, f.NewJob(text))
	}
	return jobs
}

// NewJob создает задание с уникальным именем выходного файла
func (f *Factory) NewJob(text command.SynthesizeText) models.Job {
	id, submittedAt := f.stamp()

	prefix := sanitize(text.FileNameHint)
	if prefix == "" {
		prefix = sanitize(text.Voice)
	}
	if prefix == "" {
		prefix = defaultPrefix
	}

	return models.Job{
		ID:          id,
		RequestID:   text.RequestID,
		SpeakerID:   text.SpeakerID,
		Voice:       text.Voice,
		Text:        text.Text,
		FileName:    FileName(prefix, text.SpeakerID, submittedAt),
		Params:      text.Params,
		SubmittedAt: submittedAt,
	}
}

// stamp выдает следующий идентификатор и строго возрастающее время постановки
func (f *Factory) stamp() (uint64, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := f.now().Round(0)
	if !t.After(f.last) {
		t = f.last.Add(time.Nanosecond)
	}
	f.last = t
	f.nextID++
	return f.nextID, t
}

// FileName строит имя выходного файла без расширения
func FileName(prefix string, speakerID int, submittedAt time.Time) string {
	return strings.Join([]string{
		prefix,
		strconv.Itoa(speakerID),
		submittedAt.Format(stampLayout) + fmt.Sprintf("%09d", submittedAt.Nanosecond()),
	}, "_")
}

// sanitize оставляет от подсказки только безопасное для файловой системы имя
func sanitize(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return ""
	}
	base := filepath.Base(filepath.ToSlash(hint))
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	count := 0
	for _, r := range base {
		if count >= maxPrefixLength {
			break
		}
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
		count++
	}
	return strings.Trim(b.String(), "_")
}
