package audio

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"game-tts/pkg/models"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Поддерживаемые форматы выходных файлов
const (
	FormatWAV = "wav"
	FormatOGG = "ogg"
)

// Writer сохраняет синтезированный звук в выходной каталог
type Writer struct {
	dir        string
	format     string
	sampleRate int
	converter  *Converter
	logger     *zap.Logger
}

// NewWriter создает новый писатель аудио файлов.
// sampleRate используется, если клип не содержит частоты дискретизации.
func NewWriter(dir, format string, sampleRate int, converter *Converter, logger *zap.Logger) (*Writer, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatWAV
	}
	if format != FormatWAV && format != FormatOGG {
		return nil, fmt.Errorf("неподдерживаемый формат аудио: %s", format)
	}
	if format == FormatOGG && converter == nil {
		return nil, fmt.Errorf("для формата %s нужен конвертер", FormatOGG)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога %s: %w", dir, err)
	}

	return &Writer{
		dir:        dir,
		format:     format,
		sampleRate: sampleRate,
		converter:  converter,
		logger:     logger,
	}, nil
}

// Save пишет клип в файл <dir>/<fileName>.<format> и возвращает путь.
// При ошибке частично записанные файлы удаляются.
func (w *Writer) Save(ctx context.Context, fileName string, clip models.AudioClip) (string, error) {
	if fileName == "" || fileName != filepath.Base(fileName) {
		return "", fmt.Errorf("некорректное имя файла: %q", fileName)
	}
	if len(clip.Samples) == 0 {
		return "", fmt.Errorf("нет сэмплов для записи %s", fileName)
	}

	sampleRate := clip.SampleRate
	if sampleRate <= 0 {
		sampleRate = w.sampleRate
	}

	wavPath := filepath.Join(w.dir, fileName+"."+FormatWAV)
	if err := w.writeWAV(wavPath, clip.Samples, sampleRate); err != nil {
		return "", err
	}

	if w.format == FormatWAV {
		w.logger.Debug("аудио сохранено",
			zap.String("path", wavPath),
			zap.String("size", humanize.Bytes(uint64(wavHeaderSize+len(clip.Samples)*bitsPerSample/8))))
		return wavPath, nil
	}

	oggPath := filepath.Join(w.dir, fileName+"."+FormatOGG)
	defer os.Remove(wavPath)
	if err := w.converter.ToOGG(ctx, wavPath, oggPath); err != nil {
		os.Remove(oggPath)
		return "", err
	}

	w.logger.Debug("аудио сохранено", zap.String("path", oggPath))
	return oggPath, nil
}

// writeWAV пишет файл через временный файл и переименование
func (w *Writer) writeWAV(path string, samples []float32, sampleRate int) error {
	tmp, err := os.CreateTemp(w.dir, ".partial-*.wav")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := tmp.Name()

	buf := bufio.NewWriter(tmp)
	if err := EncodeWAV(buf, samples, sampleRate); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := buf.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи файла: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка переименования файла %s: %w", path, err)
	}
	return nil
}

// Dir возвращает выходной каталог
func (w *Writer) Dir() string {
	return w.dir
}

// Format возвращает формат выходных файлов
func (w *Writer) Format() string {
	return w.format
}
