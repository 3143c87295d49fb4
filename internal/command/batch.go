package command

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// BatchRecord представляет одну строку пакетного источника
type BatchRecord struct {
	Line      int
	SpeakerID int
	Text      string
	FileName  string
	Voice     string
}

// BatchReader читает пакетный источник заданий
type BatchReader interface {
	// ReadBatch возвращает ошибку только если источник недоступен.
	// Пустой или частично нечитаемый источник дает ноль или меньше записей.
	ReadBatch(ctx context.Context, path string) ([]BatchRecord, error)
}

// CSVBatchReader читает пакет из CSV файла вида speaker_id,text[,file_name[,voice]]
type CSVBatchReader struct {
	logger *zap.Logger
}

// NewCSVBatchReader создает новый читатель CSV пакетов
func NewCSVBatchReader(logger *zap.Logger) *CSVBatchReader {
	return &CSVBatchReader{logger: logger}
}

// ReadBatch читает все корректные строки CSV файла
func (r *CSVBatchReader) ReadBatch(ctx context.Context, path string) ([]BatchRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка доступа к файлу %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("путь %s является директорией", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", path, err)
	}
	defer file.Close()

	return r.parse(ctx, path, file), nil
}

// parse разбирает CSV поток, пропуская строки, которые не удалось разобрать
func (r *CSVBatchReader) parse(ctx context.Context, path string, src io.Reader) []BatchRecord {
	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = false

	var records []BatchRecord
	for n := 1; ; n++ {
		if ctx.Err() != nil {
			r.logger.Warn("чтение пакета прервано", zap.String("path", path), zap.Error(ctx.Err()))
			return records
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				r.logger.Warn("пропускаем нечитаемую строку пакета",
					zap.String("path", path),
					zap.Int("line", parseErr.Line),
					zap.Error(err))
				continue
			}
			r.logger.Error("ошибка чтения пакета", zap.String("path", path), zap.Error(err))
			return records
		}

		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		line, _ := reader.FieldPos(0)

		speakerID, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(row[0], "\ufeff")))
		if err != nil {
			if n == 1 {
				// заголовок
				continue
			}
			r.logger.Warn("пропускаем строку пакета с некорректным speaker_id",
				zap.String("path", path),
				zap.Int("line", line),
				zap.String("value", row[0]))
			continue
		}

		rec := BatchRecord{Line: line, SpeakerID: speakerID}
		if len(row) > 1 {
			rec.Text = strings.TrimSpace(row[1])
		}
		if len(row) > 2 {
			rec.FileName = strings.TrimSpace(row[2])
		}
		if len(row) > 3 {
			rec.Voice = strings.TrimSpace(row[3])
		}
		records = append(records, rec)
	}

	return records
}
