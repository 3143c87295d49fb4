package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"game-tts/pkg/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// speakerField принимает идентификатор голоса как числом, так и строкой
type speakerField struct {
	set   bool
	valid bool
	value int
	raw   string
}

// UnmarshalJSON не возвращает ошибку на некорректном значении, чтобы
// отличать некорректное поле от синтаксически неверной строки
func (f *speakerField) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	f.set = true
	f.raw = string(data)

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if v, err := strconv.Atoi(n.String()); err == nil {
			f.value, f.valid = v, true
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.raw = s
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			f.value, f.valid = v, true
		}
	}
	return nil
}

// rawCommand описывает строку протокола в том виде, в каком ее присылает клиент
type rawCommand struct {
	Task      *string         `json:"Task"`
	RequestID string          `json:"RequestID"`
	SpeakerID speakerField    `json:"SpeakerID"`
	VoiceID   speakerField    `json:"VoiceID"`
	Voice     string          `json:"Voice"`
	InputText string          `json:"InputText"`
	Text      string          `json:"Text"`
	FileName  string          `json:"FileName"`
	CsvPath   string          `json:"CsvPath"`
	Path      string          `json:"Path"`
	Speed     *float64        `json:"Speed"`
	VarianceA *float64        `json:"VarianceA"`
	VarianceB *float64        `json:"VarianceB"`
	Key       string          `json:"Key"`
	Value     json.RawMessage `json:"Value"`
}

func (r *rawCommand) speaker() speakerField {
	if r.SpeakerID.set {
		return r.SpeakerID
	}
	return r.VoiceID
}

func (r *rawCommand) text() string {
	if r.InputText != "" {
		return r.InputText
	}
	return r.Text
}

func (r *rawCommand) sourcePath() string {
	if r.CsvPath != "" {
		return r.CsvPath
	}
	return r.Path
}

func (r *rawCommand) overrides() models.SpeechOverrides {
	return models.SpeechOverrides{
		Speed:     r.Speed,
		VarianceA: r.VarianceA,
		VarianceB: r.VarianceB,
	}
}

func (r *rawCommand) requestID() string {
	if id := strings.TrimSpace(r.RequestID); id != "" {
		return id
	}
	return uuid.NewString()
}

// Decoder разбирает строки протокола в команды
type Decoder struct {
	batch        BatchReader
	speakerCount int
	logger       *zap.Logger
}

// NewDecoder создает новый декодер команд.
// speakerCount ограничивает допустимые идентификаторы голосов, 0 - без ограничения.
func NewDecoder(batch BatchReader, speakerCount int, logger *zap.Logger) *Decoder {
	return &Decoder{
		batch:        batch,
		speakerCount: speakerCount,
		logger:       logger,
	}
}

// Decode разбирает одну строку протокола
func (d *Decoder) Decode(ctx context.Context, line string) (Command, error) {
	line = strings.TrimSpace(line)

	var raw rawCommand
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, newDecodeError(ErrMalformed, line, err)
	}

	if raw.Task == nil || strings.TrimSpace(*raw.Task) == "" {
		return nil, newDecodeError(ErrUnknownCommand, line, fmt.Errorf("поле Task отсутствует"))
	}

	kind, ok := ParseKind(*raw.Task)
	if !ok {
		return nil, newDecodeError(ErrUnknownCommand, line, fmt.Errorf("значение Task %q не поддерживается", *raw.Task))
	}

	switch kind {
	case KindExit:
		return Exit{}, nil
	case KindUpdateSetting:
		return UpdateSetting{Key: raw.Key, Value: settingValue(raw.Value)}, nil
	case KindSynthesizeText:
		cmd, err := d.textCommand(&raw)
		if err != nil {
			return nil, newDecodeError(ErrInvalidField, line, err)
		}
		return cmd, nil
	case KindSynthesizeBatch:
		return d.batchCommand(ctx, &raw, line)
	default:
		return nil, newDecodeError(ErrUnknownCommand, line, fmt.Errorf("значение Task %q не поддерживается", *raw.Task))
	}
}

// textCommand собирает и проверяет команду синтеза одной реплики
func (d *Decoder) textCommand(raw *rawCommand) (SynthesizeText, error) {
	speaker := raw.speaker()
	if !speaker.set {
		return SynthesizeText{}, fmt.Errorf("поле SpeakerID отсутствует")
	}
	if !speaker.valid {
		return SynthesizeText{}, fmt.Errorf("поле SpeakerID %q не является числом", speaker.raw)
	}

	cmd := SynthesizeText{
		RequestID:    raw.requestID(),
		SpeakerID:    speaker.value,
		Voice:        strings.TrimSpace(raw.Voice),
		Text:         strings.TrimSpace(raw.text()),
		FileNameHint: strings.TrimSpace(raw.FileName),
		Params:       raw.overrides(),
	}
	if err := d.validate(cmd); err != nil {
		return SynthesizeText{}, err
	}
	return cmd, nil
}

// batchCommand читает пакетный источник и разворачивает его в реплики
func (d *Decoder) batchCommand(ctx context.Context, raw *rawCommand, line string) (Command, error) {
	path := strings.TrimSpace(raw.sourcePath())
	if path == "" {
		return nil, newDecodeError(ErrSourceUnavailable, line, fmt.Errorf("поле CsvPath отсутствует"))
	}

	records, err := d.batch.ReadBatch(ctx, path)
	if err != nil {
		return nil, newDecodeError(ErrSourceUnavailable, line, err)
	}

	requestID := raw.requestID()
	batch := SynthesizeBatch{
		SourcePath: path,
		Items:      make([]SynthesizeText, 0, len(records)),
	}
	for _, rec := range records {
		item := SynthesizeText{
			RequestID:    requestID,
			SpeakerID:    rec.SpeakerID,
			Voice:        rec.Voice,
			Text:         rec.Text,
			FileNameHint: rec.FileName,
			Params:       raw.overrides(),
		}
		if item.Voice == "" {
			item.Voice = strings.TrimSpace(raw.Voice)
		}
		if err := d.validate(item); err != nil {
			d.logger.Warn("пропускаем строку пакета",
				zap.String("path", path),
				zap.Int("line", rec.Line),
				zap.Error(err))
			continue
		}
		batch.Items = append(batch.Items, item)
	}

	d.logger.Info("пакет прочитан",
		zap.String("path", path),
		zap.Int("records", len(records)),
		zap.Int("items", len(batch.Items)))

	return batch, nil
}

// validate проверяет инварианты реплики синтеза
func (d *Decoder) validate(cmd SynthesizeText) error {
	if cmd.Text == "" {
		return fmt.Errorf("текст для синтеза пуст")
	}
	if cmd.SpeakerID < 0 {
		return fmt.Errorf("идентификатор голоса %d отрицательный", cmd.SpeakerID)
	}
	if d.speakerCount > 0 && cmd.SpeakerID >= d.speakerCount {
		return fmt.Errorf("идентификатор голоса %d вне диапазона [0, %d)", cmd.SpeakerID, d.speakerCount)
	}
	if p := cmd.Params.Speed; p != nil && *p <= 0 {
		return fmt.Errorf("скорость речи должна быть положительной, получено %v", *p)
	}
	return nil
}

// settingValue приводит значение настройки к строке
func settingValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
