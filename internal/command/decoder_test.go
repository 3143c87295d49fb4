package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubBatchReader возвращает заранее заданные записи
type stubBatchReader struct {
	records []BatchRecord
	err     error
	paths   []string
}

func (s *stubBatchReader) ReadBatch(_ context.Context, path string) ([]BatchRecord, error) {
	s.paths = append(s.paths, path)
	return s.records, s.err
}

func newTestDecoder(batch BatchReader) *Decoder {
	if batch == nil {
		batch = &stubBatchReader{}
	}
	return NewDecoder(batch, 0, zap.NewNop())
}

func TestDecode_SynthText(t *testing.T) {
	d := newTestDecoder(nil)

	cmd, err := d.Decode(context.Background(), `{"Task":"synth_text","SpeakerID":44,"InputText":"Das ist ein Test.","FileName":"tmp_file_44"}`)
	require.NoError(t, err)

	texts := Texts(cmd)
	require.Len(t, texts, 1)
	assert.Equal(t, KindSynthesizeText, cmd.Kind())
	assert.Equal(t, 44, texts[0].SpeakerID)
	assert.Equal(t, "Das ist ein Test.", texts[0].Text)
	assert.Equal(t, "tmp_file_44", texts[0].FileNameHint)
	assert.NotEmpty(t, texts[0].RequestID)
}

func TestDecode_FieldAliases(t *testing.T) {
	d := newTestDecoder(nil)

	cmd, err := d.Decode(context.Background(), `{"Task":"SynthText","VoiceID":"7","Voice":"gothic_held","Text":"Hallo","RequestID":"req-1","Speed":1.3}`)
	require.NoError(t, err)

	text, ok := cmd.(SynthesizeText)
	require.True(t, ok)
	assert.Equal(t, 7, text.SpeakerID)
	assert.Equal(t, "gothic_held", text.Voice)
	assert.Equal(t, "Hallo", text.Text)
	assert.Equal(t, "req-1", text.RequestID)
	require.NotNil(t, text.Params.Speed)
	assert.Equal(t, 1.3, *text.Params.Speed)
	assert.Nil(t, text.Params.VarianceA)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind error
	}{
		{name: "неизвестная задача", line: `{"Task":"bogus"}`, kind: ErrUnknownCommand},
		{name: "нет поля Task", line: `{"SpeakerID":1,"Text":"x"}`, kind: ErrUnknownCommand},
		{name: "пустое поле Task", line: `{"Task":""}`, kind: ErrUnknownCommand},
		{name: "битый JSON", line: `{"Task":"synth_text",`, kind: ErrMalformed},
		{name: "не объект", line: `hello`, kind: ErrMalformed},
		{name: "пустой текст", line: `{"Task":"synth_text","SpeakerID":1,"InputText":"   "}`, kind: ErrInvalidField},
		{name: "нет голоса", line: `{"Task":"synth_text","InputText":"Hallo"}`, kind: ErrInvalidField},
		{name: "голос не число", line: `{"Task":"synth_text","SpeakerID":"abc","InputText":"Hallo"}`, kind: ErrInvalidField},
		{name: "отрицательный голос", line: `{"Task":"synth_text","SpeakerID":-1,"InputText":"Hallo"}`, kind: ErrInvalidField},
		{name: "нулевая скорость", line: `{"Task":"synth_text","SpeakerID":1,"InputText":"Hallo","Speed":0}`, kind: ErrInvalidField},
		{name: "пакет без пути", line: `{"Task":"synth_csv"}`, kind: ErrSourceUnavailable},
	}

	d := newTestDecoder(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := d.Decode(context.Background(), tt.line)
			require.Error(t, err)
			assert.Nil(t, cmd)
			assert.True(t, errors.Is(err, tt.kind), "ожидалась ошибка %v, получена %v", tt.kind, err)

			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, tt.kind, decodeErr.Kind)
		})
	}
}

func TestDecode_UnknownCommandYieldsNoTexts(t *testing.T) {
	d := newTestDecoder(nil)

	cmd, err := d.Decode(context.Background(), `{"Task":"bogus"}`)
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Empty(t, Texts(cmd))
	assert.Equal(t, "unknown_command", KindLabel(err))
}

func TestDecode_SpeakerCountLimit(t *testing.T) {
	d := NewDecoder(&stubBatchReader{}, 133, zap.NewNop())

	_, err := d.Decode(context.Background(), `{"Task":"synth_text","SpeakerID":132,"InputText":"ok"}`)
	assert.NoError(t, err)

	_, err = d.Decode(context.Background(), `{"Task":"synth_text","SpeakerID":133,"InputText":"zu viel"}`)
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestDecode_ExitAndSetting(t *testing.T) {
	d := newTestDecoder(nil)

	cmd, err := d.Decode(context.Background(), `{"Task":"exit"}`)
	require.NoError(t, err)
	assert.Equal(t, Exit{}, cmd)

	cmd, err = d.Decode(context.Background(), `{"Task":"SynthExit"}`)
	require.NoError(t, err)
	assert.Equal(t, KindExit, cmd.Kind())

	cmd, err = d.Decode(context.Background(), `{"Task":"synth_setting","Key":"speed","Value":1.2}`)
	require.NoError(t, err)
	assert.Equal(t, UpdateSetting{Key: "speed", Value: "1.2"}, cmd)
	assert.Empty(t, Texts(cmd))
}

func TestDecode_BatchExpansion(t *testing.T) {
	reader := &stubBatchReader{records: []BatchRecord{
		{Line: 1, SpeakerID: 3, Text: "Erste Zeile", FileName: "a"},
		{Line: 2, SpeakerID: 4, Text: ""},
		{Line: 3, SpeakerID: 5, Text: "Dritte Zeile", Voice: "risen"},
	}}
	d := newTestDecoder(reader)

	cmd, err := d.Decode(context.Background(), `{"Task":"synth_csv","CsvPath":"lines.csv","Voice":"gothic","RequestID":"batch-1"}`)
	require.NoError(t, err)

	batch, ok := cmd.(SynthesizeBatch)
	require.True(t, ok)
	assert.Equal(t, []string{"lines.csv"}, reader.paths)
	assert.Equal(t, "lines.csv", batch.SourcePath)
	require.Len(t, batch.Items, 2)

	assert.Equal(t, 3, batch.Items[0].SpeakerID)
	assert.Equal(t, "gothic", batch.Items[0].Voice)
	assert.Equal(t, "a", batch.Items[0].FileNameHint)
	assert.Equal(t, "batch-1", batch.Items[0].RequestID)

	assert.Equal(t, 5, batch.Items[1].SpeakerID)
	assert.Equal(t, "risen", batch.Items[1].Voice)
}

func TestDecode_BatchEmptySourceIsNotAnError(t *testing.T) {
	d := newTestDecoder(&stubBatchReader{})

	cmd, err := d.Decode(context.Background(), `{"Task":"synth_csv","CsvPath":"empty.csv"}`)
	require.NoError(t, err)
	assert.Empty(t, Texts(cmd))
}

func TestDecode_BatchUnavailableSource(t *testing.T) {
	d := newTestDecoder(&stubBatchReader{err: os.ErrNotExist})

	_, err := d.Decode(context.Background(), `{"Task":"synth_csv","CsvPath":"missing.csv"}`)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecode_BatchFromCSVFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.csv")
	content := "speaker_id,text,file_name\n12,\"Hallo, Welt\",gruss\n13,Zweite Zeile\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	d := newTestDecoder(NewCSVBatchReader(zap.NewNop()))
	cmd, err := d.Decode(context.Background(), `{"Task":"synth_csv","CsvPath":"`+filepath.ToSlash(path)+`"}`)
	require.NoError(t, err)

	texts := Texts(cmd)
	require.Len(t, texts, 2)
	assert.Equal(t, "Hallo, Welt", texts[0].Text)
	assert.Equal(t, "gruss", texts[0].FileNameHint)
	assert.Equal(t, 13, texts[1].SpeakerID)
	assert.Equal(t, texts[0].RequestID, texts[1].RequestID)
}
