package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"game-tts/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestToPCM16(t *testing.T) {
	pcm := ToPCM16([]float32{0, 1.414, -1.414, 5, -5, 0.707})

	assert.Equal(t, int16(0), pcm[0])
	assert.Equal(t, int16(32767), pcm[1])
	assert.Equal(t, int16(-32767), pcm[2])
	assert.Equal(t, int16(32767), pcm[3])
	assert.Equal(t, int16(-32767), pcm[4])
	assert.InDelta(t, 16383, pcm[5], 1)
}

func TestEncodeWAV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeWAV(&buf, []float32{0, 1.414, -1.414}, 22050))

	data := buf.Bytes()
	require.Len(t, data, 44+3*2)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, uint32(36+6), binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[22:24]))
	assert.Equal(t, uint32(22050), binary.LittleEndian.Uint32(data[24:28]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(data[34:36]))
	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(data[40:44]))
	assert.Equal(t, int16(32767), int16(binary.LittleEndian.Uint16(data[46:48])))

	assert.Error(t, EncodeWAV(&buf, []float32{0}, 0))
}

func TestWriter_SaveWAV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w, err := NewWriter(dir, "WAV", 22050, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, dir, w.Dir())

	path, err := w.Save(context.Background(), "tts_44_20240101000000000000001", models.AudioClip{
		Samples: []float32{0.1, 0.2, 0.3},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tts_44_20240101000000000000001.wav"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(44+6), info.Size())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "временные файлы не должны оставаться")
}

func TestWriter_SaveErrors(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, FormatWAV, 0, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = w.Save(context.Background(), "", models.AudioClip{Samples: []float32{0}})
	assert.Error(t, err)

	_, err = w.Save(context.Background(), "../escape", models.AudioClip{Samples: []float32{0}})
	assert.Error(t, err)

	_, err = w.Save(context.Background(), "empty", models.AudioClip{})
	assert.Error(t, err)

	// без частоты дискретизации файл не пишется
	_, err = w.Save(context.Background(), "norate", models.AudioClip{Samples: []float32{0}})
	assert.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewWriter_Validation(t *testing.T) {
	_, err := NewWriter(t.TempDir(), "mp3", 22050, nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewWriter(t.TempDir(), FormatOGG, 22050, nil, zap.NewNop())
	assert.Error(t, err)

	w, err := NewWriter(t.TempDir(), "", 22050, nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, FormatWAV, w.Format())
}

func TestWriter_SaveOGGFailureRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	converter := NewConverter(filepath.Join(dir, "no-such-ffmpeg"), zap.NewNop())
	assert.Error(t, converter.Available())

	w, err := NewWriter(dir, FormatOGG, 22050, converter, zap.NewNop())
	require.NoError(t, err)

	_, err = w.Save(context.Background(), "clip", models.AudioClip{Samples: []float32{0.1}, SampleRate: 22050})
	assert.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
