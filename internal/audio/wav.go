package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Масштаб сэмплов модели: выход лежит в диапазоне [-1.414, 1.414]
const (
	sampleScale   = 1.414
	maxAmplitude  = 32767
	bitsPerSample = 16
	numChannels   = 1
	wavHeaderSize = 44
)

// ToPCM16 переводит сэмплы модели в 16-битный PCM с ограничением амплитуды
func ToPCM16(samples []float32) []int16 {
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s) / sampleScale * maxAmplitude
		switch {
		case math.IsNaN(v):
			v = 0
		case v > maxAmplitude:
			v = maxAmplitude
		case v < -maxAmplitude:
			v = -maxAmplitude
		}
		pcm[i] = int16(v)
	}
	return pcm
}

// EncodeWAV пишет моно WAV 16-bit PCM
func EncodeWAV(w io.Writer, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("некорректная частота дискретизации: %d", sampleRate)
	}

	pcm := ToPCM16(samples)
	blockAlign := numChannels * bitsPerSample / 8
	dataSize := uint32(len(pcm) * blockAlign)

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataSize)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], numChannels)
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("ошибка записи заголовка WAV: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, pcm); err != nil {
		return fmt.Errorf("ошибка записи сэмплов WAV: %w", err)
	}
	return nil
}
