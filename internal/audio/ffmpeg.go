package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Converter перекодирует WAV в другой формат через FFmpeg
type Converter struct {
	ffmpegPath string
	logger     *zap.Logger
}

// NewConverter создает новый конвертер
func NewConverter(ffmpegPath string, logger *zap.Logger) *Converter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Converter{
		ffmpegPath: ffmpegPath,
		logger:     logger,
	}
}

// Available проверяет, что FFmpeg установлен
func (c *Converter) Available() error {
	if _, err := exec.LookPath(c.ffmpegPath); err != nil {
		return fmt.Errorf("FFmpeg не найден (%s): %w", c.ffmpegPath, err)
	}
	return nil
}

// ToOGG конвертирует WAV файл в OGG Vorbis
func (c *Converter) ToOGG(ctx context.Context, inputFile, outputFile string) error {
	c.logger.Debug("конвертируем аудио в OGG",
		zap.String("input", inputFile),
		zap.String("output", outputFile))

	cmd := exec.CommandContext(ctx, c.ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", inputFile,
		"-c:a", "libvorbis",
		"-q:a", "5",
		outputFile)

	// FFmpeg пишет диагностику в stderr
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ошибка конвертации FFmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
