package tts

import (
	"context"
	"errors"
	"fmt"

	"game-tts/pkg/models"
)

// ErrSynthesizerUnavailable возвращается, если сервис синтеза не удалось инициализировать
var ErrSynthesizerUnavailable = errors.New("сервис синтеза недоступен")

// Synthesizer представляет интерфейс для Text-to-Speech сервиса
type Synthesizer interface {
	// Synthesize преобразует текст в моно сэмплы для заданного голоса
	Synthesize(ctx context.Context, text string, speakerID int, params models.SpeechParams) (models.AudioClip, error)
}

var (
	_ Synthesizer = (*HTTPService)(nil)
	_ Synthesizer = Unavailable{}
)

// Unavailable используется в деградированном режиме: каждое задание завершается ошибкой
type Unavailable struct {
	Cause error
}

// Synthesize всегда возвращает ErrSynthesizerUnavailable
func (u Unavailable) Synthesize(context.Context, string, int, models.SpeechParams) (models.AudioClip, error) {
	if u.Cause != nil {
		return models.AudioClip{}, fmt.Errorf("%w: %v", ErrSynthesizerUnavailable, u.Cause)
	}
	return models.AudioClip{}, ErrSynthesizerUnavailable
}
