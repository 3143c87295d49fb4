package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"game-tts/pkg/models"

	"go.uber.org/zap"
)

// DefaultSampleRate частота дискретизации модели, если сервис ее не сообщил
const DefaultSampleRate = 22050

// SampleRateHeader заголовок ответа с частотой дискретизации
const SampleRateHeader = "X-Sample-Rate"

// synthesizeRequest тело запроса к сервису синтеза
type synthesizeRequest struct {
	Text        string  `json:"text"`
	SpeakerID   int     `json:"speaker_id"`
	SpeechSpeed float64 `json:"speech_speed"`
	SpeechVarA  float64 `json:"speech_var_a"`
	SpeechVarB  float64 `json:"speech_var_b"`
}

// HTTPService предоставляет синтез речи через HTTP сервис модели
type HTTPService struct {
	logger  *zap.Logger
	baseURL string
	client  *http.Client
}

// NewHTTPService создает новый HTTP сервис синтеза. timeout 0 означает отсутствие таймаута.
func NewHTTPService(logger *zap.Logger, baseURL string, timeout time.Duration) *HTTPService {
	return &HTTPService{
		logger:  logger,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize преобразует текст в сэмплы через сервис модели
func (s *HTTPService) Synthesize(ctx context.Context, text string, speakerID int, params models.SpeechParams) (models.AudioClip, error) {
	s.logger.Debug("генерируем аудио",
		zap.Int("speaker_id", speakerID),
		zap.Int("text_length", len(text)))

	body, err := json.Marshal(synthesizeRequest{
		Text:        text,
		SpeakerID:   speakerID,
		SpeechSpeed: params.Speed,
		SpeechVarA:  params.VarianceA,
		SpeechVarB:  params.VarianceB,
	})
	if err != nil {
		return models.AudioClip{}, fmt.Errorf("ошибка кодирования запроса: %w", err)
	}

	url := s.baseURL + "/synthesize"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.AudioClip{}, fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return models.AudioClip{}, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return models.AudioClip{}, fmt.Errorf("неожиданный статус от сервиса синтеза: %d, тело: %s", resp.StatusCode, respBody)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.AudioClip{}, fmt.Errorf("ошибка чтения аудио данных: %w", err)
	}

	samples, err := decodeSamples(raw)
	if err != nil {
		return models.AudioClip{}, err
	}

	clip := models.AudioClip{
		Samples:    samples,
		SampleRate: sampleRate(resp.Header.Get(SampleRateHeader)),
	}

	s.logger.Debug("аудио успешно сгенерировано",
		zap.Int("speaker_id", speakerID),
		zap.Int("samples", len(samples)),
		zap.Duration("audio_length", clip.Duration()))

	return clip, nil
}

// HealthCheck проверяет доступность сервиса синтеза
func (s *HTTPService) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка отправки запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("нездоровый статус сервиса синтеза: %d", resp.StatusCode)
	}

	return nil
}

// decodeSamples разбирает little-endian float32 PCM
func decodeSamples(raw []byte) ([]float32, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("сервис синтеза вернул пустое аудио")
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("длина аудио данных %d не кратна размеру сэмпла", len(raw))
	}

	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}

func sampleRate(header string) int {
	rate, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || rate <= 0 {
		return DefaultSampleRate
	}
	return rate
}
