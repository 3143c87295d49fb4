package intake

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"game-tts/internal/command"
	"game-tts/internal/dispatcher"
	"game-tts/internal/jobs"
	"game-tts/internal/metrics"
	"game-tts/pkg/models"

	"go.uber.org/zap"
)

// MaxLineSize максимальная длина строки протокола
const MaxLineSize = 1 << 20

// Sink принимает задания и команду завершения
type Sink interface {
	Enqueue(jobs ...models.Job) error
	Exit()
}

// MarkerWriter отправляет служебные строки протокола
type MarkerWriter interface {
	WriteMarker(marker string) error
}

// Listener читает команды из входного потока и ставит задания в очередь
type Listener struct {
	decoder *command.Decoder
	factory *jobs.Factory
	sink    Sink
	markers MarkerWriter
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewListener создает новый обработчик входного потока. metrics может быть nil.
func NewListener(decoder *command.Decoder, factory *jobs.Factory, sink Sink, markers MarkerWriter, m *metrics.Metrics, logger *zap.Logger) *Listener {
	return &Listener{
		decoder: decoder,
		factory: factory,
		sink:    sink,
		markers: markers,
		metrics: m,
		logger:  logger,
	}
}

// Run читает строки до команды exit или конца потока и затем запускает дренаж.
// Ошибки разбора отдельных строк не прерывают чтение.
// Маркер окончания приема отправляется только при закрытии входного потока.
func (l *Listener) Run(ctx context.Context, r io.Reader) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	defer l.sink.Exit()

	lines := 0
	for {
		raw, tooLong, readErr := readLine(reader)
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			l.logger.Error("ошибка чтения входного потока", zap.Error(readErr))
			return fmt.Errorf("ошибка чтения входного потока: %w", readErr)
		}
		if ctx.Err() != nil {
			l.logger.Info("прием команд прерван", zap.Error(ctx.Err()))
			return nil
		}

		if tooLong {
			lines++
			l.rejectLong(raw)
		} else if line := strings.TrimSpace(raw); line != "" {
			lines++
			l.logger.Debug("получена строка", zap.Int("n", lines), zap.String("line", line))

			stop, err := l.handle(ctx, line)
			if err != nil {
				return err
			}
			if stop {
				l.logger.Info("получена команда exit, прием команд завершен", zap.Int("lines", lines))
				return nil
			}
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
	}

	l.logger.Info("входной поток закрыт, прием команд завершен", zap.Int("lines", lines))
	if err := l.markers.WriteMarker(dispatcher.MarkerRequestsSent); err != nil {
		l.logger.Error("не удалось отправить маркер окончания приема", zap.Error(err))
	}
	return nil
}

// readLine читает строку без перевода строки.
// Если строка длиннее MaxLineSize, её остаток пропускается, а tooLong выставляется;
// в этом случае возвращается только начало строки.
func readLine(r *bufio.Reader) (string, bool, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		data := chunk
		if err == nil {
			data = chunk[:len(chunk)-1]
		}
		if !tooLong {
			if len(buf)+len(data) > MaxLineSize {
				tooLong = true
				buf = buf[:min(len(buf), 64)]
			} else {
				buf = append(buf, data...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(buf), tooLong, err
	}
}

// rejectLong учитывает слишком длинную строку как ошибку разбора
func (l *Listener) rejectLong(prefix string) {
	err := &command.DecodeError{
		Kind: command.ErrMalformed,
		Line: prefix,
		Err:  fmt.Errorf("строка длиннее %d байт", MaxLineSize),
	}
	kind := command.KindLabel(err)
	if l.metrics != nil {
		l.metrics.RecordDecodeError(kind)
	}
	l.logger.Error("не удалось разобрать команду",
		zap.String("kind", kind),
		zap.Error(err))
}

// handle обрабатывает одну строку и сообщает, нужно ли прекратить прием
func (l *Listener) handle(ctx context.Context, line string) (bool, error) {
	cmd, err := l.decoder.Decode(ctx, line)
	if err != nil {
		kind := command.KindLabel(err)
		if l.metrics != nil {
			l.metrics.RecordDecodeError(kind)
		}
		l.logger.Error("не удалось разобрать команду",
			zap.String("kind", kind),
			zap.Error(err))
		return false, nil
	}

	if l.metrics != nil {
		l.metrics.RecordCommand(string(cmd.Kind()))
	}

	switch c := cmd.(type) {
	case command.Exit:
		return true, nil
	case command.UpdateSetting:
		l.logger.Info("команда настройки пока не поддерживается",
			zap.String("key", c.Key),
			zap.String("value", c.Value))
		return false, nil
	}

	queued := l.factory.FromCommand(cmd)
	if len(queued) == 0 {
		l.logger.Info("команда не содержит заданий", zap.String("task", string(cmd.Kind())))
		return false, nil
	}

	if err := l.sink.Enqueue(queued...); err != nil {
		if errors.Is(err, dispatcher.ErrNotAccepting) {
			l.logger.Warn("диспетчер больше не принимает задания", zap.Int("dropped", len(queued)))
			return true, nil
		}
		return false, fmt.Errorf("ошибка постановки заданий: %w", err)
	}

	l.logger.Info("задания поставлены в очередь",
		zap.String("task", string(cmd.Kind())),
		zap.String("request_id", queued[0].RequestID),
		zap.Int("count", len(queued)))
	return false, nil
}
