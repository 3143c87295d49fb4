package command

import (
	"errors"
	"fmt"
)

// Виды ошибок разбора команды
var (
	// ErrMalformed означает синтаксически некорректную строку
	ErrMalformed = errors.New("некорректный формат команды")

	// ErrUnknownCommand означает отсутствующее или неизвестное поле Task
	ErrUnknownCommand = errors.New("неизвестная команда")

	// ErrSourceUnavailable означает недоступный пакетный источник
	ErrSourceUnavailable = errors.New("пакетный источник недоступен")

	// ErrInvalidField означает отсутствующее или некорректное поле задания
	ErrInvalidField = errors.New("некорректное поле задания")
)

// DecodeError описывает ошибку разбора одной строки протокола
type DecodeError struct {
	Kind error
	Line string
	Err  error
}

func newDecodeError(kind error, line string, err error) *DecodeError {
	return &DecodeError{Kind: kind, Line: line, Err: err}
}

// Error реализует интерфейс error
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

// Unwrap возвращает исходную ошибку
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is позволяет сравнивать ошибку с видом через errors.Is
func (e *DecodeError) Is(target error) bool {
	return e.Kind == target
}

// KindLabel возвращает короткую метку вида ошибки для метрик
func KindLabel(err error) string {
	switch {
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrInvalidField):
		return "invalid_field"
	default:
		return "other"
	}
}
