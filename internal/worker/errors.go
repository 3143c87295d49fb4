package worker

import (
	"fmt"

	"game-tts/pkg/models"
)

// Stage определяет этап задания, на котором произошла ошибка
type Stage string

const (
	StageSynthesize Stage = "synthesize"
	StageSave       Stage = "save"
	StagePanic      Stage = "panic"
)

// ExecutionError описывает ошибку выполнения задания
type ExecutionError struct {
	Stage Stage
	Job   models.Job
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("задание %s (голос %d) завершилось ошибкой на этапе %s: %v",
		e.Job.FileName, e.Job.SpeakerID, e.Stage, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
