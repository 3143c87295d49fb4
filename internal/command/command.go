package command

import (
	"strings"

	"game-tts/pkg/models"
)

// Kind определяет тип команды протокола
type Kind string

const (
	KindExit            Kind = "exit"
	KindSynthesizeText  Kind = "synth_text"
	KindSynthesizeBatch Kind = "synth_csv"
	KindUpdateSetting   Kind = "synth_setting"
)

// legacyKinds содержит старые имена задач, которые до сих пор присылает GUI
var legacyKinds = map[string]Kind{
	"synthexit":    KindExit,
	"synthtext":    KindSynthesizeText,
	"synthcsv":     KindSynthesizeBatch,
	"synthsetting": KindUpdateSetting,
}

// ParseKind разбирает значение поля Task
func ParseKind(task string) (Kind, bool) {
	normalized := strings.ToLower(strings.TrimSpace(task))
	switch Kind(normalized) {
	case KindExit, KindSynthesizeText, KindSynthesizeBatch, KindUpdateSetting:
		return Kind(normalized), true
	}
	kind, ok := legacyKinds[normalized]
	return kind, ok
}

// Command представляет разобранную и проверенную команду
type Command interface {
	Kind() Kind
}

// Exit завершает прием команд и запускает дренаж очереди
type Exit struct{}

func (Exit) Kind() Kind { return KindExit }

// SynthesizeText запрашивает синтез одной реплики
type SynthesizeText struct {
	RequestID    string
	SpeakerID    int
	Voice        string
	Text         string
	FileNameHint string
	Params       models.SpeechOverrides
}

func (SynthesizeText) Kind() Kind { return KindSynthesizeText }

// SynthesizeBatch содержит реплики, прочитанные из пакетного источника
type SynthesizeBatch struct {
	SourcePath string
	Items      []SynthesizeText
}

func (SynthesizeBatch) Kind() Kind { return KindSynthesizeBatch }

// UpdateSetting зарезервирована для изменения настроек и пока ничего не делает
type UpdateSetting struct {
	Key   string
	Value string
}

func (UpdateSetting) Kind() Kind { return KindUpdateSetting }

// Texts возвращает все реплики синтеза, содержащиеся в команде
func Texts(cmd Command) []SynthesizeText {
	switch c := cmd.(type) {
	case SynthesizeText:
		return []SynthesizeText{c}
	case SynthesizeBatch:
		return c.Items
	default:
		return nil
	}
}
