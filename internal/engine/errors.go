package engine

import (
	"errors"
	"fmt"
)

// Ошибки конфигурации (playbook-документ).
var (
	// ErrConfig — документ некорректен или неполон.
	ErrConfig = errors.New("invalid playbook config")

	// ErrPlaybookDisabled — таблица package есть, но use_playbook != true.
	ErrPlaybookDisabled = errors.New("use_playbook must be set to true to activate playbook")

	// ErrMissingField — отсутствует обязательное поле.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidType — поле имеет неверный тип.
	ErrInvalidType = errors.New("invalid field type")

	// ErrUnknownField — в шаге есть поле, которое не относится ни к одному действию.
	ErrUnknownField = errors.New("unknown step field")

	// ErrAmbiguousStep — шаг содержит поля нескольких семейств действий.
	ErrAmbiguousStep = errors.New("step mixes several actions")

	// ErrUnrecognizedStep — в шаге нет ни одного действия.
	ErrUnrecognizedStep = errors.New("no matching step action")

	// ErrInvalidBounds — min_num больше max_num или отрицателен.
	ErrInvalidBounds = errors.New("invalid participant bounds")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplate — общая категория ошибок шаблона.
	ErrTemplate = errors.New("template error")

	// ErrUnknownBinding — имя плейсхолдера не найдено среди bindings.
	ErrUnknownBinding = errors.New("unknown template binding")

	// ErrMalformedPlaceholder — синтаксическая ошибка в {{ ... }}.
	ErrMalformedPlaceholder = errors.New("malformed placeholder")

	// ErrRangeOutOfBounds — диапазон выходит за длину значения.
	ErrRangeOutOfBounds = errors.New("range out of bounds")
)

// ConfigError — ошибка документа с указанием места.
type ConfigError struct {
	Protocol string // имя таблицы протокола
	Role     string // имя роли
	Step     int    // индекс шага, -1 если ошибка не в шаге
	Field    string // поле, вызвавшее ошибку
	Message  string // описание ошибки
	Err      error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ConfigError) Error() string {
	loc := ""
	if e.Protocol != "" {
		loc = e.Protocol
	}
	if e.Role != "" {
		loc += "." + e.Role
	}
	if e.Step >= 0 {
		loc += fmt.Sprintf(".steps[%d]", e.Step)
	}
	if e.Field != "" {
		if loc != "" {
			loc += "."
		}
		loc += e.Field
	}
	if loc == "" {
		return "playbook: " + e.Message
	}
	return "playbook: " + loc + ": " + e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is позволяет матчить любую ConfigError через errors.Is(err, ErrConfig).
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// newConfigError создаёт ошибку вне шагов.
func newConfigError(protocol, role, field, message string, err error) *ConfigError {
	return &ConfigError{
		Protocol: protocol,
		Role:     role,
		Step:     -1,
		Field:    field,
		Message:  message,
		Err:      err,
	}
}

// TemplateError — ошибка рендеринга шаблона.
type TemplateError struct {
	Template string // исходная строка
	Pos      int    // байтовое смещение начала плейсхолдера
	Message  string
	Err      error
}

// Error реализует интерфейс error.
func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q at %d: %s", e.Template, e.Pos, e.Message)
}

// Unwrap возвращает базовую ошибку.
func (e *TemplateError) Unwrap() error {
	return e.Err
}

// Is позволяет матчить любую TemplateError через errors.Is(err, ErrTemplate).
func (e *TemplateError) Is(target error) bool {
	return target == ErrTemplate
}
