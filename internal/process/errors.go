package process

import (
	"errors"
	"fmt"
)

// Ошибки супервизора.
var (
	// ErrProcess — общая категория ошибок процессов.
	ErrProcess = errors.New("process error")

	// ErrAlreadyRegistered — имя уже занято живой регистрацией.
	ErrAlreadyRegistered = errors.New("process already registered")

	// ErrNotRegistered — под этим именем нет зарегистрированного процесса.
	ErrNotRegistered = errors.New("process not registered")

	// ErrSpawn — команду не удалось запустить.
	ErrSpawn = errors.New("failed to spawn process")

	// ErrWait — ожидание процесса завершилось ошибкой.
	ErrWait = errors.New("failed to wait for process")

	// ErrExitCodeMismatch — результат не совпал с check_exit_code.
	ErrExitCodeMismatch = errors.New("unexpected exit code")

	// ErrSink — не удалось записать stdout/stderr/exit_code в файл.
	ErrSink = errors.New("failed to write process output")
)

// ProcessError — ошибка операции над процессом.
type ProcessError struct {
	Name   string // имя процесса (step_name)
	Op     string // launch, wait, kill, check
	Detail string
	Err    error
}

// Error реализует интерфейс error.
func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("process %q: %s: %v", e.Name, e.Op, e.Err)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Unwrap возвращает базовую ошибку.
func (e *ProcessError) Unwrap() error {
	return e.Err
}

// Is позволяет матчить любую ProcessError через errors.Is(err, ErrProcess).
func (e *ProcessError) Is(target error) bool {
	return target == ErrProcess
}

// CheckExitCode сравнивает результат с ожидаемым кодом выхода.
// Совпадает только нормальное завершение с тем же кодом.
func CheckExitCode(name string, outcome Outcome, want int) error {
	if outcome.Matches(want) {
		return nil
	}
	return &ProcessError{
		Name:   name,
		Op:     "check",
		Detail: fmt.Sprintf("got %s, want exit %d", outcome, want),
		Err:    ErrExitCodeMismatch,
	}
}
