package coord

import (
	"errors"
	"fmt"
)

// Ошибки координационного сервиса.
var (
	// ErrCoordination — общая категория ошибок координационного сервиса.
	ErrCoordination = errors.New("coordination error")

	// ErrEntryNotFound — entry с таким ключом нет.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrEntryExists — create по уже существующему ключу.
	ErrEntryExists = errors.New("entry already exists")

	// ErrNoRecipients — send_variable без получателей.
	ErrNoRecipients = errors.New("no recipients")
)

// CoordinationError — ошибка вызова координационного сервиса.
type CoordinationError struct {
	Op  string // create_entry, read_entry, send_variable, ...
	Key string // ключ entry или имя переменной
	Err error
}

// Error реализует интерфейс error.
func (e *CoordinationError) Error() string {
	return fmt.Sprintf("coordination %s %q: %v", e.Op, e.Key, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *CoordinationError) Unwrap() error {
	return e.Err
}

// Is позволяет матчить любую CoordinationError через errors.Is(err, ErrCoordination).
func (e *CoordinationError) Is(target error) bool {
	return target == ErrCoordination
}

func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &CoordinationError{Op: op, Key: key, Err: err}
}
