package tracker

import "errors"

// Ошибки трекера.
var (
	// ErrTaskAlreadyTracked — task уже отслеживается.
	ErrTaskAlreadyTracked = errors.New("task already being tracked")

	// ErrTaskNotTracked — task не найден среди отслеживаемых.
	ErrTaskNotTracked = errors.New("task not tracked")

	// ErrUnexpectedUser — итог от пользователя, который не участвует в task.
	ErrUnexpectedUser = errors.New("completion from unexpected user")
)
