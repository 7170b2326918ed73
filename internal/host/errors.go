package host

import "errors"

var (
	// ErrUnknownProtocol — протокола нет в загруженном документе.
	ErrUnknownProtocol = errors.New("protocol not found")

	// ErrUnknownEntry — имя <protocol>:<role> не зарегистрировано.
	ErrUnknownEntry = errors.New("entry not registered")

	// ErrNotParticipant — пользователь не занимает ни одной роли в task.
	ErrNotParticipant = errors.New("user is not a participant of task")

	// ErrNoParticipants — task без участников.
	ErrNoParticipants = errors.New("task has no participants")

	// ErrNoUser — хост запущен без user_id.
	ErrNoUser = errors.New("user id is not configured")
)
