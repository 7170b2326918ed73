package interpreter

import (
	"errors"
	"fmt"

	"github.com/shaiso/playbook/internal/domain"
)

// Ошибки invocation.
var (
	// ErrParticipantCount — число участников роли вне [min_num, max_num].
	ErrParticipantCount = errors.New("participant count out of range")

	// ErrParticipantIndex — index вне списка участников роли.
	ErrParticipantIndex = errors.New("participant index out of range")

	// ErrUnknownRole — роли нет в протоколе.
	ErrUnknownRole = errors.New("role not found in protocol")

	// ErrWorkdir — рабочую директорию не удалось подготовить.
	ErrWorkdir = errors.New("failed to prepare workdir")
)

// ParticipantCountError — нарушено ограничение на число участников роли.
type ParticipantCountError struct {
	Protocol string
	Role     string
	Count    int
	Min      int
	Max      int
}

// Error реализует интерфейс error.
func (e *ParticipantCountError) Error() string {
	upper := "unbounded"
	if e.Max != domain.Unbounded {
		upper = fmt.Sprint(e.Max)
	}
	return fmt.Sprintf("%s: %d participants with role %q, expected %d..%s",
		domain.EntryName(e.Protocol, e.Role), e.Count, e.Role, e.Min, upper)
}

// Is позволяет матчить через errors.Is(err, ErrParticipantCount).
func (e *ParticipantCountError) Is(target error) bool {
	return target == ErrParticipantCount
}

// ParticipantIndexError — обращение к несуществующему участнику роли.
type ParticipantIndexError struct {
	Role  string
	Index int
	Count int
}

// Error реализует интерфейс error.
func (e *ParticipantIndexError) Error() string {
	return fmt.Sprintf("participant index %d out of range: role %q has %d participants",
		e.Index, e.Role, e.Count)
}

// Is позволяет матчить через errors.Is(err, ErrParticipantIndex).
func (e *ParticipantIndexError) Is(target error) bool {
	return target == ErrParticipantIndex
}

// StepError — ошибка шага, остановившая invocation.
type StepError struct {
	Index int
	Name  string
	Kind  domain.ActionKind
	Err   error
}

// Error реализует интерфейс error.
func (e *StepError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("step %d (%s, %s): %v", e.Index, e.Name, e.Kind, e.Err)
	}
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Kind, e.Err)
}

// Unwrap возвращает ошибку шага.
func (e *StepError) Unwrap() error {
	return e.Err
}
