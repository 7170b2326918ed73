package tracker

import (
	"fmt"
	"sync"

	"github.com/shaiso/playbook/internal/domain"
)

// TaskState — состояние разосланного task в памяти инициатора.
//
// TaskState создаётся при Track и удаляется после Wait,
// когда итог прислали все участники.
type TaskState struct {
	// Assignment — разосланное назначение.
	Assignment domain.Assignment

	// expected — пользователи, от которых ждём итог, в порядке первого появления.
	expected []string

	// completions — полученные итоги (userID → Completion).
	completions map[string]domain.Completion

	// done закрывается, когда получены итоги всех участников.
	done chan struct{}

	mu sync.RWMutex
}

// NewTaskState создаёт состояние для назначения.
func NewTaskState(a domain.Assignment) *TaskState {
	seen := make(map[string]bool)
	var expected []string
	for _, p := range a.Participants {
		if !seen[p.UserID] {
			seen[p.UserID] = true
			expected = append(expected, p.UserID)
		}
	}

	return &TaskState{
		Assignment:  a,
		expected:    expected,
		completions: make(map[string]domain.Completion),
		done:        make(chan struct{}),
	}
}

// Record сохраняет итог пользователя. Повторный итог перезаписывает прежний.
// Возвращает true, если эта запись завершила task.
func (s *TaskState) Record(c domain.Completion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isExpected(c.UserID) {
		return false, fmt.Errorf("%w: %s in task %s", ErrUnexpectedUser, c.UserID, c.TaskID)
	}

	wasComplete := s.isComplete()
	s.completions[c.UserID] = c
	if !wasComplete && s.isComplete() {
		close(s.done)
		return true, nil
	}
	return false, nil
}

// Done возвращает канал, закрываемый после итогов всех участников.
func (s *TaskState) Done() <-chan struct{} {
	return s.done
}

// Pending возвращает пользователей, от которых итога ещё нет.
func (s *TaskState) Pending() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []string
	for _, u := range s.expected {
		if _, ok := s.completions[u]; !ok {
			pending = append(pending, u)
		}
	}
	return pending
}

// Completions возвращает полученные итоги в порядке участников.
func (s *TaskState) Completions() []domain.Completion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Completion, 0, len(s.completions))
	for _, u := range s.expected {
		if c, ok := s.completions[u]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Status возвращает сводный статус task.
//
//   - RUNNING — итоги получены не от всех
//   - FAILED, REJECTED, CANCELLED — первый неуспешный итог в порядке участников
//   - SUCCEEDED — все участники завершились успешно
func (s *TaskState) Status() domain.InvocationStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isComplete() {
		return domain.InvocationRunning
	}
	for _, u := range s.expected {
		if st := s.completions[u].Status; st != domain.InvocationSucceeded {
			return st
		}
	}
	return domain.InvocationSucceeded
}

func (s *TaskState) isExpected(userID string) bool {
	for _, u := range s.expected {
		if u == userID {
			return true
		}
	}
	return false
}

func (s *TaskState) isComplete() bool {
	return len(s.completions) == len(s.expected)
}
