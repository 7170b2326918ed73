package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvocationRecord — запись журнала об одной invocation.
//
// Создаётся хостом при получении task: по записи на каждую роль,
// которую пользователь занимает. Хранится в таблице invocations.
type InvocationRecord struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// TaskID — task, в рамках которого выполняется invocation.
	TaskID string `json:"task_id"`

	// Protocol и Role — точка входа "<protocol>:<role>".
	Protocol string `json:"protocol"`
	Role     string `json:"role"`

	// UserID — пользователь, от имени которого выполняется роль.
	UserID string `json:"user_id"`

	// Status — текущий статус.
	Status InvocationStatus `json:"status"`

	// Workdir — разрешённая рабочая директория (после bootstrap).
	Workdir string `json:"workdir,omitempty"`

	// StartedAt — время начала выполнения шагов.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки при неудаче.
	Error string `json:"error,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// NewInvocationRecord создаёт запись в статусе PENDING.
func NewInvocationRecord(taskID, protocol, role, userID string) *InvocationRecord {
	return &InvocationRecord{
		ID:        uuid.New(),
		TaskID:    taskID,
		Protocol:  protocol,
		Role:      role,
		UserID:    userID,
		Status:    InvocationPending,
		CreatedAt: time.Now(),
	}
}

// EntryName возвращает "<protocol>:<role>".
func (r *InvocationRecord) EntryName() string {
	return EntryName(r.Protocol, r.Role)
}

// Duration возвращает продолжительность выполнения.
func (r *InvocationRecord) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// MarkRunning переводит запись в статус RUNNING.
func (r *InvocationRecord) MarkRunning(workdir string) {
	now := time.Now()
	r.Status = InvocationRunning
	r.Workdir = workdir
	r.StartedAt = &now
}

// MarkFinished переводит запись в финальный статус.
func (r *InvocationRecord) MarkFinished(status InvocationStatus, err error) {
	now := time.Now()
	r.Status = status
	r.FinishedAt = &now
	if err != nil {
		r.Error = err.Error()
	}
}
