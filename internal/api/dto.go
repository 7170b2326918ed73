package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/playbook/internal/domain"
)

// Entry DTOs

// EntryResponse — точка входа <protocol>:<role>.
type EntryResponse struct {
	Entry    string `json:"entry"`
	Protocol string `json:"protocol"`
	Role     string `json:"role"`
	MinNum   int    `json:"min_num"`
	MaxNum   *int   `json:"max_num,omitempty"`
	Steps    int    `json:"steps"`
}

// EntryFromDomain конвертирует роль протокола в EntryResponse.
func EntryFromDomain(p *domain.ProtocolSpec, r *domain.RoleSpec) EntryResponse {
	resp := EntryResponse{
		Entry:    p.EntryName(r.Name),
		Protocol: p.Name,
		Role:     r.Name,
		MinNum:   r.MinParticipants,
		Steps:    len(r.Steps),
	}
	if r.MaxParticipants != domain.Unbounded {
		upper := r.MaxParticipants
		resp.MaxNum = &upper
	}
	return resp
}

// Task DTOs

// StartTaskRequest — запрос на запуск task.
type StartTaskRequest struct {
	TaskID       string               `json:"task_id,omitempty"`
	Protocol     string               `json:"protocol"`
	Param        []byte               `json:"param,omitempty"`
	Participants []domain.Participant `json:"participants"`
}

// StartTaskResponse — ответ о разосланном task.
type StartTaskResponse struct {
	TaskID   string   `json:"task_id"`
	Protocol string   `json:"protocol"`
	Users    []string `json:"users"`
}

// Invocation DTOs

// InvocationResponse — ответ с записью invocation.
type InvocationResponse struct {
	ID         uuid.UUID  `json:"id"`
	TaskID     string     `json:"task_id"`
	Entry      string     `json:"entry"`
	UserID     string     `json:"user_id"`
	Status     string     `json:"status"`
	Workdir    string     `json:"workdir,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMs int64      `json:"duration_ms,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// InvocationFromDomain конвертирует domain.InvocationRecord в InvocationResponse.
func InvocationFromDomain(rec domain.InvocationRecord) InvocationResponse {
	return InvocationResponse{
		ID:         rec.ID,
		TaskID:     rec.TaskID,
		Entry:      rec.EntryName(),
		UserID:     rec.UserID,
		Status:     rec.Status.String(),
		Workdir:    rec.Workdir,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
		DurationMs: rec.Duration().Milliseconds(),
		Error:      rec.Error,
		CreatedAt:  rec.CreatedAt,
	}
}
