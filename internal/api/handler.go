package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/playbook/internal/domain"
	"github.com/shaiso/playbook/internal/host"
)

// InvocationReader читает историю invocations (repo.InvocationRepo).
type InvocationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.InvocationRecord, error)
	ListByTaskID(ctx context.Context, taskID string) ([]domain.InvocationRecord, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	registry    *host.Registry
	invocations InvocationReader
	publisher   host.AssignmentPublisher
	logger      *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Registry    *host.Registry
	Invocations InvocationReader
	Publisher   host.AssignmentPublisher
	Logger      *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry:    cfg.Registry,
		invocations: cfg.Invocations,
		publisher:   cfg.Publisher,
		logger:      logger,
	}
}
