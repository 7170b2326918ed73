package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/playbook/internal/coord"
	"github.com/shaiso/playbook/internal/domain"
	"github.com/shaiso/playbook/internal/engine"
	"github.com/shaiso/playbook/internal/interpreter"
	"github.com/shaiso/playbook/internal/mq"
	"github.com/shaiso/playbook/internal/telemetry"
)

// SessionFactory выдаёт coord.Client пользователя userID в task taskID.
type SessionFactory func(userID, taskID string) coord.Client

// InvocationStore сохраняет историю invocations (repo.InvocationRepo).
type InvocationStore interface {
	Create(ctx context.Context, rec *domain.InvocationRecord) error
	Update(ctx context.Context, rec *domain.InvocationRecord) error
}

// Publisher публикует итог task (mq.Publisher).
type Publisher interface {
	PublishTaskCompleted(ctx context.Context, payload mq.TaskCompletedPayload) error
}

// Host запускает invocations ролей, которые пользователь занимает в task.
//
// Host — процесс на стороне пользователя, который:
//   - Получает назначения task из своей очереди RabbitMQ
//   - Запускает по одной invocation на каждую роль пользователя (параллельно)
//   - Сохраняет историю invocations (если задан InvocationStore)
//   - Публикует итог в очередь tasks.completed
type Host struct {
	registry *Registry
	sessions SessionFactory

	invocations InvocationStore
	publisher   Publisher
	conn        *mq.Connection

	userID    string
	shell     string
	lookupEnv engine.LookupFunc

	// Consumer
	consumer *mq.Consumer

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Host.
type Config struct {
	// Protocols — разобранный playbook-документ.
	Protocols []domain.ProtocolSpec

	// Sessions — фабрика клиентов координационного сервиса (обязательно).
	Sessions SessionFactory

	// Invocations — история invocations (опционально).
	Invocations InvocationStore

	// MQ (нужны только для Start)
	Publisher Publisher
	Conn      *mq.Connection

	// UserID — пользователь хоста; очередь playbook.tasks.<user_id>.
	UserID string

	// Shell и LookupEnv передаются интерпретатору.
	Shell     string
	LookupEnv engine.LookupFunc

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Host.
func New(cfg Config) *Host {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Host{
		registry:    NewRegistry(cfg.Protocols),
		sessions:    cfg.Sessions,
		invocations: cfg.Invocations,
		publisher:   cfg.Publisher,
		conn:        cfg.Conn,
		userID:      cfg.UserID,
		shell:       cfg.Shell,
		lookupEnv:   cfg.LookupEnv,
		logger:      logger,
	}
}

// Registry возвращает реестр точек входа.
func (h *Host) Registry() *Registry {
	return h.registry
}

// Dispatch запускает все роли пользователя a.UserID в task параллельно
// и ждёт их завершения. Ошибки ролей объединяются.
func (h *Host) Dispatch(ctx context.Context, a domain.Assignment) error {
	protocol, err := h.registry.Protocol(a.Protocol)
	if err != nil {
		return err
	}

	roles := a.RolesOf(a.UserID)
	if len(roles) == 0 {
		return fmt.Errorf("%w: user %s, task %s", ErrNotParticipant, a.UserID, a.TaskID)
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for _, role := range roles {
		wg.Add(1)
		go func(role string) {
			defer wg.Done()
			if err := h.invoke(ctx, protocol, role, a); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", protocol.EntryName(role), err))
				mu.Unlock()
			}
		}(role)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Run запускает одну точку входа <protocol>:<role> от имени a.UserID.
func (h *Host) Run(ctx context.Context, entry string, a domain.Assignment) error {
	protocol, role, err := h.registry.Lookup(entry)
	if err != nil {
		return err
	}
	a.Protocol = protocol.Name
	return h.invoke(ctx, protocol, role, a)
}

// Complete выполняет Dispatch и формирует итог task для пользователя.
func (h *Host) Complete(ctx context.Context, a domain.Assignment) domain.Completion {
	err := h.Dispatch(ctx, a)

	completion := domain.Completion{
		TaskID:   a.TaskID,
		Protocol: a.Protocol,
		UserID:   a.UserID,
		Status:   StatusOf(err),
	}
	if err != nil {
		completion.Error = err.Error()
	}
	return completion
}

// invoke выполняет одну invocation и ведёт её запись в истории.
func (h *Host) invoke(ctx context.Context, protocol *domain.ProtocolSpec, role string, a domain.Assignment) error {
	rec := domain.NewInvocationRecord(a.TaskID, protocol.Name, role, a.UserID)

	inv, err := interpreter.New(interpreter.Config{
		Protocol:     protocol,
		Role:         role,
		Param:        a.Param,
		Participants: a.Participants,
		Client:       h.sessions(a.UserID, a.TaskID),
		LookupEnv:    h.lookupEnv,
		Shell:        h.shell,
		Logger:       h.logger,
	})
	if err != nil {
		rec.MarkFinished(StatusOf(err), err)
		h.record(ctx, rec, h.createRecord)
		return err
	}

	rec.MarkRunning(inv.Workdir())
	h.record(ctx, rec, h.createRecord)

	err = inv.Run(ctx)

	rec.MarkFinished(inv.Status(), err)
	h.record(ctx, rec, h.updateRecord)
	return err
}

func (h *Host) createRecord(ctx context.Context, rec *domain.InvocationRecord) error {
	return h.invocations.Create(ctx, rec)
}

func (h *Host) updateRecord(ctx context.Context, rec *domain.InvocationRecord) error {
	return h.invocations.Update(ctx, rec)
}

// record сохраняет запись; ошибка хранилища не прерывает invocation.
func (h *Host) record(ctx context.Context, rec *domain.InvocationRecord, save func(context.Context, *domain.InvocationRecord) error) {
	if h.invocations == nil {
		return
	}
	// Запись итога должна пережить отмену invocation
	if err := save(context.WithoutCancel(ctx), rec); err != nil {
		h.logger.Warn("failed to save invocation record",
			"invocation_id", rec.ID,
			"entry", rec.EntryName(),
			"status", rec.Status,
			"error", err,
		)
	}
}

// StatusOf переводит результат invocation в статус.
func StatusOf(err error) domain.InvocationStatus {
	switch {
	case err == nil:
		return domain.InvocationSucceeded
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return domain.InvocationCancelled
	case errors.Is(err, interpreter.ErrParticipantCount):
		return domain.InvocationRejected
	default:
		return domain.InvocationFailed
	}
}

// logger для task.
func (h *Host) taskLogger(a domain.Assignment) *slog.Logger {
	return telemetry.WithTaskID(h.logger, a.TaskID).With("protocol", a.Protocol, "user_id", a.UserID)
}
