package interpreter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shaiso/playbook/internal/coord"
	"github.com/shaiso/playbook/internal/domain"
	"github.com/shaiso/playbook/internal/engine"
	"github.com/shaiso/playbook/internal/process"
	"github.com/shaiso/playbook/internal/telemetry"
)

// ParamFile — имя файла с параметрами task в рабочей директории.
const ParamFile = "param.json"

// Переменные окружения, которые получают процессы шагов.
const (
	EnvCoreAddr = "PLAYBOOK_CORE_ADDR"
	EnvJWT      = "PLAYBOOK_JWT"
	EnvUserID   = "PLAYBOOK_USER_ID"
	EnvTaskID   = "PLAYBOOK_TASK_ID"
)

// Invocation — выполнение playbook одной роли.
//
// Контекст выполнения (bindings, рабочая директория, участники,
// таблица процессов) полностью заполняется в New до первого шага.
type Invocation struct {
	protocol     *domain.ProtocolSpec
	role         *domain.RoleSpec
	param        []byte
	participants []domain.Participant

	client   coord.Client
	resolver *engine.Resolver
	procs    *process.Supervisor
	workdir  string

	logger *slog.Logger
	status domain.InvocationStatus
}

// Config — конфигурация Invocation.
type Config struct {
	// Protocol и Role — что выполнять.
	Protocol *domain.ProtocolSpec
	Role     string

	// Param — сырые параметры task.
	Param []byte

	// Participants — все участники task в исходном порядке.
	Participants []domain.Participant

	// Client — координационный сервис от имени пользователя.
	Client coord.Client

	// LookupEnv — источник $NAME (default: os.LookupEnv).
	LookupEnv engine.LookupFunc

	// Shell — интерпретатор команд шагов (default: bash или sh).
	Shell string

	// Logger
	Logger *slog.Logger
}

// New проверяет участников и готовит контекст выполнения.
//
// Порядок bootstrap:
//  1. число участников роли в [min_num, max_num]
//  2. рабочая директория (шаблон + $NAME, абсолютный путь, MkdirAll)
//  3. param.json в рабочей директории
//
// При ошибке ни один шаг не выполняется.
func New(cfg Config) (*Invocation, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	role, ok := cfg.Protocol.Role(cfg.Role)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, domain.EntryName(cfg.Protocol.Name, cfg.Role))
	}

	client := cfg.Client
	logger = telemetry.WithTaskID(logger, client.TaskID())
	logger = telemetry.WithInvocation(logger, cfg.Protocol.Name, role.Name, client.UserID())

	// 1. Проверяем число участников
	count := domain.CountRole(cfg.Participants, role.Name)
	if !role.AcceptsCount(count) {
		telemetry.InvocationsTotal.WithLabelValues(cfg.Protocol.Name, role.Name, telemetry.ResultRejected).Inc()
		return nil, &ParticipantCountError{
			Protocol: cfg.Protocol.Name,
			Role:     role.Name,
			Count:    count,
			Min:      role.MinParticipants,
			Max:      role.MaxParticipants,
		}
	}

	resolver := engine.NewResolver(engine.NewBindings(client.UserID(), client.TaskID()))
	if cfg.LookupEnv != nil {
		resolver.LookupEnv = cfg.LookupEnv
	}

	// 2. Рабочая директория
	workdir, err := resolver.Resolve(role.Workdir)
	if err != nil {
		return nil, fmt.Errorf("resolve workdir: %w", err)
	}
	workdir, err = filepath.Abs(workdir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkdir, err)
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkdir, err)
	}

	inv := &Invocation{
		protocol:     cfg.Protocol,
		role:         role,
		param:        cfg.Param,
		participants: cfg.Participants,
		client:       client,
		resolver:     resolver,
		workdir:      workdir,
		logger:       logger,
		status:       domain.InvocationPending,
	}

	// 3. param.json
	if err := inv.writeParam(); err != nil {
		return nil, err
	}

	inv.procs = process.New(process.Config{
		Env: []string{
			EnvCoreAddr + "=" + client.CoreAddr(),
			EnvJWT + "=" + client.Token(),
			EnvUserID + "=" + client.UserID(),
			EnvTaskID + "=" + client.TaskID(),
		},
		Shell:  cfg.Shell,
		Logger: logger,
	})

	return inv, nil
}

// Workdir возвращает абсолютную рабочую директорию invocation.
func (inv *Invocation) Workdir() string {
	return inv.workdir
}

// Status возвращает текущий статус invocation.
func (inv *Invocation) Status() domain.InvocationStatus {
	return inv.status
}

// Run выполняет шаги роли по порядку и останавливается на первой ошибке.
// Оставшиеся фоновые процессы убиваются при выходе.
func (inv *Invocation) Run(ctx context.Context) (err error) {
	start := time.Now()
	inv.status = domain.InvocationRunning
	inv.logger.Info("invocation started", "workdir", inv.workdir, "steps", len(inv.role.Steps))

	defer inv.procs.Shutdown()
	defer func() {
		result := telemetry.ResultSuccess
		switch {
		case err == nil:
			inv.status = domain.InvocationSucceeded
			inv.logger.Info("invocation succeeded", "duration", time.Since(start))
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			inv.status = domain.InvocationCancelled
			result = telemetry.ResultCanceled
			inv.logger.Warn("invocation cancelled", "error", err)
		default:
			inv.status = domain.InvocationFailed
			result = telemetry.ResultFailure
			inv.logger.Warn("invocation failed", "error", err, "duration", time.Since(start))
		}
		telemetry.InvocationsTotal.WithLabelValues(inv.protocol.Name, inv.role.Name, result).Inc()
	}()

	for i := range inv.role.Steps {
		step := &inv.role.Steps[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := inv.runStep(ctx, step); err != nil {
			return &StepError{
				Index: step.Index,
				Name:  step.Name,
				Kind:  step.Action.Kind(),
				Err:   err,
			}
		}
	}

	return nil
}

// paramDocument — содержимое param.json.
type paramDocument struct {
	Param        []byte      `json:"param"`
	Participants [][2]string `json:"participants"`
	UserID       string      `json:"user_id"`
	TaskID       string      `json:"task_id"`
}

// writeParam пишет param.json: параметры task в base64,
// участники как пары [user_id, role], user_id и task_id.
func (inv *Invocation) writeParam() error {
	doc := paramDocument{
		Param:        inv.param,
		Participants: make([][2]string, 0, len(inv.participants)),
		UserID:       inv.client.UserID(),
		TaskID:       inv.client.TaskID(),
	}
	if doc.Param == nil {
		doc.Param = []byte{}
	}
	for _, p := range inv.participants {
		doc.Participants = append(doc.Participants, [2]string{p.UserID, p.Role})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ParamFile, err)
	}
	if err := os.WriteFile(filepath.Join(inv.workdir, ParamFile), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", ParamFile, err)
	}
	return nil
}
