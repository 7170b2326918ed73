package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/playbook/internal/domain"
	"github.com/shaiso/playbook/internal/mq"
)

// Tracker отслеживает итоги разосланных tasks.
//
// Tracker — компонент инициатора task, который:
//   - Регистрирует task перед рассылкой назначений (Track)
//   - Получает итоги участников из очереди tasks.completed
//   - Отдаёт сводный результат, когда итог прислали все участники (Wait)
//
// Итоги чужих tasks подтверждаются и пропускаются: очередь
// tasks.completed рассчитана на одного инициатора.
type Tracker struct {
	conn *mq.Connection

	// Active tasks (taskID → state)
	active map[string]*TaskState
	mu     sync.RWMutex

	// Consumer
	consumer *mq.Consumer

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Tracker.
type Config struct {
	// MQ (нужен только для Start)
	Conn *mq.Connection

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Tracker.
func New(cfg Config) *Tracker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		conn:   cfg.Conn,
		active: make(map[string]*TaskState),
		logger: logger,
	}
}

// Start запускает consumer для tasks.completed.
func (t *Tracker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	t.cancelFunc = cancel

	t.consumer = mq.NewConsumer(t.conn, t.logger, mq.ConsumerConfig{
		Queue:    mq.QueueTasksCompleted,
		Handler:  t.handleTaskCompleted,
		Prefetch: 10,
	})

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Error("completion consumer error", "error", err)
		}
	}()

	t.logger.Info("tracker started")
	return nil
}

// Stop останавливает consumer.
func (t *Tracker) Stop() {
	if t.cancelFunc != nil {
		t.cancelFunc()
	}
	if t.consumer != nil {
		t.consumer.Stop()
	}
	t.wg.Wait()
	t.logger.Info("tracker stopped")
}

// Track начинает отслеживать task. Вызывается до рассылки назначений.
func (t *Tracker) Track(a domain.Assignment) (*TaskState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.active[a.TaskID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrTaskAlreadyTracked, a.TaskID)
	}
	state := NewTaskState(a)
	t.active[a.TaskID] = state
	return state, nil
}

// Wait ждёт итогов всех участников task и прекращает его отслеживать.
func (t *Tracker) Wait(ctx context.Context, taskID string) (*TaskState, error) {
	state, ok := t.get(taskID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotTracked, taskID)
	}

	select {
	case <-ctx.Done():
		return state, ctx.Err()
	case <-state.Done():
	}

	t.mu.Lock()
	delete(t.active, taskID)
	t.mu.Unlock()

	return state, nil
}

func (t *Tracker) get(taskID string) (*TaskState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.active[taskID]
	return state, ok
}
