package host

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shaiso/playbook/internal/domain"
	"github.com/shaiso/playbook/internal/mq"
)

const defaultPrefetch = 5

// Start подписывается на очередь playbook.tasks.<user_id>.
// Каждое назначение выполняется в своей горутине.
func (h *Host) Start(ctx context.Context) error {
	if h.userID == "" {
		return ErrNoUser
	}

	queue, err := mq.DeclareUserQueue(ctx, h.conn, h.userID)
	if err != nil {
		return fmt.Errorf("declare user queue: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancelFunc = cancel

	h.logger.Info("starting host",
		"user_id", h.userID,
		"queue", queue,
		"entries", len(h.registry.Entries()),
	)

	h.consumer = mq.NewConsumer(h.conn, h.logger, mq.ConsumerConfig{
		Queue:    queue,
		Handler:  h.handleTaskAssigned,
		Prefetch: defaultPrefetch,
		Requeue:  false,
	})

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Error("task consumer error", "error", err)
		}
	}()

	h.logger.Info("host started")
	return nil
}

// Stop останавливает приём назначений и ждёт запущенные invocations.
func (h *Host) Stop() {
	h.logger.Info("stopping host...")

	if h.cancelFunc != nil {
		h.cancelFunc()
	}
	if h.consumer != nil {
		h.consumer.Stop()
	}

	h.wg.Wait()
	h.logger.Info("host stopped")
}

// handleTaskAssigned обрабатывает событие task.assigned.
//
// Сообщение подтверждается сразу: invocations могут ждать друг друга
// через переменные и entries, поэтому выполняются вне consumer.
func (h *Host) handleTaskAssigned(ctx context.Context, delivery *mq.Delivery) error {
	a, err := mq.ParsePayload[mq.TaskAssignedPayload](&delivery.Message)
	if err != nil {
		h.logger.Error("failed to parse task.assigned payload", "error", err)
		return err
	}

	logger := h.taskLogger(a)
	if a.UserID != h.userID {
		logger.Warn("assignment for another user dropped", "host_user_id", h.userID)
		return nil
	}

	logger.Debug("received task.assigned event", "participants", len(a.Participants))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		completion := h.Complete(ctx, a)
		logger.Info("task finished", "status", completion.Status)
		h.publishCompletion(ctx, completion)
	}()

	return nil
}

// publishCompletion публикует событие task.completed.
func (h *Host) publishCompletion(ctx context.Context, completion domain.Completion) {
	if h.publisher == nil {
		h.logger.Warn("publisher not available, skipping task.completed publish",
			"task_id", completion.TaskID,
		)
		return
	}

	if err := h.publisher.PublishTaskCompleted(context.WithoutCancel(ctx), completion); err != nil {
		h.logger.Warn("failed to publish task.completed",
			"task_id", completion.TaskID,
			"error", err,
		)
	}
}

// AssignmentPublisher рассылает назначения task (mq.Publisher).
type AssignmentPublisher interface {
	PublishTaskAssigned(ctx context.Context, assignment mq.TaskAssignedPayload) error
}

// StartTask рассылает назначение каждому уникальному участнику.
// Пустой TaskID заменяется новым UUID. Возвращает TaskID.
func StartTask(ctx context.Context, publisher AssignmentPublisher, a domain.Assignment) (string, error) {
	if len(a.Participants) == 0 {
		return "", ErrNoParticipants
	}
	if a.TaskID == "" {
		a.TaskID = uuid.New().String()
	}

	for _, userID := range Users(a.Participants) {
		assigned := a
		assigned.UserID = userID
		if err := publisher.PublishTaskAssigned(ctx, assigned); err != nil {
			return a.TaskID, fmt.Errorf("publish to %s: %w", userID, err)
		}
	}
	return a.TaskID, nil
}

// Users возвращает уникальных пользователей в порядке первого появления.
func Users(participants []domain.Participant) []string {
	seen := make(map[string]bool)
	var users []string
	for _, p := range participants {
		if !seen[p.UserID] {
			seen[p.UserID] = true
			users = append(users, p.UserID)
		}
	}
	return users
}
