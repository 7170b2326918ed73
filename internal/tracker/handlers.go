package tracker

import (
	"context"
	"errors"

	"github.com/shaiso/playbook/internal/domain"
	"github.com/shaiso/playbook/internal/mq"
)

// handleTaskCompleted обрабатывает событие task.completed.
func (t *Tracker) handleTaskCompleted(ctx context.Context, delivery *mq.Delivery) error {
	// Парсим payload
	payload, err := mq.ParsePayload[mq.TaskCompletedPayload](&delivery.Message)
	if err != nil {
		t.logger.Error("failed to parse task.completed payload", "error", err)
		return err
	}

	t.logger.Debug("received task.completed event",
		"task_id", payload.TaskID,
		"user_id", payload.UserID,
		"status", payload.Status,
	)

	if err := t.processCompletion(payload); err != nil {
		// Чужой task или лишний участник — сообщение не вернётся в очередь
		if errors.Is(err, ErrTaskNotTracked) || errors.Is(err, ErrUnexpectedUser) {
			t.logger.Debug("completion skipped", "task_id", payload.TaskID, "reason", err)
			return nil
		}
		return err
	}

	return nil
}

// processCompletion записывает итог участника в состояние task.
func (t *Tracker) processCompletion(c domain.Completion) error {
	state, ok := t.get(c.TaskID)
	if !ok {
		return ErrTaskNotTracked
	}

	finished, err := state.Record(c)
	if err != nil {
		return err
	}

	if c.Status != domain.InvocationSucceeded {
		t.logger.Warn("participant failed",
			"task_id", c.TaskID,
			"user_id", c.UserID,
			"status", c.Status,
			"error", c.Error,
		)
	}
	if finished {
		t.logger.Info("task finished",
			"task_id", c.TaskID,
			"protocol", state.Assignment.Protocol,
			"status", state.Status(),
		)
	}
	return nil
}
