package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/playbook/internal/domain"
	"github.com/shaiso/playbook/internal/host"
	"github.com/shaiso/playbook/internal/tracker"
)

// NewTaskCmd создаёт группу команд для управления tasks.
func NewTaskCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	cmd.AddCommand(
		newTaskStartCmd(app),
	)

	return cmd
}

func newTaskStartCmd(app *App) *cobra.Command {
	var task taskFlags
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "start PROTOCOL",
		Short: "Send a task assignment to every participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := app.Settings(cmd)
			if err != nil {
				return err
			}
			out := app.Output()
			logger := app.logger()
			ctx := cmd.Context()

			protocols, err := LoadProtocols(settings.Document)
			if err != nil {
				return err
			}
			if _, err := host.NewRegistry(protocols).Protocol(args[0]); err != nil {
				return err
			}

			a, err := task.assignment(args[0])
			if err != nil {
				return err
			}
			if a.TaskID == "" {
				a.TaskID = uuid.New().String()
			}

			backend, err := OpenPublisher(ctx, settings, logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			// Трекер регистрирует task до рассылки, чтобы не пропустить ранние итоги
			var tr *tracker.Tracker
			if wait {
				tr = tracker.New(tracker.Config{Conn: backend.Conn, Logger: logger})
				if err := tr.Start(ctx); err != nil {
					return err
				}
				defer tr.Stop()
				if _, err := tr.Track(a); err != nil {
					return err
				}
			}

			taskID, err := host.StartTask(ctx, backend.Publisher, a)
			if err != nil {
				return err
			}
			out.Notice("Task started: %s", taskID)

			if !wait {
				out.Started(startedView{TaskID: taskID, Protocol: args[0], Users: host.Users(a.Participants)})
				return nil
			}

			return waitTask(ctx, tr, taskID, timeout, out)
		},
	}

	task.register(cmd)
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for every participant to report completion")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up waiting after this duration (0 — no limit)")
	return cmd
}

// waitTask ждёт итогов task и выводит их.
func waitTask(ctx context.Context, tr *tracker.Tracker, taskID string, timeout time.Duration, out *Output) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	state, err := tr.Wait(ctx, taskID)
	if state == nil {
		return err
	}

	completions := state.Completions()
	out.Completions(completions)
	if err != nil {
		return fmt.Errorf("task %s: waiting for %v: %w", taskID, state.Pending(), err)
	}

	if status := state.Status(); status != domain.InvocationSucceeded {
		return fmt.Errorf("task %s finished with status %s", taskID, status)
	}
	return nil
}
