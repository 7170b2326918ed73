package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/playbook/internal/domain"
	"github.com/shaiso/playbook/internal/host"
)

// NewRunCmd создаёт команду запуска одной точки входа <protocol>:<role>.
func NewRunCmd(app *App) *cobra.Command {
	var task taskFlags

	cmd := &cobra.Command{
		Use:   "run PROTOCOL:ROLE",
		Short: "Run one role of a protocol as the configured user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := app.Settings(cmd)
			if err != nil {
				return err
			}
			if settings.UserID == "" {
				return host.ErrNoUser
			}
			out := app.Output()
			logger := app.logger()

			protocols, err := LoadProtocols(settings.Document)
			if err != nil {
				return err
			}

			backend, err := OpenBackend(cmd.Context(), settings, logger)
			if err != nil {
				return err
			}
			defer backend.Close()

			h := host.New(backend.HostConfig(protocols))
			protocol, role, err := h.Registry().Lookup(args[0])
			if err != nil {
				return err
			}

			a, err := task.assignment(protocol.Name)
			if err != nil {
				return err
			}
			a.UserID = settings.UserID
			if a.TaskID == "" {
				a.TaskID = uuid.New().String()
			}
			// По умолчанию пользователь — единственный участник своей роли
			if len(a.Participants) == 0 {
				a.Participants = []domain.Participant{{UserID: settings.UserID, Role: role}}
			}

			runErr := h.Run(cmd.Context(), args[0], a)
			completion := domain.Completion{
				TaskID:   a.TaskID,
				Protocol: a.Protocol,
				UserID:   a.UserID,
				Status:   host.StatusOf(runErr),
			}
			if runErr != nil {
				completion.Error = runErr.Error()
			}

			out.Completion(completion)
			if runErr != nil {
				return fmt.Errorf("%s: %w", args[0], runErr)
			}
			return nil
		},
	}

	task.register(cmd)
	return cmd
}
