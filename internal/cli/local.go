package cli

import (
	"github.com/spf13/cobra"

	"github.com/shaiso/playbook/internal/coord"
	"github.com/shaiso/playbook/internal/host"
	"github.com/shaiso/playbook/internal/storage"
)

// NewLocalCmd создаёт команду локального запуска task всеми участниками.
func NewLocalCmd(app *App) *cobra.Command {
	var task taskFlags
	var memory bool

	cmd := &cobra.Command{
		Use:   "local PROTOCOL",
		Short: "Run a whole task in this process, one goroutine per participant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := app.Settings(cmd)
			if err != nil {
				return err
			}
			out := app.Output()

			protocols, err := LoadProtocols(settings.Document)
			if err != nil {
				return err
			}

			a, err := task.assignment(args[0])
			if err != nil {
				return err
			}

			var entries coord.EntryStore
			if !memory {
				store, err := storage.Open(settings.SQLitePath)
				if err != nil {
					return err
				}
				defer store.Close()
				entries = store
			}

			completions, runErr := host.RunLocal(cmd.Context(), host.Config{
				Protocols: protocols,
				Shell:     settings.Shell,
				Logger:    app.logger(),
			}, entries, a)

			if len(completions) > 0 {
				out.Completions(completions)
			}
			return runErr
		},
	}

	task.register(cmd)
	cmd.Flags().BoolVar(&memory, "memory", false, "Keep entries in memory instead of SQLite")
	return cmd
}
