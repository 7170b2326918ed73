// Playbook — интерпретатор playbook-документов.
//
// Использование:
//
//	playbook [--settings FILE] [--config DOC] [--user-id ID] [--backend service|local] [--json] <command>
//
// Команды:
//
//	validate            Разбор документа и список точек входа
//	run PROTOCOL:ROLE   Одна роль от имени пользователя
//	serve               Хост: назначения task из RabbitMQ, /healthz и /metrics
//	task start PROTOCOL Рассылка назначения участникам
//	local PROTOCOL      Весь task в одном процессе
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/playbook/internal/cli"
	"github.com/shaiso/playbook/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := &cli.App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:           "playbook",
		Short:         "Playbook — multi-party protocol interpreter",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	app.RegisterFlags(rootCmd)

	rootCmd.AddCommand(
		cli.NewValidateCmd(app),
		cli.NewRunCmd(app),
		cli.NewServeCmd(app),
		cli.NewTaskCmd(app),
		cli.NewLocalCmd(app),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
