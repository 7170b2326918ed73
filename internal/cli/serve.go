package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/playbook/internal/api"
	"github.com/shaiso/playbook/internal/config"
	"github.com/shaiso/playbook/internal/host"
	"github.com/shaiso/playbook/internal/mq"
)

// NewServeCmd создаёт команду хоста, принимающего назначения task.
// Рядом с consumer поднимается HTTP: /healthz, /metrics и /api/v1.
func NewServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume task assignments for the configured user",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := app.Settings(cmd)
			if err != nil {
				return err
			}
			if settings.Backend != config.BackendService {
				return fmt.Errorf("%w: serve requires the service backend", config.ErrInvalidConfig)
			}
			logger := app.logger()
			ctx := cmd.Context()

			protocols, err := LoadProtocols(settings.Document)
			if err != nil {
				return err
			}

			backend, err := OpenBackend(ctx, settings, logger)
			if err != nil {
				return err
			}
			defer backend.Close()
			logger.Debug("topology declared", "topology", mq.TopologyInfo())

			h := host.New(backend.HostConfig(protocols))
			if err := h.Start(ctx); err != nil {
				return err
			}

			// HTTP mux: /healthz + /metrics
			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				if !backend.Conn.IsConnected() {
					w.WriteHeader(http.StatusServiceUnavailable)
					w.Write([]byte("rabbitmq disconnected"))
					return
				}
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			mux.Handle("/metrics", promhttp.Handler())

			// API: точки входа, история invocations, запуск task
			handler := api.NewHandler(api.Config{
				Registry:    h.Registry(),
				Invocations: backend.History,
				Publisher:   backend.Publisher,
				Logger:      logger,
			})
			handler.RegisterRoutes(mux)

			srv := &http.Server{Addr: settings.Addr(), Handler: mux}
			go func() {
				logger.Info("listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", "error", err)
				}
			}()

			// Ожидаем сигнал завершения
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http server shutdown", "error", err)
			}

			h.Stop()
			return nil
		},
	}
}
