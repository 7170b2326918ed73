package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/playbook/internal/api"
	"github.com/shaiso/playbook/internal/config"
	"github.com/shaiso/playbook/internal/coord"
	"github.com/shaiso/playbook/internal/domain"
	"github.com/shaiso/playbook/internal/host"
	"github.com/shaiso/playbook/internal/mq"
	"github.com/shaiso/playbook/internal/repo"
	"github.com/shaiso/playbook/internal/storage"
)

// Backend — подключения координационного сервиса для команд.
type Backend struct {
	// Entries — хранилище entries (Postgres или SQLite).
	Entries coord.EntryStore

	// Bus — шина переменных (RabbitMQ или память).
	Bus coord.VariableBus

	// Invocations и History — запись и чтение истории invocations (только service).
	Invocations host.InvocationStore
	History     api.InvocationReader

	// MQ (только service)
	Publisher *mq.Publisher
	Conn      *mq.Connection

	settings *config.Config
	logger   *slog.Logger
	closers  []func()
}

// OpenBackend подключается к backend из настроек.
//
//   - service: Postgres (entries, история) и RabbitMQ (переменные, tasks)
//   - local: SQLite (entries) и шина в памяти
func OpenBackend(ctx context.Context, settings *config.Config, logger *slog.Logger) (*Backend, error) {
	b := &Backend{settings: settings, logger: logger}

	switch settings.Backend {
	case config.BackendLocal:
		store, err := storage.Open(settings.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { store.Close() })
		b.Entries = store
		b.Bus = coord.NewMemoryBus()
		logger.Debug("local backend opened", "sqlite_path", settings.SQLitePath)
		return b, nil

	case config.BackendService:
		if err := b.openService(ctx); err != nil {
			b.Close()
			return nil, err
		}
		return b, nil

	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalidConfig, settings.Backend)
	}
}

func (b *Backend) openService(ctx context.Context) error {
	// DB pool
	pool, err := repo.NewPool(ctx, b.settings.DBURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	b.closers = append(b.closers, pool.Close)
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	b.logger.Info("database connected")

	b.Entries = repo.NewEntryRepo(pool, b.logger)
	invocations := repo.NewInvocationRepo(pool)
	b.Invocations = invocations
	b.History = invocations

	// RabbitMQ
	if err := b.openMQ(ctx); err != nil {
		return err
	}
	b.Bus = mq.NewVariableBus(b.Conn, b.Publisher, b.logger)
	return nil
}

// openMQ подключается к RabbitMQ и объявляет топологию.
func (b *Backend) openMQ(ctx context.Context) error {
	url := b.settings.RabbitMQURL
	if url == "" {
		url = mq.DefaultURL()
	}

	conn, err := mq.NewConnection(url, b.logger)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	b.closers = append(b.closers, func() { conn.Close() })
	b.logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		return fmt.Errorf("setup topology: %w", err)
	}

	b.Conn = conn
	b.Publisher = mq.NewPublisher(conn, b.logger)
	return nil
}

// OpenPublisher подключается только к RabbitMQ (для task start).
func OpenPublisher(ctx context.Context, settings *config.Config, logger *slog.Logger) (*Backend, error) {
	b := &Backend{settings: settings, logger: logger}
	if err := b.openMQ(ctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// Sessions возвращает фабрику coord.Client поверх backend.
func (b *Backend) Sessions() host.SessionFactory {
	return func(userID, taskID string) coord.Client {
		return coord.NewSession(coord.SessionConfig{
			UserID:   userID,
			TaskID:   taskID,
			CoreAddr: b.settings.CoreAddr,
			Token:    b.settings.JWT,
			Entries:  b.Entries,
			Bus:      b.Bus,
			Logger:   b.logger,
		})
	}
}

// HostConfig собирает host.Config для протоколов документа.
func (b *Backend) HostConfig(protocols []domain.ProtocolSpec) host.Config {
	cfg := host.Config{
		Protocols:   protocols,
		Sessions:    b.Sessions(),
		Invocations: b.Invocations,
		Conn:        b.Conn,
		UserID:      b.settings.UserID,
		Shell:       b.settings.Shell,
		Logger:      b.logger,
	}
	// nil *mq.Publisher не должен попасть в интерфейс
	if b.Publisher != nil {
		cfg.Publisher = b.Publisher
	}
	return cfg
}

// Close закрывает подключения в обратном порядке.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
