package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntriesChannel — канал LISTEN/NOTIFY для изменений entries.
const EntriesChannel = "playbook_entries"

// entryEvent — payload уведомления об изменении entry.
type entryEvent struct {
	UserID string `json:"user_id"`
	Key    string `json:"key"`
}

// EntryRepo — хранилище entries в Postgres.
//
// Каждое изменение сопровождается pg_notify в той же транзакции,
// ReadOrWait слушает канал и перечитывает entry после уведомления.
type EntryRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewEntryRepo создаёт новый EntryRepo.
func NewEntryRepo(pool *pgxpool.Pool, logger *slog.Logger) *EntryRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntryRepo{pool: pool, logger: logger}
}

// Create создаёт entry. Существующий ключ — ErrAlreadyExists.
func (r *EntryRepo) Create(ctx context.Context, userID, key string, payload []byte) error {
	query := `
		INSERT INTO entries (user_id, key, payload, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, key) DO NOTHING
	`
	return r.write(ctx, userID, key, ErrAlreadyExists, query, userID, key, nonNil(payload))
}

// Update заменяет payload существующей entry.
func (r *EntryRepo) Update(ctx context.Context, userID, key string, payload []byte) error {
	query := `
		UPDATE entries
		SET payload = $3, updated_at = now()
		WHERE user_id = $1 AND key = $2
	`
	return r.write(ctx, userID, key, ErrNotFound, query, userID, key, nonNil(payload))
}

// Delete удаляет entry.
func (r *EntryRepo) Delete(ctx context.Context, userID, key string) error {
	query := `DELETE FROM entries WHERE user_id = $1 AND key = $2`
	return r.write(ctx, userID, key, ErrNotFound, query, userID, key)
}

// Read возвращает payload entry.
func (r *EntryRepo) Read(ctx context.Context, userID, key string) ([]byte, error) {
	query := `SELECT payload FROM entries WHERE user_id = $1 AND key = $2`

	var payload []byte
	err := r.pool.QueryRow(ctx, query, userID, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select entry: %w", err)
	}
	return payload, nil
}

// ReadOrWait возвращает payload entry, дожидаясь её создания.
//
// LISTEN выполняется до первой попытки чтения, поэтому создание
// между чтением и ожиданием не теряется.
func (r *EntryRepo) ReadOrWait(ctx context.Context, userID, key string) ([]byte, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	channel := pgx.Identifier{EntriesChannel}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	defer func() {
		// Соединение возвращается в пул, подписку нужно снять
		if _, err := conn.Exec(context.Background(), "UNLISTEN "+channel); err != nil {
			r.logger.Warn("failed to unlisten", "error", err)
		}
	}()

	for {
		payload, err := r.Read(ctx, userID, key)
		if err == nil {
			return payload, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		if err := r.waitFor(ctx, conn.Conn(), userID, key); err != nil {
			return nil, err
		}
	}
}

// waitFor блокируется до уведомления об entry (userID, key).
func (r *EntryRepo) waitFor(ctx context.Context, conn *pgx.Conn, userID, key string) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		var ev entryEvent
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			r.logger.Warn("malformed entry notification", "payload", n.Payload, "error", err)
			continue
		}
		if ev.UserID == userID && ev.Key == key {
			return nil
		}
	}
}

// write выполняет изменение и pg_notify в одной транзакции.
// Если запрос не затронул строк, возвращается noRows.
func (r *EntryRepo) write(ctx context.Context, userID, key string, noRows error, query string, args ...any) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return noRows
	}

	event, err := json.Marshal(entryEvent{UserID: userID, Key: key})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", EntriesChannel, string(event)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
