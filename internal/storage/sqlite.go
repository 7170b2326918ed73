// Package storage содержит локальное хранилище entries на SQLite.
//
// Используется в локальном режиме, когда Postgres недоступен:
// все участники task работают в одном процессе и делят один файл.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shaiso/playbook/internal/coord"

	_ "modernc.org/sqlite"
)

// EntryStore — coord.EntryStore поверх SQLite.
//
// Ожидание в ReadOrWait построено на coord.Notifier, поэтому видит
// изменения только из этого процесса.
type EntryStore struct {
	db       *sql.DB
	notifier *coord.Notifier
}

// Open открывает (или создаёт) базу по пути path.
// ":memory:" — база в памяти.
func Open(path string) (*EntryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Одно соединение: иначе ":memory:" у каждого своя база,
	// а запись из нескольких соединений упирается в блокировки
	db.SetMaxOpenConns(1)

	s := &EntryStore{db: db, notifier: coord.NewNotifier()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close закрывает базу.
func (s *EntryStore) Close() error {
	return s.db.Close()
}

func (s *EntryStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		user_id    TEXT NOT NULL,
		key        TEXT NOT NULL,
		payload    BLOB NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, key)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *EntryStore) Create(ctx context.Context, userID, key string, payload []byte) error {
	return s.write(ctx, coord.ErrEntryExists,
		`INSERT INTO entries (user_id, key, payload) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, key) DO NOTHING`,
		userID, key, nonNil(payload))
}

func (s *EntryStore) Update(ctx context.Context, userID, key string, payload []byte) error {
	return s.write(ctx, coord.ErrEntryNotFound,
		`UPDATE entries SET payload = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ? AND key = ?`,
		nonNil(payload), userID, key)
}

func (s *EntryStore) Delete(ctx context.Context, userID, key string) error {
	return s.write(ctx, coord.ErrEntryNotFound,
		`DELETE FROM entries WHERE user_id = ? AND key = ?`,
		userID, key)
}

func (s *EntryStore) Read(ctx context.Context, userID, key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM entries WHERE user_id = ? AND key = ?`,
		userID, key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, coord.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select entry: %w", err)
	}
	return payload, nil
}

func (s *EntryStore) ReadOrWait(ctx context.Context, userID, key string) ([]byte, error) {
	return coord.WaitFor(ctx, s.notifier, func() ([]byte, bool, error) {
		payload, err := s.Read(ctx, userID, key)
		if errors.Is(err, coord.ErrEntryNotFound) {
			return nil, false, nil
		}
		return payload, err == nil, err
	})
}

// write выполняет изменение; если строк не затронуто, возвращает noRows.
func (s *EntryStore) write(ctx context.Context, noRows error, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return noRows
	}

	s.notifier.Broadcast()
	return nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
