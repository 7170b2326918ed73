package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/playbook/internal/domain"
)

// InvocationRepo — журнал invocation в Postgres.
type InvocationRepo struct {
	pool *pgxpool.Pool
}

// NewInvocationRepo создаёт новый InvocationRepo.
func NewInvocationRepo(pool *pgxpool.Pool) *InvocationRepo {
	return &InvocationRepo{pool: pool}
}

// Create создаёт запись invocation.
func (r *InvocationRepo) Create(ctx context.Context, rec *domain.InvocationRecord) error {
	query := `
		INSERT INTO invocations (id, task_id, protocol, role, user_id, status, workdir, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.TaskID,
		rec.Protocol,
		rec.Role,
		rec.UserID,
		rec.Status,
		nullString(rec.Workdir),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

// Update обновляет статус, время и ошибку.
func (r *InvocationRepo) Update(ctx context.Context, rec *domain.InvocationRecord) error {
	query := `
		UPDATE invocations
		SET status = $2, workdir = $3, started_at = $4, finished_at = $5, error = $6
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.Status,
		nullString(rec.Workdir),
		rec.StartedAt,
		rec.FinishedAt,
		nullString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("update invocation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrInvocationNotFound
	}
	return nil
}

// GetByID возвращает запись по ID.
func (r *InvocationRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.InvocationRecord, error) {
	query := `
		SELECT id, task_id, protocol, role, user_id, status, workdir,
		       started_at, finished_at, error, created_at
		FROM invocations
		WHERE id = $1
	`
	rec, err := scanInvocation(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvocationNotFound
	}
	return rec, err
}

// ListByTaskID возвращает все invocation task в порядке создания.
func (r *InvocationRepo) ListByTaskID(ctx context.Context, taskID string) ([]domain.InvocationRecord, error) {
	query := `
		SELECT id, task_id, protocol, role, user_id, status, workdir,
		       started_at, finished_at, error, created_at
		FROM invocations
		WHERE task_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("list invocations by task_id: %w", err)
	}
	defer rows.Close()

	var records []domain.InvocationRecord
	for rows.Next() {
		rec, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// --- Helpers ---

// scanInvocation сканирует одну строку в InvocationRecord.
// pgx.Rows тоже реализует pgx.Row.
func scanInvocation(row pgx.Row) (*domain.InvocationRecord, error) {
	var rec domain.InvocationRecord
	var workdir, recError *string

	err := row.Scan(
		&rec.ID,
		&rec.TaskID,
		&rec.Protocol,
		&rec.Role,
		&rec.UserID,
		&rec.Status,
		&workdir,
		&rec.StartedAt,
		&rec.FinishedAt,
		&recError,
		&rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan invocation: %w", err)
	}

	if workdir != nil {
		rec.Workdir = *workdir
	}
	if recError != nil {
		rec.Error = *recError
	}
	return &rec, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
