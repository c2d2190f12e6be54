package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Conveyor/internal/domain"
)

// ConnectionRepo — репозиторий для работы с OAuth-учётками.
type ConnectionRepo struct {
	pool *pgxpool.Pool
}

// NewConnectionRepo создаёт новый ConnectionRepo.
func NewConnectionRepo(pool *pgxpool.Pool) *ConnectionRepo {
	return &ConnectionRepo{pool: pool}
}

const connectionColumns = `
	id, provider, account_id, status, access_token, refresh_token,
	expires_at, failure_count, created_at, updated_at
`

// Create создаёт новую учётку.
func (r *ConnectionRepo) Create(ctx context.Context, conn *domain.Connection) error {
	query := `
		INSERT INTO connections (id, provider, account_id, status, access_token,
		                         refresh_token, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		conn.ID,
		conn.Provider,
		nullString(conn.AccountID),
		conn.Status,
		conn.AccessToken,
		nullString(conn.RefreshToken),
		conn.ExpiresAt,
		conn.CreatedAt,
		conn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

// GetByID возвращает учётку по ID.
func (r *ConnectionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	return scanConnection(r.pool.QueryRow(ctx, query, id))
}

// List возвращает все учётки.
func (r *ConnectionRepo) List(ctx context.Context) ([]domain.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	return collectConnections(rows)
}

// UpdateTokens сохраняет новую пару токенов и статус учётки.
func (r *ConnectionRepo) UpdateTokens(ctx context.Context, conn *domain.Connection) error {
	query := `
		UPDATE connections
		SET status = $2, access_token = $3, refresh_token = $4,
		    expires_at = $5, failure_count = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		conn.ID,
		conn.Status,
		conn.AccessToken,
		nullString(conn.RefreshToken),
		conn.ExpiresAt,
		conn.FailureCount,
		conn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update connection tokens: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus обновляет статус учётки (например, REVOKED).
func (r *ConnectionRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.ConnectionStatus) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE connections SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("set connection status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет учётку.
func (r *ConnectionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpiringConnections возвращает активные учётки, чьи токены
// истекают до before и у которых есть refresh token.
// Реализует refresh.ConnectionLister.
func (r *ConnectionRepo) ListExpiringConnections(ctx context.Context, before time.Time, limit int) ([]domain.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE status = 'ACTIVE'
		  AND refresh_token IS NOT NULL
		  AND expires_at IS NOT NULL
		  AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list expiring connections: %w", err)
	}
	defer rows.Close()

	return collectConnections(rows)
}

// GetConnection возвращает учётку по строковому ID.
// Реализует provider.ConnectionStore.
func (r *ConnectionRepo) GetConnection(ctx context.Context, id string) (*domain.Connection, error) {
	connID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse connection id %q: %w", id, err)
	}
	return r.GetByID(ctx, connID)
}

// UpdateConnectionTokens сохраняет токены учётки.
// Реализует provider.ConnectionStore.
func (r *ConnectionRepo) UpdateConnectionTokens(ctx context.Context, conn *domain.Connection) error {
	return r.UpdateTokens(ctx, conn)
}

// --- Helpers ---

func scanConnection(row pgx.Row) (*domain.Connection, error) {
	var c domain.Connection
	var accountID, refreshToken *string

	err := row.Scan(
		&c.ID,
		&c.Provider,
		&accountID,
		&c.Status,
		&c.AccessToken,
		&refreshToken,
		&c.ExpiresAt,
		&c.FailureCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan connection: %w", err)
	}

	if accountID != nil {
		c.AccountID = *accountID
	}
	if refreshToken != nil {
		c.RefreshToken = *refreshToken
	}

	return &c, nil
}

func collectConnections(rows pgx.Rows) ([]domain.Connection, error) {
	var conns []domain.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}
	return conns, rows.Err()
}
