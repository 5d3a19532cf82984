// Package versions provides the PostgreSQL-backed repository for the
// per-session ledger of ciphertext checkpoints.
package versions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aryabasu21/OnlineClipboard/internal/common"
	"github.com/aryabasu21/OnlineClipboard/internal/dbx"
	"github.com/aryabasu21/OnlineClipboard/internal/server/models"
)

// PostgresRepository implements ledger storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert adds one record. The (session_code, version) primary key rejects
// duplicates; callers check existence first when merging.
func (r *PostgresRepository) Insert(ctx context.Context, record *models.VersionRecord) error {
	query := `
		INSERT INTO history (session_code, version, ciphertext, created_at, updated_at, lang)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := r.db.ExecContext(ctx, query,
		record.SessionCode, record.Version, record.Ciphertext,
		record.CreatedAt, record.UpdatedAt, record.Lang)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get returns one record, or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, sessionCode string, version int64) (*models.VersionRecord, error) {
	query := selectRecord + ` WHERE session_code=$1 AND version=$2`
	return scanOne(r.db.QueryRowContext(ctx, query, sessionCode, version))
}

// ListBySession returns the full ledger ascending by version.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionCode string) ([]*models.VersionRecord, error) {
	query := selectRecord + ` WHERE session_code=$1 ORDER BY version ASC`
	rows, err := r.db.QueryContext(ctx, query, sessionCode)
	if err != nil {
		return nil, fmt.Errorf("failed to select history: %w", err)
	}
	defer rows.Close()

	var result []*models.VersionRecord
	for rows.Next() {
		var item models.VersionRecord
		if err := rows.Scan(&item.SessionCode, &item.Version, &item.Ciphertext,
			&item.CreatedAt, &item.UpdatedAt, &item.Lang); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Max returns the surviving record with the highest version, or
// common.ErrorNotFound for an empty ledger.
func (r *PostgresRepository) Max(ctx context.Context, sessionCode string) (*models.VersionRecord, error) {
	query := selectRecord + ` WHERE session_code=$1 ORDER BY version DESC LIMIT 1`
	return scanOne(r.db.QueryRowContext(ctx, query, sessionCode))
}

// UpdateCiphertext rewrites one record's payload in place; the version
// number is never changed. Returns common.ErrorNotFound when the record
// vanished.
func (r *PostgresRepository) UpdateCiphertext(ctx context.Context, sessionCode string, version int64, ciphertext string, updatedAt time.Time, lang *string) error {
	query := `
		UPDATE history
		SET ciphertext=$3, updated_at=$4, lang=COALESCE($5, lang)
		WHERE session_code=$1 AND version=$2;
	`
	res, err := r.db.ExecContext(ctx, query, sessionCode, version, ciphertext, updatedAt, lang)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// Delete removes one record. Missing versions are a no-op, so deletes are
// safe to retry.
func (r *PostgresRepository) Delete(ctx context.Context, sessionCode string, version int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM history WHERE session_code=$1 AND version=$2;`, sessionCode, version)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteAllExcept prunes the ledger down to at most the record at keep.
func (r *PostgresRepository) DeleteAllExcept(ctx context.Context, sessionCode string, keep int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM history WHERE session_code=$1 AND version<>$2;`, sessionCode, keep)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectRecord = `
	SELECT session_code, version, ciphertext, created_at, updated_at, lang
	FROM history`

func scanOne(row *sql.Row) (*models.VersionRecord, error) {
	var item models.VersionRecord
	err := row.Scan(&item.SessionCode, &item.Version, &item.Ciphertext,
		&item.CreatedAt, &item.UpdatedAt, &item.Lang)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &item, nil
}
