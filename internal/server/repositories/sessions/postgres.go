// Package sessions provides the PostgreSQL-backed repository for clipboard
// session rows.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aryabasu21/OnlineClipboard/internal/common"
	"github.com/aryabasu21/OnlineClipboard/internal/dbx"
	"github.com/aryabasu21/OnlineClipboard/internal/server/models"
)

// PostgresRepository implements session storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new session row. The unique indexes on code and
// link_token reject collisions; the caller regenerates identifiers and
// retries on error.
func (r *PostgresRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (code, link_token, allow_history, expires_at, last_version, latest, current_lang, auto_format)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err := r.db.ExecContext(ctx, query,
		session.Code, session.LinkToken, session.AllowHistory, session.ExpiresAt,
		session.LastVersion, session.Latest, session.CurrentLang, session.AutoFormat)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByCode returns the session identified by code, or common.ErrorNotFound.
func (r *PostgresRepository) GetByCode(ctx context.Context, code string) (*models.Session, error) {
	query := selectSession + ` WHERE code=$1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, code))
}

// GetByLinkToken returns the session owning linkToken, or common.ErrorNotFound.
func (r *PostgresRepository) GetByLinkToken(ctx context.Context, linkToken string) (*models.Session, error) {
	query := selectSession + ` WHERE link_token=$1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, linkToken))
}

// UpdateLatest patches the cached head of the ledger. current_lang is only
// touched when lang is non-nil (COALESCE keeps the previous value otherwise).
func (r *PostgresRepository) UpdateLatest(ctx context.Context, code string, lastVersion int64, latest string, lang *string) error {
	query := `
		UPDATE sessions
		SET last_version=$2, latest=$3, current_lang=COALESCE($4, current_lang)
		WHERE code=$1;
	`
	res, err := r.db.ExecContext(ctx, query, code, lastVersion, latest, lang)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

// UpdatePrefs applies a partial preference patch; nil fields stay untouched.
func (r *PostgresRepository) UpdatePrefs(ctx context.Context, code string, autoFormat *bool, lang *string) error {
	query := `
		UPDATE sessions
		SET auto_format=COALESCE($2, auto_format), current_lang=COALESCE($3, current_lang)
		WHERE code=$1;
	`
	res, err := r.db.ExecContext(ctx, query, code, autoFormat, lang)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

// SetAllowHistory flips the history flag.
func (r *PostgresRepository) SetAllowHistory(ctx context.Context, code string, allow bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET allow_history=$2 WHERE code=$1;`, code, allow)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

const selectSession = `
	SELECT code, link_token, allow_history, expires_at, last_version, latest, current_lang, auto_format
	FROM sessions`

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Session, error) {
	var item models.Session
	err := row.Scan(&item.Code, &item.LinkToken, &item.AllowHistory, &item.ExpiresAt,
		&item.LastVersion, &item.Latest, &item.CurrentLang, &item.AutoFormat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &item, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
