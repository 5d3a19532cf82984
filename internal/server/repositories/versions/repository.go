package versions

import (
	"context"
	"time"

	"github.com/aryabasu21/OnlineClipboard/internal/server/models"
)

// Repository is the persistence surface for history rows (the ledger).
type Repository interface {
	Insert(ctx context.Context, record *models.VersionRecord) error
	Get(ctx context.Context, sessionCode string, version int64) (*models.VersionRecord, error)
	// ListBySession returns all records ascending by version.
	ListBySession(ctx context.Context, sessionCode string) ([]*models.VersionRecord, error)
	// Max returns the surviving record with the highest version, or
	// common.ErrorNotFound when the ledger is empty.
	Max(ctx context.Context, sessionCode string) (*models.VersionRecord, error)
	// UpdateCiphertext rewrites the payload of one record; lang is only
	// touched when non-nil. Returns common.ErrorNotFound when the record
	// no longer exists.
	UpdateCiphertext(ctx context.Context, sessionCode string, version int64, ciphertext string, updatedAt time.Time, lang *string) error
	// Delete removes one record; deleting a missing version is a no-op.
	Delete(ctx context.Context, sessionCode string, version int64) error
	// DeleteAllExcept removes every record of the session other than the
	// one at keep (keep 0 removes everything).
	DeleteAllExcept(ctx context.Context, sessionCode string, keep int64) error
}
