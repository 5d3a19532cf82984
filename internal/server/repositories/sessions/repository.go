package sessions

import (
	"context"

	"github.com/aryabasu21/OnlineClipboard/internal/server/models"
)

// Repository is the persistence surface for session rows. Mutating methods
// accept the DBTX the caller is working with, so they compose into a single
// transaction alongside history mutations.
type Repository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByCode(ctx context.Context, code string) (*models.Session, error)
	GetByLinkToken(ctx context.Context, linkToken string) (*models.Session, error)
	// UpdateLatest patches last_version and latest, and current_lang when
	// lang is non-nil.
	UpdateLatest(ctx context.Context, code string, lastVersion int64, latest string, lang *string) error
	UpdatePrefs(ctx context.Context, code string, autoFormat *bool, lang *string) error
	SetAllowHistory(ctx context.Context, code string, allow bool) error
}
