// Package services implements the clipboard core: session registry,
// version ledger, and retention policy. Every mutating operation runs the
// session row and its history rows through one transaction, so the cached
// head (last_version, latest) never drifts from the surviving records.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aryabasu21/OnlineClipboard/internal/common"
	"github.com/aryabasu21/OnlineClipboard/internal/dbx"
	"github.com/aryabasu21/OnlineClipboard/internal/logging"
	"github.com/aryabasu21/OnlineClipboard/internal/randx"
	"github.com/aryabasu21/OnlineClipboard/internal/server/models"
	"github.com/aryabasu21/OnlineClipboard/internal/server/repositories/repomanager"
)

// UpdateMode expresses the writer's intent for UpdateClipboard.
type UpdateMode int

const (
	// ModeAppend starts a new checkpoint at last_version+1.
	ModeAppend UpdateMode = iota
	// ModeAmend coalesces into the checkpoint at last_version, keeping the
	// version number. Rapid successive edits (debounced autosave) amend;
	// deliberate saves append.
	ModeAmend
)

// createAttempts bounds identifier regeneration on unique-index collisions.
const createAttempts = 3

// Seams for deterministic identifiers in tests.
var (
	newSessionCode = randx.NewSessionCode
	newLinkToken   = randx.NewLinkToken
)

// CreatedSession is the result of CreateSession.
type CreatedSession struct {
	Code      string
	LinkToken string
}

// LatestResult is the head of a session's ledger. Version 0 with an empty
// ciphertext means the session exists but holds nothing yet; that is
// distinct from the session itself being absent (common.ErrorNotFound).
type LatestResult struct {
	Version    int64
	Ciphertext string
}

// ClipboardService owns all core clipboard operations.
type ClipboardService struct {
	db         *sql.DB
	repos      repomanager.RepositoryManager
	logger     logging.Logger
	sessionTTL time.Duration
	now        func() time.Time
}

// NewClipboardService wires the service to its store.
func NewClipboardService(db *sql.DB, repos repomanager.RepositoryManager, logger logging.Logger, sessionTTL time.Duration) *ClipboardService {
	return &ClipboardService{
		db:         db,
		repos:      repos,
		logger:     logger.With("module", "clipboard_service"),
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// CreateSession inserts a fresh session with random identifiers. On a
// uniqueness collision the identifiers are regenerated and the insert
// retried; the identifier space makes exhaustion of attempts effectively a
// store failure.
func (s *ClipboardService) CreateSession(ctx context.Context) (*CreatedSession, error) {
	sessionRepo := s.repos.Sessions(s.db)

	var lastErr error
	for i := 0; i < createAttempts; i++ {
		code, err := newSessionCode()
		if err != nil {
			return nil, fmt.Errorf("code generation: %w", err)
		}
		linkToken, err := newLinkToken()
		if err != nil {
			return nil, fmt.Errorf("token generation: %w", err)
		}

		lang := "plain"
		autoFormat := true
		session := &models.Session{
			Code:         code,
			LinkToken:    linkToken,
			AllowHistory: true,
			ExpiresAt:    s.now().Add(s.sessionTTL),
			LastVersion:  0,
			Latest:       "",
			CurrentLang:  &lang,
			AutoFormat:   &autoFormat,
		}

		if err := sessionRepo.Create(ctx, session); err != nil {
			lastErr = err
			s.logger.Warn(ctx, "session insert failed, regenerating identifiers", "attempt", i+1, "error", err)
			continue
		}
		return &CreatedSession{Code: code, LinkToken: linkToken}, nil
	}

	return nil, fmt.Errorf("%w: create session: %v", common.ErrorInternal, lastErr)
}

// GetSessionByCode returns the metadata projection for code.
func (s *ClipboardService) GetSessionByCode(ctx context.Context, code string) (*models.SessionMeta, error) {
	if code == "" {
		return nil, common.ErrorInvalidInput
	}
	session, err := s.repos.Sessions(s.db).GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return session.Meta(), nil
}

// JoinByLinkToken resolves a bearer capability token to the same metadata
// projection as GetSessionByCode. The token is not a decryption key; the
// client-side secret needs code and token together.
func (s *ClipboardService) JoinByLinkToken(ctx context.Context, linkToken string) (*models.SessionMeta, error) {
	if linkToken == "" {
		return nil, common.ErrorInvalidInput
	}
	session, err := s.repos.Sessions(s.db).GetByLinkToken(ctx, linkToken)
	if err != nil {
		return nil, err
	}
	return session.Meta(), nil
}

// UpdateClipboard persists a new head for the session's ledger and returns
// the version it lives at.
//
// ModeAmend patches the record at last_version in place; if that record
// vanished out of band the call self-heals by appending instead of failing.
// ModeAppend inserts at last_version+1. While history is disabled the
// ledger is held at one record, so the requested mode is overridden by the
// same amend-or-append logic against that single record.
//
// baseVersion optionally fences an amend: when non-zero, the amend only
// succeeds if it still matches last_version, otherwise
// common.ErrVersionConflict is returned and nothing changes. Zero keeps
// the original last-write-wins behavior.
func (s *ClipboardService) UpdateClipboard(ctx context.Context, code, ciphertext string, mode UpdateMode, baseVersion int64, lang *string) (int64, error) {
	if code == "" {
		return 0, common.ErrorInvalidInput
	}
	if mode != ModeAppend && mode != ModeAmend {
		return 0, common.ErrorInvalidInput
	}

	var version int64

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		sessionRepo := s.repos.Sessions(tx)
		versionRepo := s.repos.Versions(tx)

		session, err := sessionRepo.GetByCode(ctx, code)
		if err != nil {
			return err
		}

		amend := mode == ModeAmend
		if !session.AllowHistory {
			// Retention policy holds the ledger at one record; pruning
			// precedence over the caller's append intent.
			amend = true
		}

		if mode == ModeAmend && baseVersion > 0 && baseVersion != session.LastVersion {
			return common.ErrVersionConflict
		}

		now := s.now()

		if amend && session.LastVersion > 0 {
			err := versionRepo.UpdateCiphertext(ctx, code, session.LastVersion, ciphertext, now, lang)
			if err == nil {
				version = session.LastVersion
				return sessionRepo.UpdateLatest(ctx, code, session.LastVersion, ciphertext, lang)
			}
			if !errors.Is(err, common.ErrorNotFound) {
				return err
			}
			// Record at last_version vanished; fall through to append.
		}

		version = session.LastVersion + 1
		record := &models.VersionRecord{
			SessionCode: code,
			Version:     version,
			Ciphertext:  ciphertext,
			CreatedAt:   now,
			UpdatedAt:   now,
			Lang:        lang,
		}
		if err := versionRepo.Insert(ctx, record); err != nil {
			return err
		}
		return sessionRepo.UpdateLatest(ctx, code, version, ciphertext, lang)
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// GetHistory returns the full ledger ascending by version.
func (s *ClipboardService) GetHistory(ctx context.Context, code string) ([]*models.VersionRecord, error) {
	if code == "" {
		return nil, common.ErrorInvalidInput
	}
	if _, err := s.repos.Sessions(s.db).GetByCode(ctx, code); err != nil {
		return nil, err
	}
	return s.repos.Versions(s.db).ListBySession(ctx, code)
}

// LatestCiphertext returns the ledger head without touching history rows;
// the session row caches it.
func (s *ClipboardService) LatestCiphertext(ctx context.Context, code string) (*LatestResult, error) {
	if code == "" {
		return nil, common.ErrorInvalidInput
	}
	session, err := s.repos.Sessions(s.db).GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if session.LastVersion == 0 {
		return &LatestResult{Version: 0, Ciphertext: ""}, nil
	}
	return &LatestResult{Version: session.LastVersion, Ciphertext: session.Latest}, nil
}

// DeleteHistory removes one checkpoint. Deleting a version that is already
// gone is a no-op; either way the cached head is recomputed from the
// surviving records.
func (s *ClipboardService) DeleteHistory(ctx context.Context, code string, version int64) error {
	if code == "" {
		return common.ErrorInvalidInput
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		sessionRepo := s.repos.Sessions(tx)
		versionRepo := s.repos.Versions(tx)

		if _, err := sessionRepo.GetByCode(ctx, code); err != nil {
			return err
		}
		if err := versionRepo.Delete(ctx, code, version); err != nil {
			return err
		}
		return s.recomputeLatest(ctx, tx, code)
	})
}

// DeleteHistoryBatch removes each listed version (idempotent per item) and
// recomputes the head exactly once at the end.
func (s *ClipboardService) DeleteHistoryBatch(ctx context.Context, code string, versions []int64) error {
	if code == "" {
		return common.ErrorInvalidInput
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		sessionRepo := s.repos.Sessions(tx)
		versionRepo := s.repos.Versions(tx)

		if _, err := sessionRepo.GetByCode(ctx, code); err != nil {
			return err
		}
		for _, v := range versions {
			if err := versionRepo.Delete(ctx, code, v); err != nil {
				return err
			}
		}
		return s.recomputeLatest(ctx, tx, code)
	})
}

// RestoreHistoryItems merges client-held checkpoints back into the ledger.
// Versions already present are never overwritten, so replaying the same
// item set is idempotent. The head is recomputed across the full ledger
// afterwards; the global maximum may well be a record that predates the
// merge.
func (s *ClipboardService) RestoreHistoryItems(ctx context.Context, code string, items []models.RestoreItem) error {
	if code == "" {
		return common.ErrorInvalidInput
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		sessionRepo := s.repos.Sessions(tx)
		versionRepo := s.repos.Versions(tx)

		if _, err := sessionRepo.GetByCode(ctx, code); err != nil {
			return err
		}

		now := s.now()
		for _, item := range items {
			if item.Version <= 0 {
				return common.ErrorInvalidInput
			}
			_, err := versionRepo.Get(ctx, code, item.Version)
			if err == nil {
				continue
			}
			if !errors.Is(err, common.ErrorNotFound) {
				return err
			}

			createdAt := item.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}
			record := &models.VersionRecord{
				SessionCode: code,
				Version:     item.Version,
				Ciphertext:  item.Ciphertext,
				CreatedAt:   createdAt,
				UpdatedAt:   now,
			}
			if err := versionRepo.Insert(ctx, record); err != nil {
				return err
			}
		}
		return s.recomputeLatest(ctx, tx, code)
	})
}

// UpdateHistoryVersion rewrites the payload of one specific checkpoint
// (a deliberate edit of an old revision, distinct from amending the head).
// A vanished target is a soft signal, not a failure: ok=false lets the
// caller decide between abandoning and restarting the edit. When the edited
// version is the current head, the cached head ciphertext follows.
func (s *ClipboardService) UpdateHistoryVersion(ctx context.Context, code string, version int64, ciphertext string, lang *string) (bool, error) {
	if code == "" || version <= 0 {
		return false, common.ErrorInvalidInput
	}

	ok := true
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		sessionRepo := s.repos.Sessions(tx)
		versionRepo := s.repos.Versions(tx)

		session, err := sessionRepo.GetByCode(ctx, code)
		if err != nil {
			return err
		}

		err = versionRepo.UpdateCiphertext(ctx, code, version, ciphertext, s.now(), lang)
		if errors.Is(err, common.ErrorNotFound) {
			ok = false
			return nil
		}
		if err != nil {
			return err
		}

		if session.LastVersion == version {
			return sessionRepo.UpdateLatest(ctx, code, version, ciphertext, lang)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ToggleHistory flips the allow-history flag and returns the new value.
// The false transition invokes the retention policy: every checkpoint
// except the head is destroyed, irreversibly. Re-enabling history never
// brings pruned records back.
func (s *ClipboardService) ToggleHistory(ctx context.Context, code string) (bool, error) {
	if code == "" {
		return false, common.ErrorInvalidInput
	}

	var allow bool
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		sessionRepo := s.repos.Sessions(tx)
		versionRepo := s.repos.Versions(tx)

		session, err := sessionRepo.GetByCode(ctx, code)
		if err != nil {
			return err
		}

		allow = !session.AllowHistory
		if err := sessionRepo.SetAllowHistory(ctx, code, allow); err != nil {
			return err
		}

		if !allow {
			if err := versionRepo.DeleteAllExcept(ctx, code, session.LastVersion); err != nil {
				return err
			}
			// Recompute rather than trust last_version: the head record
			// itself may have vanished out of band.
			return s.recomputeLatest(ctx, tx, code)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return allow, nil
}

// UpdateSessionPrefs applies a partial preference patch; nil fields are
// left untouched.
func (s *ClipboardService) UpdateSessionPrefs(ctx context.Context, code string, autoFormat *bool, lang *string) error {
	if code == "" {
		return common.ErrorInvalidInput
	}
	sessionRepo := s.repos.Sessions(s.db)
	if _, err := sessionRepo.GetByCode(ctx, code); err != nil {
		return err
	}
	if autoFormat == nil && lang == nil {
		// Empty patch: the session must still exist, but nothing changes.
		return nil
	}
	return sessionRepo.UpdatePrefs(ctx, code, autoFormat, lang)
}

// recomputeLatest restores the last_version == max(version) invariant from
// the surviving records (0/"" for an empty ledger).
func (s *ClipboardService) recomputeLatest(ctx context.Context, tx dbx.DBTX, code string) error {
	sessionRepo := s.repos.Sessions(tx)
	versionRepo := s.repos.Versions(tx)

	max, err := versionRepo.Max(ctx, code)
	if errors.Is(err, common.ErrorNotFound) {
		return sessionRepo.UpdateLatest(ctx, code, 0, "", nil)
	}
	if err != nil {
		return err
	}
	return sessionRepo.UpdateLatest(ctx, code, max.Version, max.Ciphertext, nil)
}
