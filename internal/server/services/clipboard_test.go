package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryabasu21/OnlineClipboard/internal/common"
	"github.com/aryabasu21/OnlineClipboard/internal/cryptox"
	"github.com/aryabasu21/OnlineClipboard/internal/dbx"
	"github.com/aryabasu21/OnlineClipboard/internal/logging"
	"github.com/aryabasu21/OnlineClipboard/internal/server/models"
	"github.com/aryabasu21/OnlineClipboard/internal/server/repositories/repomanager"
	"github.com/aryabasu21/OnlineClipboard/internal/server/repositories/sessions"
	"github.com/aryabasu21/OnlineClipboard/internal/server/repositories/versions"
)

// -------- test fakes --------

// fakeSessionsRepo keeps session rows in memory. Error injection fields let
// individual tests force store failures.
type fakeSessionsRepo struct {
	sessions.Repository
	rows map[string]*models.Session

	createErr error
	getErr    error
	updateErr error
}

func (f *fakeSessionsRepo) Create(ctx context.Context, s *models.Session) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.rows[s.Code]; ok {
		return errors.New("duplicate key")
	}
	cp := *s
	f.rows[s.Code] = &cp
	return nil
}

func (f *fakeSessionsRepo) GetByCode(ctx context.Context, code string) (*models.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.rows[code]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionsRepo) GetByLinkToken(ctx context.Context, linkToken string) (*models.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, s := range f.rows {
		if s.LinkToken == linkToken {
			cp := *s
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeSessionsRepo) UpdateLatest(ctx context.Context, code string, lastVersion int64, latest string, lang *string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	s, ok := f.rows[code]
	if !ok {
		return common.ErrorNotFound
	}
	s.LastVersion = lastVersion
	s.Latest = latest
	if lang != nil {
		v := *lang
		s.CurrentLang = &v
	}
	return nil
}

func (f *fakeSessionsRepo) UpdatePrefs(ctx context.Context, code string, autoFormat *bool, lang *string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	s, ok := f.rows[code]
	if !ok {
		return common.ErrorNotFound
	}
	if autoFormat != nil {
		v := *autoFormat
		s.AutoFormat = &v
	}
	if lang != nil {
		v := *lang
		s.CurrentLang = &v
	}
	return nil
}

func (f *fakeSessionsRepo) SetAllowHistory(ctx context.Context, code string, allow bool) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	s, ok := f.rows[code]
	if !ok {
		return common.ErrorNotFound
	}
	s.AllowHistory = allow
	return nil
}

// fakeVersionsRepo keeps ledger rows in memory keyed by (code, version).
type fakeVersionsRepo struct {
	versions.Repository
	rows map[string]map[int64]*models.VersionRecord

	insertErr error
	updateErr error
	deleteErr error
}

func (f *fakeVersionsRepo) bucket(code string) map[int64]*models.VersionRecord {
	b, ok := f.rows[code]
	if !ok {
		b = make(map[int64]*models.VersionRecord)
		f.rows[code] = b
	}
	return b
}

func (f *fakeVersionsRepo) Insert(ctx context.Context, r *models.VersionRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	b := f.bucket(r.SessionCode)
	if _, ok := b[r.Version]; ok {
		return errors.New("duplicate key")
	}
	cp := *r
	b[r.Version] = &cp
	return nil
}

func (f *fakeVersionsRepo) Get(ctx context.Context, code string, version int64) (*models.VersionRecord, error) {
	r, ok := f.bucket(code)[version]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeVersionsRepo) ListBySession(ctx context.Context, code string) ([]*models.VersionRecord, error) {
	b := f.bucket(code)
	out := make([]*models.VersionRecord, 0, len(b))
	for _, r := range b {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (f *fakeVersionsRepo) Max(ctx context.Context, code string) (*models.VersionRecord, error) {
	var max *models.VersionRecord
	for _, r := range f.bucket(code) {
		if max == nil || r.Version > max.Version {
			max = r
		}
	}
	if max == nil {
		return nil, common.ErrorNotFound
	}
	cp := *max
	return &cp, nil
}

func (f *fakeVersionsRepo) UpdateCiphertext(ctx context.Context, code string, version int64, ciphertext string, updatedAt time.Time, lang *string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	r, ok := f.bucket(code)[version]
	if !ok {
		return common.ErrorNotFound
	}
	r.Ciphertext = ciphertext
	r.UpdatedAt = updatedAt
	if lang != nil {
		v := *lang
		r.Lang = &v
	}
	return nil
}

func (f *fakeVersionsRepo) Delete(ctx context.Context, code string, version int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.bucket(code), version)
	return nil
}

func (f *fakeVersionsRepo) DeleteAllExcept(ctx context.Context, code string, keep int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	b := f.bucket(code)
	for v := range b {
		if v != keep {
			delete(b, v)
		}
	}
	return nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	s *fakeSessionsRepo
	v *fakeVersionsRepo
}

func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository { return m.s }
func (m *fakeRepoManager) Versions(db dbx.DBTX) versions.Repository { return m.v }

// -------- helpers --------

func newDiscardSlog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		s: &fakeSessionsRepo{rows: make(map[string]*models.Session)},
		v: &fakeVersionsRepo{rows: make(map[string]map[int64]*models.VersionRecord)},
	}
}

func newClipboardService(t *testing.T, db *sql.DB, m *fakeRepoManager) *ClipboardService {
	t.Helper()
	logger := logging.NewSlogLogger(newDiscardSlog())
	return NewClipboardService(db, m, logger, 24*time.Hour)
}

func seedSession(m *fakeRepoManager, code string) *models.Session {
	s := &models.Session{
		Code:         code,
		LinkToken:    "tok-" + code,
		AllowHistory: true,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	m.s.rows[code] = s
	return s
}

// expectTx queues one begin/commit pair; every successful mutating call runs
// exactly one transaction.
func expectTx(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectCommit()
}

func expectTxRollback(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectRollback()
}

// -------- tests --------

func TestCreateSession_Success(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	s := newClipboardService(t, db, m)

	created, err := s.CreateSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotEmpty(t, created.Code)
	assert.NotEmpty(t, created.LinkToken)

	row := m.s.rows[created.Code]
	require.NotNil(t, row)
	assert.True(t, row.AllowHistory)
	assert.Equal(t, int64(0), row.LastVersion)
	assert.Equal(t, "", row.Latest)
}

func TestCreateSession_RetriesOnCollision(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	origCode := newSessionCode
	origToken := newLinkToken
	defer func() { newSessionCode = origCode; newLinkToken = origToken }()

	codes := []string{"AAAAA", "AAAAA", "BBBBB"}
	i := 0
	newSessionCode = func() (string, error) { c := codes[i%len(codes)]; i++; return c, nil }
	newLinkToken = func() (string, error) { return "tok", nil }

	m := newFakeRepoManager()
	seedSession(m, "AAAAA")
	s := newClipboardService(t, db, m)

	created, err := s.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "BBBBB", created.Code)
}

func TestCreateSession_ExhaustsAttempts(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	m.s.createErr = errors.New("boom")
	s := newClipboardService(t, db, m)

	_, err := s.CreateSession(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrorInternal)
	assert.True(t, strings.Contains(err.Error(), "create session:"))
}

func TestGetSessionByCode(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	row := seedSession(m, "ABC12")
	row.Latest = "ct"
	row.LastVersion = 3
	s := newClipboardService(t, db, m)

	meta, err := s.GetSessionByCode(context.Background(), "ABC12")
	require.NoError(t, err)
	assert.Equal(t, "ABC12", meta.Code)
	assert.Equal(t, "tok-ABC12", meta.LinkToken)
	assert.True(t, meta.HasLatest)
	assert.Equal(t, "plain", meta.CurrentLang)
	assert.True(t, meta.AutoFormat)

	_, err = s.GetSessionByCode(context.Background(), "NOPE1")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = s.GetSessionByCode(context.Background(), "")
	assert.ErrorIs(t, err, common.ErrorInvalidInput)
}

func TestJoinByLinkToken(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	seedSession(m, "ABC12")
	s := newClipboardService(t, db, m)

	meta, err := s.JoinByLinkToken(context.Background(), "tok-ABC12")
	require.NoError(t, err)
	assert.Equal(t, "ABC12", meta.Code)
	assert.False(t, meta.HasLatest)

	_, err = s.JoinByLinkToken(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = s.JoinByLinkToken(context.Background(), "")
	assert.ErrorIs(t, err, common.ErrorInvalidInput)
}

func TestUpdateClipboard_AppendBumpsByOne(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	seedSession(m, "ABC12")
	s := newClipboardService(t, db, m)
	ctx := context.Background()

	expectTx(mock)
	v, err := s.UpdateClipboard(ctx, "ABC12", "ct1", ModeAppend, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	expectTx(mock)
	v, err = s.UpdateClipboard(ctx, "ABC12", "ct2", ModeAppend, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	row := m.s.rows["ABC12"]
	assert.Equal(t, int64(2), row.LastVersion)
	assert.Equal(t, "ct2", row.Latest)
	assert.Len(t, m.v.rows["ABC12"], 2)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateClipboard_AmendKeepsVersion(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	seedSession(m, "ABC12")
	s := newClipboardService(t, db, m)
	ctx := context.Background()

	expectTx(mock)
	_, err := s.UpdateClipboard(ctx, "ABC12", "ct1", ModeAppend, 0, nil)
	require.NoError(t, err)

	expectTx(mock)
	v, err := s.UpdateClipboard(ctx, "ABC12", "ct1b", ModeAmend, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	row := m.s.rows["ABC12"]
	assert.Equal(t, int64(1), row.LastVersion)
	assert.Equal(t, "ct1b", row.Latest)
	assert.Len(t, m.v.rows["ABC12"], 1)
	assert.Equal(t, "ct1b", m.v.rows["ABC12"][1].Ciphertext)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateClipboard_AmendEmptyLedgerAppends(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	seedSession(m, "ABC12")
	s := newClipboardService(t, db, m)

	expectTx(mock)
	v, err := s.UpdateClipboard(context.Background(), "ABC12", "ct1", ModeAmend, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateClipboard_AmendSelfHealsWhenHeadVanished(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	row := seedSession(m, "ABC12")
	// Session counter says 5 but the record at 5 is gone.
	row.LastVersion = 5
	row.Latest = "stale"
	s := newClipboardService(t, db, m)

	expectTx(mock)
	v, err := s.UpdateClipboard(context.Background(), "ABC12", "fresh", ModeAmend, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6), v)
	assert.Equal(t, "fresh", m.s.rows["ABC12"].Latest)
	assert.Equal(t, "fresh", m.v.rows["ABC12"][6].Ciphertext)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateClipboard_FenceConflict(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	seedSession(m, "ABC12")
	s := newClipboardService(t, db, m)
	ctx := context.Background()

	expectTx(mock)
	_, err := s.UpdateClipboard(ctx, "ABC12", "ct1", ModeAppend, 0, nil)
	require.NoError(t, err)
	expectTx(mock)
	_, err = s.UpdateClipboard(ctx, "ABC12", "ct2", ModeAppend, 0, nil)
	require.NoError(t, err)

	// Writer still thinks the head is version 1.
	expectTxRollback(mock)
	_, err = s.UpdateClipboard(ctx, "ABC12", "late", ModeAmend, 1, nil)
	assert.ErrorIs(t, err, common.ErrVersionConflict)
	assert.Equal(t, "ct2", m.s.rows["ABC12"].Latest)

	// A matching fence goes through.
	expectTx(mock)
	v, err := s.UpdateClipboard(ctx, "ABC12", "ct2b", ModeAmend, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateClipboard_HistoryDisabledHoldsOneRecord(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	row := seedSession(m, "ABC12")
	row.AllowHistory = false
	s := newClipboardService(t, db, m)
	ctx := context.Background()

	expectTx(mock)
	v, err := s.UpdateClipboard(ctx, "ABC12", "a", ModeAppend, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// The append intent is overridden while history is off.
	expectTx(mock)
	v, err = s.UpdateClipboard(ctx, "ABC12", "b", ModeAppend, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
	assert.Len(t, m.v.rows["ABC12"], 1)
	assert.Equal(t, "b", m.s.rows["ABC12"].Latest)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateClipboard_Errors(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	s := newClipboardService(t, db, m)
	ctx := context.Background()

	_, err := s.UpdateClipboard(ctx, "", "ct", ModeAppend, 0, nil)
	assert.ErrorIs(t, err, common.ErrorInvalidInput)

	_, err = s.UpdateClipboard(ctx, "ABC12", "ct", UpdateMode(42), 0, nil)
	assert.ErrorIs(t, err, common.ErrorInvalidInput)

	expectTxRollback(mock)
	_, err = s.UpdateClipboard(ctx, "NOPE1", "ct", ModeAppend, 0, nil)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHistory(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	seedSession(m, "ABC12")
	s := newClipboardService(t, db, m)
	ctx := context.Background()

	for _, ct := range []string{"a", "b", "c"} {
		expectTx(mock)
		_, err := s.UpdateClipboard(ctx, "ABC12", ct, ModeAppend, 0, nil)
		require.NoError(t, err)
	}

	history, err := s.GetHistory(ctx, "ABC12")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, r := range history {
		assert.Equal(t, int64(i+1), r.Version)
	}

	_, err = s.GetHistory(ctx, "NOPE1")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestCiphertext_EmptyLedgerSentinel(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	seedSession(m, "ABC12")
	s := newClipboardService(t, db, m)

	latest, err := s.LatestCiphertext(context.Background(), "ABC12")
	require.NoError(t, err)
	assert.Equal(t, int64(0), latest.Version)
	assert.Equal(t, "", latest.Ciphertext)

	_, err = s.LatestCiphertext(context.Background(), "NOPE1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDeleteHistory_RecomputesHead(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	seedSession(m, "ABC12")
	s := newClipboardService(t, db, m)
	ctx := context.Background()

	for _, ct := range []string{"a", "b", "c"} {
		expectTx(mock)
		_, err := s.UpdateClipboard(ctx, "ABC12", ct, ModeAppend, 0, nil)
		require.NoError(t, err)
	}

	// Deleting the head moves it back to the surviving maximum.
	expectTx(mock)
	require.NoError(t, s.DeleteHistory(ctx, "ABC12", 3))
	row := m.s.rows["ABC12"]
	assert.Equal(t, int64(2), row.LastVersion)
	assert.Equal(t, "b", row.Latest)

	// Deleting a middle record leaves the head alone.
	expectTx(mock)
	require.NoError(t, s.DeleteHistory(ctx, "ABC12", 1))
	row = m.s.rows["ABC12"]
	assert.Equal(t, int64(2), row.LastVersion)

	// Deleting an absent version is a no-op, not an error.
	expectTx(mock)
	require.NoError(t, s.DeleteHistory(ctx, "ABC12", 99))

	// Emptying the ledger resets the head to the zero sentinel.
	expectTx(mock)
	require.NoError(t, s.DeleteHistory(ctx, "ABC12", 2))
	row = m.s.rows["ABC12"]
	assert.Equal(t, int64(0), row.LastVersion)
	assert.Equal(t, "", row.Latest)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteHistoryBatch(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	seedSession(m, "ABC12")
	s := newClipboardService(t, db, m)
	ctx := context.Background()

	for _, ct := range []string{"a", "b", "c", "d"} {
		expectTx(mock)
		_, err := s.UpdateClipboard(ctx, "ABC12", ct, ModeAppend, 0, nil)
		require.NoError(t, err)
	}

	expectTx(mock)
	require.NoError(t, s.DeleteHistoryBatch(ctx, "ABC12", []int64{2, 4, 99}))

	row := m.s.rows["ABC12"]
	assert.Equal(t, int64(3), row.LastVersion)
	assert.Equal(t, "c", row.Latest)
	assert.Len(t, m.v.rows["ABC12"], 2)

	expectTxRollback(mock)
	err := s.DeleteHistoryBatch(ctx, "NOPE1", []int64{1})
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreHistoryItems(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	seedSession(m, "ABC12")
	s := newClipboardService(t, db, m)
	ctx := context.Background()

	expectTx(mock)
	_, err := s.UpdateClipboard(ctx, "ABC12", "live", ModeAppend, 0, nil)
	require.NoError(t, err)

	items := []models.RestoreItem{
		{Version: 3, Ciphertext: "old3", CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{Version: 1, Ciphertext: "conflicting"}, // already present, must not overwrite
	}

	expectTx(mock)
	require.NoError(t, s.RestoreHistoryItems(ctx, "ABC12", items))

	b := m.v.rows["ABC12"]
	require.Len(t, b, 2)
	assert.Equal(t, "live", b[1].Ciphertext)
	assert.Equal(t, "old3", b[3].Ciphertext)
	assert.Equal(t, 2026, b[3].CreatedAt.Year())

	row := m.s.rows["ABC12"]
	assert.Equal(t, int64(3), row.LastVersion)
	assert.Equal(t, "old3", row.Latest)

	// Replaying the same set changes nothing.
	expectTx(mock)
	require.NoError(t, s.RestoreHistoryItems(ctx, "ABC12", items))
	assert.Len(t, m.v.rows["ABC12"], 2)
	assert.Equal(t, int64(3), m.s.rows["ABC12"].LastVersion)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRestoreHistoryItems_RejectsNonPositiveVersion(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	seedSession(m, "ABC12")
	s := newClipboardService(t, db, m)

	expectTxRollback(mock)
	err := s.RestoreHistoryItems(context.Background(), "ABC12", []models.RestoreItem{{Version: 0, Ciphertext: "x"}})
	assert.ErrorIs(t, err, common.ErrorInvalidInput)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateHistoryVersion(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	seedSession(m, "ABC12")
	s := newClipboardService(t, db, m)
	ctx := context.Background()

	for _, ct := range []string{"a", "b"} {
		expectTx(mock)
		_, err := s.UpdateClipboard(ctx, "ABC12", ct, ModeAppend, 0, nil)
		require.NoError(t, err)
	}

	// Editing a non-head version leaves the cached head alone.
	expectTx(mock)
	ok, err := s.UpdateHistoryVersion(ctx, "ABC12", 1, "a2", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a2", m.v.rows["ABC12"][1].Ciphertext)
	assert.Equal(t, "b", m.s.rows["ABC12"].Latest)

	// Editing the head keeps the cache in step.
	expectTx(mock)
	ok, err = s.UpdateHistoryVersion(ctx, "ABC12", 2, "b2", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b2", m.s.rows["ABC12"].Latest)

	// A vanished target is a soft miss, not an error.
	expectTx(mock)
	ok, err = s.UpdateHistoryVersion(ctx, "ABC12", 99, "x", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.UpdateHistoryVersion(ctx, "ABC12", 0, "x", nil)
	assert.ErrorIs(t, err, common.ErrorInvalidInput)

	expectTxRollback(mock)
	_, err = s.UpdateHistoryVersion(ctx, "NOPE1", 1, "x", nil)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleHistory_DisablePrunesAllButHead(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	seedSession(m, "ABC12")
	s := newClipboardService(t, db, m)
	ctx := context.Background()

	for _, ct := range []string{"a", "b", "c"} {
		expectTx(mock)
		_, err := s.UpdateClipboard(ctx, "ABC12", ct, ModeAppend, 0, nil)
		require.NoError(t, err)
	}

	expectTx(mock)
	allow, err := s.ToggleHistory(ctx, "ABC12")
	require.NoError(t, err)
	assert.False(t, allow)

	b := m.v.rows["ABC12"]
	require.Len(t, b, 1)
	assert.Equal(t, "c", b[3].Ciphertext)
	assert.Equal(t, int64(3), m.s.rows["ABC12"].LastVersion)

	// Re-enabling does not resurrect pruned records, and appending resumes
	// from the preserved counter.
	expectTx(mock)
	allow, err = s.ToggleHistory(ctx, "ABC12")
	require.NoError(t, err)
	assert.True(t, allow)
	assert.Len(t, m.v.rows["ABC12"], 1)

	expectTx(mock)
	v, err := s.UpdateClipboard(ctx, "ABC12", "d", ModeAppend, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleHistory_NotFound(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	s := newClipboardService(t, db, m)

	expectTxRollback(mock)
	_, err := s.ToggleHistory(context.Background(), "NOPE1")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSessionPrefs(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	seedSession(m, "ABC12")
	s := newClipboardService(t, db, m)
	ctx := context.Background()

	lang := "go"
	require.NoError(t, s.UpdateSessionPrefs(ctx, "ABC12", nil, &lang))
	require.NotNil(t, m.s.rows["ABC12"].CurrentLang)
	assert.Equal(t, "go", *m.s.rows["ABC12"].CurrentLang)

	af := false
	require.NoError(t, s.UpdateSessionPrefs(ctx, "ABC12", &af, nil))
	require.NotNil(t, m.s.rows["ABC12"].AutoFormat)
	assert.False(t, *m.s.rows["ABC12"].AutoFormat)
	assert.Equal(t, "go", *m.s.rows["ABC12"].CurrentLang)

	// Both nil is a no-op, not an error.
	require.NoError(t, s.UpdateSessionPrefs(ctx, "ABC12", nil, nil))

	err := s.UpdateSessionPrefs(ctx, "NOPE1", &af, nil)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	// An empty patch against an unknown code still fails; the existence
	// check comes before the no-op short-circuit.
	err = s.UpdateSessionPrefs(ctx, "NOPE1", nil, nil)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

// End-to-end walk through the core lifecycle: create, append, amend,
// append, inspect history, delete, read the recomputed head. Payloads go
// through the real client-side codec so the stored strings look like what
// browsers actually submit.
func TestClipboardLifecycle(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	s := newClipboardService(t, db, m)
	ctx := context.Background()

	created, err := s.CreateSession(ctx)
	require.NoError(t, err)
	code := created.Code

	secret := cryptox.DeriveSecret(created.Code, created.LinkToken)
	encrypt := func(plaintext string) string {
		ct, err := cryptox.Encrypt(secret, plaintext)
		require.NoError(t, err)
		return ct
	}
	ct1 := encrypt("first")
	ct1b := encrypt("first, edited")
	ct2 := encrypt("second")

	expectTx(mock)
	v, err := s.UpdateClipboard(ctx, code, ct1, ModeAppend, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	expectTx(mock)
	v, err = s.UpdateClipboard(ctx, code, ct1b, ModeAmend, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	expectTx(mock)
	v, err = s.UpdateClipboard(ctx, code, ct2, ModeAppend, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	history, err := s.GetHistory(ctx, code)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ct1b, history[0].Ciphertext)
	assert.Equal(t, ct2, history[1].Ciphertext)

	expectTx(mock)
	require.NoError(t, s.DeleteHistory(ctx, code, 2))

	latest, err := s.LatestCiphertext(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest.Version)

	plaintext, err := cryptox.Decrypt(secret, latest.Ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "first, edited", plaintext)

	require.NoError(t, mock.ExpectationsWereMet())
}
