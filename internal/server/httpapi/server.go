// Package httpapi exposes the clipboard operations over a thin JSON REST
// surface. It holds no business logic: requests are decoded, handed to the
// service, and results mapped back to status codes.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aryabasu21/OnlineClipboard/internal/logging"
	"github.com/aryabasu21/OnlineClipboard/internal/server/models"
	"github.com/aryabasu21/OnlineClipboard/internal/server/services"
)

// maxBodyBytes caps request bodies; larger encrypted payloads take the
// offload path.
const maxBodyBytes = 64 * 1024

// Clipboard is the service surface the API depends on.
type Clipboard interface {
	CreateSession(ctx context.Context) (*services.CreatedSession, error)
	GetSessionByCode(ctx context.Context, code string) (*models.SessionMeta, error)
	JoinByLinkToken(ctx context.Context, linkToken string) (*models.SessionMeta, error)
	UpdateClipboard(ctx context.Context, code, ciphertext string, mode services.UpdateMode, baseVersion int64, lang *string) (int64, error)
	GetHistory(ctx context.Context, code string) ([]*models.VersionRecord, error)
	LatestCiphertext(ctx context.Context, code string) (*services.LatestResult, error)
	DeleteHistory(ctx context.Context, code string, version int64) error
	DeleteHistoryBatch(ctx context.Context, code string, versions []int64) error
	RestoreHistoryItems(ctx context.Context, code string, items []models.RestoreItem) error
	UpdateHistoryVersion(ctx context.Context, code string, version int64, ciphertext string, lang *string) (bool, error)
	ToggleHistory(ctx context.Context, code string) (bool, error)
	UpdateSessionPrefs(ctx context.Context, code string, autoFormat *bool, lang *string) error
}

// Offloader issues presigned URLs for oversized payloads.
type Offloader interface {
	GetPresignedPutURL(ctx context.Context) (string, string, error)
	GetPresignedGetURL(ctx context.Context, key string) (string, error)
}

// Server is the HTTP front of the clipboard: the JSON API plus the relay
// websocket endpoint.
type Server struct {
	address        string
	clipboard      Clipboard
	offloader      Offloader
	relay          http.Handler
	secretKey      []byte
	ticketValidity time.Duration
	logger         logging.Logger
}

func NewServer(address string, clipboard Clipboard, offloader Offloader, relay http.Handler, secretKey string, ticketValidity time.Duration, logger logging.Logger) *Server {
	return &Server{
		address:        address,
		clipboard:      clipboard,
		offloader:      offloader,
		relay:          relay,
		secretKey:      []byte(secretKey),
		ticketValidity: ticketValidity,
		logger:         logger.With("module", "http_server"),
	}
}

// Routes builds the request mux. Split out from Run so tests can drive the
// API through httptest without binding a socket.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/session", s.handleCreateSession)
	mux.HandleFunc("GET /api/session/{code}", s.handleGetSession)
	mux.HandleFunc("GET /api/join/{linkToken}", s.handleJoinByToken)
	mux.HandleFunc("POST /api/session/{code}/update", s.handleUpdateClipboard)
	mux.HandleFunc("GET /api/session/{code}/history", s.handleGetHistory)
	mux.HandleFunc("GET /api/session/{code}/latest", s.handleLatest)
	mux.HandleFunc("DELETE /api/session/{code}/history/{version}", s.handleDeleteHistory)
	mux.HandleFunc("POST /api/session/{code}/history/delete-batch", s.handleDeleteHistoryBatch)
	mux.HandleFunc("POST /api/session/{code}/history/toggle", s.handleToggleHistory)
	mux.HandleFunc("POST /api/session/{code}/history/restore", s.handleRestoreHistory)
	mux.HandleFunc("POST /api/session/{code}/history/{version}", s.handleUpdateHistoryVersion)
	mux.HandleFunc("POST /api/session/{code}/prefs", s.handleUpdatePrefs)

	mux.HandleFunc("POST /api/session/{code}/offload", s.handleOffloadPut)
	mux.HandleFunc("GET /api/session/{code}/offload", s.handleOffloadGet)

	if s.relay != nil {
		mux.Handle("/ws", s.relay)
	}

	return http.MaxBytesHandler(mux, maxBodyBytes)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
