package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aryabasu21/OnlineClipboard/internal/common"
	"github.com/aryabasu21/OnlineClipboard/internal/server/auth"
	"github.com/aryabasu21/OnlineClipboard/internal/server/models"
	"github.com/aryabasu21/OnlineClipboard/internal/server/services"
)

// sessionMetaResponse is the projection returned to joining clients. The
// room ticket admits its holder to the relay room for this session.
type sessionMetaResponse struct {
	Code         string `json:"code"`
	LinkToken    string `json:"linkToken"`
	AllowHistory bool   `json:"allowHistory"`
	HasLatest    bool   `json:"hasLatest"`
	CurrentLang  string `json:"currentLang"`
	AutoFormat   bool   `json:"autoFormat"`
	RoomTicket   string `json:"roomTicket"`
}

type updateRequest struct {
	Ciphertext    string  `json:"ciphertext"`
	ReplaceLatest bool    `json:"replaceLatest"`
	BaseVersion   int64   `json:"baseVersion,omitempty"`
	Lang          *string `json:"lang,omitempty"`
}

type historyItemResponse struct {
	Version    int64   `json:"version"`
	Ciphertext string  `json:"ciphertext"`
	CreatedAt  int64   `json:"createdAt"`
	UpdatedAt  int64   `json:"updatedAt"`
	Lang       *string `json:"lang,omitempty"`
}

type restoreRequest struct {
	Items []restoreItemRequest `json:"items"`
}

type restoreItemRequest struct {
	Version    int64  `json:"version"`
	Ciphertext string `json:"ciphertext"`
	CreatedAt  int64  `json:"createdAt,omitempty"` // epoch ms, optional
}

type deleteBatchRequest struct {
	Versions []int64 `json:"versions"`
}

type editVersionRequest struct {
	Ciphertext string  `json:"ciphertext"`
	Lang       *string `json:"lang,omitempty"`
}

type prefsRequest struct {
	AutoFormat *bool   `json:"autoFormat,omitempty"`
	Lang       *string `json:"lang,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	created, err := s.clipboard.CreateSession(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"code":      created.Code,
		"linkToken": created.LinkToken,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	meta, err := s.clipboard.GetSessionByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeMeta(w, r, meta)
}

func (s *Server) handleJoinByToken(w http.ResponseWriter, r *http.Request) {
	meta, err := s.clipboard.JoinByLinkToken(r.Context(), r.PathValue("linkToken"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeMeta(w, r, meta)
}

func (s *Server) writeMeta(w http.ResponseWriter, r *http.Request, meta *models.SessionMeta) {
	ticket, err := auth.GenerateRoomTicket(meta.Code, s.secretKey, s.ticketValidity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessionMetaResponse{
		Code:         meta.Code,
		LinkToken:    meta.LinkToken,
		AllowHistory: meta.AllowHistory,
		HasLatest:    meta.HasLatest,
		CurrentLang:  meta.CurrentLang,
		AutoFormat:   meta.AutoFormat,
		RoomTicket:   ticket,
	})
}

func (s *Server) handleUpdateClipboard(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !s.decode(w, r, &req) {
		return
	}

	mode := services.ModeAppend
	if req.ReplaceLatest {
		mode = services.ModeAmend
	}

	version, err := s.clipboard.UpdateClipboard(r.Context(), r.PathValue("code"), req.Ciphertext, mode, req.BaseVersion, req.Lang)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": version})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.clipboard.GetHistory(r.Context(), r.PathValue("code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items := make([]historyItemResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, historyItemResponse{
			Version:    rec.Version,
			Ciphertext: rec.Ciphertext,
			CreatedAt:  rec.CreatedAt.UnixMilli(),
			UpdatedAt:  rec.UpdatedAt.UnixMilli(),
			Lang:       rec.Lang,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"history": items})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := s.clipboard.LatestCiphertext(r.Context(), r.PathValue("code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"version":    latest.Version,
		"ciphertext": latest.Ciphertext,
	})
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	version, ok := s.pathVersion(w, r)
	if !ok {
		return
	}
	if err := s.clipboard.DeleteHistory(r.Context(), r.PathValue("code"), version); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDeleteHistoryBatch(w http.ResponseWriter, r *http.Request) {
	var req deleteBatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.clipboard.DeleteHistoryBatch(r.Context(), r.PathValue("code"), req.Versions); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleToggleHistory(w http.ResponseWriter, r *http.Request) {
	allow, err := s.clipboard.ToggleHistory(r.Context(), r.PathValue("code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"allowHistory": allow})
}

func (s *Server) handleRestoreHistory(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !s.decode(w, r, &req) {
		return
	}

	items := make([]models.RestoreItem, 0, len(req.Items))
	for _, it := range req.Items {
		item := models.RestoreItem{Version: it.Version, Ciphertext: it.Ciphertext}
		if it.CreatedAt > 0 {
			item.CreatedAt = time.UnixMilli(it.CreatedAt)
		}
		items = append(items, item)
	}

	if err := s.clipboard.RestoreHistoryItems(r.Context(), r.PathValue("code"), items); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleUpdateHistoryVersion(w http.ResponseWriter, r *http.Request) {
	version, ok := s.pathVersion(w, r)
	if !ok {
		return
	}
	var req editVersionRequest
	if !s.decode(w, r, &req) {
		return
	}

	found, err := s.clipboard.UpdateHistoryVersion(r.Context(), r.PathValue("code"), version, req.Ciphertext, req.Lang)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !found {
		// Soft signal: the caller decides whether to abandon or restart.
		s.writeJSON(w, http.StatusOK, map[string]any{"ok": false, "missing": true})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleUpdatePrefs(w http.ResponseWriter, r *http.Request) {
	var req prefsRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.clipboard.UpdateSessionPrefs(r.Context(), r.PathValue("code"), req.AutoFormat, req.Lang); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleOffloadPut hands out a presigned PUT target for an oversized
// payload. The session must exist; nothing about the ledger changes here.
func (s *Server) handleOffloadPut(w http.ResponseWriter, r *http.Request) {
	if _, err := s.clipboard.GetSessionByCode(r.Context(), r.PathValue("code")); err != nil {
		s.writeError(w, r, err)
		return
	}
	key, url, err := s.offloader.GetPresignedPutURL(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"key": key, "url": url})
}

func (s *Server) handleOffloadGet(w http.ResponseWriter, r *http.Request) {
	if _, err := s.clipboard.GetSessionByCode(r.Context(), r.PathValue("code")); err != nil {
		s.writeError(w, r, err)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeError(w, r, common.ErrorInvalidInput)
		return
	}
	url, err := s.offloader.GetPresignedGetURL(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) pathVersion(w http.ResponseWriter, r *http.Request) (int64, bool) {
	version, err := strconv.ParseInt(r.PathValue("version"), 10, 64)
	if err != nil || version <= 0 {
		s.writeError(w, r, common.ErrorInvalidInput)
		return 0, false
	}
	return version, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, common.ErrorInvalidInput)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "NOT_FOUND"})
	case errors.Is(err, common.ErrorInvalidInput):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "INVALID_INPUT"})
	case errors.Is(err, common.ErrVersionConflict):
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "VERSION_CONFLICT"})
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "INTERNAL"})
	}
}
