// Package models defines the persisted shapes of the clipboard store:
// sessions and their versioned history records.
package models

import "time"

// Session is one shareable clipboard channel.
//
// LastVersion is a monotonic counter owned by the session row; it is never
// derived by counting history rows, so version numbers are never reused even
// after deletions. Latest always mirrors the ciphertext stored at
// LastVersion ("" when LastVersion is 0).
type Session struct {
	Code         string
	LinkToken    string
	AllowHistory bool
	ExpiresAt    time.Time
	LastVersion  int64
	Latest       string
	CurrentLang  *string
	AutoFormat   *bool
}

// SessionMeta is the projection returned to joining clients. It carries no
// ciphertext: knowing that content exists is fine, seeing it requires the
// ledger read path.
type SessionMeta struct {
	Code         string
	LinkToken    string
	AllowHistory bool
	HasLatest    bool
	CurrentLang  string
	AutoFormat   bool
}

// Meta builds the client-facing projection of s, applying the defaults the
// web client expects for unset preferences.
func (s *Session) Meta() *SessionMeta {
	lang := "plain"
	if s.CurrentLang != nil && *s.CurrentLang != "" {
		lang = *s.CurrentLang
	}
	autoFormat := true
	if s.AutoFormat != nil {
		autoFormat = *s.AutoFormat
	}
	return &SessionMeta{
		Code:         s.Code,
		LinkToken:    s.LinkToken,
		AllowHistory: s.AllowHistory,
		HasLatest:    s.Latest != "",
		CurrentLang:  lang,
		AutoFormat:   autoFormat,
	}
}
