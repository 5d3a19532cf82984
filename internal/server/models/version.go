package models

import "time"

// VersionRecord is one ciphertext checkpoint in a session's ledger.
// (SessionCode, Version) is unique; versions are assigned by the session's
// counter and never renumbered.
type VersionRecord struct {
	SessionCode string
	Version     int64
	Ciphertext  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Lang        *string
}

// RestoreItem is a client-held checkpoint offered back to the server by the
// restore operation. CreatedAt may be zero when the client did not keep it.
type RestoreItem struct {
	Version    int64
	Ciphertext string
	CreatedAt  time.Time
}
