// Package randx generates the short session codes and link capability
// tokens that identify a shared clipboard.
package randx

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// alphabet matches the id space the web client expects: alphanumerics only,
// no punctuation, so codes stay easy to read out loud and safe in URLs.
const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	// CodeLength is the length of the human-facing session code.
	CodeLength = 5
	// LinkTokenLength is the length of the bearer capability token.
	LinkTokenLength = 16
)

// NewSessionCode returns a fresh 5-character session code.
func NewSessionCode() (string, error) {
	return gonanoid.Generate(alphabet, CodeLength)
}

// NewLinkToken returns a fresh 16-character link capability token.
func NewLinkToken() (string, error) {
	return gonanoid.Generate(alphabet, LinkTokenLength)
}
