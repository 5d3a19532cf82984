// Package auth issues and verifies the short-lived room tickets the relay
// requires on join. A ticket proves its holder resolved the session through
// the API (i.e. holds the code or link token); it grants no read of the
// ledger and is useless for decryption.
package auth

import (
	"errors"
	"time"

	"github.com/aryabasu21/OnlineClipboard/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the room (session code) the ticket admits to, on top of
// the registered expiry claim.
type Claims struct {
	jwt.RegisteredClaims
	Room string
}

// GenerateRoomTicket signs a ticket admitting to room for validityDuration.
func GenerateRoomTicket(room string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Room: room,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetRoomFromTicket verifies a ticket and returns the room it admits to.
// Expired tickets yield common.ErrTokenExpired; forged or malformed ones
// common.ErrInvalidToken. Either way the join is refused.
func GetRoomFromTicket(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.Room == "" {
		return "", common.ErrInvalidToken
	}

	return claims.Room, nil
}
