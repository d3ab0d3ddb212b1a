package auth

import (
	"errors"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var ErrNoToken = errors.New("access token missing")

// TokenInfo is what the client can learn from an AniList access token
// without the issuer's key. The service remains the authority on validity.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
}

// UserID returns the viewer id carried in the subject claim.
func (t TokenInfo) UserID() (int, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(t.Subject))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// Inspect decodes the claims of an access token without verifying its signature.
func Inspect(token string) (TokenInfo, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return TokenInfo{}, ErrNoToken
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, err
	}
	info := TokenInfo{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
