package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("identity token invalid")
	ErrTokenExpired = errors.New("identity token expired")
)

type tokenClaims struct {
	SID  string `json:"sid"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IdentityFromToken extracts the user id and expiry from a stored access
// token. The signature is verified server-side; the client only needs the
// claims, so the token is parsed unverified but still rejected when expired
// or structurally broken.
func IdentityFromToken(raw string, now time.Time) (int64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, ErrTokenInvalid
	}

	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return 0, fmt.Errorf("parse identity token: %w", ErrTokenInvalid)
	}

	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return 0, ErrTokenExpired
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, fmt.Errorf("invalid token subject: %w", ErrTokenInvalid)
	}

	return userID, nil
}
