// Package security issues and verifies bearer tokens for the front API.
package security

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer is the iss claim written into every token.
const tokenIssuer = "creditengine"

var (
	errEmptySecret = errors.New("security: empty jwt secret")
	errInvalidUser = errors.New("security: token has no user")
)

// UserClaims carries the authenticated user.
type UserClaims struct {
	UserID uint64 `json:"uid"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IssueUserToken signs an HS256 token for userID valid for expiry.
func IssueUserToken(secret string, userID uint64, role string, expiry time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errEmptySecret
	}
	if userID == 0 {
		return "", errInvalidUser
	}
	claims := UserClaims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatUint(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, errSign := token.SignedString([]byte(secret))
	if errSign != nil {
		return "", fmt.Errorf("security: sign token: %w", errSign)
	}
	return signed, nil
}

// ParseUserToken verifies signature, issuer and expiry and returns the claims.
func ParseUserToken(secret, raw string) (*UserClaims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errEmptySecret
	}
	claims := &UserClaims{}
	_, errParse := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if errParse != nil {
		return nil, fmt.Errorf("security: parse token: %w", errParse)
	}
	if claims.UserID == 0 {
		return nil, errInvalidUser
	}
	return claims, nil
}
