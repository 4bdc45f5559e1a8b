package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims carry the tenant scope of a terminal session.
type Claims struct {
	StoreID        string `json:"store_id"`
	OrganizationID string `json:"organization_id,omitempty"`
	TerminalID     string `json:"terminal_id"`
	TokenType      string `json:"token_type"`
	jwt.RegisteredClaims
}

func generate(storeID, organizationID, terminalID, tokenType string, expiration time.Duration, secret string) (string, error) {
	now := time.Now()
	claims := &Claims{
		StoreID:        storeID,
		OrganizationID: organizationID,
		TerminalID:     terminalID,
		TokenType:      tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   terminalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func GenerateToken(storeID, organizationID, terminalID string, expiration time.Duration, secret string) (string, error) {
	return generate(storeID, organizationID, terminalID, tokenTypeAccess, expiration, secret)
}

func GenerateRefreshToken(storeID, organizationID, terminalID string, expiration time.Duration, secret string) (string, error) {
	return generate(storeID, organizationID, terminalID, tokenTypeRefresh, expiration, secret)
}

func validate(tokenString, secret, tokenType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != tokenType {
		return nil, errors.New("wrong token type")
	}

	return claims, nil
}

// ValidateToken parses and verifies an access token.
func ValidateToken(tokenString, secret string) (*Claims, error) {
	return validate(tokenString, secret, tokenTypeAccess)
}

// ValidateRefreshToken parses and verifies a refresh token.
func ValidateRefreshToken(tokenString, secret string) (*Claims, error) {
	return validate(tokenString, secret, tokenTypeRefresh)
}
