package domain

import "time"

// Terminal is one registered POS device of a store.
type Terminal struct {
	ID         string    `json:"id"`
	StoreID    string    `json:"store_id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	AppVersion string    `json:"app_version"`
	LastSeen   time.Time `json:"last_seen"`
	CreatedAt  time.Time `json:"created_at"`
	IsRevoked  bool      `json:"is_revoked"`
}

type TerminalLoginRequest struct {
	StoreID    string `json:"store_id" validate:"required"`
	AccessCode string `json:"access_code" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Kind       string `json:"kind" validate:"required"`
	AppVersion string `json:"app_version" validate:"required"`
}

type TerminalLoginResponse struct {
	Terminal     *TerminalResponse `json:"terminal"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	ExpiresIn    int64             `json:"expires_in"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type TerminalResponse struct {
	ID         string    `json:"id"`
	StoreID    string    `json:"store_id"`
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	AppVersion string    `json:"app_version"`
	LastSeen   time.Time `json:"last_seen"`
	IsRevoked  bool      `json:"is_revoked"`
}
