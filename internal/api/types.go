// Package api holds the wire types shared by the authd handlers and the
// session client. Both sides marshal exactly these shapes.
package api

import "time"

type LoginRequest struct {
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required"`
	PersistSession bool   `json:"persistSession"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// AuthResponse is returned by login and refresh. RefreshToken is empty
// when the caller declined a persistent session. AccessExpiresAt lets
// the client schedule proactive renewal precisely.
type AuthResponse struct {
	AccessToken     string    `json:"accessToken"`
	RefreshToken    string    `json:"refreshToken,omitempty"`
	AccessExpiresAt time.Time `json:"accessTokenExpiresAt"`
}

type Identity struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
