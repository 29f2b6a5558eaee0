package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/trackhire/trackhire/internal/api"
)

// APIError carries the HTTP status of a failed auth call so callers can
// tell a rejection (401) from everything else.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth api: %d %s", e.Status, e.Message)
}

// Unauthorized reports whether the server rejected the credentials or
// token, as opposed to failing.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

// authAPI speaks the /api/auth wire contract. It uses its own bare HTTP
// client: auth calls must never go through the decorated transport, or
// a renewal could recursively trigger itself.
type authAPI struct {
	baseURL string
	http    *http.Client
}

func newAuthAPI(baseURL string, c *http.Client) *authAPI {
	if c == nil {
		c = http.DefaultClient
	}
	return &authAPI{baseURL: baseURL, http: c}
}

func (a *authAPI) Login(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error) {
	return a.postAuth(ctx, "/api/auth/login", req)
}

func loginRequest(email, password string, persist bool) api.LoginRequest {
	return api.LoginRequest{Email: email, Password: password, PersistSession: persist}
}

func (a *authAPI) Refresh(ctx context.Context, refreshToken string) (*api.AuthResponse, error) {
	return a.postAuth(ctx, "/api/auth/refresh", api.RefreshRequest{RefreshToken: refreshToken})
}

func (a *authAPI) Logout(ctx context.Context, refreshToken string) error {
	resp, err := a.post(ctx, "/api/auth/logout", api.LogoutRequest{RefreshToken: refreshToken})
	if err != nil {
		return err
	}
	defer drainClose(resp.Body)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return nil
}

func (a *authAPI) postAuth(ctx context.Context, path string, body any) (*api.AuthResponse, error) {
	resp, err := a.post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	defer drainClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var out api.AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode auth response: %w", err)
	}
	return &out, nil
}

func (a *authAPI) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return a.http.Do(req)
}

func responseError(resp *http.Response) error {
	var e api.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
	return &APIError{Status: resp.StatusCode, Message: e.Error}
}

func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<16))
	_ = body.Close()
}
