package session

import (
	"net/http"
)

// Transport decorates outbound calls with the in-memory access token
// and handles the reactive half of renewal: on a 401 it awaits one
// (possibly shared) renewal and retries the original request exactly
// once with the new token. A second 401 is returned to the caller as-is;
// the renewal itself already tore the session down if it was rejected.
type Transport struct {
	// Base is the underlying round tripper; http.DefaultTransport if nil.
	Base http.RoundTripper
	// Manager supplies tokens and performs renewals. Required.
	Manager *Manager
}

var _ http.RoundTripper = (*Transport)(nil)

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.send(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !t.Manager.canRenew() {
		return resp, nil
	}
	if req.Body != nil && req.GetBody == nil {
		// Body cannot be replayed; surface the 401 instead of retrying
		// with a truncated request.
		return resp, nil
	}

	// Reactive renewal. Every concurrently 401'd request lands here and
	// blocks on the same single flight; the retry is dispatched only
	// after the renewal installed the new token.
	drainClose(resp.Body)
	if err := t.Manager.Renew(req.Context()); err != nil {
		return nil, err
	}
	return t.send(req)
}

func (t *Transport) send(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	// Clone before mutating: RoundTrip must not modify the caller's
	// request, and the retry needs a fresh body.
	clone := req.Clone(req.Context())
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	if tok := t.Manager.AccessToken(); tok != "" {
		clone.Header.Set("Authorization", "Bearer "+tok)
	}
	return base.RoundTrip(clone)
}

// Client returns an *http.Client whose requests carry the session's
// access token and survive one transparent renewal.
func (m *Manager) Client() *http.Client {
	return &http.Client{Transport: &Transport{Manager: m}}
}
