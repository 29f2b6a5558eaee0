package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// State of the session as seen by the consuming application.
type State int

const (
	StateAnonymous State = iota
	StateRestoring
	StateAuthenticated
	StateRenewing
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateRestoring:
		return "restoring"
	case StateAuthenticated:
		return "authenticated"
	case StateRenewing:
		return "renewing"
	case StateLoggedOut:
		return "logged-out"
	}
	return "unknown"
}

var (
	// ErrNotAuthenticated: no refresh token, so there is nothing to renew.
	ErrNotAuthenticated = errors.New("session: not authenticated")
	// ErrSessionExpired: a renewal was rejected; the session is over.
	ErrSessionExpired = errors.New("session: expired")
)

const (
	// renewalFraction of the access token's remaining lifetime to wait
	// before renewing proactively.
	renewalFraction = 0.8
	// defaultRenewalFloor stops a very short server-issued TTL from
	// turning the timer into a tight loop.
	defaultRenewalFloor = 10 * time.Second
)

type Config struct {
	// BaseURL of the token service, e.g. "http://localhost:8080".
	BaseURL string
	// Store persists the refresh token. Required.
	Store RefreshStore
	// HTTPClient used for the auth endpoints themselves. Optional.
	HTTPClient *http.Client
	// RenewalFloor overrides the minimum proactive delay. Optional.
	RenewalFloor time.Duration
	Logger       *zap.Logger
}

// Manager owns the client half of the renewal protocol. All mutation of
// the token cell and the scheduling state happens inside it; concurrent
// renewal attempts (proactive timer, reactive 401s, restore) are
// coalesced into one flight whose outcome every caller observes.
type Manager struct {
	api   *authAPI
	store RefreshStore
	log   *zap.Logger
	floor time.Duration

	cell Cell
	sf   singleflight.Group

	mu           sync.Mutex
	state        State
	refreshValue string
	expiresAt    time.Time
	timer        *time.Timer
}

func NewManager(cfg Config) *Manager {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	floor := cfg.RenewalFloor
	if floor <= 0 {
		floor = defaultRenewalFloor
	}
	return &Manager{
		api:   newAuthAPI(cfg.BaseURL, cfg.HTTPClient),
		store: cfg.Store,
		log:   log,
		floor: floor,
		state: StateAnonymous,
	}
}

// State reports the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AccessToken returns the current in-memory access token, or "".
func (m *Manager) AccessToken() string { return m.cell.Get() }

// BaseURL returns the address of the token service this session talks to.
func (m *Manager) BaseURL() string { return m.api.baseURL }

// canRenew reports whether a renewal could possibly succeed.
func (m *Manager) canRenew() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshValue != ""
}

// Restore exchanges a previously persisted refresh token for a fresh
// pair. While it runs the state is Restoring: the application should
// show neither protected content nor a login prompt yet. A failed
// restore silently discards the stored value and lands on Anonymous.
func (m *Manager) Restore(ctx context.Context) error {
	stored, err := m.store.Load()
	if err != nil {
		return err
	}
	if stored == "" {
		return nil // nothing persisted: stay Anonymous
	}

	m.mu.Lock()
	m.state = StateRestoring
	m.refreshValue = stored
	m.mu.Unlock()

	if err := m.Renew(ctx); err != nil {
		m.mu.Lock()
		m.state = StateAnonymous
		m.mu.Unlock()
		m.log.Info("session restore failed, starting anonymous", zap.Error(err))
		return nil
	}
	m.log.Debug("session restored")
	return nil
}

// Login authenticates and installs the resulting session. The refresh
// token is persisted and proactive renewal armed only when the server
// returned one, i.e. when persistSession was requested.
func (m *Manager) Login(ctx context.Context, email, password string, persistSession bool) error {
	resp, err := m.api.Login(ctx, loginRequest(email, password, persistSession))
	if err != nil {
		return err
	}
	m.install(resp.AccessToken, resp.AccessExpiresAt, resp.RefreshToken)
	return nil
}

// Renew performs one rotation against the server. Any number of
// concurrent callers share a single in-flight attempt and its outcome.
// A rejected renewal is terminal: the session is torn down and
// ErrSessionExpired returned to every waiter; no second attempt is made.
func (m *Manager) Renew(ctx context.Context) error {
	// The flight outlives any one caller's request; a canceled trigger
	// must not fail the renewal for everyone else.
	flightCtx := context.WithoutCancel(ctx)

	_, err, _ := m.sf.Do("renew", func() (any, error) {
		m.mu.Lock()
		rv := m.refreshValue
		if rv == "" {
			m.mu.Unlock()
			return nil, ErrNotAuthenticated
		}
		m.state = StateRenewing
		// The proactive timer is cancelled for the duration; install or
		// teardown decides what replaces it.
		m.stopTimerLocked()
		m.mu.Unlock()

		resp, err := m.api.Refresh(flightCtx, rv)
		if err != nil {
			m.teardown()
			m.log.Info("session renewal failed, logged out", zap.Error(err))
			return nil, errors.Join(ErrSessionExpired, err)
		}

		m.install(resp.AccessToken, resp.AccessExpiresAt, resp.RefreshToken)
		return nil, nil
	})
	return err
}

// Logout revokes the refresh token server-side on a best-effort basis
// and clears all client state regardless of the server's answer.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	rv := m.refreshValue
	m.mu.Unlock()

	if rv != "" {
		if err := m.api.Logout(ctx, rv); err != nil {
			m.log.Debug("server-side logout failed", zap.Error(err))
		}
	}
	m.teardown()
}

// Close cancels the proactive timer without touching server state.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
}

// install is the single writer of the cell and the scheduling state.
func (m *Manager) install(access string, expiresAt time.Time, refresh string) {
	m.cell.set(access)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateAuthenticated
	m.expiresAt = expiresAt
	m.stopTimerLocked()

	if refresh == "" {
		// Non-persistent session: nothing to renew with, nothing to store.
		m.refreshValue = ""
		return
	}

	m.refreshValue = refresh
	if err := m.store.Save(refresh); err != nil {
		m.log.Error("persist refresh token", zap.Error(err))
	}

	delay := renewalDelay(expiresAt, time.Now(), m.floor)
	m.timer = time.AfterFunc(delay, func() {
		if err := m.Renew(context.Background()); err != nil {
			m.log.Info("proactive renewal failed", zap.Error(err))
		}
	})
	m.log.Debug("proactive renewal armed", zap.Duration("delay", delay))
}

// teardown clears every piece of session state. Terminal.
func (m *Manager) teardown() {
	m.cell.set("")

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateLoggedOut
	m.refreshValue = ""
	m.expiresAt = time.Time{}
	m.stopTimerLocked()
	if err := m.store.Clear(); err != nil {
		m.log.Error("clear refresh token", zap.Error(err))
	}
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// renewalDelay waits out most of the token's lifetime, with a floor so a
// pathologically short TTL cannot produce a renewal storm.
func renewalDelay(expiresAt, now time.Time, floor time.Duration) time.Duration {
	d := time.Duration(renewalFraction * float64(expiresAt.Sub(now)))
	if d < floor {
		return floor
	}
	return d
}
