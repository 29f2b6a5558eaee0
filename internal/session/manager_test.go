package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/trackhire/trackhire/internal/domain/user"
	"github.com/trackhire/trackhire/internal/repository/memory"
	"github.com/trackhire/trackhire/internal/services/authd/auth"
	signer "github.com/trackhire/trackhire/internal/token"
)

const (
	testEmail    = "dev@example.com"
	testPassword = "hunter2secret"
)

// authServer hosts the real rotation service in-process so the client
// half is tested against the handler it will actually talk to.
type authServer struct {
	*httptest.Server
	uc *auth.Usecase

	// refreshes counts rotation requests arriving at the server.
	refreshes atomic.Int64
	// refreshDelay holds every rotation open long enough for concurrent
	// renewal attempts to pile up on one flight.
	refreshDelay time.Duration
}

func newAuthServer(t *testing.T, accessTTL time.Duration) *authServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	users := memory.NewUserRepo(&user.User{ID: 7, Email: testEmail, PasswordHash: string(hash)})

	sgn, err := signer.NewSigner(signer.Config{
		Secret:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:    "trackhire",
		AccessTTL: accessTTL,
	})
	require.NoError(t, err)

	uc := auth.NewUsecase(users, memory.NewLedger(), memory.NopTransactor{}, sgn, zap.NewNop(), auth.Config{
		RefreshTTL: 24 * time.Hour,
	})

	srv := &authServer{uc: uc}
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/api/auth/refresh" {
			srv.refreshes.Add(1)
			if srv.refreshDelay > 0 {
				time.Sleep(srv.refreshDelay)
			}
		}
		c.Next()
	})
	auth.NewHandler(uc, nil).Register(engine)

	srv.Server = httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv
}

func newTestManager(t *testing.T, srv *authServer) (*Manager, *FileStore) {
	t.Helper()
	store := NewFileStore(t.TempDir() + "/refresh_token")
	m := NewManager(Config{
		BaseURL: srv.URL,
		Store:   store,
		// High floor: proactive renewal stays out of the way unless a
		// test arms it deliberately.
		RenewalFloor: time.Hour,
	})
	t.Cleanup(m.Close)
	return m, store
}

func TestLoginInstallsSession(t *testing.T) {
	srv := newAuthServer(t, 15*time.Minute)
	m, store := newTestManager(t, srv)

	require.NoError(t, m.Login(context.Background(), testEmail, testPassword, true))
	assert.Equal(t, StateAuthenticated, m.State())
	assert.NotEmpty(t, m.AccessToken())

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, persisted)
}

func TestLoginRejectionSurfaces(t *testing.T) {
	srv := newAuthServer(t, 15*time.Minute)
	m, _ := newTestManager(t, srv)

	err := m.Login(context.Background(), testEmail, "wrong", true)
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Unauthorized())
	assert.Equal(t, StateAnonymous, m.State())
	assert.Empty(t, m.AccessToken())
}

func TestNonPersistentSessionLeavesNothingBehind(t *testing.T) {
	srv := newAuthServer(t, 15*time.Minute)
	m, store := newTestManager(t, srv)

	require.NoError(t, m.Login(context.Background(), testEmail, testPassword, false))
	assert.Equal(t, StateAuthenticated, m.State())
	assert.NotEmpty(t, m.AccessToken())
	assert.False(t, m.canRenew())

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, persisted)

	// Nothing to renew with: the attempt reports it rather than looping.
	assert.ErrorIs(t, m.Renew(context.Background()), ErrNotAuthenticated)
}

func TestRestoreContinuesSession(t *testing.T) {
	srv := newAuthServer(t, 15*time.Minute)
	m, store := newTestManager(t, srv)
	require.NoError(t, m.Login(context.Background(), testEmail, testPassword, true))
	before, err := store.Load()
	require.NoError(t, err)
	m.Close()

	// A fresh process: same store, new manager.
	m2 := NewManager(Config{BaseURL: srv.URL, Store: store, RenewalFloor: time.Hour})
	t.Cleanup(m2.Close)
	require.NoError(t, m2.Restore(context.Background()))
	assert.Equal(t, StateAuthenticated, m2.State())
	assert.NotEmpty(t, m2.AccessToken())

	// Restore rotates: the stored value moved on.
	after, err := store.Load()
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestRestoreWithNothingPersisted(t *testing.T) {
	srv := newAuthServer(t, 15*time.Minute)
	m, _ := newTestManager(t, srv)

	require.NoError(t, m.Restore(context.Background()))
	assert.Equal(t, StateAnonymous, m.State())
	assert.Empty(t, m.AccessToken())
}

func TestRestoreWithRejectedTokenStartsAnonymous(t *testing.T) {
	srv := newAuthServer(t, 15*time.Minute)
	m, store := newTestManager(t, srv)
	require.NoError(t, store.Save("stale-or-stolen-value"))

	require.NoError(t, m.Restore(context.Background()))
	assert.Equal(t, StateAnonymous, m.State())
	assert.Empty(t, m.AccessToken())

	// The useless value is gone; the next start won't retry it.
	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestRenewRejectionIsTerminal(t *testing.T) {
	srv := newAuthServer(t, 15*time.Minute)
	m, store := newTestManager(t, srv)
	require.NoError(t, m.Login(context.Background(), testEmail, testPassword, true))

	// The server forgets the token (e.g. logout from another device).
	persisted, err := store.Load()
	require.NoError(t, err)
	require.NoError(t, srv.uc.Logout(context.Background(), persisted))

	err = m.Renew(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, StateLoggedOut, m.State())
	assert.Empty(t, m.AccessToken())

	persisted, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, persisted)

	// No second chance without a fresh login.
	assert.ErrorIs(t, m.Renew(context.Background()), ErrNotAuthenticated)
}

func TestLogoutClearsEverything(t *testing.T) {
	srv := newAuthServer(t, 15*time.Minute)
	m, store := newTestManager(t, srv)
	require.NoError(t, m.Login(context.Background(), testEmail, testPassword, true))
	persisted, err := store.Load()
	require.NoError(t, err)

	m.Logout(context.Background())
	assert.Equal(t, StateLoggedOut, m.State())
	assert.Empty(t, m.AccessToken())

	after, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, after)

	// The server revoked it too: nobody can rotate the old value.
	_, err = srv.uc.Refresh(context.Background(), persisted)
	assert.Error(t, err)
}

func TestConcurrentRenewalsShareOneFlight(t *testing.T) {
	srv := newAuthServer(t, 15*time.Minute)
	srv.refreshDelay = 150 * time.Millisecond
	m, _ := newTestManager(t, srv)
	require.NoError(t, m.Login(context.Background(), testEmail, testPassword, true))
	srv.refreshes.Store(0)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Renew(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), srv.refreshes.Load())
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestRenewSurvivesCallerCancellation(t *testing.T) {
	srv := newAuthServer(t, 15*time.Minute)
	srv.refreshDelay = 100 * time.Millisecond
	m, _ := newTestManager(t, srv)
	require.NoError(t, m.Login(context.Background(), testEmail, testPassword, true))

	// The triggering caller gives up immediately; the flight must not.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Renew(ctx)

	assert.NoError(t, err)
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestTransportRetriesOnceOn401(t *testing.T) {
	srv := newAuthServer(t, 15*time.Minute)
	m, _ := newTestManager(t, srv)
	require.NoError(t, m.Login(context.Background(), testEmail, testPassword, true))
	srv.refreshes.Store(0)

	// Simulate an access token that went stale in memory.
	m.cell.set("no-longer-valid")

	resp, err := m.Client().Get(srv.URL + "/api/auth/me")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), srv.refreshes.Load())
	assert.NotEqual(t, "no-longer-valid", m.AccessToken())
}

func TestTransportCoalescesConcurrent401s(t *testing.T) {
	srv := newAuthServer(t, 15*time.Minute)
	srv.refreshDelay = 200 * time.Millisecond
	m, _ := newTestManager(t, srv)
	require.NoError(t, m.Login(context.Background(), testEmail, testPassword, true))
	srv.refreshes.Store(0)

	m.cell.set("no-longer-valid")
	client := m.Client()

	const callers = 6
	var wg sync.WaitGroup
	codes := make([]int, callers)
	errs := make([]error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			resp, err := client.Get(srv.URL + "/api/auth/me")
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			codes[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, http.StatusOK, codes[i])
	}
	assert.Equal(t, int64(1), srv.refreshes.Load())
}

func TestTransportPassesThrough401WhenAnonymous(t *testing.T) {
	srv := newAuthServer(t, 15*time.Minute)
	m, _ := newTestManager(t, srv)
	srv.refreshes.Store(0)

	resp, err := m.Client().Get(srv.URL + "/api/auth/me")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int64(0), srv.refreshes.Load())
}

func TestProactiveRenewalFires(t *testing.T) {
	srv := newAuthServer(t, time.Second)
	store := NewFileStore(t.TempDir() + "/refresh_token")
	m := NewManager(Config{
		BaseURL:      srv.URL,
		Store:        store,
		RenewalFloor: 100 * time.Millisecond,
	})
	t.Cleanup(m.Close)

	require.NoError(t, m.Login(context.Background(), testEmail, testPassword, true))
	first := m.AccessToken()
	srv.refreshes.Store(0)

	// 0.8 of a 1s TTL: the timer should fire on its own well within 2s.
	require.Eventually(t, func() bool {
		return srv.refreshes.Load() >= 1 && m.AccessToken() != first
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestRenewalDelay(t *testing.T) {
	now := time.Now()
	floor := 10 * time.Second

	// Plenty of lifetime left: wait out 80% of it.
	d := renewalDelay(now.Add(100*time.Second), now, floor)
	assert.InDelta(t, float64(80*time.Second), float64(d), float64(time.Second))

	// Short TTLs land on the floor instead of hammering the server.
	assert.Equal(t, floor, renewalDelay(now.Add(5*time.Second), now, floor))
	assert.Equal(t, floor, renewalDelay(now.Add(-time.Minute), now, floor))
}
