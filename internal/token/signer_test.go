package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackhire/trackhire/internal/domain/user"
)

func testSigner(t *testing.T, ttl time.Duration) *Signer {
	t.Helper()
	s, err := NewSigner(Config{
		Secret:    []byte("test-secret-key-0123456789abcdef"),
		Issuer:    "trackhire",
		AccessTTL: ttl,
	})
	require.NoError(t, err)
	return s
}

func TestNewSigner_Config(t *testing.T) {
	_, err := NewSigner(Config{AccessTTL: time.Minute})
	require.Error(t, err, "missing key must fail at construction")

	_, err = NewSigner(Config{Secret: []byte("k")})
	require.Error(t, err, "zero TTL must fail at construction")
}

func TestMintAccess_RoundTrip(t *testing.T) {
	s := testSigner(t, 15*time.Minute)
	now := time.Now()

	u := &user.User{ID: 42, Email: "dev@example.com"}
	signed, expiresAt, err := s.MintAccess(u, now)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(15*time.Minute), expiresAt, time.Second)

	claims, err := s.Validate(signed)
	require.NoError(t, err)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "dev@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID, "jti must be set")
}

func TestMintAccess_UniqueJTI(t *testing.T) {
	s := testSigner(t, time.Minute)
	u := &user.User{ID: 1, Email: "a@b.c"}
	now := time.Now()

	first, _, err := s.MintAccess(u, now)
	require.NoError(t, err)
	second, _, err := s.MintAccess(u, now)
	require.NoError(t, err)

	c1, err := s.Validate(first)
	require.NoError(t, err)
	c2, err := s.Validate(second)
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)
}

func TestValidate_Expired(t *testing.T) {
	s := testSigner(t, time.Minute)
	u := &user.User{ID: 7, Email: "x@y.z"}

	signed, _, err := s.MintAccess(u, time.Now().Add(-2*time.Minute))
	require.NoError(t, err)

	_, err = s.Validate(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidate_WrongKey(t *testing.T) {
	s := testSigner(t, time.Minute)
	u := &user.User{ID: 7, Email: "x@y.z"}
	signed, _, err := s.MintAccess(u, time.Now())
	require.NoError(t, err)

	other, err := NewSigner(Config{
		Secret:    []byte("a-different-signing-key-entirely"),
		Issuer:    "trackhire",
		AccessTTL: time.Minute,
	})
	require.NoError(t, err)

	_, err = other.Validate(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidate_Garbage(t *testing.T) {
	s := testSigner(t, time.Minute)
	for _, in := range []string{"", "not-a-jwt", "a.b", "a.b.c.d"} {
		_, err := s.Validate(in)
		assert.ErrorIs(t, err, ErrTokenInvalid, "input %q", in)
	}
}

func TestNewRefreshValue(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		v, err := NewRefreshValue()
		require.NoError(t, err)
		// 32 random bytes → 43 chars of unpadded base64url
		assert.Len(t, v, 43)
		_, dup := seen[v]
		assert.False(t, dup, "refresh values must not repeat")
		seen[v] = struct{}{}
	}
}

func TestHashValue_Deterministic(t *testing.T) {
	v, err := NewRefreshValue()
	require.NoError(t, err)

	assert.Equal(t, HashValue(v), HashValue(v))
	assert.NotEqual(t, v, HashValue(v))

	w, err := NewRefreshValue()
	require.NoError(t, err)
	assert.NotEqual(t, HashValue(v), HashValue(w))
}
