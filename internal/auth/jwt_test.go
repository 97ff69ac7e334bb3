package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTokenService uses a fixed, known secret so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-that-is-32-chars-ok!", time.Hour)
	require.NoError(t, err)
	return ts
}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", time.Hour)
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_MinimumSecret(t *testing.T) {
	_, err := NewTokenService("this-is-16-chars", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService() unexpected error for a 16-char secret: %v", err)
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts, err := NewTokenService("test-secret-that-is-32-chars-ok!", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, ts.TTL())
}

// =========================================================================
// ISSUE / VERIFY
// =========================================================================

func TestIssue_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Issue("user-123", "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "header.payload.signature")
}

func TestIssue_SameUserTwiceDiffers(t *testing.T) {
	ts := newTestTokenService(t)

	t1, _ := ts.Issue("user-123", "a@x.com")
	t2, _ := ts.Issue("user-123", "a@x.com")
	assert.NotEqual(t, t1, t2)
}

func TestVerify_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Issue("user-abc", "alice@example.com")
	require.NoError(t, err)

	claims, err := ts.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Claims{UserID: "user-abc", Email: "alice@example.com"}, claims)
}

func TestVerify_Expired(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.IssueWithTTL("user-123", "a@x.com", -time.Second)
	require.NoError(t, err)

	_, err = ts.Verify(token)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("Verify() error = %v, want ErrExpired", err)
	}
}

func TestVerify_ExpiresAfterTTL(t *testing.T) {
	ts := newTestTokenService(t)
	issued := time.Now()
	ts.now = func() time.Time { return issued }

	token, err := ts.Issue("user-123", "a@x.com")
	require.NoError(t, err)

	ts.now = func() time.Time { return issued.Add(59 * time.Minute) }
	_, err = ts.Verify(token)
	require.NoError(t, err)

	ts.now = func() time.Time { return issued.Add(61 * time.Minute) }
	_, err = ts.Verify(token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerify_TamperedSignature(t *testing.T) {
	ts := newTestTokenService(t)

	token, _ := ts.Issue("user-123", "a@x.com")
	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err := ts.Verify(tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!", time.Hour)
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", time.Hour)

	token, _ := ts1.Issue("user-123", "a@x.com")

	_, err := ts2.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_AlgNoneRejected(t *testing.T) {
	ts := newTestTokenService(t)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":   "user-123",
		"email": "a@x.com",
		"iss":   issuer,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ts.Verify(token)
	assert.Error(t, err)
}

func TestVerify_WrongIssuer(t *testing.T) {
	ts := newTestTokenService(t)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-123",
		"email": "a@x.com",
		"iss":   "someone-else",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	token, err := foreign.SignedString(ts.secret)
	require.NoError(t, err)

	_, err = ts.Verify(token)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerify_MissingEmail(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Issue("user-123", "")
	require.NoError(t, err)

	_, err = ts.Verify(token)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerify_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, in := range []string{"", "not-a-jwt", "not.a.jwt.token", "a.b.c"} {
		_, err := ts.Verify(in)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Verify(%q) error = %v, want ErrMalformed", in, err)
		}
	}
}
