// Package auth issues and verifies session tokens, hashes passwords and
// guards routes that require an authenticated caller.
//
// AUTHENTICATION FLOW:
//  1. Client POSTs credentials to /auth/register or /auth/login
//  2. Server verifies them and issues a signed JWT carrying {sub, email}
//  3. Client stores the token and sends it as "Authorization: Bearer <token>"
//  4. RequireAuth verifies the token and puts an Identity in the request context
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<userID>","email":"a@x.com","iss":"tasklist","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// Verification needs only the secret, no database lookup.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "tasklist"

	// MinSecretLength is enforced; RecommendedSecretLength only warns.
	MinSecretLength         = 16
	RecommendedSecretLength = 32

	// DefaultTokenTTL is seven days.
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// Verification failure kinds. The HTTP layer collapses all three into one
// 401 response; they stay distinct so logs can tell them apart.
var (
	ErrMalformed        = errors.New("auth: malformed token")
	ErrExpired          = errors.New("auth: token expired")
	ErrInvalidSignature = errors.New("auth: invalid token signature")
)

// Claims is the identity a verified token carries.
type Claims struct {
	UserID string
	Email  string
}

// TokenService signs and verifies HS256 tokens with one shared secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. A ttl of zero means DefaultTokenTTL.
// Generate a secret with: openssl rand -hex 32
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}
	if len(secret) < RecommendedSecretLength {
		slog.Warn("JWT secret is shorter than recommended", "length", len(secret), "recommended", RecommendedSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL reports how long issued tokens stay valid.
func (s *TokenService) TTL() time.Duration { return s.ttl }

type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Issue signs a token for the user with the configured lifetime.
func (s *TokenService) Issue(userID, email string) (string, error) {
	return s.IssueWithTTL(userID, email, s.ttl)
}

// IssueWithTTL signs a token with an explicit lifetime. A negative ttl yields
// an already-expired token, which tests use to exercise expiry.
//
// Each token gets a random jti, so two tokens issued within the same second
// for the same user still differ.
func (s *TokenService) IssueWithTTL(userID, email string, ttl time.Duration) (string, error) {
	now := s.now()

	c := tokenClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and expiry, and returns the
// embedded identity. Failures wrap ErrMalformed, ErrExpired or
// ErrInvalidSignature.
//
// jwt.WithValidMethods pins HS256 so a token claiming alg "none" (or an
// asymmetric algorithm keyed with our secret) is rejected.
func (s *TokenService) Verify(tokenStr string) (Claims, error) {
	var c tokenClaims
	_, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, classifyTokenError(err)
	}

	if c.Subject == "" || c.Email == "" {
		return Claims{}, fmt.Errorf("%w: missing subject or email", ErrMalformed)
	}
	return Claims{UserID: c.Subject, Email: c.Email}, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
