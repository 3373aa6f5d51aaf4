package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// signingKeyLen is the derived HMAC signing key length in bytes.
const signingKeyLen = 32

// signingKeyInfo labels the HKDF derivation so the signing key can never
// collide with other keys derived from the same root.
const signingKeyInfo = "gatehouse/session-token-signing/v1"

// Claims are the session token payload. TokenVersion snapshots the user's
// revocation counter at issue time; verification against the current stored
// counter happens separately via the VersionCache.
type Claims struct {
	jwt.RegisteredClaims
	Username     string `json:"username"`
	Email        string `json:"email,omitempty"`
	Role         Role   `json:"role"`
	TokenVersion int64  `json:"token_version"`
}

// TokenService issues and verifies signed session tokens.
//
// The HMAC signing key is derived deterministically from the configured root
// key, so rotating the root key rotates the signing key with it. Nothing
// secret is ever stored separately.
type TokenService struct {
	signingKey []byte
	ttl        time.Duration
}

// NewTokenService derives the signing key from the root key and returns a
// service issuing tokens with the given TTL.
func NewTokenService(rootKey string, ttl time.Duration) (*TokenService, error) {
	if rootKey == "" {
		return nil, errors.New("root key is required")
	}

	key := make([]byte, signingKeyLen)
	kdf := hkdf.New(sha256.New, []byte(rootKey), nil, []byte(signingKeyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving signing key: %w", err)
	}

	return &TokenService{signingKey: key, ttl: ttl}, nil
}

// Issue creates a signed session token for a user, embedding the user's
// current token version.
func (s *TokenService) Issue(user *User) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
		Username:     user.Username,
		Email:        user.Email,
		Role:         user.Role,
		TokenVersion: user.TokenVersion,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Verify checks a token's signature and expiry and returns its claims.
//
// It does not confirm the token is still current; callers must compare the
// embedded TokenVersion against the user's stored version before trusting it.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.Role == "" {
		return nil, fmt.Errorf("%w: missing role", ErrTokenInvalid)
	}
	if claims.TokenVersion <= 0 {
		return nil, fmt.Errorf("%w: missing token version", ErrTokenInvalid)
	}

	return claims, nil
}
