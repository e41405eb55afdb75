package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// Decode failure kinds. Expired and tampered tokens are different security
// signals, so callers get distinct errors for each.
var (
	ErrTokenExpired      = errors.New("token expired")
	ErrBadSignature      = errors.New("token signature invalid")
	ErrTokenMalformed    = errors.New("token malformed")
	ErrWrongTokenType    = errors.New("wrong token type")
	ErrMissingSigningKey = errors.New("signing key not configured")
)

// TokenType distinguishes access tokens from refresh tokens. The two are
// never interchangeable: Decode checks the type against the expected use.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Config holds token codec configuration.
type Config struct {
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims are the JWT claims carried by both token types. TenantID is nil for
// tenant-agnostic tokens. The registered ID field is the jti used for
// refresh-token revocation tracking.
type Claims struct {
	Email      string    `json:"email"`
	UserID     uint      `json:"user_id"`
	TenantID   *uint     `json:"tenant_id,omitempty"`
	TenantName string    `json:"tenant_name,omitempty"`
	Role       string    `json:"role,omitempty"`
	TokenType  TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// Codec issues and decodes signed, self-contained tokens.
type Codec struct {
	config *Config
}

// NewCodec creates a token codec with the given configuration.
func NewCodec(config *Config) *Codec {
	return &Codec{config: config}
}

// Issue signs a token of the given type with a fresh jti and the given TTL.
// It returns the token string and the claims as issued.
func (c *Codec) Issue(claims Claims, tokenType TokenType, ttl time.Duration) (string, *Claims, error) {
	if c.config == nil || c.config.SigningKey == "" {
		return "", nil, ErrMissingSigningKey
	}

	now := time.Now()
	claims.TokenType = tokenType
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.config.SigningKey))
	if err != nil {
		return "", nil, err
	}
	return signed, &claims, nil
}

// Decode parses and verifies a token string, requiring the given token type.
// It returns ErrTokenExpired, ErrBadSignature, ErrTokenMalformed or
// ErrWrongTokenType so callers can log and respond per failure kind.
func (c *Codec) Decode(tokenString string, want TokenType) (*Claims, error) {
	if c.config == nil || c.config.SigningKey == "" {
		return nil, ErrMissingSigningKey
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			// Validate the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(c.config.SigningKey), nil
		},
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, ErrTokenMalformed
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	if claims.TokenType != want {
		return nil, ErrWrongTokenType
	}

	return claims, nil
}
