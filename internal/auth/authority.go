package auth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"tenantauth/internal/store"
	"tenantauth/pkg/jwtutil"
)

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Authority issues token pairs on login, validates access tokens, rotates
// refresh tokens and maintains refresh-token revocation state.
type Authority struct {
	identities  store.IdentityStore
	revocations store.RevocationStore
	hasher      *Hasher
	codec       *jwtutil.Codec
	accessTTL   time.Duration
	refreshTTL  time.Duration
	log         *zap.Logger
}

// NewAuthority creates a session authority. TTLs come from configuration at
// construction; business logic never reads the environment.
func NewAuthority(identities store.IdentityStore, revocations store.RevocationStore, hasher *Hasher, codec *jwtutil.Codec, accessTTL, refreshTTL time.Duration, log *zap.Logger) *Authority {
	return &Authority{
		identities:  identities,
		revocations: revocations,
		hasher:      hasher,
		codec:       codec,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		log:         log,
	}
}

// Login verifies the credentials and mints an access/refresh token pair. An
// unknown email and a wrong password both come back as ErrInvalidCredentials.
// When tenantID is given the user must hold an active binding there, and the
// issued tokens carry that tenant context.
func (a *Authority) Login(ctx context.Context, email, password string, tenantID *uint) (*TokenPair, *jwtutil.Claims, error) {
	user, err := a.identities.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a comparison anyway so the timing matches the
			// wrong-password path.
			a.hasher.Verify(password, "")
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if !a.hasher.Verify(password, user.PasswordHash) {
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, ErrInactiveUser
	}

	claims := jwtutil.Claims{
		Email:  user.Email,
		UserID: user.ID,
	}

	if tenantID != nil {
		binding, err := a.identities.FindBinding(ctx, *tenantID, user.ID)
		if err != nil || !binding.Active {
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, nil, err
			}
			return nil, nil, ErrForbidden
		}
		tenant, err := a.identities.TenantByID(ctx, *tenantID)
		if err != nil {
			return nil, nil, err
		}
		claims.TenantID = tenantID
		claims.TenantName = tenant.Name
		claims.Role = string(binding.Role)
	}

	return a.issuePair(claims)
}

// Refresh rotates a refresh token: the presented token's jti is revoked and a
// fresh pair is issued for the same subject and tenant context. Refresh
// tokens are single-use; of two concurrent calls with the same token exactly
// one succeeds and the other gets ErrRevokedToken. The subject must still be
// active, so deactivation cuts off rotation after at most one access TTL.
func (a *Authority) Refresh(ctx context.Context, refreshToken string) (*TokenPair, *jwtutil.Claims, error) {
	claims, err := a.codec.Decode(refreshToken, jwtutil.RefreshToken)
	if err != nil {
		return nil, nil, err
	}

	user, err := a.identities.UserByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !user.IsActive {
		// The token is left unconsumed: reactivating the account
		// restores the session.
		return nil, nil, ErrInactiveUser
	}

	created, err := a.revocations.RevokeOnce(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return nil, nil, err
	}
	if !created {
		a.log.Warn("Refresh token replayed after rotation",
			zap.String("jti", claims.ID),
			zap.Uint("user_id", claims.UserID))
		return nil, nil, ErrRevokedToken
	}

	next := jwtutil.Claims{
		Email:      claims.Email,
		UserID:     claims.UserID,
		TenantID:   claims.TenantID,
		TenantName: claims.TenantName,
		Role:       claims.Role,
	}
	return a.issuePair(next)
}

// ValidateAccess is a pure decode plus type and expiry check. No store
// lookup: access tokens are not individually revocable, they only outlast
// their short TTL.
func (a *Authority) ValidateAccess(accessToken string) (*jwtutil.Claims, error) {
	return a.codec.Decode(accessToken, jwtutil.AccessToken)
}

// Revoke records a refresh-token jti as revoked. Revoking twice is a no-op.
func (a *Authority) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := a.codec.Decode(refreshToken, jwtutil.RefreshToken)
	if err != nil {
		if errors.Is(err, jwtutil.ErrTokenExpired) {
			// Already dead; nothing to record.
			return nil
		}
		return err
	}
	_, err = a.revocations.RevokeOnce(ctx, claims.ID, claims.ExpiresAt.Time)
	return err
}

// PurgeExpiredRevocations drops revocation records whose tokens have expired.
func (a *Authority) PurgeExpiredRevocations(ctx context.Context) (int64, error) {
	return a.revocations.PurgeExpired(ctx, time.Now())
}

func (a *Authority) issuePair(claims jwtutil.Claims) (*TokenPair, *jwtutil.Claims, error) {
	access, accessClaims, err := a.codec.Issue(claims, jwtutil.AccessToken, a.accessTTL)
	if err != nil {
		return nil, nil, err
	}
	refresh, _, err := a.codec.Issue(claims, jwtutil.RefreshToken, a.refreshTTL)
	if err != nil {
		return nil, nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, accessClaims, nil
}
