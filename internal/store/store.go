package store

import (
	"context"
	"errors"
	"time"

	"tenantauth/internal/model"
)

// Store errors. Handlers match these with errors.Is and map them to stable
// client-facing status codes.
var (
	ErrDuplicateEmail = errors.New("email already registered")
	ErrNotFound       = errors.New("record not found")
	ErrUnavailable    = errors.New("store unavailable")
)

// IdentityStore holds the durable records for tenants, users and their
// role bindings. Email uniqueness is global and case-insensitive; all writes
// are atomic with respect to that invariant, so concurrent registrations of
// the same email resolve to exactly one winner.
type IdentityStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*model.User, error)
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UserByID(ctx context.Context, id uint) (*model.User, error)
	UpdateUserEmail(ctx context.Context, id uint, email string) (*model.User, error)
	UpdateUserPassword(ctx context.Context, id uint, passwordHash string) error
	SetUserActive(ctx context.Context, id uint, active bool) error

	CreateTenant(ctx context.Context, name string) (*model.Tenant, error)
	TenantByID(ctx context.Context, id uint) (*model.Tenant, error)
	DeleteTenant(ctx context.Context, id uint) error

	// Bind upserts the (tenant, user) -> role binding. An existing binding
	// has its role overwritten; unknown tenant or user IDs yield ErrNotFound.
	Bind(ctx context.Context, tenantID, userID uint, role model.Role) (*model.UserTenant, error)
	Unbind(ctx context.Context, tenantID, userID uint) error
	// FindBinding is a point lookup on the authorization hot path. A missing
	// binding is ErrNotFound, never an invented default.
	FindBinding(ctx context.Context, tenantID, userID uint) (*model.UserTenant, error)
	ListUserTenants(ctx context.Context, userID uint) ([]model.UserTenant, error)
}

// RevocationStore tracks revoked refresh-token jtis. Access tokens are
// short-lived and validated stateless, so they never appear here.
type RevocationStore interface {
	// RevokeOnce inserts a revocation record for jti with compare-and-set
	// semantics: it returns true if this call created the record and false
	// if the jti was already revoked. Exactly one concurrent caller wins.
	RevokeOnce(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// PurgeExpired removes records whose token expiry has passed. They no
	// longer affect any decision, so purging is best-effort housekeeping.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}
