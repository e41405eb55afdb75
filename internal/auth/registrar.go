package auth

import (
	"context"

	"go.uber.org/zap"

	"tenantauth/internal/model"
	"tenantauth/internal/store"
)

// Registration is the outcome of a successful registration. TenantID is set
// only when a tenant was created alongside the user.
type Registration struct {
	User   *model.User
	Tenant *model.Tenant
}

// Registrar coordinates user onboarding: hash the password, create the user,
// and optionally create a tenant with the new user bound as owner.
type Registrar struct {
	identities store.IdentityStore
	hasher     *Hasher
	log        *zap.Logger
}

// NewRegistrar creates a registration orchestrator.
func NewRegistrar(identities store.IdentityStore, hasher *Hasher, log *zap.Logger) *Registrar {
	return &Registrar{identities: identities, hasher: hasher, log: log}
}

// Register creates the user and, when tenantName is non-empty, a tenant owned
// by them. Duplicate emails propagate as store.ErrDuplicateEmail. If the
// owner binding cannot be written the fresh tenant is deleted again, so no
// tenant is ever left without an owner.
func (r *Registrar) Register(ctx context.Context, email, password, tenantName string) (*Registration, error) {
	hash, err := r.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := r.identities.CreateUser(ctx, email, hash)
	if err != nil {
		return nil, err
	}

	reg := &Registration{User: user}
	if tenantName == "" {
		return reg, nil
	}

	tenant, err := r.identities.CreateTenant(ctx, tenantName)
	if err != nil {
		return nil, err
	}

	if _, err := r.identities.Bind(ctx, tenant.ID, user.ID, model.RoleOwner); err != nil {
		// Compensate: a tenant without an owner must not survive.
		if delErr := r.identities.DeleteTenant(ctx, tenant.ID); delErr != nil {
			r.log.Error("Failed to delete orphaned tenant after binding failure",
				zap.Uint("tenant_id", tenant.ID),
				zap.Error(delErr))
		}
		return nil, err
	}

	reg.Tenant = tenant
	return reg, nil
}

// CreateTenant creates a tenant owned by an existing user, with the same
// compensation rule as Register: no tenant survives without an owner binding.
func (r *Registrar) CreateTenant(ctx context.Context, ownerID uint, name string) (*model.Tenant, error) {
	tenant, err := r.identities.CreateTenant(ctx, name)
	if err != nil {
		return nil, err
	}
	if _, err := r.identities.Bind(ctx, tenant.ID, ownerID, model.RoleOwner); err != nil {
		if delErr := r.identities.DeleteTenant(ctx, tenant.ID); delErr != nil {
			r.log.Error("Failed to delete orphaned tenant after binding failure",
				zap.Uint("tenant_id", tenant.ID),
				zap.Error(delErr))
		}
		return nil, err
	}
	return tenant, nil
}
