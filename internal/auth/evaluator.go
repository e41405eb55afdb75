package auth

import (
	"context"
	"errors"

	"tenantauth/internal/model"
	"tenantauth/internal/store"
)

// Evaluator answers tenant-scoped authorization questions from role
// bindings. The tenant ID must always come from validated token claims, never
// from an unauthenticated request field; that is what stops a caller from
// hopping into a tenant their token was not issued for.
type Evaluator struct {
	identities store.IdentityStore
}

// NewEvaluator creates an authorization evaluator over the identity store.
func NewEvaluator(identities store.IdentityStore) *Evaluator {
	return &Evaluator{identities: identities}
}

// Can reports whether the user holds a role in the tenant that satisfies the
// required role. A missing or inactive binding is deny-by-default.
func (e *Evaluator) Can(ctx context.Context, userID, tenantID uint, required model.Role) (bool, error) {
	binding, err := e.identities.FindBinding(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !binding.Active {
		return false, nil
	}
	return binding.Role.Meets(required), nil
}

// Require is Can with a Forbidden error instead of a boolean, for handlers
// that gate an operation on the caller's evaluated role.
func (e *Evaluator) Require(ctx context.Context, userID, tenantID uint, required model.Role) error {
	allowed, err := e.Can(ctx, userID, tenantID, required)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}
