package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"tenantauth/internal/auth"
	"tenantauth/internal/store"
	"tenantauth/pkg/jwtutil"
)

var (
	authority  *auth.Authority
	registrar  *auth.Registrar
	evaluator  *auth.Evaluator
	identities store.IdentityStore
	hasher     *auth.Hasher
)

// Init wires the handler package to its services. Called once from main
// before routes are registered.
func Init(a *auth.Authority, r *auth.Registrar, e *auth.Evaluator, s store.IdentityStore, h *auth.Hasher) {
	authority = a
	registrar = r
	evaluator = e
	identities = s
	hasher = h
}

// respondError maps the error taxonomy onto a client-facing status and a
// stable error string. Authentication failures stay uniform and
// non-revealing; authorization and admin errors may be specific.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, auth.ErrInactiveUser):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "user is inactive"})
	case errors.Is(err, auth.ErrRevokedToken):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token has been revoked"})
	case errors.Is(err, auth.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	case errors.Is(err, jwtutil.ErrTokenExpired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token expired"})
	case errors.Is(err, jwtutil.ErrBadSignature),
		errors.Is(err, jwtutil.ErrTokenMalformed),
		errors.Is(err, jwtutil.ErrWrongTokenType):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	case errors.Is(err, store.ErrDuplicateEmail):
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, store.ErrUnavailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
