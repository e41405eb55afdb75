package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tenantauth/internal/auth"
	"tenantauth/pkg/jwtutil"
	"tenantauth/pkg/logger"
	"tenantauth/prometheus"
)

// Context keys set by Authenticate for downstream handlers.
const (
	ContextUserID     = "user_id"
	ContextEmail      = "email"
	ContextTenantID   = "tenant_id"
	ContextTenantName = "tenant_name"
	ContextRole       = "role"
	ContextClaims     = "claims"
)

// Authenticate validates the bearer access token and stores the claims in
// the request context. The effective tenant for every downstream check is the
// tenant the token was issued for, never a client-supplied field.
func Authenticate(authority *auth.Authority) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				log.Warn("Invalid Authorization header format")
				prometheus.RecordAuthError("invalid_auth_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			claims, err := authority.ValidateAccess(parts[1])
			if err != nil {
				// Expired and tampered tokens are different security signals.
				switch {
				case errors.Is(err, jwtutil.ErrTokenExpired):
					log.Debug("Expired access token")
					prometheus.RecordAuthError("expired_token")
				case errors.Is(err, jwtutil.ErrBadSignature):
					log.Warn("Access token signature verification failed")
					prometheus.RecordAuthError("bad_signature")
				case errors.Is(err, jwtutil.ErrWrongTokenType):
					log.Warn("Non-access token presented as bearer credential")
					prometheus.RecordAuthError("wrong_token_type")
				default:
					log.Warn("Malformed access token", zap.Error(err))
					prometheus.RecordAuthError("malformed_token")
				}
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
			}

			c.Set(ContextClaims, claims)
			c.Set(ContextUserID, claims.UserID)
			c.Set(ContextEmail, claims.Email)

			if claims.TenantID != nil {
				c.Set(ContextTenantID, *claims.TenantID)
				c.Set(ContextTenantName, claims.TenantName)
				c.Set(ContextRole, claims.Role)

				log.Debug("Request authenticated with tenant context",
					zap.Uint("tenant_id", *claims.TenantID),
					zap.String("role", claims.Role))
			}

			return next(c)
		}
	}
}

// RequireTenantContext rejects requests whose access token carries no tenant
// context. Tenant-scoped endpoints sit behind it.
func RequireTenantContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := c.Get(ContextTenantID).(uint); !ok {
			logger.FromContext(c).Warn("Tenant-scoped endpoint called without tenant context")
			prometheus.RecordAuthError("missing_tenant_context")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "token carries no tenant context"})
		}
		return next(c)
	}
}
