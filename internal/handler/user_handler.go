package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tenantauth/internal/auth"
	"tenantauth/internal/middleware"
	"tenantauth/pkg/logger"
	"tenantauth/prometheus"
)

// GetProfile returns the authenticated user's record plus the tenant context
// carried by the access token.
func GetProfile(c echo.Context) error {
	log := logger.FromContext(c)

	userID, ok := c.Get(middleware.ContextUserID).(uint)
	if !ok {
		log.Error("Failed to get user ID from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	user, err := identities.UserByID(c.Request().Context(), userID)
	if err != nil {
		log.Error("Failed to load user", zap.Uint("user_id", userID), zap.Error(err))
		return respondError(c, err)
	}

	response := echo.Map{
		"user": map[string]interface{}{
			"id":         user.ID,
			"email":      user.Email,
			"is_active":  user.IsActive,
			"created_at": user.CreatedAt,
		},
	}
	if tenantID, ok := c.Get(middleware.ContextTenantID).(uint); ok {
		response["tenant_id"] = tenantID
		response["role"] = c.Get(middleware.ContextRole)
	}

	return c.JSON(http.StatusOK, response)
}

// UpdateProfile changes the authenticated user's email address.
func UpdateProfile(c echo.Context) error {
	log := logger.FromContext(c)

	userID, ok := c.Get(middleware.ContextUserID).(uint)
	if !ok {
		log.Error("Failed to get user ID from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		log.Warn("Failed to parse profile update request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	user, err := identities.UpdateUserEmail(c.Request().Context(), userID, req.Email)
	if err != nil {
		log.Warn("Failed to update profile", zap.Uint("user_id", userID), zap.Error(err))
		return respondError(c, err)
	}

	log.Info("Profile updated", zap.Uint("user_id", user.ID))
	return c.JSON(http.StatusOK, echo.Map{
		"user": map[string]interface{}{
			"id":    user.ID,
			"email": user.Email,
		},
	})
}

// ChangePassword verifies the current password and stores a new hash.
func ChangePassword(c echo.Context) error {
	log := logger.FromContext(c)

	userID, ok := c.Get(middleware.ContextUserID).(uint)
	if !ok {
		log.Error("Failed to get user ID from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		log.Warn("Failed to parse change-password request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "current_password and new_password are required"})
	}

	ctx := c.Request().Context()
	user, err := identities.UserByID(ctx, userID)
	if err != nil {
		return respondError(c, err)
	}

	if !hasher.Verify(req.CurrentPassword, user.PasswordHash) {
		log.Warn("Password change with wrong current password", zap.Uint("user_id", userID))
		prometheus.RecordAuthError("invalid_credentials")
		return respondError(c, auth.ErrInvalidCredentials)
	}

	hash, err := hasher.Hash(req.NewPassword)
	if err != nil {
		log.Error("Failed to hash new password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := identities.UpdateUserPassword(ctx, userID, hash); err != nil {
		log.Error("Failed to store new password", zap.Uint("user_id", userID), zap.Error(err))
		return respondError(c, err)
	}

	log.Info("Password changed", zap.Uint("user_id", userID))
	return c.JSON(http.StatusOK, echo.Map{"message": "password changed"})
}

// DeactivateMe soft-deactivates the authenticated user. Logins fail until an
// operator reactivates the account; existing access tokens simply outlast
// their TTL.
func DeactivateMe(c echo.Context) error {
	log := logger.FromContext(c)

	userID, ok := c.Get(middleware.ContextUserID).(uint)
	if !ok {
		log.Error("Failed to get user ID from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := identities.SetUserActive(c.Request().Context(), userID, false); err != nil {
		log.Error("Failed to deactivate user", zap.Uint("user_id", userID), zap.Error(err))
		return respondError(c, err)
	}

	log.Info("User deactivated", zap.Uint("user_id", userID))
	return c.JSON(http.StatusOK, echo.Map{"message": "account deactivated"})
}
