package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tenantauth/internal/middleware"
	"tenantauth/internal/model"
	"tenantauth/pkg/logger"
	"tenantauth/prometheus"
)

// CreateTenant creates a tenant with the caller bound as owner. The caller
// must log back into the new tenant to obtain tokens carrying its context.
func CreateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("create")

	userID, ok := c.Get(middleware.ContextUserID).(uint)
	if !ok {
		log.Error("Failed to get user ID from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" {
		log.Warn("Invalid tenant creation request")
		prometheus.RecordAuthError("incomplete_tenant_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	tenant, err := registrar.CreateTenant(c.Request().Context(), userID, req.Name)
	if err != nil {
		log.Error("Failed to create tenant", zap.Error(err))
		prometheus.RecordAuthError("tenant_creation_failed")
		return respondError(c, err)
	}

	log.Info("Tenant created",
		zap.String("name", tenant.Name),
		zap.Uint("id", tenant.ID),
		zap.Uint("owner_id", userID))

	return c.JSON(http.StatusCreated, echo.Map{
		"tenant": tenant,
		"role":   model.RoleOwner,
	})
}

// ListUserTenants returns all tenants the caller belongs to, with roles.
func ListUserTenants(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("list")

	userID, ok := c.Get(middleware.ContextUserID).(uint)
	if !ok {
		log.Error("Failed to get user ID from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	bindings, err := identities.ListUserTenants(c.Request().Context(), userID)
	if err != nil {
		log.Error("Failed to list tenants", zap.Error(err))
		return respondError(c, err)
	}

	type TenantResponse struct {
		ID        uint       `json:"id"`
		Name      string     `json:"name"`
		Role      model.Role `json:"role"`
		CreatedAt time.Time  `json:"created_at"`
	}

	response := make([]TenantResponse, 0, len(bindings))
	for _, b := range bindings {
		response = append(response, TenantResponse{
			ID:        b.TenantID,
			Name:      b.Tenant.Name,
			Role:      b.Role,
			CreatedAt: b.Tenant.CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, response)
}

// claimedTenant resolves the path tenant ID against the token's tenant
// context. A request's effective tenant is whatever tenant the access token
// was issued for; a mismatched path is rejected outright.
func claimedTenant(c echo.Context) (uint, bool) {
	tenantID, ok := c.Get(middleware.ContextTenantID).(uint)
	if !ok {
		return 0, false
	}
	pathID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || uint(pathID) != tenantID {
		return 0, false
	}
	return tenantID, true
}

// GetTenant returns tenant details to its members.
func GetTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("access")

	userID, _ := c.Get(middleware.ContextUserID).(uint)
	tenantID, ok := claimedTenant(c)
	if !ok {
		log.Warn("Tenant access outside token context", zap.Uint("user_id", userID))
		prometheus.RecordAuthError("tenant_access_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	ctx := c.Request().Context()
	if err := evaluator.Require(ctx, userID, tenantID, model.RoleMember); err != nil {
		log.Warn("Unauthorized tenant access attempt",
			zap.Uint("user_id", userID),
			zap.Uint("tenant_id", tenantID))
		prometheus.RecordAuthError("tenant_access_denied")
		return respondError(c, err)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	tenant, err := identities.TenantByID(ctx, tenantID)
	if err != nil {
		log.Error("Tenant not found", zap.Uint("id", tenantID), zap.Error(err))
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, tenant)
}

// DeleteTenant removes a tenant and its bindings. Owner only. Users are
// never deleted with the tenant.
func DeleteTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("delete")

	userID, _ := c.Get(middleware.ContextUserID).(uint)
	tenantID, ok := claimedTenant(c)
	if !ok {
		log.Warn("Tenant delete outside token context", zap.Uint("user_id", userID))
		prometheus.RecordAuthError("tenant_access_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	}

	ctx := c.Request().Context()
	if err := evaluator.Require(ctx, userID, tenantID, model.RoleOwner); err != nil {
		log.Warn("Unauthorized tenant delete attempt",
			zap.Uint("user_id", userID),
			zap.Uint("tenant_id", tenantID))
		prometheus.RecordAuthError("tenant_permission_denied")
		return respondError(c, err)
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := identities.DeleteTenant(ctx, tenantID); err != nil {
		log.Error("Failed to delete tenant", zap.Uint("id", tenantID), zap.Error(err))
		return respondError(c, err)
	}

	log.Info("Tenant deleted", zap.Uint("id", tenantID), zap.Uint("deleted_by", userID))
	return c.JSON(http.StatusOK, echo.Map{"message": "tenant deleted"})
}

// BindUser adds a user to the caller's tenant or overwrites their role.
// Requires admin or better; granting the owner role requires owner.
func BindUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("bind")

	userID, ok := c.Get(middleware.ContextUserID).(uint)
	if !ok {
		log.Error("Failed to get user ID from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	tenantID, ok := c.Get(middleware.ContextTenantID).(uint)
	if !ok {
		prometheus.RecordAuthError("missing_tenant_context")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "token carries no tenant context"})
	}

	var req struct {
		UserEmail string `json:"user_email"`
		Role      string `json:"role,omitempty"`
	}
	if err := c.Bind(&req); err != nil || req.UserEmail == "" {
		log.Warn("Invalid bind request")
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_email is required"})
	}
	if req.Role == "" {
		req.Role = string(model.RoleMember)
	}
	role, valid := model.ParseRole(req.Role)
	if !valid {
		log.Warn("Unknown role in bind request", zap.String("role", req.Role))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}

	ctx := c.Request().Context()
	required := model.RoleAdmin
	if role == model.RoleOwner {
		// Only an owner can mint another owner.
		required = model.RoleOwner
	}
	if err := evaluator.Require(ctx, userID, tenantID, required); err != nil {
		log.Warn("Unauthorized attempt to bind user to tenant",
			zap.Uint("requesting_user_id", userID),
			zap.Uint("tenant_id", tenantID))
		prometheus.RecordAuthError("tenant_permission_denied")
		return respondError(c, err)
	}

	target, err := identities.UserByEmail(ctx, req.UserEmail)
	if err != nil {
		log.Warn("User not found for binding", zap.String("email", req.UserEmail))
		return respondError(c, err)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	binding, err := identities.Bind(ctx, tenantID, target.ID, role)
	if err != nil {
		log.Error("Failed to bind user to tenant", zap.Error(err))
		prometheus.RecordAuthError("tenant_user_bind_failed")
		return respondError(c, err)
	}

	log.Info("User bound to tenant",
		zap.Uint("tenant_id", tenantID),
		zap.Uint("user_id", target.ID),
		zap.String("role", string(role)))

	return c.JSON(http.StatusOK, echo.Map{"binding": binding})
}

// RemoveUserFromTenant unbinds a user from the caller's tenant. Requires
// admin or better; a tenant owner cannot be removed.
func RemoveUserFromTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("unbind")

	userID, ok := c.Get(middleware.ContextUserID).(uint)
	if !ok {
		log.Error("Failed to get user ID from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	tenantID, ok := c.Get(middleware.ContextTenantID).(uint)
	if !ok {
		prometheus.RecordAuthError("missing_tenant_context")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "token carries no tenant context"})
	}

	targetID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil {
		log.Warn("Invalid user ID", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	ctx := c.Request().Context()
	if err := evaluator.Require(ctx, userID, tenantID, model.RoleAdmin); err != nil {
		log.Warn("Unauthorized attempt to remove user from tenant",
			zap.Uint("requesting_user_id", userID),
			zap.Uint("tenant_id", tenantID))
		prometheus.RecordAuthError("tenant_permission_denied")
		return respondError(c, err)
	}

	binding, err := identities.FindBinding(ctx, tenantID, uint(targetID))
	if err != nil {
		return respondError(c, err)
	}
	if binding.Role == model.RoleOwner {
		log.Warn("Attempted to remove tenant owner",
			zap.Uint("tenant_id", tenantID),
			zap.Uint64("owner_id", targetID))
		prometheus.RecordAuthError("tenant_owner_removal_blocked")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot remove tenant owner"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := identities.Unbind(ctx, tenantID, uint(targetID)); err != nil {
		log.Error("Failed to remove user from tenant", zap.Error(err))
		return respondError(c, err)
	}

	log.Info("User removed from tenant",
		zap.Uint("tenant_id", tenantID),
		zap.Uint64("user_id", targetID))

	return c.JSON(http.StatusOK, echo.Map{"message": "user removed from tenant"})
}
