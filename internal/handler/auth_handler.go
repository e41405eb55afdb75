package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tenantauth/pkg/jwtutil"
	"tenantauth/pkg/logger"
	"tenantauth/prometheus"
)

func Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	// Parse request
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		TenantID *uint  `json:"tenant_id,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	pair, claims, err := authority.Login(c.Request().Context(), req.Email, req.Password, req.TenantID)
	if err != nil {
		// Unknown email and wrong password log the same and respond the same.
		log.Warn("Login failed", zap.Error(err))
		prometheus.RecordAuthError("login_failure")
		return respondError(c, err)
	}

	prometheus.RecordTokenIssued(string(jwtutil.AccessToken))
	prometheus.RecordTokenIssued(string(jwtutil.RefreshToken))

	if claims.TenantID != nil {
		log.Info("User logged in with tenant context",
			zap.String("email", claims.Email),
			zap.Uint("tenant_id", *claims.TenantID),
			zap.String("role", claims.Role))
	} else {
		log.Info("User logged in", zap.String("email", claims.Email))
	}

	response := echo.Map{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"user": map[string]interface{}{
			"id":    claims.UserID,
			"email": claims.Email,
		},
	}
	if claims.TenantID != nil {
		response["tenant"] = map[string]interface{}{
			"id":   *claims.TenantID,
			"name": claims.TenantName,
			"role": claims.Role,
		}
	}

	return c.JSON(http.StatusOK, response)
}

func Register(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterCounter.Inc()

	// Parse request
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		TenantName string `json:"tenant_name,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Email == "" || req.Password == "" {
		log.Warn("Invalid registration data",
			zap.String("email", req.Email),
			zap.Bool("password_provided", req.Password != ""))
		prometheus.RecordAuthError("incomplete_registration")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	reg, err := registrar.Register(c.Request().Context(), req.Email, req.Password, req.TenantName)
	if err != nil {
		log.Warn("Registration failed", zap.String("email", req.Email), zap.Error(err))
		prometheus.RecordAuthError("registration_failed")
		return respondError(c, err)
	}

	log.Info("User registered", zap.String("email", reg.User.Email), zap.Uint("user_id", reg.User.ID))

	response := echo.Map{
		"user": map[string]interface{}{
			"id":    reg.User.ID,
			"email": reg.User.Email,
		},
	}
	if reg.Tenant != nil {
		prometheus.RecordTenantOperation("create")
		response["tenant"] = map[string]interface{}{
			"id":   reg.Tenant.ID,
			"name": reg.Tenant.Name,
			"role": "owner",
		}
	}

	return c.JSON(http.StatusCreated, response)
}

func Refresh(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RefreshCounter.Inc()

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		log.Warn("Failed to parse refresh request")
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token is required"})
	}

	pair, claims, err := authority.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		log.Warn("Token refresh failed", zap.Error(err))
		prometheus.RecordAuthError("refresh_failure")
		return respondError(c, err)
	}

	prometheus.RecordTokenRevoked("rotation")
	prometheus.RecordTokenIssued(string(jwtutil.AccessToken))
	prometheus.RecordTokenIssued(string(jwtutil.RefreshToken))

	log.Info("Token pair rotated", zap.Uint("user_id", claims.UserID))

	return c.JSON(http.StatusOK, echo.Map{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

func Logout(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		log.Warn("Failed to parse logout request")
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token is required"})
	}

	if err := authority.Revoke(c.Request().Context(), req.RefreshToken); err != nil {
		log.Warn("Logout failed", zap.Error(err))
		prometheus.RecordAuthError("logout_failure")
		return respondError(c, err)
	}

	prometheus.RecordTokenRevoked("logout")
	log.Info("Refresh token revoked")

	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func MetricsHandler(c echo.Context) error {
	handler := prometheus.GetPrometheusHandler()
	handler.ServeHTTP(c.Response(), c.Request())
	return nil
}
