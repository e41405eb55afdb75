package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tenantauth/internal/model"
	"tenantauth/internal/store"
	"tenantauth/pkg/jwtutil"
)

func newTestAuthority(t *testing.T) (*Authority, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	codec := jwtutil.NewCodec(&jwtutil.Config{SigningKey: "test-key"})
	hasher := NewHasher(bcrypt.MinCost)
	authority := NewAuthority(s, s, hasher, codec, 30*time.Minute, 7*24*time.Hour, zap.NewNop())
	return authority, s
}

func seedUser(t *testing.T, s *store.MemoryStore, email, password string) *model.User {
	t.Helper()
	hash, err := NewHasher(bcrypt.MinCost).Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	user, err := s.CreateUser(context.Background(), email, hash)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func TestLoginIssuesValidatablePair(t *testing.T) {
	authority, s := newTestAuthority(t)
	ctx := context.Background()
	user := seedUser(t, s, "alice@x.com", "pw123")
	tenant, _ := s.CreateTenant(ctx, "Acme")
	if _, err := s.Bind(ctx, tenant.ID, user.ID, model.RoleOwner); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	pair, claims, err := authority.Login(ctx, "alice@x.com", "pw123", &tenant.ID)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if claims.TenantID == nil || *claims.TenantID != tenant.ID {
		t.Errorf("claims tenant = %v, want %d", claims.TenantID, tenant.ID)
	}
	if claims.Role != string(model.RoleOwner) {
		t.Errorf("claims role = %q, want owner", claims.Role)
	}

	validated, err := authority.ValidateAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if validated.UserID != user.ID || *validated.TenantID != tenant.ID {
		t.Errorf("validated claims = %+v, want subject %d tenant %d", validated, user.ID, tenant.ID)
	}
}

func TestLoginFailureIsUniform(t *testing.T) {
	authority, s := newTestAuthority(t)
	ctx := context.Background()
	seedUser(t, s, "alice@x.com", "pw123")

	_, _, wrongPassword := authority.Login(ctx, "alice@x.com", "nope", nil)
	_, _, unknownEmail := authority.Login(ctx, "nobody@x.com", "pw123", nil)

	if !errors.Is(wrongPassword, ErrInvalidCredentials) {
		t.Errorf("wrong password = %v, want ErrInvalidCredentials", wrongPassword)
	}
	if !errors.Is(unknownEmail, ErrInvalidCredentials) {
		t.Errorf("unknown email = %v, want ErrInvalidCredentials", unknownEmail)
	}
	// Same error value, so the boundary cannot leak which part was wrong.
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Errorf("error text differs: %q vs %q", wrongPassword, unknownEmail)
	}
}

func TestLoginInactiveUser(t *testing.T) {
	authority, s := newTestAuthority(t)
	ctx := context.Background()
	user := seedUser(t, s, "alice@x.com", "pw123")
	if err := s.SetUserActive(ctx, user.ID, false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}

	if _, _, err := authority.Login(ctx, "alice@x.com", "pw123", nil); !errors.Is(err, ErrInactiveUser) {
		t.Errorf("Login = %v, want ErrInactiveUser", err)
	}
}

func TestLoginTenantWithoutBinding(t *testing.T) {
	authority, s := newTestAuthority(t)
	ctx := context.Background()
	seedUser(t, s, "alice@x.com", "pw123")
	tenant, _ := s.CreateTenant(ctx, "Acme")

	if _, _, err := authority.Login(ctx, "alice@x.com", "pw123", &tenant.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Login into unbound tenant = %v, want ErrForbidden", err)
	}
}

func TestRefreshRotatesAndRevokes(t *testing.T) {
	authority, s := newTestAuthority(t)
	ctx := context.Background()
	seedUser(t, s, "alice@x.com", "pw123")

	pair, _, err := authority.Login(ctx, "alice@x.com", "pw123", nil)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	rotated, _, err := authority.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Error("refresh returned the same refresh token, want rotation")
	}
	if _, err := authority.ValidateAccess(rotated.AccessToken); err != nil {
		t.Errorf("rotated access token invalid: %v", err)
	}

	// The original refresh token is single-use.
	if _, _, err := authority.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRevokedToken) {
		t.Errorf("second refresh of same token = %v, want ErrRevokedToken", err)
	}

	// The rotated token still works.
	if _, _, err := authority.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Errorf("refresh of rotated token = %v, want success", err)
	}
}

func TestRefreshDeactivatedUser(t *testing.T) {
	authority, s := newTestAuthority(t)
	ctx := context.Background()
	user := seedUser(t, s, "alice@x.com", "pw123")

	pair, _, err := authority.Login(ctx, "alice@x.com", "pw123", nil)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := s.SetUserActive(ctx, user.ID, false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}

	if _, _, err := authority.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInactiveUser) {
		t.Errorf("Refresh for deactivated user = %v, want ErrInactiveUser", err)
	}

	// Reactivation restores the session; the token was not consumed.
	if err := s.SetUserActive(ctx, user.ID, true); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	if _, _, err := authority.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Errorf("Refresh after reactivation = %v, want success", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	authority, s := newTestAuthority(t)
	ctx := context.Background()
	seedUser(t, s, "alice@x.com", "pw123")

	pair, _, err := authority.Login(ctx, "alice@x.com", "pw123", nil)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, _, err := authority.Refresh(ctx, pair.AccessToken); !errors.Is(err, jwtutil.ErrWrongTokenType) {
		t.Errorf("Refresh(access token) = %v, want ErrWrongTokenType", err)
	}
	if _, err := authority.ValidateAccess(pair.RefreshToken); !errors.Is(err, jwtutil.ErrWrongTokenType) {
		t.Errorf("ValidateAccess(refresh token) = %v, want ErrWrongTokenType", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	authority, s := newTestAuthority(t)
	ctx := context.Background()
	seedUser(t, s, "alice@x.com", "pw123")

	pair, _, err := authority.Login(ctx, "alice@x.com", "pw123", nil)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := authority.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := authority.Revoke(ctx, pair.RefreshToken); err != nil {
		t.Errorf("second Revoke = %v, want no-op", err)
	}

	if _, _, err := authority.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrRevokedToken) {
		t.Errorf("Refresh after revoke = %v, want ErrRevokedToken", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	authority, s := newTestAuthority(t)
	ctx := context.Background()
	seedUser(t, s, "alice@x.com", "pw123")

	pair, _, err := authority.Login(ctx, "alice@x.com", "pw123", nil)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	const callers = 4
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			_, _, err := authority.Refresh(ctx, pair.RefreshToken)
			results <- err
		}()
	}

	var successes, revoked int
	for i := 0; i < callers; i++ {
		switch err := <-results; {
		case err == nil:
			successes++
		case errors.Is(err, ErrRevokedToken):
			revoked++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if successes != 1 || revoked != callers-1 {
		t.Errorf("got %d successes and %d revoked, want 1 and %d", successes, revoked, callers-1)
	}
}
