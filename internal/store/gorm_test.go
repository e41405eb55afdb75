package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tenantauth/internal/model"
)

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.Tenant{},
		&model.UserTenant{},
		&model.RevokedToken{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewGormStore(db)
}

func TestGormCreateUserDuplicateEmail(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "a@x.com", "hash"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.CreateUser(ctx, "A@X.COM", "hash"); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("CreateUser with same email in different case = %v, want ErrDuplicateEmail", err)
	}
}

func TestGormRebindAfterUnbind(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "a@x.com", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	tenant, err := s.CreateTenant(ctx, "Acme")
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}

	if _, err := s.Bind(ctx, tenant.ID, user.ID, model.RoleMember); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := s.Unbind(ctx, tenant.ID, user.ID); err != nil {
		t.Fatalf("Unbind: %v", err)
	}
	if _, err := s.FindBinding(ctx, tenant.ID, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindBinding after Unbind = %v, want ErrNotFound", err)
	}

	// Re-inviting a removed member must work; both ids still exist.
	binding, err := s.Bind(ctx, tenant.ID, user.ID, model.RoleAdmin)
	if err != nil {
		t.Fatalf("re-Bind after Unbind = %v, want success", err)
	}
	if binding.Role != model.RoleAdmin || !binding.Active {
		t.Errorf("rebound binding = role %q active %v, want admin/active", binding.Role, binding.Active)
	}
}

func TestGormBindUpsertOverwritesRole(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	user, _ := s.CreateUser(ctx, "a@x.com", "hash")
	tenant, _ := s.CreateTenant(ctx, "Acme")

	first, err := s.Bind(ctx, tenant.ID, user.ID, model.RoleMember)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	second, err := s.Bind(ctx, tenant.ID, user.ID, model.RoleAdmin)
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if second.ID != first.ID {
		t.Error("rebinding created a second row, want overwrite")
	}
	if second.Role != model.RoleAdmin {
		t.Errorf("role after rebind = %q, want admin", second.Role)
	}
}

func TestGormDeleteTenantAllowsReinvite(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	user, _ := s.CreateUser(ctx, "a@x.com", "hash")
	tenant, _ := s.CreateTenant(ctx, "Acme")
	if _, err := s.Bind(ctx, tenant.ID, user.ID, model.RoleOwner); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if err := s.DeleteTenant(ctx, tenant.ID); err != nil {
		t.Fatalf("DeleteTenant: %v", err)
	}
	if _, err := s.Bind(ctx, tenant.ID, user.ID, model.RoleOwner); !errors.Is(err, ErrNotFound) {
		t.Errorf("Bind to deleted tenant = %v, want ErrNotFound", err)
	}
	if _, err := s.UserByID(ctx, user.ID); err != nil {
		t.Errorf("user deleted with tenant: %v", err)
	}

	next, err := s.CreateTenant(ctx, "Acme")
	if err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}
	if _, err := s.Bind(ctx, next.ID, user.ID, model.RoleOwner); err != nil {
		t.Errorf("Bind to successor tenant = %v, want success", err)
	}
}

func TestGormRevokeOnce(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	created, err := s.RevokeOnce(ctx, "jti-1", expires)
	if err != nil || !created {
		t.Fatalf("RevokeOnce = (%v, %v), want (true, nil)", created, err)
	}
	created, err = s.RevokeOnce(ctx, "jti-1", expires)
	if err != nil || created {
		t.Errorf("second RevokeOnce = (%v, %v), want (false, nil)", created, err)
	}

	revoked, err := s.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Errorf("IsRevoked = (%v, %v), want (true, nil)", revoked, err)
	}
}
