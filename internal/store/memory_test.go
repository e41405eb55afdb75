package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tenantauth/internal/model"
)

func TestCreateUserDuplicateEmailCaseInsensitive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "a@x.com", "hash"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.CreateUser(ctx, "A@X.COM", "hash"); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("CreateUser with same email in different case = %v, want ErrDuplicateEmail", err)
	}
}

func TestCreateUserConcurrentDuplicate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)
	emails := []string{"a@x.com", "A@x.com"}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.CreateUser(ctx, emails[i], "hash")
		}(i)
	}
	wg.Wait()

	var successes, duplicates int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrDuplicateEmail):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || duplicates != 1 {
		t.Errorf("got %d successes and %d duplicates, want exactly 1 of each", successes, duplicates)
	}
}

func TestUserLookupNormalizesEmail(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.CreateUser(ctx, " Alice@X.com ", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if created.Email != "alice@x.com" {
		t.Errorf("stored email = %q, want lowercased", created.Email)
	}

	found, err := s.UserByEmail(ctx, "ALICE@x.COM")
	if err != nil {
		t.Fatalf("UserByEmail: %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("lookup found user %d, want %d", found.ID, created.ID)
	}
}

func TestBindUpsert(t *testing.T) {
	s := NewMemoryStore()
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

	binding, err := s.FindBinding(ctx, tenant.ID, user.ID)
	if err != nil {
		t.Fatalf("FindBinding: %v", err)
	}
	if binding.Role != model.RoleAdmin {
		t.Errorf("stored role = %q, want admin", binding.Role)
	}
}

func TestRebindAfterUnbind(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	user, _ := s.CreateUser(ctx, "a@x.com", "hash")
	tenant, _ := s.CreateTenant(ctx, "Acme")

	if _, err := s.Bind(ctx, tenant.ID, user.ID, model.RoleMember); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := s.Unbind(ctx, tenant.ID, user.ID); err != nil {
		t.Fatalf("Unbind: %v", err)
	}

	binding, err := s.Bind(ctx, tenant.ID, user.ID, model.RoleAdmin)
	if err != nil {
		t.Fatalf("re-Bind after Unbind = %v, want success", err)
	}
	if binding.Role != model.RoleAdmin || !binding.Active {
		t.Errorf("rebound binding = role %q active %v, want admin/active", binding.Role, binding.Active)
	}
}

func TestBindReferentialIntegrity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	user, _ := s.CreateUser(ctx, "a@x.com", "hash")
	tenant, _ := s.CreateTenant(ctx, "Acme")

	if _, err := s.Bind(ctx, 999, user.ID, model.RoleMember); !errors.Is(err, ErrNotFound) {
		t.Errorf("Bind with unknown tenant = %v, want ErrNotFound", err)
	}
	if _, err := s.Bind(ctx, tenant.ID, 999, model.RoleMember); !errors.Is(err, ErrNotFound) {
		t.Errorf("Bind with unknown user = %v, want ErrNotFound", err)
	}
}

func TestFindBindingMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.FindBinding(context.Background(), 1, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindBinding on empty store = %v, want ErrNotFound", err)
	}
}

func TestDeleteTenantCascadesBindingsOnly(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	user, _ := s.CreateUser(ctx, "a@x.com", "hash")
	tenant, _ := s.CreateTenant(ctx, "Acme")
	other, _ := s.CreateTenant(ctx, "Globex")
	if _, err := s.Bind(ctx, tenant.ID, user.ID, model.RoleOwner); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if _, err := s.Bind(ctx, other.ID, user.ID, model.RoleMember); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if err := s.DeleteTenant(ctx, tenant.ID); err != nil {
		t.Fatalf("DeleteTenant: %v", err)
	}

	if _, err := s.FindBinding(ctx, tenant.ID, user.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("binding survived tenant deletion: %v", err)
	}
	if _, err := s.UserByID(ctx, user.ID); err != nil {
		t.Errorf("user deleted with tenant: %v", err)
	}
	if _, err := s.FindBinding(ctx, other.ID, user.ID); err != nil {
		t.Errorf("unrelated binding deleted: %v", err)
	}
}

func TestRevokeOnceSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	const callers = 8
	var wg sync.WaitGroup
	wins := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := s.RevokeOnce(ctx, "jti-1", expires)
			if err != nil {
				t.Errorf("RevokeOnce: %v", err)
				return
			}
			wins[i] = created
		}(i)
	}
	wg.Wait()

	var winners int
	for _, won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("%d callers claimed the jti, want exactly 1", winners)
	}

	revoked, err := s.IsRevoked(ctx, "jti-1")
	if err != nil || !revoked {
		t.Errorf("IsRevoked = (%v, %v), want (true, nil)", revoked, err)
	}
}

func TestPurgeExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	s.RevokeOnce(ctx, "old", now.Add(-time.Minute))
	s.RevokeOnce(ctx, "live", now.Add(time.Hour))

	purged, err := s.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	if revoked, _ := s.IsRevoked(ctx, "live"); !revoked {
		t.Error("live revocation record purged, want kept")
	}
	if revoked, _ := s.IsRevoked(ctx, "old"); revoked {
		t.Error("expired revocation record kept, want purged")
	}
}

func TestCancelledContextSurfacesUnavailable(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.CreateUser(ctx, "a@x.com", "hash"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("CreateUser with cancelled context = %v, want ErrUnavailable", err)
	}
	if _, err := s.RevokeOnce(ctx, "jti", time.Now()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("RevokeOnce with cancelled context = %v, want ErrUnavailable", err)
	}
}
