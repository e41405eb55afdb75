package store

import (
	"context"
	"sync"
	"time"

	"tenantauth/internal/model"
)

// MemoryStore is an in-process IdentityStore and RevocationStore. It backs
// tests and local development and enforces the same invariants as the
// database-backed store: case-insensitive email uniqueness, upsert bindings,
// atomic revocation claims.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[uint]*model.User
	byEmail  map[string]uint
	tenants  map[uint]*model.Tenant
	bindings map[[2]uint]*model.UserTenant // key: {tenantID, userID}
	revoked  map[string]*model.RevokedToken
	nextID   uint
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[uint]*model.User),
		byEmail:  make(map[string]uint),
		tenants:  make(map[uint]*model.Tenant),
		bindings: make(map[[2]uint]*model.UserTenant),
		revoked:  make(map[string]*model.RevokedToken),
	}
}

func (s *MemoryStore) allocID() uint {
	s.nextID++
	return s.nextID
}

func ctxErr(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrUnavailable
	}
	return nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, email, passwordHash string) (*model.User, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(email)
	if _, exists := s.byEmail[key]; exists {
		return nil, ErrDuplicateEmail
	}
	now := time.Now()
	user := &model.User{
		ID:           s.allocID(),
		Email:        key,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[user.ID] = user
	s.byEmail[key] = user.ID
	copied := *user
	return &copied, nil
}

func (s *MemoryStore) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s.users[id]
	return &copied, nil
}

func (s *MemoryStore) UserByID(ctx context.Context, id uint) (*model.User, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *MemoryStore) UpdateUserEmail(ctx context.Context, id uint, email string) (*model.User, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	key := normalizeEmail(email)
	if other, exists := s.byEmail[key]; exists && other != id {
		return nil, ErrDuplicateEmail
	}
	delete(s.byEmail, user.Email)
	user.Email = key
	user.UpdatedAt = time.Now()
	s.byEmail[key] = id
	copied := *user
	return &copied, nil
}

func (s *MemoryStore) UpdateUserPassword(ctx context.Context, id uint, passwordHash string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetUserActive(ctx context.Context, id uint, active bool) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	user.IsActive = active
	user.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CreateTenant(ctx context.Context, name string) (*model.Tenant, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	tenant := &model.Tenant{
		ID:        s.allocID(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.tenants[tenant.ID] = tenant
	copied := *tenant
	return &copied, nil
}

func (s *MemoryStore) TenantByID(ctx context.Context, id uint) (*model.Tenant, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *tenant
	return &copied, nil
}

func (s *MemoryStore) DeleteTenant(ctx context.Context, id uint) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[id]; !ok {
		return ErrNotFound
	}
	delete(s.tenants, id)
	// Cascade to bindings only; users stay.
	for key := range s.bindings {
		if key[0] == id {
			delete(s.bindings, key)
		}
	}
	return nil
}

func (s *MemoryStore) Bind(ctx context.Context, tenantID, userID uint, role model.Role) (*model.UserTenant, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[tenantID]; !ok {
		return nil, ErrNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return nil, ErrNotFound
	}

	key := [2]uint{tenantID, userID}
	now := time.Now()
	if binding, ok := s.bindings[key]; ok {
		binding.Role = role
		binding.Active = true
		binding.UpdatedAt = now
		copied := *binding
		return &copied, nil
	}
	binding := &model.UserTenant{
		ID:        s.allocID(),
		UserID:    userID,
		TenantID:  tenantID,
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.bindings[key] = binding
	copied := *binding
	return &copied, nil
}

func (s *MemoryStore) Unbind(ctx context.Context, tenantID, userID uint) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]uint{tenantID, userID}
	if _, ok := s.bindings[key]; !ok {
		return ErrNotFound
	}
	delete(s.bindings, key)
	return nil
}

func (s *MemoryStore) FindBinding(ctx context.Context, tenantID, userID uint) (*model.UserTenant, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	binding, ok := s.bindings[[2]uint{tenantID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *binding
	return &copied, nil
}

func (s *MemoryStore) ListUserTenants(ctx context.Context, userID uint) ([]model.UserTenant, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var bindings []model.UserTenant
	for _, binding := range s.bindings {
		if binding.UserID != userID || !binding.Active {
			continue
		}
		copied := *binding
		if tenant, ok := s.tenants[binding.TenantID]; ok {
			copied.Tenant = *tenant
		}
		bindings = append(bindings, copied)
	}
	return bindings, nil
}

func (s *MemoryStore) RevokeOnce(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.revoked[jti]; ok {
		return false, nil
	}
	s.revoked[jti] = &model.RevokedToken{
		JTI:       jti,
		ExpiresAt: expiresAt,
		RevokedAt: time.Now(),
	}
	return true, nil
}

func (s *MemoryStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if err := ctxErr(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.revoked[jti]
	return ok, nil
}

func (s *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctxErr(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for jti, record := range s.revoked {
		if record.ExpiresAt.Before(now) {
			delete(s.revoked, jti)
			purged++
		}
	}
	return purged, nil
}
