package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tenantauth/internal/model"
)

// GormStore implements IdentityStore and RevocationStore on a gorm-managed
// PostgreSQL database. Uniqueness and revocation races are settled by the
// database constraints, not by application-level checks.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store backed by the given database handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// normalizeEmail lowercases emails so uniqueness is case-insensitive.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// translate maps driver and gorm errors onto the store error taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateEmail
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrUnavailable
	default:
		return err
	}
}

func (s *GormStore) CreateUser(ctx context.Context, email, passwordHash string) (*model.User, error) {
	user := model.User{
		Email:        normalizeEmail(email),
		PasswordHash: passwordHash,
		IsActive:     true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) UserByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) UpdateUserEmail(ctx context.Context, id uint, email string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	user.Email = normalizeEmail(email)
	if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) UpdateUserPassword(ctx context.Context, id uint, passwordHash string) error {
	result := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Update("password_hash", passwordHash)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SetUserActive(ctx context.Context, id uint, active bool) error {
	result := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) CreateTenant(ctx context.Context, name string) (*model.Tenant, error) {
	tenant := model.Tenant{Name: name}
	if err := s.db.WithContext(ctx).Create(&tenant).Error; err != nil {
		return nil, translate(err)
	}
	return &tenant, nil
}

func (s *GormStore) TenantByID(ctx context.Context, id uint) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := s.db.WithContext(ctx).First(&tenant, id).Error; err != nil {
		return nil, translate(err)
	}
	return &tenant, nil
}

// DeleteTenant removes the tenant and its bindings in one transaction.
// Users referenced by the bindings are never touched.
func (s *GormStore) DeleteTenant(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tenant model.Tenant
		if err := tx.First(&tenant, id).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("tenant_id = ?", id).Delete(&model.UserTenant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&tenant).Error
	})
	return translate(err)
}

func (s *GormStore) Bind(ctx context.Context, tenantID, userID uint, role model.Role) (*model.UserTenant, error) {
	db := s.db.WithContext(ctx)

	// Referential integrity: a binding must never point at a missing row.
	if err := db.First(&model.Tenant{}, tenantID).Error; err != nil {
		return nil, translate(err)
	}
	if err := db.First(&model.User{}, userID).Error; err != nil {
		return nil, translate(err)
	}

	binding := model.UserTenant{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		Active:   true,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"role":       role,
			"active":     true,
			"updated_at": time.Now(),
		}),
	}).Create(&binding).Error
	if err != nil {
		return nil, translate(err)
	}

	return s.FindBinding(ctx, tenantID, userID)
}

// Unbind deletes the binding outright. A soft delete would leave the row in
// the idx_tenant_user unique index and make the pair unbindable: the upsert
// in Bind would keep updating the dead row.
func (s *GormStore) Unbind(ctx context.Context, tenantID, userID uint) error {
	result := s.db.WithContext(ctx).Unscoped().
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Delete(&model.UserTenant{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) FindBinding(ctx context.Context, tenantID, userID uint) (*model.UserTenant, error) {
	var binding model.UserTenant
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		First(&binding).Error
	if err != nil {
		return nil, translate(err)
	}
	return &binding, nil
}

func (s *GormStore) ListUserTenants(ctx context.Context, userID uint) ([]model.UserTenant, error) {
	var bindings []model.UserTenant
	err := s.db.WithContext(ctx).Preload("Tenant").
		Where("user_id = ? AND active = ?", userID, true).
		Find(&bindings).Error
	if err != nil {
		return nil, translate(err)
	}
	return bindings, nil
}

// RevokeOnce claims the jti. The primary-key constraint makes the
// check-and-insert atomic: of two concurrent callers exactly one creates the
// row and gets true.
func (s *GormStore) RevokeOnce(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	record := model.RevokedToken{
		JTI:       jti,
		ExpiresAt: expiresAt,
		RevokedAt: time.Now(),
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record)
	if result.Error != nil {
		return false, translate(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *GormStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.RevokedToken{}).
		Where("jti = ?", jti).Count(&count).Error
	if err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

func (s *GormStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&model.RevokedToken{})
	if result.Error != nil {
		return 0, translate(result.Error)
	}
	return result.RowsAffected, nil
}
