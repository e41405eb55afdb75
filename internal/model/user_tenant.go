package model

import (
	"time"

	"gorm.io/gorm"
)

// UserTenant is the (tenant, user) -> role binding, the unit of authorization.
// At most one binding exists per pair; assigning a new role overwrites the
// existing row instead of adding another.
type UserTenant struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	UserID    uint           `json:"user_id" gorm:"not null;uniqueIndex:idx_tenant_user"`
	TenantID  uint           `json:"tenant_id" gorm:"not null;uniqueIndex:idx_tenant_user"`
	Role      Role           `json:"role" gorm:"type:varchar(50);not null;default:'member'"`
	Active    bool           `json:"active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	User   User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Tenant Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}
