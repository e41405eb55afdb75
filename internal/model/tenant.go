package model

import (
	"time"

	"gorm.io/gorm"
)

// Tenant represents an isolated customer workspace. Tenant names are not
// unique; identity is the numeric ID. Deleting a tenant removes its bindings
// but never the users behind them.
type Tenant struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null;index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
