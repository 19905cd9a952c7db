package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a storefront shopper registered through the identity provider.
type User struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	IdentityID  string     `gorm:"column:identity_id;not null;uniqueIndex"`
	Email       string     `gorm:"type:text;not null;uniqueIndex"`
	Name        string     `gorm:"column:name;not null"`
	Phone       *string    `gorm:"column:phone"`
	IsActive    bool       `gorm:"column:is_active;not null;default:true"`
	LastLoginAt *time.Time `gorm:"column:last_login_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
