package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is one payment-provider customer known to this system. AccessUntil is
// the entitlement deadline: access is valid strictly before it, and a nil
// value means access was never granted.
type User struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	StripeCustomerID string       `gorm:"not null;uniqueIndex" json:"stripe_customer_id"`
	AccessUntil      *time.Time   `json:"access_until,omitempty"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (User) TableName() string { return "users" }

var ErrNotFound = errors.New("user_not_found")
