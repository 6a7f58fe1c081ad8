package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository methods take an explicit gorm handle so callers can pass a
// transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindByCustomerRef(ctx context.Context, db *gorm.DB, customerRef string) (*User, error)
	UpdateAccessUntil(ctx context.Context, db *gorm.DB, id snowflake.ID, accessUntil *time.Time, updatedAt time.Time) error
}
