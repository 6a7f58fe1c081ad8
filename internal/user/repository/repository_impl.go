package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitle/internal/user/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (id, stripe_customer_id, access_until, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID,
		user.StripeCustomerID,
		user.AccessUntil,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, stripe_customer_id, access_until, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindByCustomerRef(ctx context.Context, db *gorm.DB, customerRef string) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, stripe_customer_id, access_until, created_at, updated_at
		 FROM users WHERE stripe_customer_id = ?`,
		customerRef,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) UpdateAccessUntil(ctx context.Context, db *gorm.DB, id snowflake.ID, accessUntil *time.Time, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET access_until = ?, updated_at = ? WHERE id = ?`,
		accessUntil,
		updatedAt,
		id,
	).Error
}
