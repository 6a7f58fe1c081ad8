package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindProcessedEvent(ctx context.Context, db *gorm.DB, eventID string) (*ProcessedEvent, error)
	InsertProcessedEvent(ctx context.Context, db *gorm.DB, event *ProcessedEvent) error
}
