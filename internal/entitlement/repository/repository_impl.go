package repository

import (
	"context"

	"github.com/smallbiznis/entitle/internal/entitlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindProcessedEvent(ctx context.Context, db *gorm.DB, eventID string) (*domain.ProcessedEvent, error) {
	var event domain.ProcessedEvent
	err := db.WithContext(ctx).Raw(
		`SELECT stripe_event_id, event_type, payload, received_at
		 FROM stripe_events WHERE stripe_event_id = ?`,
		eventID,
	).Scan(&event).Error
	if err != nil {
		return nil, err
	}
	if event.StripeEventID == "" {
		return nil, nil
	}
	return &event, nil
}

func (r *repo) InsertProcessedEvent(ctx context.Context, db *gorm.DB, event *domain.ProcessedEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO stripe_events (stripe_event_id, event_type, payload, received_at)
		 VALUES (?, ?, ?, ?)`,
		event.StripeEventID,
		event.EventType,
		event.Payload,
		event.ReceivedAt,
	).Error
}
