package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitle/internal/clock"
	"github.com/smallbiznis/entitle/internal/entitlement/domain"
	obsmetrics "github.com/smallbiznis/entitle/internal/observability/metrics"
	userdomain "github.com/smallbiznis/entitle/internal/user/domain"
	"github.com/smallbiznis/entitle/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// fallbackWindow approximates a billing period when the provider does not
// supply a period end (and for paid invoices, where the subscription is not
// fetched back from the provider).
const fallbackWindow = 30 * 24 * time.Hour

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Users      userdomain.Repository
	Events     domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	users      userdomain.Repository
	events     domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("entitlement.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		users:      p.Users,
		events:     p.Events,
		obsMetrics: p.ObsMetrics,
	}
}

// ProcessEvent applies one webhook event to entitlement state. The dedup
// check, the dedup insert, and the user mutation run in a single
// transaction: either all of them persist or none do, so a redelivered
// event can never re-apply its transition and a failed event stays
// retryable.
func (s *Service) ProcessEvent(ctx context.Context, event *domain.Event) (domain.Result, error) {
	if event == nil || strings.TrimSpace(event.ID) == "" {
		return domain.Result{}, domain.ErrInvalidEvent
	}

	var result domain.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.events.FindProcessedEvent(ctx, tx, event.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = domain.Result{Status: domain.ResultAlreadyProcessed}
			return nil
		}

		marker := &domain.ProcessedEvent{
			StripeEventID: event.ID,
			EventType:     event.Type,
			Payload:       datatypes.JSON(event.Payload),
			ReceivedAt:    s.clock.Now(),
		}

		if !event.Relevant() {
			// Acknowledged without side effects: mark processed, never
			// create a user.
			if err := s.events.InsertProcessedEvent(ctx, tx, marker); err != nil {
				return err
			}
			result = domain.Result{Status: domain.ResultIgnored}
			return nil
		}

		customer := strings.TrimSpace(event.Customer)
		if customer == "" {
			// Rolls back the transaction, so the event is not marked
			// processed and the sender can retry with corrected data.
			return domain.ErrMissingCustomer
		}

		user, err := s.resolveUser(ctx, tx, customer)
		if err != nil {
			return err
		}

		if deadline, changed := s.applyTransition(event, user.AccessUntil); changed {
			if err := s.users.UpdateAccessUntil(ctx, tx, user.ID, deadline, s.clock.Now()); err != nil {
				return err
			}
		}

		if err := s.events.InsertProcessedEvent(ctx, tx, marker); err != nil {
			return err
		}

		result = domain.Result{Status: domain.ResultProcessed, UserID: user.ID}
		return nil
	})
	if err != nil {
		// A unique violation escaping the transaction can come from the
		// marker's primary key (the same event id racing itself) or from
		// the customer index (two distinct events racing get-or-create
		// for a new customer). Only the first means the event was applied
		// elsewhere, so re-check the ledger before acknowledging: the
		// customer-race loser rolled back without a marker and must get
		// an error so the sender redelivers.
		if db.IsDuplicateKeyErr(err) {
			existing, findErr := s.events.FindProcessedEvent(ctx, s.db, event.ID)
			if findErr != nil {
				return domain.Result{}, findErr
			}
			if existing != nil {
				s.log.Debug("concurrent duplicate event", zap.String("event_id", event.ID))
				return domain.Result{Status: domain.ResultAlreadyProcessed}, nil
			}
		}
		return domain.Result{}, err
	}

	s.obsMetrics.RecordStripeEvent(ctx, event.Type, string(result.Status))
	return result, nil
}

// GetAccess evaluates the stored deadline against the current instant.
// The deadline is an exclusive upper bound: a deadline equal to now means
// no access.
func (s *Service) GetAccess(ctx context.Context, userID snowflake.ID) (domain.AccessStatus, error) {
	user, err := s.users.FindByID(ctx, s.db, userID)
	if err != nil {
		return domain.AccessStatus{}, err
	}
	if user == nil {
		return domain.AccessStatus{}, userdomain.ErrNotFound
	}

	status := domain.AccessStatus{UserID: user.ID}
	if user.AccessUntil != nil {
		// Drivers can hand back instants without explicit zone info;
		// normalize to UTC before comparing.
		until := user.AccessUntil.UTC()
		status.AccessUntil = &until
		status.HasAccess = until.After(s.clock.Now())
	}

	s.obsMetrics.RecordAccessCheck(ctx, status.HasAccess)
	return status, nil
}

func (s *Service) resolveUser(ctx context.Context, tx *gorm.DB, customer string) (*userdomain.User, error) {
	user, err := s.users.FindByCustomerRef(ctx, tx, customer)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	now := s.clock.Now()
	user = &userdomain.User{
		ID:               s.genID.Generate(),
		StripeCustomerID: customer,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.users.Insert(ctx, tx, user); err != nil {
		return nil, err
	}
	s.log.Info("user created",
		zap.Int64("user_id", int64(user.ID)),
		zap.String("customer", customer),
	)
	return user, nil
}

// applyTransition computes the new entitlement deadline for an event. The
// second return reports whether the deadline changed at all.
func (s *Service) applyTransition(event *domain.Event, current *time.Time) (*time.Time, bool) {
	now := s.clock.Now()

	switch event.Type {
	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated:
		var status string
		var periodEnd *int64
		if event.Subscription != nil {
			status = event.Subscription.Status
			periodEnd = event.Subscription.CurrentPeriodEnd
		}
		switch status {
		case domain.StatusActive, domain.StatusTrialing:
			if periodEnd != nil {
				deadline := time.Unix(*periodEnd, 0).UTC()
				return &deadline, true
			}
			// Unexpected but tolerated: the provider should always send
			// a period end for an active subscription.
			deadline := now.Add(fallbackWindow)
			return &deadline, true
		case domain.StatusPastDue:
			// Keep existing access until the end of the current period.
			return current, false
		default:
			// canceled, unpaid, incomplete, incomplete_expired, or a
			// status this service does not recognize.
			return &now, true
		}
	case domain.EventSubscriptionDeleted:
		return &now, true
	case domain.EventInvoicePaymentFailed:
		return &now, true
	case domain.EventInvoicePaid:
		if event.Invoice != nil && strings.TrimSpace(event.Invoice.Subscription) != "" {
			// The subscription is not fetched back from the provider, so
			// grant a fixed window instead of the real period end.
			deadline := now.Add(fallbackWindow)
			return &deadline, true
		}
		return current, false
	}

	return current, false
}
