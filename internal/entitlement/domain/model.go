package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Stripe event types this service reacts to. Anything else is acknowledged
// without touching entitlement state.
const (
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventInvoicePaid          = "invoice.paid"
)

// Subscription statuses carried by subscription events.
const (
	StatusActive            = "active"
	StatusTrialing          = "trialing"
	StatusPastDue           = "past_due"
	StatusCanceled          = "canceled"
	StatusUnpaid            = "unpaid"
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
)

// Event is the canonical decoded webhook event. Exactly one of Subscription
// or Invoice is set for relevant types; both are nil for irrelevant ones.
type Event struct {
	ID       string
	Type     string
	Created  int64
	Customer string

	// Payload is the raw envelope as received, kept for the dedup ledger.
	Payload []byte

	Subscription *SubscriptionData
	Invoice      *InvoiceData
}

// SubscriptionData carries the subscription fields the transition rules need.
// Missing nested fields are tolerated: an absent status falls into the
// revocation branch, an absent period end falls back to a fixed window.
type SubscriptionData struct {
	Status           string
	CurrentPeriodEnd *int64
}

// InvoiceData carries the invoice fields the transition rules need.
type InvoiceData struct {
	Subscription string
}

// Relevant reports whether the event type affects entitlement state.
func (e *Event) Relevant() bool {
	switch e.Type {
	case EventSubscriptionCreated,
		EventSubscriptionUpdated,
		EventSubscriptionDeleted,
		EventInvoicePaymentFailed,
		EventInvoicePaid:
		return true
	default:
		return false
	}
}

// ProcessedEvent is the deduplication marker. Existence of a row for an
// event id is the sole idempotency signal; the raw payload is kept for
// audit and replay inspection.
type ProcessedEvent struct {
	StripeEventID string         `gorm:"primaryKey" json:"stripe_event_id"`
	EventType     string         `gorm:"not null" json:"event_type"`
	Payload       datatypes.JSON `json:"payload"`
	ReceivedAt    time.Time      `gorm:"not null" json:"received_at"`
}

func (ProcessedEvent) TableName() string { return "stripe_events" }

type ResultStatus string

const (
	ResultProcessed        ResultStatus = "processed"
	ResultAlreadyProcessed ResultStatus = "already_processed"
	ResultIgnored          ResultStatus = "ignored"
)

// Result describes the outcome of processing one webhook event. UserID is
// set only when Status is ResultProcessed.
type Result struct {
	Status ResultStatus
	UserID snowflake.ID
}

// AccessStatus is the read-side access decision for one user.
type AccessStatus struct {
	UserID      snowflake.ID `json:"user_id"`
	AccessUntil *time.Time   `json:"access_until"`
	HasAccess   bool         `json:"has_access"`
}

var (
	ErrInvalidPayload  = errors.New("invalid_payload")
	ErrInvalidEvent    = errors.New("invalid_event")
	ErrMissingCustomer = errors.New("missing_customer")
)
