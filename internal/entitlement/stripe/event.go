// Package stripe decodes Stripe webhook envelopes into the canonical event
// variants the entitlement service acts on. Decoding is deliberately
// tolerant: only a missing top-level event id is fatal here, missing nested
// fields are left for the transition rules to interpret.
package stripe

import (
	"encoding/json"
	"strings"

	"github.com/smallbiznis/entitle/internal/entitlement/domain"
)

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeSubscription struct {
	Customer         string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd *int64 `json:"current_period_end"`
}

type stripeInvoice struct {
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

// stripeObject is the minimal shape decoded for irrelevant event types, so
// the customer reference survives even when the payload is not acted on.
type stripeObject struct {
	Customer string `json:"customer"`
}

// Parse decodes a raw webhook payload into a canonical event.
func Parse(payload []byte) (*domain.Event, error) {
	var envelope stripeEvent
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(envelope.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	event := &domain.Event{
		ID:      strings.TrimSpace(envelope.ID),
		Type:    strings.TrimSpace(envelope.Type),
		Created: envelope.Created,
		Payload: payload,
	}

	switch event.Type {
	case domain.EventSubscriptionCreated,
		domain.EventSubscriptionUpdated,
		domain.EventSubscriptionDeleted:
		var subscription stripeSubscription
		if err := decodeObject(envelope.Data.Object, &subscription); err != nil {
			return nil, err
		}
		event.Customer = strings.TrimSpace(subscription.Customer)
		event.Subscription = &domain.SubscriptionData{
			Status:           strings.TrimSpace(subscription.Status),
			CurrentPeriodEnd: subscription.CurrentPeriodEnd,
		}
	case domain.EventInvoicePaid,
		domain.EventInvoicePaymentFailed:
		var invoice stripeInvoice
		if err := decodeObject(envelope.Data.Object, &invoice); err != nil {
			return nil, err
		}
		event.Customer = strings.TrimSpace(invoice.Customer)
		event.Invoice = &domain.InvoiceData{
			Subscription: strings.TrimSpace(invoice.Subscription),
		}
	default:
		var object stripeObject
		if err := decodeObject(envelope.Data.Object, &object); err != nil {
			return nil, err
		}
		event.Customer = strings.TrimSpace(object.Customer)
	}

	return event, nil
}

// decodeObject unmarshals data.object when present. An absent or null object
// is not an error: the fields stay zero and the transition rules decide.
func decodeObject(raw json.RawMessage, out any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.ErrInvalidPayload
	}
	return nil
}
