package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type EventKind string

const (
	KindSubscriptionCreated     EventKind = "customer.subscription.created"
	KindSubscriptionUpdated     EventKind = "customer.subscription.updated"
	KindSubscriptionDeleted     EventKind = "customer.subscription.deleted"
	KindInvoicePaymentSucceeded EventKind = "invoice.payment_succeeded"
)

// Kinds lists every event kind the reconciler handles.
func Kinds() []EventKind {
	return []EventKind{
		KindSubscriptionCreated,
		KindSubscriptionUpdated,
		KindSubscriptionDeleted,
		KindInvoicePaymentSucceeded,
	}
}

// Event is a decoded webhook event. The concrete types are
// SubscriptionEvent and InvoiceEvent.
type Event interface {
	Kind() EventKind
	isEvent()
}

// Ref is a Stripe expandable field: either a bare id or an object with an id.
type Ref struct {
	ID      string
	Deleted bool
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	var obj struct {
		ID      string `json:"id"`
		Deleted bool   `json:"deleted"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.ID = obj.ID
	r.Deleted = obj.Deleted
	return nil
}

// SubscriptionObject carries the subscription fields the reconciler reads.
type SubscriptionObject struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Customer   Ref    `json:"customer"`
	CancelAt   int64  `json:"cancel_at"`
	CanceledAt int64  `json:"canceled_at"`
}

// CancelAtTime returns cancel_at as a UTC time, if set.
func (o SubscriptionObject) CancelAtTime() (time.Time, bool) {
	return unixTime(o.CancelAt)
}

func (o SubscriptionObject) CanceledAtTime() (time.Time, bool) {
	return unixTime(o.CanceledAt)
}

type SubscriptionEvent struct {
	kind         EventKind
	Subscription SubscriptionObject
}

func (e *SubscriptionEvent) Kind() EventKind { return e.kind }
func (*SubscriptionEvent) isEvent() {}

type InvoiceLine struct {
	Price *struct {
		ID string `json:"id"`
	} `json:"price"`
	Pricing *struct {
		PriceDetails *struct {
			Price string `json:"price"`
		} `json:"price_details"`
	} `json:"pricing"`
}

func (l InvoiceLine) PriceID() string {
	if l.Price != nil && l.Price.ID != "" {
		return l.Price.ID
	}
	if l.Pricing != nil && l.Pricing.PriceDetails != nil {
		return l.Pricing.PriceDetails.Price
	}
	return ""
}

// InvoiceObject carries the invoice fields the reconciler reads. Newer API
// versions move the subscription under parent.subscription_details.
type InvoiceObject struct {
	ID           string `json:"id"`
	Customer     Ref    `json:"customer"`
	Subscription Ref    `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription Ref `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []InvoiceLine `json:"data"`
	} `json:"lines"`
}

func (o InvoiceObject) SubscriptionID() string {
	if o.Subscription.ID != "" {
		return o.Subscription.ID
	}
	if o.Parent != nil && o.Parent.SubscriptionDetails != nil {
		return o.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}

// PriceIDs returns the distinct price ids on the invoice lines, in order.
func (o InvoiceObject) PriceIDs() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(o.Lines.Data))
	for _, line := range o.Lines.Data {
		id := line.PriceID()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type InvoiceEvent struct {
	Invoice InvoiceObject
}

func (*InvoiceEvent) Kind() EventKind { return KindInvoicePaymentSucceeded }
func (*InvoiceEvent) isEvent() {}

// Decode turns the event object into its typed form. Unhandled kinds
// return ErrUnknownEventKind.
func Decode(eventType string, data []byte) (Event, error) {
	kind := EventKind(strings.TrimSpace(eventType))
	switch kind {
	case KindSubscriptionCreated, KindSubscriptionUpdated, KindSubscriptionDeleted:
		var obj SubscriptionObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if strings.TrimSpace(obj.ID) == "" {
			return nil, fmt.Errorf("%w: subscription id is empty", ErrInvalidPayload)
		}
		return &SubscriptionEvent{kind: kind, Subscription: obj}, nil
	case KindInvoicePaymentSucceeded:
		var obj InvoiceObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return &InvoiceEvent{Invoice: obj}, nil
	default:
		return nil, ErrUnknownEventKind
	}
}

func unixTime(sec int64) (time.Time, bool) {
	if sec <= 0 {
		return time.Time{}, false
	}
	return time.Unix(sec, 0).UTC(), true
}
