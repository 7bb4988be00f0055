// Package fake provides an in-memory billing gateway for tests.
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/OnnaSoft/real-sync/internal/billingprovider/domain"
)

type Cancellation struct {
	SubscriptionID string
	At             time.Time
}

type PriceChange struct {
	SubscriptionID string
	PriceID        string
}

type Gateway struct {
	mu sync.Mutex

	Customers     map[string]*domain.Customer
	Subscriptions []domain.CreateSubscriptionInput
	PriceChanges  []PriceChange
	Cancellations []Cancellation
	Cancelled     []string
	Reports       []domain.UsageReport

	// Err, when set, is returned by every mutating call.
	Err error
	// Events maps a signature to the event ParseWebhook returns for it.
	Events map[string]*domain.WebhookEvent

	seq int
}

func New() *Gateway {
	return &Gateway{
		Customers: map[string]*domain.Customer{},
		Events:    map[string]*domain.WebhookEvent{},
	}
}

func (g *Gateway) CreateCustomer(_ context.Context, in domain.CreateCustomerInput) (*domain.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.seq++
	customer := &domain.Customer{ID: fmt.Sprintf("cus_%d", g.seq), Email: in.Email}
	g.Customers[customer.ID] = customer
	return customer, nil
}

func (g *Gateway) GetCustomer(_ context.Context, customerID string) (*domain.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	customer, ok := g.Customers[customerID]
	if !ok {
		return &domain.Customer{ID: customerID, Deleted: true}, nil
	}
	out := *customer
	return &out, nil
}

func (g *Gateway) CreateSubscription(_ context.Context, in domain.CreateSubscriptionInput) (*domain.Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.seq++
	g.Subscriptions = append(g.Subscriptions, in)
	out := &domain.Subscription{
		ID:      fmt.Sprintf("sub_%d", g.seq),
		Status:  "incomplete",
		PriceID: in.PriceID,
	}
	if in.MeteredPriceID != "" {
		out.MeteredItemID = fmt.Sprintf("si_%d", g.seq)
	}
	return out, nil
}

func (g *Gateway) ChangeSubscriptionPrice(_ context.Context, subscriptionID, priceID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.PriceChanges = append(g.PriceChanges, PriceChange{SubscriptionID: subscriptionID, PriceID: priceID})
	return nil
}

func (g *Gateway) ScheduleCancellation(_ context.Context, subscriptionID string, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.Cancellations = append(g.Cancellations, Cancellation{SubscriptionID: subscriptionID, At: at})
	return nil
}

func (g *Gateway) CancelSubscription(_ context.Context, subscriptionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.Cancelled = append(g.Cancelled, subscriptionID)
	return nil
}

func (g *Gateway) ReportUsage(_ context.Context, report domain.UsageReport) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.Reports = append(g.Reports, report)
	return nil
}

// ParseWebhook accepts only signatures registered in Events.
func (g *Gateway) ParseWebhook(payload []byte, signature string) (*domain.WebhookEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	event, ok := g.Events[signature]
	if !ok {
		return nil, domain.ErrInvalidSignature
	}
	out := *event
	out.Payload = payload
	return &out, nil
}

// AddEvent registers an event for signature with object as its data.
func (g *Gateway) AddEvent(signature, id, eventType string, object any) {
	raw, err := json.Marshal(object)
	if err != nil {
		panic(err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Events[signature] = &domain.WebhookEvent{
		ID:      id,
		Type:    eventType,
		Created: time.Now().UTC(),
		Data:    raw,
	}
}

// ReportedUnits sums the quantity of every usage report.
func (g *Gateway) ReportedUnits() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	var total int64
	for _, r := range g.Reports {
		total += r.Quantity
	}
	return total
}

var _ domain.Gateway = (*Gateway)(nil)
