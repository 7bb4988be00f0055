package stripe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/OnnaSoft/real-sync/internal/billingprovider/domain"
	"github.com/OnnaSoft/real-sync/internal/config"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	meterPayloadCustomer = "stripe_customer_id"
	meterPayloadValue    = "value"
)

// Gateway implements domain.Gateway on the Stripe v1 API.
type Gateway struct {
	client        *stripe.Client
	webhookSecret string
	meterEvent    string
	log           *zap.Logger
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

func NewGateway(p Params) domain.Gateway {
	return New(p.Config.Stripe, p.Log)
}

func New(cfg config.StripeConfig, log *zap.Logger) *Gateway {
	var client *stripe.Client
	if key := strings.TrimSpace(cfg.SecretKey); key != "" {
		client = stripe.NewClient(key, nil)
	}
	meterEvent := strings.TrimSpace(cfg.MeterEvent)
	if meterEvent == "" {
		meterEvent = "tunnel_data_usage"
	}
	return &Gateway{
		client:        client,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		meterEvent:    meterEvent,
		log:           log.Named("billingprovider.stripe"),
	}
}

func (g *Gateway) CreateCustomer(ctx context.Context, in domain.CreateCustomerInput) (*domain.Customer, error) {
	if g.client == nil {
		return nil, domain.ErrNotConfigured
	}
	params := &stripe.CustomerCreateParams{
		Email: stripe.String(in.Email),
		Metadata: map[string]string{
			"realsync_user_id": in.UserID,
		},
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		params.Name = stripe.String(name)
	}
	params.SetIdempotencyKey("customer-" + in.UserID)

	customer, err := g.client.V1Customers.Create(ctx, params)
	if err != nil {
		return nil, wrap("create customer", err)
	}
	return &domain.Customer{ID: customer.ID, Email: customer.Email, Deleted: customer.Deleted}, nil
}

func (g *Gateway) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	if g.client == nil {
		return nil, domain.ErrNotConfigured
	}
	customer, err := g.client.V1Customers.Retrieve(ctx, customerID, nil)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return &domain.Customer{ID: customerID, Deleted: true}, nil
		}
		return nil, wrap("retrieve customer", err)
	}
	return &domain.Customer{ID: customer.ID, Email: customer.Email, Deleted: customer.Deleted}, nil
}

func (g *Gateway) CreateSubscription(ctx context.Context, in domain.CreateSubscriptionInput) (*domain.Subscription, error) {
	if g.client == nil {
		return nil, domain.ErrNotConfigured
	}
	items := []*stripe.SubscriptionCreateItemParams{
		{Price: stripe.String(in.PriceID)},
	}
	if in.MeteredPriceID != "" {
		items = append(items, &stripe.SubscriptionCreateItemParams{Price: stripe.String(in.MeteredPriceID)})
	}
	params := &stripe.SubscriptionCreateParams{
		Customer:        stripe.String(in.CustomerID),
		Items:           items,
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	sub, err := g.client.V1Subscriptions.Create(ctx, params)
	if err != nil {
		return nil, wrap("create subscription", err)
	}

	out := &domain.Subscription{
		ID:      sub.ID,
		Status:  string(sub.Status),
		PriceID: in.PriceID,
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil || item.Price == nil {
				continue
			}
			if in.MeteredPriceID != "" && item.Price.ID == in.MeteredPriceID {
				out.MeteredItemID = item.ID
			}
		}
	}
	g.log.Info("stripe subscription created",
		zap.String("subscription_id", sub.ID),
		zap.String("status", out.Status),
	)
	return out, nil
}

// ChangeSubscriptionPrice swaps the flat (non-metered) item to priceID.
func (g *Gateway) ChangeSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) error {
	if g.client == nil {
		return domain.ErrNotConfigured
	}
	sub, err := g.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return wrap("retrieve subscription", err)
	}

	var flatItemID string
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil || item.Price == nil {
				continue
			}
			if item.Price.Recurring != nil && item.Price.Recurring.UsageType == stripe.PriceRecurringUsageTypeMetered {
				continue
			}
			flatItemID = item.ID
			break
		}
	}
	if flatItemID == "" {
		return fmt.Errorf("%w: subscription %s has no flat price item", domain.ErrProviderFailure, subscriptionID)
	}

	params := &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{
			{ID: stripe.String(flatItemID), Price: stripe.String(priceID)},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	if _, err := g.client.V1Subscriptions.Update(ctx, subscriptionID, params); err != nil {
		return wrap("update subscription price", err)
	}
	return nil
}

func (g *Gateway) ScheduleCancellation(ctx context.Context, subscriptionID string, at time.Time) error {
	if g.client == nil {
		return domain.ErrNotConfigured
	}
	params := &stripe.SubscriptionUpdateParams{
		CancelAt:          stripe.Int64(at.Unix()),
		ProrationBehavior: stripe.String("none"),
	}
	if _, err := g.client.V1Subscriptions.Update(ctx, subscriptionID, params); err != nil {
		return wrap("schedule cancellation", err)
	}
	return nil
}

func (g *Gateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if g.client == nil {
		return domain.ErrNotConfigured
	}
	if _, err := g.client.V1Subscriptions.Cancel(ctx, subscriptionID, &stripe.SubscriptionCancelParams{}); err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil
		}
		return wrap("cancel subscription", err)
	}
	return nil
}

// ReportUsage sends a billing meter event. The identifier dedupes retries on Stripe's side.
func (g *Gateway) ReportUsage(ctx context.Context, report domain.UsageReport) error {
	if g.client == nil {
		return domain.ErrNotConfigured
	}
	params := &stripe.BillingMeterEventCreateParams{
		EventName: stripe.String(g.meterEvent),
		Payload: map[string]string{
			meterPayloadCustomer: report.CustomerID,
			meterPayloadValue:    strconv.FormatInt(report.Quantity, 10),
		},
		Timestamp: stripe.Int64(report.Timestamp.Unix()),
	}
	if report.Identifier != "" {
		params.Identifier = stripe.String(report.Identifier)
	}

	if _, err := g.client.V1BillingMeterEvents.Create(ctx, params); err != nil {
		return wrap("report usage", err)
	}
	g.log.Debug("usage reported",
		zap.String("subscription_item_id", report.SubscriptionItemID),
		zap.Int64("quantity", report.Quantity),
		zap.String("identifier", report.Identifier),
	)
	return nil
}

func (g *Gateway) ParseWebhook(payload []byte, signature string) (*domain.WebhookEvent, error) {
	if g.webhookSecret == "" {
		return nil, domain.ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		g.log.Warn("stripe webhook verification failed", zap.Error(err))
		return nil, domain.ErrInvalidSignature
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidSignature
	}

	out := &domain.WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
		Payload: payload,
	}
	if event.Data != nil {
		out.Data = event.Data.Raw
	}
	return out, nil
}

func wrap(op string, err error) error {
	return fmt.Errorf("%w: stripe %s: %v", domain.ErrProviderFailure, op, err)
}

var _ domain.Gateway = (*Gateway)(nil)
