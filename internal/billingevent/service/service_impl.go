package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OnnaSoft/real-sync/internal/billingevent/domain"
	billingdomain "github.com/OnnaSoft/real-sync/internal/billingprovider/domain"
	"github.com/OnnaSoft/real-sync/internal/clock"
	"github.com/OnnaSoft/real-sync/internal/config"
	"github.com/OnnaSoft/real-sync/internal/observability/logger"
	"github.com/OnnaSoft/real-sync/internal/observability/metrics"
	subscriptiondomain "github.com/OnnaSoft/real-sync/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errReplay aborts the transaction when another delivery recorded the event first.
var errReplay = errors.New("billing event already recorded")

type handlerFunc func(ctx context.Context, tx *gorm.DB, event domain.Event) error

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	subRepo  subscriptiondomain.Repository
	gateway  billingdomain.Gateway
	plans    *config.PlanCatalogHolder
	metrics  *metrics.Metrics
	handlers map[domain.EventKind]handlerFunc
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	SubRepo subscriptiondomain.Repository
	Gateway billingdomain.Gateway
	Plans   *config.PlanCatalogHolder
	Metrics *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) (domain.Service, error) {
	svc := &Service{
		db:  p.DB,
		log: p.Log.Named("billingevent.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		subRepo: p.SubRepo,
		gateway: p.Gateway,
		plans:   p.Plans,
		metrics: p.Metrics,
	}
	svc.handlers = map[domain.EventKind]handlerFunc{
		domain.KindSubscriptionCreated:     svc.onSubscriptionCreated,
		domain.KindSubscriptionUpdated:     svc.onSubscriptionUpdated,
		domain.KindSubscriptionDeleted:     svc.onSubscriptionDeleted,
		domain.KindInvoicePaymentSucceeded: svc.onInvoicePaymentSucceeded,
	}
	for _, kind := range domain.Kinds() {
		if _, ok := svc.handlers[kind]; !ok {
			return nil, fmt.Errorf("no handler registered for %s", kind)
		}
	}
	return svc, nil
}

// HandleWebhook verifies, deduplicates and applies one webhook delivery.
// The event row and the subscription change commit together, so a failed
// handler leaves the event unrecorded and the provider's retry reprocesses it.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*domain.Result, error) {
	raw, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, "unknown", string(domain.OutcomeFailed))
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, domain.ErrMissingEventID
	}

	log := logger.WithContext(ctx, s.log).With(
		zap.String("event_id", raw.ID),
		zap.String("event_type", raw.Type),
	)
	result := &domain.Result{EventID: raw.ID, EventType: raw.Type}

	event, err := domain.Decode(raw.Type, raw.Data)
	if errors.Is(err, domain.ErrUnknownEventKind) {
		log.Info("ignoring unhandled webhook event")
		result.Outcome = domain.OutcomeIgnored
		s.metrics.RecordWebhookEvent(ctx, raw.Type, string(result.Outcome))
		return result, nil
	}
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, raw.Type, string(domain.OutcomeFailed))
		return nil, err
	}

	existing, err := s.repo.FindEvent(ctx, s.db, domain.ProviderStripe, raw.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Info("webhook event already processed")
		result.Outcome = domain.OutcomeReplayed
		s.metrics.RecordWebhookEvent(ctx, raw.Type, string(result.Outcome))
		return result, nil
	}

	handler := s.handlers[event.Kind()]
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertEvent(ctx, tx, &domain.BillingEvent{
			ID:              s.genID.Generate(),
			Provider:        domain.ProviderStripe,
			ProviderEventID: raw.ID,
			EventType:       raw.Type,
			Payload:         datatypes.JSON(payloadOrData(raw)),
			ReceivedAt:      s.clock.Now(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			return errReplay
		}
		return handler(ctx, tx, event)
	})
	switch {
	case errors.Is(err, errReplay):
		log.Info("webhook event recorded concurrently")
		result.Outcome = domain.OutcomeReplayed
	case err != nil:
		log.Warn("webhook event failed", zap.Error(err))
		s.metrics.RecordWebhookEvent(ctx, raw.Type, string(domain.OutcomeFailed))
		return nil, err
	default:
		result.Outcome = domain.OutcomeProcessed
	}

	s.metrics.RecordWebhookEvent(ctx, raw.Type, string(result.Outcome))
	return result, nil
}

func (s *Service) onSubscriptionCreated(ctx context.Context, tx *gorm.DB, event domain.Event) error {
	obj := event.(*domain.SubscriptionEvent).Subscription
	record, err := s.loadSubscription(ctx, tx, obj.ID)
	if err != nil {
		return err
	}
	if record.Status == subscriptiondomain.StatusCancelled {
		s.subscriptionLog(ctx, record).Info("ignoring creation of a cancelled subscription")
		return nil
	}

	record.Activate(s.clock.Now())
	if err := s.subRepo.Update(ctx, tx, record); err != nil {
		return err
	}
	s.subscriptionLog(ctx, record).Info("subscription activated")
	return nil
}

func (s *Service) onSubscriptionUpdated(ctx context.Context, tx *gorm.DB, event domain.Event) error {
	obj := event.(*domain.SubscriptionEvent).Subscription
	status, ok := subscriptiondomain.MapProviderStatus(obj.Status)
	if !ok {
		logger.WithContext(ctx, s.log).Warn("unmapped provider subscription status",
			zap.String("provider_subscription_id", obj.ID),
			zap.String("provider_status", obj.Status),
		)
		return nil
	}

	record, err := s.loadSubscription(ctx, tx, obj.ID)
	if err != nil {
		return err
	}
	// Cancelled is terminal locally; a superseded subscription must not come back.
	if record.Status == subscriptiondomain.StatusCancelled && status != subscriptiondomain.StatusCancelled {
		s.subscriptionLog(ctx, record).Info("ignoring update for a cancelled subscription",
			zap.String("provider_status", obj.Status),
		)
		return nil
	}

	now := s.clock.Now()
	switch status {
	case subscriptiondomain.StatusActive:
		cancelAt, scheduled := obj.CancelAtTime()
		if scheduled && record.Status == subscriptiondomain.StatusPendingCancellation {
			record.MarkPendingCancellation(subscriptiondomain.EffectiveDateOf(cancelAt), now)
		} else {
			record.Activate(now)
		}
	case subscriptiondomain.StatusPendingCancellation:
		effective, ok := obj.CancelAtTime()
		if !ok {
			effective, ok = obj.CanceledAtTime()
		}
		if !ok {
			effective = now
		}
		record.MarkPendingCancellation(subscriptiondomain.EffectiveDateOf(effective), now)
	case subscriptiondomain.StatusInactive:
		record.Deactivate(now)
	case subscriptiondomain.StatusCancelled:
		effective, ok := obj.CanceledAtTime()
		if !ok {
			effective = now
		}
		record.Cancel(subscriptiondomain.EffectiveDateOf(effective), now)
	}

	if err := s.subRepo.Update(ctx, tx, record); err != nil {
		return err
	}
	s.subscriptionLog(ctx, record).Info("subscription status synchronized",
		zap.String("provider_status", obj.Status),
	)
	return nil
}

func (s *Service) onSubscriptionDeleted(ctx context.Context, tx *gorm.DB, event domain.Event) error {
	obj := event.(*domain.SubscriptionEvent).Subscription
	record, err := s.loadSubscription(ctx, tx, obj.ID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	record.Cancel(subscriptiondomain.EffectiveDateOf(now), now)
	if err := s.subRepo.Update(ctx, tx, record); err != nil {
		return err
	}
	s.subscriptionLog(ctx, record).Info("subscription cancelled")
	return nil
}

// onInvoicePaymentSucceeded renews the subscription term and syncs its plan
// from the paid price. Invoices for missing or deleted customers are skipped.
// A pending_cancellation subscription keeps its status and effective date:
// the provider still holds its cancel_at, so the payment covers the final
// period only. Cancelled subscriptions are left untouched.
func (s *Service) onInvoicePaymentSucceeded(ctx context.Context, tx *gorm.DB, event domain.Event) error {
	invoice := event.(*domain.InvoiceEvent).Invoice
	log := logger.WithContext(ctx, s.log).With(zap.String("invoice_id", invoice.ID))

	if invoice.Customer.ID == "" || invoice.Customer.Deleted {
		log.Info("skipping invoice without a live customer")
		return nil
	}
	customer, err := s.gateway.GetCustomer(ctx, invoice.Customer.ID)
	if err != nil {
		return err
	}
	if customer == nil || customer.Deleted {
		log.Info("skipping invoice for deleted customer", zap.String("customer_id", invoice.Customer.ID))
		return nil
	}

	subscriptionID := invoice.SubscriptionID()
	if subscriptionID == "" {
		return domain.ErrMissingSubscription
	}
	record, err := s.loadSubscription(ctx, tx, subscriptionID)
	if err != nil {
		return err
	}
	if record.Status == subscriptiondomain.StatusCancelled {
		log.Info("skipping invoice for cancelled subscription", zap.String("provider_subscription_id", subscriptionID))
		return nil
	}

	plan, ok := s.matchPlan(invoice.PriceIDs())
	if !ok {
		log.Warn("invoice price does not match any plan",
			zap.String("provider_subscription_id", subscriptionID),
			zap.Strings("price_ids", invoice.PriceIDs()),
		)
		return nil
	}

	now := s.clock.Now()
	if record.Status != subscriptiondomain.StatusPendingCancellation {
		record.Activate(now)
	}
	record.ChangePlan(plan.ID, plan.PriceID, now)
	if err := s.subRepo.Update(ctx, tx, record); err != nil {
		return err
	}
	s.subscriptionLog(ctx, record).Info("subscription renewed",
		zap.String("invoice_id", invoice.ID),
		zap.Int64("plan_id", plan.ID),
	)
	return nil
}

func (s *Service) loadSubscription(ctx context.Context, tx *gorm.DB, providerSubscriptionID string) (*subscriptiondomain.Subscription, error) {
	record, err := s.subRepo.FindByProviderIDForUpdate(ctx, tx, providerSubscriptionID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", subscriptiondomain.ErrSubscriptionNotFound, providerSubscriptionID)
	}
	return record, nil
}

// matchPlan picks the first invoice price that belongs to a plan's flat price.
func (s *Service) matchPlan(priceIDs []string) (config.Plan, bool) {
	catalog := s.plans.Get()
	for _, priceID := range priceIDs {
		if plan, ok := catalog.ByPriceID(priceID); ok {
			return plan, true
		}
	}
	return config.Plan{}, false
}

func (s *Service) subscriptionLog(ctx context.Context, record *subscriptiondomain.Subscription) *zap.Logger {
	return logger.WithSubscription(logger.WithContext(ctx, s.log), record.ID.String(), record.StripeSubscriptionID).
		With(zap.String("status", string(record.Status)))
}

func payloadOrData(raw *billingdomain.WebhookEvent) []byte {
	if len(raw.Payload) > 0 {
		return raw.Payload
	}
	return raw.Data
}
