package service

import (
	"context"
	"testing"
	"time"

	"github.com/OnnaSoft/real-sync/internal/billingevent/domain"
	"github.com/OnnaSoft/real-sync/internal/billingevent/repository"
	billingdomain "github.com/OnnaSoft/real-sync/internal/billingprovider/domain"
	"github.com/OnnaSoft/real-sync/internal/billingprovider/fake"
	"github.com/OnnaSoft/real-sync/internal/clock"
	"github.com/OnnaSoft/real-sync/internal/config"
	"github.com/OnnaSoft/real-sync/internal/observability/metrics"
	subscriptiondomain "github.com/OnnaSoft/real-sync/internal/subscription/domain"
	subscriptionrepository "github.com/OnnaSoft/real-sync/internal/subscription/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var testPlans = config.PlanCatalog{Plans: []config.Plan{
	{ID: 1, Name: "starter", PriceID: "price_starter", MeteredPriceID: "price_usage"},
	{ID: 2, Name: "pro", PriceID: "price_pro", MeteredPriceID: "price_usage"},
}}

type testEnv struct {
	db      *gorm.DB
	svc     domain.Service
	gateway *fake.Gateway
	clock   *clock.FakeClock
	node    *snowflake.Node
	subRepo subscriptiondomain.Repository
}

// lateLookupRepo never sees an event in the pre-check, as when two deliveries
// of the same event pass it before either commits.
type lateLookupRepo struct {
	domain.Repository
}

func (lateLookupRepo) FindEvent(context.Context, *gorm.DB, string, string) (*domain.BillingEvent, error) {
	return nil, nil
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	return newTestEnvWithRepo(t, now, repository.Provide())
}

func newTestEnvWithRepo(t *testing.T, now time.Time, repo domain.Repository) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.BillingEvent{}, &subscriptiondomain.Subscription{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	env := &testEnv{
		db:      db,
		gateway: fake.New(),
		clock:   clock.NewFakeClock(now),
		node:    node,
		subRepo: subscriptionrepository.Provide(),
	}
	env.svc, err = NewService(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   env.clock,
		Repo:    repo,
		SubRepo: env.subRepo,
		Gateway: env.gateway,
		Plans:   config.NewStaticPlanCatalogHolder(testPlans),
		Metrics: metrics.NewNoop(),
	})
	require.NoError(t, err)
	return env
}

func (e *testEnv) insertSubscription(t *testing.T, status subscriptiondomain.Status, activatedAt time.Time) *subscriptiondomain.Subscription {
	t.Helper()
	sub := &subscriptiondomain.Subscription{
		ID:                       e.node.Generate(),
		UserID:                   e.node.Generate(),
		PlanID:                   1,
		StripeSubscriptionID:     "sub_1",
		StripeSubscriptionItemID: "si_1",
		StripePriceID:            "price_starter",
		Status:                   status,
		ActivatedAt:              activatedAt,
		CreatedAt:                activatedAt,
		UpdatedAt:                activatedAt,
	}
	require.NoError(t, e.subRepo.Insert(context.Background(), e.db, sub))
	return sub
}

func (e *testEnv) reload(t *testing.T, id snowflake.ID) *subscriptiondomain.Subscription {
	t.Helper()
	sub, err := e.subRepo.FindByID(context.Background(), e.db, id)
	require.NoError(t, err)
	require.NotNil(t, sub)
	return sub
}

func (e *testEnv) eventCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&domain.BillingEvent{}).Count(&count).Error)
	return count
}

func (e *testEnv) deliver(t *testing.T, signature string) (*domain.Result, error) {
	t.Helper()
	return e.svc.HandleWebhook(context.Background(), []byte(`{"id":"`+signature+`"}`), signature)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t, time.Now().UTC())

	_, err := env.deliver(t, "bogus")
	assert.ErrorIs(t, err, billingdomain.ErrInvalidSignature)
	assert.Zero(t, env.eventCount(t))
}

func TestSubscriptionCreatedActivates(t *testing.T) {
	now := time.Date(2024, time.April, 2, 10, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	sub := env.insertSubscription(t, subscriptiondomain.StatusInactive, now.Add(-time.Hour))
	env.gateway.AddEvent("sig1", "evt_1", "customer.subscription.created", map[string]any{
		"id": "sub_1", "status": "active",
	})

	result, err := env.deliver(t, "sig1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, result.Outcome)

	stored := env.reload(t, sub.ID)
	assert.Equal(t, subscriptiondomain.StatusActive, stored.Status)
	assert.True(t, stored.ActivatedAt.Equal(now))
}

func TestReplayedEventIsNotReapplied(t *testing.T) {
	now := time.Date(2024, time.April, 2, 10, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	sub := env.insertSubscription(t, subscriptiondomain.StatusInactive, now.Add(-time.Hour))
	env.gateway.AddEvent("sig1", "evt_1", "customer.subscription.created", map[string]any{
		"id": "sub_1", "status": "active",
	})

	_, err := env.deliver(t, "sig1")
	require.NoError(t, err)

	env.clock.Advance(48 * time.Hour)
	result, err := env.deliver(t, "sig1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReplayed, result.Outcome)
	assert.Equal(t, int64(1), env.eventCount(t))

	stored := env.reload(t, sub.ID)
	assert.True(t, stored.ActivatedAt.Equal(now))
}

func TestDuplicateDeliveryPastLookupIsReplayed(t *testing.T) {
	now := time.Date(2024, time.April, 2, 10, 0, 0, 0, time.UTC)
	env := newTestEnvWithRepo(t, now, lateLookupRepo{Repository: repository.Provide()})
	sub := env.insertSubscription(t, subscriptiondomain.StatusInactive, now.Add(-time.Hour))
	env.gateway.AddEvent("sig1", "evt_1", "customer.subscription.created", map[string]any{
		"id": "sub_1", "status": "active",
	})

	result, err := env.deliver(t, "sig1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, result.Outcome)

	env.clock.Advance(48 * time.Hour)
	result, err = env.deliver(t, "sig1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeReplayed, result.Outcome)
	assert.Equal(t, int64(1), env.eventCount(t))

	stored := env.reload(t, sub.ID)
	assert.Equal(t, subscriptiondomain.StatusActive, stored.Status)
	assert.True(t, stored.ActivatedAt.Equal(now))
}

func TestSubscriptionUpdatedKeepsScheduledCancellation(t *testing.T) {
	activated := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, time.Date(2024, time.January, 20, 0, 0, 0, 0, time.UTC))
	sub := env.insertSubscription(t, subscriptiondomain.StatusActive, activated)
	require.NoError(t, sub.RequestCancellation(env.clock.Now()))
	require.NoError(t, env.subRepo.Update(context.Background(), env.db, sub))

	cancelAt := subscriptiondomain.CancellationInstant(*sub.EffectiveCancelDate)
	env.gateway.AddEvent("sig1", "evt_1", "customer.subscription.updated", map[string]any{
		"id": "sub_1", "status": "active", "cancel_at": cancelAt.Unix(),
	})

	_, err := env.deliver(t, "sig1")
	require.NoError(t, err)

	stored := env.reload(t, sub.ID)
	assert.Equal(t, subscriptiondomain.StatusPendingCancellation, stored.Status)
	require.NotNil(t, stored.EffectiveCancelDate)
	assert.Equal(t, "2024-02-29", stored.EffectiveCancelDate.UTC().Format(time.DateOnly))
	assert.NotNil(t, stored.CancelRequestedAt)
}

func TestSubscriptionUpdatedStatusMapping(t *testing.T) {
	cases := []struct {
		name     string
		initial  subscriptiondomain.Status
		status   string
		expected subscriptiondomain.Status
	}{
		{name: "reactivated", initial: subscriptiondomain.StatusPendingCancellation, status: "active", expected: subscriptiondomain.StatusActive},
		{name: "trialing", initial: subscriptiondomain.StatusInactive, status: "trialing", expected: subscriptiondomain.StatusActive},
		{name: "past due", initial: subscriptiondomain.StatusActive, status: "past_due", expected: subscriptiondomain.StatusInactive},
		{name: "incomplete", initial: subscriptiondomain.StatusActive, status: "incomplete", expected: subscriptiondomain.StatusPendingCancellation},
		{name: "canceled", initial: subscriptiondomain.StatusActive, status: "canceled", expected: subscriptiondomain.StatusCancelled},
		{name: "unmapped", initial: subscriptiondomain.StatusActive, status: "something_new", expected: subscriptiondomain.StatusActive},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC))
			sub := env.insertSubscription(t, tc.initial, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC))
			env.gateway.AddEvent("sig", "evt_"+tc.name, "customer.subscription.updated", map[string]any{
				"id": "sub_1", "status": tc.status,
			})

			result, err := env.deliver(t, "sig")
			require.NoError(t, err)
			assert.Equal(t, domain.OutcomeProcessed, result.Outcome)

			stored := env.reload(t, sub.ID)
			assert.Equal(t, tc.expected, stored.Status)
			if tc.expected == subscriptiondomain.StatusActive || tc.expected == subscriptiondomain.StatusInactive {
				assert.Nil(t, stored.EffectiveCancelDate)
				assert.Nil(t, stored.CancelRequestedAt)
			} else {
				assert.NotNil(t, stored.EffectiveCancelDate)
			}
		})
	}
}

func TestSubscriptionUpdatedCancelledStoresCalendarDate(t *testing.T) {
	env := newTestEnv(t, time.Date(2024, time.May, 3, 9, 0, 0, 0, time.UTC))
	sub := env.insertSubscription(t, subscriptiondomain.StatusActive, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC))
	canceledAt := time.Date(2024, time.May, 1, 15, 30, 0, 0, time.UTC)
	env.gateway.AddEvent("sig1", "evt_1", "customer.subscription.updated", map[string]any{
		"id": "sub_1", "status": "canceled", "canceled_at": canceledAt.Unix(),
	})

	_, err := env.deliver(t, "sig1")
	require.NoError(t, err)

	stored := env.reload(t, sub.ID)
	assert.Equal(t, subscriptiondomain.StatusCancelled, stored.Status)
	require.NotNil(t, stored.EffectiveCancelDate)
	assert.True(t, stored.EffectiveCancelDate.Equal(time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-05-01", subscriptiondomain.ToView(stored).EffectiveCancelDate)
}

func TestCancelledSubscriptionIsNotRevived(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	env.gateway.Customers["cus_1"] = &billingdomain.Customer{ID: "cus_1"}
	sub := env.insertSubscription(t, subscriptiondomain.StatusInactive, now.AddDate(0, -1, 0))
	sub.Cancel(subscriptiondomain.EffectiveDateOf(now), now)
	require.NoError(t, env.subRepo.Update(context.Background(), env.db, sub))

	env.gateway.AddEvent("sig1", "evt_1", "customer.subscription.created", map[string]any{
		"id": "sub_1", "status": "active",
	})
	env.gateway.AddEvent("sig2", "evt_2", "customer.subscription.updated", map[string]any{
		"id": "sub_1", "status": "active",
	})
	env.gateway.AddEvent("sig3", "evt_3", "invoice.payment_succeeded", map[string]any{
		"id":           "in_1",
		"customer":     "cus_1",
		"subscription": "sub_1",
		"lines": map[string]any{"data": []any{
			map[string]any{"price": map[string]any{"id": "price_pro"}},
		}},
	})

	for _, sig := range []string{"sig1", "sig2", "sig3"} {
		result, err := env.deliver(t, sig)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeProcessed, result.Outcome)
	}
	assert.Equal(t, int64(3), env.eventCount(t))

	stored := env.reload(t, sub.ID)
	assert.Equal(t, subscriptiondomain.StatusCancelled, stored.Status)
	assert.Equal(t, int64(1), stored.PlanID)
}

func TestSubscriptionDeletedCancels(t *testing.T) {
	now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	sub := env.insertSubscription(t, subscriptiondomain.StatusPendingCancellation, now.AddDate(0, -2, 0))
	env.gateway.AddEvent("sig1", "evt_1", "customer.subscription.deleted", map[string]any{
		"id": "sub_1", "status": "canceled",
	})

	_, err := env.deliver(t, "sig1")
	require.NoError(t, err)

	stored := env.reload(t, sub.ID)
	assert.Equal(t, subscriptiondomain.StatusCancelled, stored.Status)
	require.NotNil(t, stored.EffectiveCancelDate)
	assert.True(t, stored.EffectiveCancelDate.Equal(now))
}

func TestUnknownSubscriptionIsNotRecorded(t *testing.T) {
	env := newTestEnv(t, time.Now().UTC())
	env.gateway.AddEvent("sig1", "evt_1", "customer.subscription.created", map[string]any{
		"id": "sub_1", "status": "active",
	})

	_, err := env.deliver(t, "sig1")
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)
	assert.Zero(t, env.eventCount(t))

	sub := env.insertSubscription(t, subscriptiondomain.StatusInactive, time.Now().UTC())
	result, err := env.deliver(t, "sig1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeProcessed, result.Outcome)
	assert.Equal(t, subscriptiondomain.StatusActive, env.reload(t, sub.ID).Status)
}

func TestInvoicePaymentSucceededRenews(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	env.gateway.Customers["cus_1"] = &billingdomain.Customer{ID: "cus_1"}
	sub := env.insertSubscription(t, subscriptiondomain.StatusInactive, now.AddDate(0, -1, 0))
	env.gateway.AddEvent("sig1", "evt_1", "invoice.payment_succeeded", map[string]any{
		"id":       "in_1",
		"customer": "cus_1",
		"parent": map[string]any{
			"subscription_details": map[string]any{"subscription": "sub_1"},
		},
		"lines": map[string]any{"data": []any{
			map[string]any{"price": map[string]any{"id": "price_usage"}},
			map[string]any{"price": map[string]any{"id": "price_pro"}},
		}},
	})

	_, err := env.deliver(t, "sig1")
	require.NoError(t, err)

	stored := env.reload(t, sub.ID)
	assert.Equal(t, subscriptiondomain.StatusActive, stored.Status)
	assert.Equal(t, int64(2), stored.PlanID)
	assert.Equal(t, "price_pro", stored.StripePriceID)
	assert.True(t, stored.ActivatedAt.Equal(now))
}

func TestInvoicePaymentSucceededKeepsPendingCancellation(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)
	env.gateway.Customers["cus_1"] = &billingdomain.Customer{ID: "cus_1"}
	sub := env.insertSubscription(t, subscriptiondomain.StatusActive, now.AddDate(0, -1, 0))
	require.NoError(t, sub.RequestCancellation(now))
	require.NoError(t, env.subRepo.Update(context.Background(), env.db, sub))
	env.gateway.AddEvent("sig1", "evt_1", "invoice.payment_succeeded", map[string]any{
		"id":           "in_1",
		"customer":     "cus_1",
		"subscription": "sub_1",
		"lines": map[string]any{"data": []any{
			map[string]any{"price": map[string]any{"id": "price_starter"}},
		}},
	})

	_, err := env.deliver(t, "sig1")
	require.NoError(t, err)

	stored := env.reload(t, sub.ID)
	assert.Equal(t, subscriptiondomain.StatusPendingCancellation, stored.Status)
	assert.NotNil(t, stored.EffectiveCancelDate)
}

func TestInvoiceSkips(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		invoice map[string]any
	}{
		{name: "no customer", invoice: map[string]any{"id": "in_1", "subscription": "sub_1"}},
		{name: "deleted customer object", invoice: map[string]any{
			"id": "in_2", "subscription": "sub_1", "customer": map[string]any{"id": "cus_1", "deleted": true},
		}},
		{name: "customer gone at provider", invoice: map[string]any{
			"id": "in_3", "subscription": "sub_1", "customer": "cus_missing",
		}},
		{name: "unmatched price", invoice: map[string]any{
			"id": "in_4", "subscription": "sub_1", "customer": "cus_1",
			"lines": map[string]any{"data": []any{map[string]any{"price": map[string]any{"id": "price_legacy"}}}},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, now)
			env.gateway.Customers["cus_1"] = &billingdomain.Customer{ID: "cus_1"}
			sub := env.insertSubscription(t, subscriptiondomain.StatusInactive, now.AddDate(0, -1, 0))
			env.gateway.AddEvent("sig", "evt_skip", "invoice.payment_succeeded", tc.invoice)

			result, err := env.deliver(t, "sig")
			require.NoError(t, err)
			assert.Equal(t, domain.OutcomeProcessed, result.Outcome)

			stored := env.reload(t, sub.ID)
			assert.Equal(t, subscriptiondomain.StatusInactive, stored.Status)
			assert.Equal(t, int64(1), stored.PlanID)
		})
	}
}

func TestInvoiceWithoutSubscriptionRollsBack(t *testing.T) {
	env := newTestEnv(t, time.Now().UTC())
	env.gateway.Customers["cus_1"] = &billingdomain.Customer{ID: "cus_1"}
	env.gateway.AddEvent("sig1", "evt_1", "invoice.payment_succeeded", map[string]any{
		"id": "in_1", "customer": "cus_1",
	})

	_, err := env.deliver(t, "sig1")
	assert.ErrorIs(t, err, domain.ErrMissingSubscription)
	assert.Zero(t, env.eventCount(t))
}

func TestUnhandledEventIsAcknowledged(t *testing.T) {
	env := newTestEnv(t, time.Now().UTC())
	env.gateway.AddEvent("sig1", "evt_1", "charge.refunded", map[string]any{"id": "ch_1"})

	result, err := env.deliver(t, "sig1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, result.Outcome)
	assert.Zero(t, env.eventCount(t))
}

func TestEveryKindHasHandler(t *testing.T) {
	env := newTestEnv(t, time.Now().UTC())
	svc := env.svc.(*Service)
	for _, kind := range domain.Kinds() {
		assert.Contains(t, svc.handlers, kind)
	}
}
