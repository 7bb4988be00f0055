package service

import (
	"context"
	"fmt"

	billingdomain "github.com/OnnaSoft/real-sync/internal/billingprovider/domain"
	"github.com/OnnaSoft/real-sync/internal/clock"
	"github.com/OnnaSoft/real-sync/internal/config"
	"github.com/OnnaSoft/real-sync/internal/observability/logger"
	subscriptiondomain "github.com/OnnaSoft/real-sync/internal/subscription/domain"
	userdomain "github.com/OnnaSoft/real-sync/internal/user/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	repo     subscriptiondomain.Repository
	userRepo userdomain.Repository
	gateway  billingdomain.Gateway
	plans    *config.PlanCatalogHolder
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     subscriptiondomain.Repository
	UserRepo userdomain.Repository
	Gateway  billingdomain.Gateway
	Plans    *config.PlanCatalogHolder
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		userRepo: p.UserRepo,
		gateway:  p.Gateway,
		plans:    p.Plans,
	}
}

// AssignPlan creates the user's subscription, or moves the current one to planID.
// An inactive subscription is closed and replaced by a new one.
// The provider call runs inside the transaction so a failure leaves no local change.
func (s *Service) AssignPlan(ctx context.Context, userID snowflake.ID, planID int64) (*subscriptiondomain.SubscriptionView, error) {
	if userID == 0 {
		return nil, subscriptiondomain.ErrInvalidUser
	}
	plan, ok := s.plans.Get().Lookup(planID)
	if !ok {
		return nil, subscriptiondomain.ErrInvalidPlan
	}

	var result, superseded *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.FindByIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return userdomain.ErrUserNotFound
		}

		current, err := s.repo.FindCurrentByUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if current != nil && current.Status == subscriptiondomain.StatusInactive {
			// A lapsed subscription cannot be moved to another plan; it is
			// closed and a fresh one is started.
			superseded = current
			current.Cancel(subscriptiondomain.EffectiveDateOf(now), now)
			if err := s.repo.Update(ctx, tx, current); err != nil {
				return err
			}
			current = nil
		}
		if current == nil {
			customerID, err := s.ensureCustomer(ctx, tx, user)
			if err != nil {
				return err
			}
			created, err := s.gateway.CreateSubscription(ctx, billingdomain.CreateSubscriptionInput{
				CustomerID:     customerID,
				PriceID:        plan.PriceID,
				MeteredPriceID: plan.MeteredPriceID,
				IdempotencyKey: fmt.Sprintf("assign-%s-%d-%d", userID, planID, now.Unix()),
			})
			if err != nil {
				return err
			}

			record := &subscriptiondomain.Subscription{
				ID:                       s.genID.Generate(),
				UserID:                   userID,
				PlanID:                   plan.ID,
				StripeSubscriptionID:     created.ID,
				StripeSubscriptionItemID: created.MeteredItemID,
				StripePriceID:            plan.PriceID,
				Status:                   subscriptiondomain.StatusInactive,
				ActivatedAt:              now,
				CreatedAt:                now,
				UpdatedAt:                now,
			}
			if err := s.repo.Insert(ctx, tx, record); err != nil {
				return err
			}
			result = record
			return nil
		}

		if current.Status == subscriptiondomain.StatusPendingCancellation {
			return subscriptiondomain.ErrCancellationPending
		}
		if current.PlanID == plan.ID {
			result = current
			return nil
		}

		current.ChangePlan(plan.ID, plan.PriceID, now)
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		if err := s.gateway.ChangeSubscriptionPrice(ctx, current.StripeSubscriptionID, plan.PriceID); err != nil {
			return err
		}
		result = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if superseded != nil && superseded.StripeSubscriptionID != "" {
		if err := s.gateway.CancelSubscription(ctx, superseded.StripeSubscriptionID); err != nil {
			logger.WithSubscription(logger.WithContext(ctx, s.log), superseded.ID.String(), superseded.StripeSubscriptionID).
				Warn("failed to cancel superseded subscription at provider", zap.Error(err))
		}
	}

	logger.WithSubscription(s.log, result.ID.String(), result.StripeSubscriptionID).Info("plan assigned",
		zap.String("user_id", userID.String()),
		zap.Int64("plan_id", plan.ID),
		zap.String("status", string(result.Status)),
	)
	view := subscriptiondomain.ToView(result)
	return &view, nil
}

// RequestCancellation schedules the user's active subscription to end on the
// date computed by ScheduleCancellation.
func (s *Service) RequestCancellation(ctx context.Context, userID snowflake.ID) (*subscriptiondomain.SubscriptionView, error) {
	if userID == 0 {
		return nil, subscriptiondomain.ErrInvalidUser
	}

	var result *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindCurrentByUserForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if current == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		if err := current.RequestCancellation(s.clock.Now()); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, current); err != nil {
			return err
		}
		if err := s.gateway.ScheduleCancellation(ctx, current.StripeSubscriptionID,
			subscriptiondomain.CancellationInstant(*current.EffectiveCancelDate)); err != nil {
			return err
		}
		result = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.WithSubscription(s.log, result.ID.String(), result.StripeSubscriptionID).Info("cancellation scheduled",
		zap.String("user_id", userID.String()),
		zap.Time("effective_cancel_date", *result.EffectiveCancelDate),
	)
	view := subscriptiondomain.ToView(result)
	return &view, nil
}

func (s *Service) Current(ctx context.Context, userID snowflake.ID) (*subscriptiondomain.SubscriptionView, error) {
	current, err := s.repo.FindCurrentByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	view := subscriptiondomain.ToView(current)
	return &view, nil
}

func (s *Service) ensureCustomer(ctx context.Context, tx *gorm.DB, user *userdomain.User) (string, error) {
	if user.StripeCustomerID != "" {
		return user.StripeCustomerID, nil
	}
	customer, err := s.gateway.CreateCustomer(ctx, billingdomain.CreateCustomerInput{
		Email:  user.Email,
		Name:   user.Name,
		UserID: user.ID.String(),
	})
	if err != nil {
		return "", err
	}
	if err := s.userRepo.UpdateStripeCustomerID(ctx, tx, user.ID, customer.ID); err != nil {
		return "", err
	}
	user.StripeCustomerID = customer.ID
	return customer.ID, nil
}
