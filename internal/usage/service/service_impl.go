package service

import (
	"context"
	"fmt"
	"strings"

	billingdomain "github.com/OnnaSoft/real-sync/internal/billingprovider/domain"
	"github.com/OnnaSoft/real-sync/internal/clock"
	"github.com/OnnaSoft/real-sync/internal/observability/logger"
	obsmetrics "github.com/OnnaSoft/real-sync/internal/observability/metrics"
	"github.com/OnnaSoft/real-sync/internal/ratelimit"
	subscriptiondomain "github.com/OnnaSoft/real-sync/internal/subscription/domain"
	tunneldomain "github.com/OnnaSoft/real-sync/internal/tunnel/domain"
	tunnelrepository "github.com/OnnaSoft/real-sync/internal/tunnel/repository"
	usagedomain "github.com/OnnaSoft/real-sync/internal/usage/domain"
	userdomain "github.com/OnnaSoft/real-sync/internal/user/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const minYear = 2000

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       usagedomain.Repository
	TunnelRepo tunneldomain.Repository
	UserRepo   userdomain.Repository
	SubRepo    subscriptiondomain.Repository
	Gateway    billingdomain.Gateway
	Limiter    *ratelimit.ConsumptionLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics           `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	repo       usagedomain.Repository
	tunnelRepo tunneldomain.Repository
	userRepo   userdomain.Repository
	subRepo    subscriptiondomain.Repository
	gateway    billingdomain.Gateway
	limiter    *ratelimit.ConsumptionLimiter
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("usage.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		tunnelRepo: p.TunnelRepo,
		userRepo:   p.UserRepo,
		subRepo:    p.SubRepo,
		gateway:    p.Gateway,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}
}

type billingTarget struct {
	tunnel       *tunneldomain.Tunnel
	customerID   string
	subscription *subscriptiondomain.Subscription
}

// Record stores the cumulative usage for the tunnel period and reports the
// units billed since the last successful report. The report runs inside the
// transaction, so a rejected report leaves the stored cumulative unchanged.
func (s *Service) Record(ctx context.Context, obs usagedomain.Observation) (*usagedomain.Result, error) {
	obs.Domain = tunnelrepository.NormalizeDomain(obs.Domain)
	if err := validateObservation(obs); err != nil {
		return nil, err
	}

	target, err := s.resolveTarget(ctx, obs.Domain)
	if err != nil {
		return nil, err
	}
	tunnelID := target.tunnel.ID

	token, ok, err := s.limiter.TryLockPeriod(ctx, tunnelID, obs.Year, obs.Month)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, usagedomain.ErrIngestInProgress
	}
	defer func() {
		if err := s.limiter.ReleasePeriod(context.WithoutCancel(ctx), tunnelID, obs.Year, obs.Month, token); err != nil {
			s.log.Warn("failed to release consumption lock", zap.Error(err))
		}
	}()

	var (
		result   *usagedomain.Result
		decision usagedomain.Decision
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindForUpdate(ctx, tx, tunnelID, obs.Year, obs.Month)
		if err != nil {
			return err
		}

		decision = usagedomain.Decide(existing, obs.DataUsage)
		now := s.clock.Now()

		if decision.Units > 0 {
			if err := s.gateway.ReportUsage(ctx, billingdomain.UsageReport{
				CustomerID:         target.customerID,
				SubscriptionItemID: target.subscription.StripeSubscriptionItemID,
				Quantity:           decision.Units,
				Timestamp:          now,
				Identifier:         reportIdentifier(tunnelID, obs.Year, obs.Month, decision.TotalUnits),
			}); err != nil {
				return err
			}
		}

		record := existing
		if record == nil {
			record = &usagedomain.Consumption{
				ID:        s.genID.Generate(),
				TunnelID:  tunnelID,
				Year:      obs.Year,
				Month:     obs.Month,
				CreatedAt: now,
			}
		}
		record.DataUsage = obs.DataUsage
		record.ReportedUnits = decision.TotalUnits
		record.UpdatedAt = now

		switch {
		case existing == nil:
			err = s.repo.Insert(ctx, tx, record)
		case decision.Persist:
			err = s.repo.Update(ctx, tx, record)
		}
		if err != nil {
			return err
		}

		result = &usagedomain.Result{
			TunnelID:      tunnelID,
			Year:          obs.Year,
			Month:         obs.Month,
			DataUsage:     record.DataUsage,
			ReportedUnits: record.ReportedUnits,
			UnitsReported: decision.Units,
		}
		return nil
	})
	if err != nil {
		s.obsMetrics.RecordUsageReport(ctx, "failed", 0)
		return nil, err
	}

	log := logger.WithSubscription(logger.WithContext(ctx, s.log),
		target.subscription.ID.String(), target.subscription.StripeSubscriptionID).With(
		zap.String("tunnel_id", tunnelID.String()),
		zap.Int("year", obs.Year),
		zap.Int("month", obs.Month),
		zap.Int64("data_usage", obs.DataUsage),
	)
	switch {
	case decision.NonPositive:
		log.Warn("usage did not increase", zap.Int64("reported_units", result.ReportedUnits))
		s.obsMetrics.RecordNonPositiveDelta(ctx, nonPositiveReason(decision))
		s.obsMetrics.RecordUsageReport(ctx, "non_positive", 0)
	case decision.Units > 0:
		log.Info("usage reported", zap.Int64("units", decision.Units), zap.Int64("reported_units", result.ReportedUnits))
		s.obsMetrics.RecordUsageReport(ctx, "reported", decision.Units)
	default:
		log.Debug("usage recorded without new units")
		s.obsMetrics.RecordUsageReport(ctx, "recorded", 0)
	}
	return result, nil
}

// resolveTarget follows domain to tunnel, owner and billable subscription.
func (s *Service) resolveTarget(ctx context.Context, domain string) (*billingTarget, error) {
	tunnel, err := s.tunnelRepo.FindByDomain(ctx, s.db, domain)
	if err != nil {
		return nil, err
	}
	if tunnel == nil {
		return nil, tunneldomain.ErrTunnelNotFound
	}

	user, err := s.userRepo.FindByID(ctx, s.db, tunnel.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, userdomain.ErrUserNotFound
	}

	sub, err := s.subRepo.FindBillableByUser(ctx, s.db, user.ID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, usagedomain.ErrNoBillableSubscription
	}
	if sub.StripeSubscriptionItemID == "" || user.StripeCustomerID == "" {
		return nil, usagedomain.ErrBillingLinkMissing
	}

	return &billingTarget{tunnel: tunnel, customerID: user.StripeCustomerID, subscription: sub}, nil
}

func validateObservation(obs usagedomain.Observation) error {
	switch {
	case strings.TrimSpace(obs.Domain) == "":
		return usagedomain.ErrInvalidDomain
	case obs.DataUsage < 0:
		return usagedomain.ErrInvalidDataUsage
	case obs.Year < minYear:
		return usagedomain.ErrInvalidYear
	case obs.Month < 1 || obs.Month > 12:
		return usagedomain.ErrInvalidMonth
	}
	return nil
}

// reportIdentifier names a report by the total it brings the period to, so a
// retried report is deduplicated by the provider.
func reportIdentifier(tunnelID snowflake.ID, year, month int, totalUnits int64) string {
	return fmt.Sprintf("%s-%04d-%02d-%d", tunnelID, year, month, totalUnits)
}

func nonPositiveReason(decision usagedomain.Decision) string {
	if decision.Persist {
		return "decreased"
	}
	return "unchanged"
}
