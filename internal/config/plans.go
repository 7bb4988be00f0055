package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Plan maps a RealSync plan to its Stripe prices.
type Plan struct {
	ID             int64  `mapstructure:"id" json:"id"`
	Name           string `mapstructure:"name" json:"name"`
	PriceID        string `mapstructure:"price_id" json:"price_id"`
	MeteredPriceID string `mapstructure:"metered_price_id" json:"metered_price_id,omitempty"`
}

type PlanCatalog struct {
	Plans []Plan `mapstructure:"plans"`
}

// Lookup returns the plan with the given id.
func (c PlanCatalog) Lookup(id int64) (Plan, bool) {
	for _, plan := range c.Plans {
		if plan.ID == id {
			return plan, true
		}
	}
	return Plan{}, false
}

// ByPriceID returns the plan whose flat price matches priceID.
func (c PlanCatalog) ByPriceID(priceID string) (Plan, bool) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return Plan{}, false
	}
	for _, plan := range c.Plans {
		if plan.PriceID == priceID {
			return plan, true
		}
	}
	return Plan{}, false
}

type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

// NewPlanCatalogHolder reads plans.yml from the usual config locations, or
// from REALSYNC_PLANS_FILE when set, and keeps it hot reloaded.
func NewPlanCatalogHolder() (*PlanCatalogHolder, error) {
	v := viper.New()

	if path := strings.TrimSpace(os.Getenv("REALSYNC_PLANS_FILE")); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("plans")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/realsync")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	return loadPlanCatalog(v, true)
}

// NewPlanCatalogHolderFromFile loads a catalog from an explicit file without watching it.
func NewPlanCatalogHolderFromFile(path string) (*PlanCatalogHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return loadPlanCatalog(v, false)
}

// NewStaticPlanCatalogHolder wraps a fixed catalog.
func NewStaticPlanCatalogHolder(catalog PlanCatalog) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)
	return holder
}

func loadPlanCatalog(v *viper.Viper, watch bool) (*PlanCatalogHolder, error) {
	var catalog PlanCatalog
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		zap.L().Warn("plan catalog not found, starting with no plans")
		return NewStaticPlanCatalogHolder(catalog), nil
	}

	if err := v.Unmarshal(&catalog); err != nil {
		return nil, err
	}
	if err := validatePlanCatalog(catalog); err != nil {
		return nil, err
	}

	holder := NewStaticPlanCatalogHolder(catalog)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanCatalog
		if err := v.Unmarshal(&updated); err != nil {
			zap.L().Warn("plan catalog reload failed", zap.Error(err))
			return
		}
		if err := validatePlanCatalog(updated); err != nil {
			zap.L().Warn("invalid plan catalog ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("plan catalog reloaded", zap.String("file", e.Name), zap.Int("plans", len(updated.Plans)))
	})

	return holder, nil
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

func validatePlanCatalog(catalog PlanCatalog) error {
	seen := make(map[int64]struct{}, len(catalog.Plans))
	for _, plan := range catalog.Plans {
		if plan.ID <= 0 {
			return fmt.Errorf("plan %q: id must be positive", plan.Name)
		}
		if _, ok := seen[plan.ID]; ok {
			return fmt.Errorf("plan %d: duplicate id", plan.ID)
		}
		seen[plan.ID] = struct{}{}
		if strings.TrimSpace(plan.PriceID) == "" {
			return fmt.Errorf("plan %d: price_id is required", plan.ID)
		}
	}
	return nil
}
