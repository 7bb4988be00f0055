package migration

import (
	"strings"

	billingeventdomain "github.com/OnnaSoft/real-sync/internal/billingevent/domain"
	"github.com/OnnaSoft/real-sync/internal/config"
	subscriptiondomain "github.com/OnnaSoft/real-sync/internal/subscription/domain"
	tunneldomain "github.com/OnnaSoft/real-sync/internal/tunnel/domain"
	usagedomain "github.com/OnnaSoft/real-sync/internal/usage/domain"
	userdomain "github.com/OnnaSoft/real-sync/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !strings.EqualFold(strings.TrimSpace(cfg.DBType), "postgres") {
			log.Info("applying schema with gorm automigrate", zap.String("db_type", cfg.DBType))
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB, log)
	}),
)

// AutoMigrate creates the schema on databases without SQL migrations.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&userdomain.User{},
		&tunneldomain.Tunnel{},
		&subscriptiondomain.Subscription{},
		&billingeventdomain.BillingEvent{},
		&usagedomain.Consumption{},
	)
}
