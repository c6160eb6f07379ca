package migration

import (
	accountdomain "github.com/taxfolio/billing/internal/account/domain"
	"github.com/taxfolio/billing/internal/config"
	paymentdomain "github.com/taxfolio/billing/internal/payment/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Versioned SQL migrations target postgres; other dialects
			// (sqlite in dev, mysql) fall back to schema sync.
			return conn.AutoMigrate(
				&accountdomain.Account{},
				&paymentdomain.PaymentIntent{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
