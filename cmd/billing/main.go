package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/taxfolio/billing/internal/account"
	"github.com/taxfolio/billing/internal/billing"
	"github.com/taxfolio/billing/internal/clock"
	"github.com/taxfolio/billing/internal/config"
	"github.com/taxfolio/billing/internal/locks"
	"github.com/taxfolio/billing/internal/migration"
	"github.com/taxfolio/billing/internal/notification"
	"github.com/taxfolio/billing/internal/observability"
	"github.com/taxfolio/billing/internal/payment"
	"github.com/taxfolio/billing/internal/plan"
	"github.com/taxfolio/billing/internal/providers/email"
	"github.com/taxfolio/billing/internal/server"
	"github.com/taxfolio/billing/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		locks.Module,

		// Functional domains
		plan.Module,
		account.Module,
		payment.Module,
		email.Module,
		notification.Module,
		billing.Module,

		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
