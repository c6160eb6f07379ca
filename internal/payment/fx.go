package payment

import (
	"github.com/taxfolio/billing/internal/config"
	"github.com/taxfolio/billing/internal/payment/adapters"
	"github.com/taxfolio/billing/internal/payment/adapters/fake"
	"github.com/taxfolio/billing/internal/payment/adapters/razorpay"
	"github.com/taxfolio/billing/internal/payment/domain"
	"github.com/taxfolio/billing/internal/payment/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment",
	fx.Provide(repository.New),
	fx.Provide(NewRegistry),
	fx.Provide(NewGateway),
)

func NewRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		razorpay.NewFactory(),
		fake.NewFactory(),
	)
}

// NewGateway selects the gateway named by PAYMENT_GATEWAY.
func NewGateway(cfg config.Config, registry *adapters.Registry, log *zap.Logger) (domain.Gateway, error) {
	gateway, err := registry.NewGateway(cfg.Gateway)
	if err != nil {
		return nil, err
	}
	log.Named("payment").Info("payment gateway configured", zap.String("provider", gateway.Name()))
	return gateway, nil
}
