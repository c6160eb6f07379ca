// Package adapters wires gateway implementations behind the provider port.
package adapters

import (
	"strings"

	"github.com/taxfolio/billing/internal/config"
	"github.com/taxfolio/billing/internal/payment/domain"
)

// Registry maps provider names to gateway factories.
type Registry struct {
	factories map[string]domain.GatewayFactory
}

func NewRegistry(factories ...domain.GatewayFactory) *Registry {
	indexed := make(map[string]domain.GatewayFactory, len(factories))
	for _, f := range factories {
		indexed[strings.ToLower(f.Provider())] = f
	}
	return &Registry{factories: indexed}
}

// NewGateway builds the gateway selected by cfg.Provider.
func (r *Registry) NewGateway(cfg config.GatewayConfig) (domain.Gateway, error) {
	f, ok := r.factories[strings.ToLower(strings.TrimSpace(cfg.Provider))]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return f.NewGateway(cfg)
}
