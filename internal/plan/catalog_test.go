package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/taxfolio/billing/internal/config"
	"go.uber.org/zap"
)

func TestDefaultCatalog(t *testing.T) {
	catalog, err := NewStaticCatalog(DefaultPlans())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	business, err := catalog.GetPlan("BUSINESS")
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if business.Price != 299900 || business.Currency != "INR" {
		t.Fatalf("business plan: %+v", business)
	}

	free, err := catalog.GetPlan("FREE")
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if !free.IsFree() {
		t.Fatal("FREE plan must be free")
	}

	enterprise, err := catalog.GetPlan("ENTERPRISE")
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if enterprise.Entitlements.MaxUsers != Unlimited {
		t.Fatalf("enterprise users: %d", enterprise.Entitlements.MaxUsers)
	}

	if _, err := catalog.GetPlan("GOLD"); err != ErrPlanNotFound {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}

	plans := catalog.ListPlans()
	if len(plans) != 4 || plans[0].ID != "FREE" {
		t.Fatalf("list order: %+v", plans)
	}
	if catalog.Version() != 1 {
		t.Fatalf("version: %d", catalog.Version())
	}
}

func TestStaticCatalogValidation(t *testing.T) {
	cases := []struct {
		name  string
		plans []Plan
	}{
		{"empty", nil},
		{"blank id", []Plan{{ID: " ", Price: 100, Currency: "INR", Interval: IntervalMonthly}}},
		{"duplicate id", []Plan{
			{ID: "A", Price: 100, Currency: "INR", Interval: IntervalMonthly},
			{ID: "A", Price: 200, Currency: "INR", Interval: IntervalMonthly},
		}},
		{"negative price", []Plan{{ID: "A", Price: -1, Currency: "INR", Interval: IntervalMonthly}}},
		{"missing currency", []Plan{{ID: "A", Price: 100, Interval: IntervalMonthly}}},
		{"bad interval", []Plan{{ID: "A", Price: 100, Currency: "INR", Interval: "WEEKLY"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewStaticCatalog(tc.plans); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNewCatalogLoadsFile(t *testing.T) {
	dir := t.TempDir()
	contents := `plans:
  - id: STARTER
    name: Starter
    price: 4900
    currency: INR
    interval: MONTHLY
    entitlements:
      max_users: 2
      max_storage_mb: 512
      max_api_calls: 5000
`
	if err := os.WriteFile(filepath.Join(dir, "plans.yml"), []byte(contents), 0o644); err != nil {
		t.Fatalf("write plans.yml: %v", err)
	}

	catalog, err := NewCatalog(config.Config{PlanConfigPaths: []string{dir}}, zap.NewNop())
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	starter, err := catalog.GetPlan("STARTER")
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if starter.Price != 4900 || starter.Entitlements.MaxUsers != 2 {
		t.Fatalf("starter plan: %+v", starter)
	}
}

func TestNewCatalogFallsBackToDefaults(t *testing.T) {
	catalog, err := NewCatalog(config.Config{PlanConfigPaths: []string{t.TempDir()}}, zap.NewNop())
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if len(catalog.ListPlans()) != len(DefaultPlans()) {
		t.Fatalf("expected default plans, got %d", len(catalog.ListPlans()))
	}
}
