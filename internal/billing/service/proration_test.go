package service

import (
	"testing"
	"time"

	"github.com/taxfolio/billing/internal/plan"
)

func mustPlan(t *testing.T, catalog *plan.Catalog, id string) plan.Plan {
	t.Helper()
	p, err := catalog.GetPlan(id)
	if err != nil {
		t.Fatalf("plan %s: %v", id, err)
	}
	return p
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if got := DaysRemaining(nil, now); got != 0 {
		t.Fatalf("nil endsAt: got %d, want 0", got)
	}

	past := now.Add(-time.Hour)
	if got := DaysRemaining(&past, now); got != 0 {
		t.Fatalf("expired period: got %d, want 0", got)
	}

	// Partial days round up.
	partial := now.Add(9*24*time.Hour + time.Minute)
	if got := DaysRemaining(&partial, now); got != 10 {
		t.Fatalf("partial day: got %d, want 10", got)
	}

	exact := now.Add(10 * 24 * time.Hour)
	if got := DaysRemaining(&exact, now); got != 10 {
		t.Fatalf("exact days: got %d, want 10", got)
	}

	far := now.Add(90 * 24 * time.Hour)
	if got := DaysRemaining(&far, now); got != 30 {
		t.Fatalf("clamp: got %d, want 30", got)
	}
}

func TestProratedUpgradeAmountMidCycle(t *testing.T) {
	catalog, err := plan.NewStaticCatalog(plan.DefaultPlans())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	personal := mustPlan(t, catalog, "PERSONAL")
	business := mustPlan(t, catalog, "BUSINESS")

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	endsAt := now.Add(10 * 24 * time.Hour)

	// (299900 - 9900) * 10 / 30 = 96666, truncated once.
	got := ProratedUpgradeAmount(personal, business, &endsAt, now)
	if got != 96666 {
		t.Fatalf("prorated amount: got %d, want 96666", got)
	}
}

func TestProratedUpgradeAmountFromFree(t *testing.T) {
	catalog, err := plan.NewStaticCatalog(plan.DefaultPlans())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	free := mustPlan(t, catalog, "FREE")
	personal := mustPlan(t, catalog, "PERSONAL")

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	endsAt := now.Add(20 * 24 * time.Hour)

	if got := ProratedUpgradeAmount(free, personal, &endsAt, now); got != personal.Price {
		t.Fatalf("free upgrade: got %d, want full price %d", got, personal.Price)
	}
	if got := ProratedUpgradeAmount(free, personal, nil, now); got != personal.Price {
		t.Fatalf("free upgrade without period: got %d, want %d", got, personal.Price)
	}
}

func TestProratedUpgradeAmountExpiredPeriod(t *testing.T) {
	catalog, err := plan.NewStaticCatalog(plan.DefaultPlans())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	personal := mustPlan(t, catalog, "PERSONAL")
	business := mustPlan(t, catalog, "BUSINESS")

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	expired := now.Add(-24 * time.Hour)

	if got := ProratedUpgradeAmount(personal, business, &expired, now); got != 0 {
		t.Fatalf("expired period: got %d, want 0", got)
	}
}

func TestProratedUpgradeAmountMonotonicInDaysRemaining(t *testing.T) {
	// A one-paisa delta exercises the truncation: separate per-side
	// truncation used to let the amount dip back to zero as days grew.
	cheap := plan.Plan{ID: "A", Price: 34, Currency: "INR", Interval: plan.IntervalMonthly}
	costly := plan.Plan{ID: "B", Price: 35, Currency: "INR", Interval: plan.IntervalMonthly}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	prev := int64(-1)
	for days := 0; days <= 30; days++ {
		endsAt := now.Add(time.Duration(days) * 24 * time.Hour)
		got := ProratedUpgradeAmount(cheap, costly, &endsAt, now)
		if got < prev {
			t.Fatalf("days=%d: amount %d < previous %d", days, got, prev)
		}
		prev = got
	}
}

func TestProratedUpgradeAmountNeverNegative(t *testing.T) {
	cheap := plan.Plan{ID: "A", Price: 5000, Currency: "INR", Interval: plan.IntervalMonthly}
	costly := plan.Plan{ID: "B", Price: 12000, Currency: "INR", Interval: plan.IntervalMonthly}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for days := 0; days <= 30; days++ {
		endsAt := now.Add(time.Duration(days) * 24 * time.Hour)
		if got := ProratedUpgradeAmount(costly, cheap, &endsAt, now); got != 0 {
			t.Fatalf("days=%d: downward delta must clamp to 0, got %d", days, got)
		}
		if got := ProratedUpgradeAmount(cheap, costly, &endsAt, now); got < 0 {
			t.Fatalf("days=%d: negative amount %d", days, got)
		}
	}
}
