package service

import (
	"time"

	"github.com/taxfolio/billing/internal/plan"
)

// billingCycleDays normalizes every monthly cycle for proration.
const billingCycleDays = 30

// DaysRemaining counts whole days left in the paid period, rounding any
// partial day up and clamping to [0, 30].
func DaysRemaining(endsAt *time.Time, now time.Time) int64 {
	if endsAt == nil || !endsAt.After(now) {
		return 0
	}
	remaining := endsAt.Sub(now)
	days := int64(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	if days > billingCycleDays {
		days = billingCycleDays
	}
	return days
}

// ProratedUpgradeAmount is the charge for moving to target mid-cycle:
// the price difference prorated over the remaining days. The difference
// is computed before the division so truncation happens exactly once,
// which keeps the charge from rounding up against the customer and
// keeps it non-decreasing in the days remaining. Accounts on a free
// plan get no credit and pay the full target price.
func ProratedUpgradeAmount(current, target plan.Plan, endsAt *time.Time, now time.Time) int64 {
	if current.IsFree() {
		return target.Price
	}

	days := DaysRemaining(endsAt, now)
	amount := (target.Price - current.Price) * days / billingCycleDays
	if amount < 0 {
		return 0
	}
	return amount
}
