// Package plan provides the subscription plan catalog.
package plan

import "errors"

// Interval is the billing interval of a plan.
type Interval string

const (
	IntervalMonthly Interval = "MONTHLY"
	IntervalYearly  Interval = "YEARLY"
)

// Unlimited marks an entitlement with no quota. It is a sentinel,
// not a large number; callers must compare against it explicitly.
const Unlimited int64 = -1

// Entitlements are the quotas granted by a plan.
type Entitlements struct {
	MaxUsers     int64 `mapstructure:"max_users" json:"max_users"`
	MaxStorageMB int64 `mapstructure:"max_storage_mb" json:"max_storage_mb"`
	MaxAPICalls  int64 `mapstructure:"max_api_calls" json:"max_api_calls"`
}

// Plan describes a subscription tier. Prices are in the smallest
// currency unit (paise for INR). Plans are immutable once loaded.
type Plan struct {
	ID           string       `mapstructure:"id" json:"id"`
	Name         string       `mapstructure:"name" json:"name"`
	Price        int64        `mapstructure:"price" json:"price"`
	Currency     string       `mapstructure:"currency" json:"currency"`
	Interval     Interval     `mapstructure:"interval" json:"interval"`
	Entitlements Entitlements `mapstructure:"entitlements" json:"entitlements"`
}

// IsFree reports whether the plan carries no charge.
func (p Plan) IsFree() bool { return p.Price == 0 }

var (
	ErrPlanNotFound    = errors.New("plan_not_found")
	ErrInvalidCatalog  = errors.New("invalid_plan_catalog")
	ErrDuplicatePlanID = errors.New("duplicate_plan_id")
)
