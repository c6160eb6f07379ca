// Package domain contains persistence models for tenant accounts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus represents lifecycle states for an account subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionStatusPastDue   SubscriptionStatus = "PAST_DUE"
)

// Account is one tenant. The entitlement columns are a snapshot copied
// from the plan at the moment it took effect, not a live reference, so a
// scheduled downgrade cannot retroactively restrict the paid period.
type Account struct {
	ID                 snowflake.ID       `json:"id" gorm:"primaryKey"`
	Email              string             `json:"email" gorm:"type:text;not null;uniqueIndex:idx_accounts_email"`
	Name               string             `json:"name" gorm:"type:text"`
	SubscriptionPlan   string             `json:"subscription_plan" gorm:"type:text;not null"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status" gorm:"type:text;not null"`
	SubscriptionEndsAt *time.Time         `json:"subscription_ends_at"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end" gorm:"not null;default:false"`
	MaxUsers           int64              `json:"max_users" gorm:"not null;default:0"`
	MaxStorageMB       int64              `json:"max_storage_mb" gorm:"not null;default:0"`
	MaxAPICalls        int64              `json:"max_api_calls" gorm:"not null;default:0"`
	Version            int64              `json:"version" gorm:"not null;default:1"`
	CreatedAt          time.Time          `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time          `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }
