// Package domain contains the payment intent model and the gateway port.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// IntentStatus is the settlement state of a payment intent.
type IntentStatus string

const (
	IntentStatusPending IntentStatus = "PENDING"
	IntentStatusSuccess IntentStatus = "SUCCESS"
	IntentStatusFailed  IntentStatus = "FAILED"
)

// PaymentIntent records one charge attempt against a gateway. Amounts are
// in the smallest currency unit. PlanID is the plan the payment buys, so
// completion can apply the right entitlements even if the account moved on.
type PaymentIntent struct {
	ID                 snowflake.ID   `json:"id" gorm:"primaryKey"`
	AccountID          snowflake.ID   `json:"account_id" gorm:"not null;index"`
	PlanID             string         `json:"plan_id" gorm:"type:text;not null"`
	Amount             int64          `json:"amount" gorm:"not null"`
	Currency           string         `json:"currency" gorm:"type:text;not null"`
	Status             IntentStatus   `json:"status" gorm:"type:text;not null;index"`
	Gateway            string         `json:"gateway" gorm:"type:text;not null"`
	GatewayOrderID     *string        `json:"gateway_order_id" gorm:"index"`
	Description        string         `json:"description" gorm:"type:text"`
	PaidAt             *time.Time     `json:"paid_at"`
	RawGatewayResponse datatypes.JSON `json:"raw_gateway_response"`
	CreatedAt          time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PaymentIntent) TableName() string { return "payment_intents" }
