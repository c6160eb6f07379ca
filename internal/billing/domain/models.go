// Package domain defines the billing workflow engine contract.
package domain

import (
	"context"
	"errors"

	paymentdomain "github.com/taxfolio/billing/internal/payment/domain"
)

// Action is the requested subscription transition.
type Action string

const (
	ActionUpgrade   Action = "UPGRADE"
	ActionDowngrade Action = "DOWNGRADE"
	ActionRenew     Action = "RENEW"
	ActionCancel    Action = "CANCEL"
)

// NextAction tells the caller what happens after a workflow step.
type NextAction string

const (
	NextActionCompletePayment       NextAction = "COMPLETE_PAYMENT"
	NextActionDowngradeScheduled    NextAction = "DOWNGRADE_SCHEDULED"
	NextActionCancellationScheduled NextAction = "CANCELLATION_SCHEDULED"
	NextActionSubscriptionUpdated   NextAction = "SUBSCRIPTION_UPDATED"
)

// WorkflowRequest asks the engine to run one subscription transition.
// TargetPlanID is ignored for CANCEL.
type WorkflowRequest struct {
	AccountID    string `json:"account_id"`
	TargetPlanID string `json:"target_plan_id"`
	Action       Action `json:"action"`
}

// WorkflowResponse is the outcome of a workflow step. PaymentIntent is
// set when the step opened or settled a charge.
type WorkflowResponse struct {
	Success       bool                         `json:"success"`
	NextAction    NextAction                   `json:"next_action,omitempty"`
	PaymentIntent *paymentdomain.PaymentIntent `json:"payment_intent,omitempty"`
	ErrorCode     string                       `json:"error_code,omitempty"`
}

// MetricsSnapshot is a point-in-time business rollup over the store.
type MetricsSnapshot struct {
	TotalAccounts       int64   `json:"total_accounts"`
	ActiveSubscriptions int64   `json:"active_subscriptions"`
	Revenue30d          int64   `json:"revenue_30d"`
	Churn30d            int64   `json:"churn_30d"`
	ChurnRate           float64 `json:"churn_rate"`
}

var (
	ErrInvalidAccountID     = errors.New("invalid_account_id")
	ErrInvalidAction        = errors.New("invalid_action")
	ErrNotAnUpgrade         = errors.New("target_plan_not_an_upgrade")
	ErrNotADowngrade        = errors.New("target_plan_not_a_downgrade")
	ErrFreePlanNotRenewable = errors.New("free_plan_not_renewable")
	ErrGateway              = errors.New("gateway_error")
	ErrPersistence          = errors.New("persistence_error")
)

// Service is the billing workflow engine.
type Service interface {
	ProcessWorkflow(ctx context.Context, req WorkflowRequest) (WorkflowResponse, error)
	CompletePayment(ctx context.Context, intentID string, conf paymentdomain.Confirmation) (WorkflowResponse, error)
	RefundPayment(ctx context.Context, intentID string, amount int64, reason string) (paymentdomain.Refund, error)
	Metrics(ctx context.Context) (MetricsSnapshot, error)
}
