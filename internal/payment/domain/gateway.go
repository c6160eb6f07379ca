package domain

import (
	"context"
	"errors"

	"github.com/taxfolio/billing/internal/config"
)

var (
	ErrIntentNotFound     = errors.New("payment_intent_not_found")
	ErrInvalidSignature   = errors.New("invalid_payment_signature")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrProviderNotFound   = errors.New("payment_provider_not_found")
	ErrInvalidConfig      = errors.New("invalid_gateway_config")
	ErrInvalidPayload     = errors.New("invalid_gateway_payload")
	ErrOrderNotFound      = errors.New("gateway_order_not_found")
	ErrRefundNotSupported = errors.New("refund_not_supported")
	ErrAmountOutOfRange   = errors.New("refund_amount_out_of_range")
)

// CreateOrderRequest asks the gateway to open an order for a pending intent.
type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Order is the gateway-side handle for a charge.
type Order struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// Confirmation carries the proof of payment presented to complete an
// intent. Checkout callbacks set Signature over OrderID|PaymentID; webhook
// deliveries set Signature over RawPayload instead.
type Confirmation struct {
	OrderID    string `json:"order_id"`
	PaymentID  string `json:"payment_id"`
	Signature  string `json:"signature"`
	RawPayload []byte `json:"-"`
}

// Verification is the gateway's judgement on a Confirmation.
type Verification struct {
	Verified  bool   `json:"verified"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
}

// OrderStatus reports the gateway-side state of an order.
type OrderStatus struct {
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Refund is the gateway-side handle for a reversal.
type Refund struct {
	RefundID  string `json:"refund_id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// Gateway is the payment provider port. Implementations must not touch
// the billing store; settlement state lives with the caller.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error)
	VerifyPayment(ctx context.Context, conf Confirmation) (Verification, error)
	GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
	RefundPayment(ctx context.Context, paymentID string, amount int64, reason string) (Refund, error)
}

// WebhookVerifier is implemented by gateways that sign webhook deliveries
// separately from checkout confirmations.
type WebhookVerifier interface {
	VerifyWebhookSignature(payload []byte, signature string) bool
}

// GatewayFactory constructs a Gateway from provider credentials.
type GatewayFactory interface {
	Provider() string
	NewGateway(cfg config.GatewayConfig) (Gateway, error)
}
