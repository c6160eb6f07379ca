// Package fake provides an in-memory gateway for development and tests.
// It mirrors the razorpay signature scheme so clients can exercise the
// full completion flow without network access.
package fake

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/taxfolio/billing/internal/config"
	paymentdomain "github.com/taxfolio/billing/internal/payment/domain"
)

const defaultSecret = "fake_secret"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "fake"
}

func (f *Factory) NewGateway(cfg config.GatewayConfig) (paymentdomain.Gateway, error) {
	secret := strings.TrimSpace(cfg.KeySecret)
	if secret == "" {
		secret = defaultSecret
	}
	return &Gateway{secret: secret, orders: make(map[string]paymentdomain.OrderStatus)}, nil
}

type Gateway struct {
	mu     sync.Mutex
	secret string
	seq    int64
	orders map[string]paymentdomain.OrderStatus
}

// NewGateway builds a fake gateway directly, bypassing the factory.
// Tests use this to control the signing secret.
func NewGateway(secret string) *Gateway {
	if strings.TrimSpace(secret) == "" {
		secret = defaultSecret
	}
	return &Gateway{secret: secret, orders: make(map[string]paymentdomain.OrderStatus)}
}

func (g *Gateway) Name() string { return "fake" }

func (g *Gateway) CreateOrder(ctx context.Context, req paymentdomain.CreateOrderRequest) (paymentdomain.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	orderID := fmt.Sprintf("order_fake_%d", g.seq)
	g.orders[orderID] = paymentdomain.OrderStatus{
		OrderID:  orderID,
		Status:   "created",
		Amount:   req.Amount,
		Currency: req.Currency,
	}
	return paymentdomain.Order{OrderID: orderID, Status: "created"}, nil
}

func (g *Gateway) VerifyPayment(ctx context.Context, conf paymentdomain.Confirmation) (paymentdomain.Verification, error) {
	expected := g.Sign(conf.OrderID, conf.PaymentID)
	verified := hmac.Equal([]byte(strings.TrimSpace(conf.Signature)), []byte(expected))
	if !verified && len(conf.RawPayload) > 0 {
		verified = g.VerifyWebhookSignature(conf.RawPayload, conf.Signature)
	}
	return paymentdomain.Verification{
		Verified:  verified,
		OrderID:   conf.OrderID,
		PaymentID: conf.PaymentID,
	}, nil
}

func (g *Gateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.secret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.TrimSpace(signature)), []byte(expected))
}

func (g *Gateway) GetOrderStatus(ctx context.Context, orderID string) (paymentdomain.OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	status, ok := g.orders[strings.TrimSpace(orderID)]
	if !ok {
		return paymentdomain.OrderStatus{}, paymentdomain.ErrOrderNotFound
	}
	return status, nil
}

func (g *Gateway) RefundPayment(ctx context.Context, paymentID string, amount int64, reason string) (paymentdomain.Refund, error) {
	if strings.TrimSpace(paymentID) == "" || amount <= 0 {
		return paymentdomain.Refund{}, paymentdomain.ErrAmountOutOfRange
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	return paymentdomain.Refund{
		RefundID:  fmt.Sprintf("rfnd_fake_%d", g.seq),
		PaymentID: paymentID,
		Amount:    amount,
		Status:    "processed",
	}, nil
}

// Sign produces the checkout signature for an order and payment pair.
func (g *Gateway) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(g.secret))
	_, _ = mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
