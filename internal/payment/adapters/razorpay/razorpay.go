// Package razorpay implements the gateway port against the Razorpay
// Orders API.
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/taxfolio/billing/internal/config"
	paymentdomain "github.com/taxfolio/billing/internal/payment/domain"
)

const defaultBaseURL = "https://api.razorpay.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "razorpay"
}

func (f *Factory) NewGateway(cfg config.GatewayConfig) (paymentdomain.Gateway, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || keySecret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Gateway{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		baseURL:       baseURL,
		client:        &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type Gateway struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	client        *http.Client
}

func (g *Gateway) Name() string { return "razorpay" }

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type razorpayRefund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

func (g *Gateway) CreateOrder(ctx context.Context, req paymentdomain.CreateOrderRequest) (paymentdomain.Order, error) {
	body := map[string]any{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}

	var order razorpayOrder
	if err := g.do(ctx, http.MethodPost, "/v1/orders", body, &order); err != nil {
		return paymentdomain.Order{}, err
	}
	if strings.TrimSpace(order.ID) == "" {
		return paymentdomain.Order{}, paymentdomain.ErrInvalidPayload
	}
	return paymentdomain.Order{OrderID: order.ID, Status: order.Status}, nil
}

// VerifyPayment accepts either signature scheme Razorpay uses: checkout
// callbacks sign "orderID|paymentID" with the key secret, webhook
// deliveries sign the raw body with the webhook secret.
func (g *Gateway) VerifyPayment(ctx context.Context, conf paymentdomain.Confirmation) (paymentdomain.Verification, error) {
	signature := strings.TrimSpace(conf.Signature)
	if signature == "" {
		return paymentdomain.Verification{OrderID: conf.OrderID, PaymentID: conf.PaymentID}, nil
	}

	payload := fmt.Sprintf("%s|%s", conf.OrderID, conf.PaymentID)
	if verifyHMAC([]byte(payload), signature, g.keySecret) {
		return paymentdomain.Verification{Verified: true, OrderID: conf.OrderID, PaymentID: conf.PaymentID}, nil
	}
	if len(conf.RawPayload) > 0 && g.VerifyWebhookSignature(conf.RawPayload, signature) {
		return paymentdomain.Verification{Verified: true, OrderID: conf.OrderID, PaymentID: conf.PaymentID}, nil
	}
	return paymentdomain.Verification{OrderID: conf.OrderID, PaymentID: conf.PaymentID}, nil
}

func (g *Gateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	if g.webhookSecret == "" {
		return false
	}
	return verifyHMAC(payload, strings.TrimSpace(signature), g.webhookSecret)
}

func (g *Gateway) GetOrderStatus(ctx context.Context, orderID string) (paymentdomain.OrderStatus, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return paymentdomain.OrderStatus{}, paymentdomain.ErrOrderNotFound
	}

	var order razorpayOrder
	if err := g.do(ctx, http.MethodGet, "/v1/orders/"+orderID, nil, &order); err != nil {
		return paymentdomain.OrderStatus{}, err
	}
	return paymentdomain.OrderStatus{
		OrderID:  order.ID,
		Status:   order.Status,
		Amount:   order.Amount,
		Currency: order.Currency,
	}, nil
}

func (g *Gateway) RefundPayment(ctx context.Context, paymentID string, amount int64, reason string) (paymentdomain.Refund, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" || amount <= 0 {
		return paymentdomain.Refund{}, paymentdomain.ErrAmountOutOfRange
	}

	body := map[string]any{"amount": amount}
	if reason = strings.TrimSpace(reason); reason != "" {
		body["notes"] = map[string]string{"reason": reason}
	}

	var refund razorpayRefund
	path := fmt.Sprintf("/v1/payments/%s/refund", paymentID)
	if err := g.do(ctx, http.MethodPost, path, body, &refund); err != nil {
		return paymentdomain.Refund{}, err
	}
	return paymentdomain.Refund{
		RefundID:  refund.ID,
		PaymentID: refund.PaymentID,
		Amount:    refund.Amount,
		Status:    refund.Status,
	}, nil
}

func (g *Gateway) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if resp.StatusCode == http.StatusNotFound {
			return paymentdomain.ErrOrderNotFound
		}
		return fmt.Errorf("%w: status %d", paymentdomain.ErrGatewayUnavailable, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	return nil
}

func verifyHMAC(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
