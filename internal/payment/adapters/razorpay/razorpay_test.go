package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/taxfolio/billing/internal/config"
	paymentdomain "github.com/taxfolio/billing/internal/payment/domain"
)

func newTestGateway(t *testing.T, baseURL string) *Gateway {
	t.Helper()
	factory := NewFactory()
	gw, err := factory.NewGateway(config.GatewayConfig{
		Provider:      "razorpay",
		KeyID:         "rzp_test_key",
		KeySecret:     "rzp_test_secret",
		WebhookSecret: "whsec_test",
		BaseURL:       baseURL,
	})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return gw.(*Gateway)
}

func sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestFactoryRejectsMissingCredentials(t *testing.T) {
	factory := NewFactory()
	_, err := factory.NewGateway(config.GatewayConfig{Provider: "razorpay"})
	if !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/orders" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rzp_test_key" || pass != "rzp_test_secret" {
			t.Fatal("missing basic auth")
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["amount"].(float64) != 96666 {
			t.Fatalf("amount: %v", body["amount"])
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "order_test_1",
			"amount": 96666,
			"status": "created",
		})
	}))
	defer srv.Close()

	gw := newTestGateway(t, srv.URL)
	order, err := gw.CreateOrder(context.Background(), paymentdomain.CreateOrderRequest{
		Amount:   96666,
		Currency: "INR",
		Receipt:  "1234",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.OrderID != "order_test_1" || order.Status != "created" {
		t.Fatalf("order: %+v", order)
	}
}

func TestCreateOrderGatewayDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gw := newTestGateway(t, srv.URL)
	_, err := gw.CreateOrder(context.Background(), paymentdomain.CreateOrderRequest{Amount: 100, Currency: "INR"})
	if !errors.Is(err, paymentdomain.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestVerifyPaymentCheckoutSignature(t *testing.T) {
	gw := newTestGateway(t, "http://localhost:0")

	conf := paymentdomain.Confirmation{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: sign("order_1|pay_1", "rzp_test_secret"),
	}
	v, err := gw.VerifyPayment(context.Background(), conf)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !v.Verified {
		t.Fatal("valid checkout signature rejected")
	}

	conf.Signature = "forged"
	v, err = gw.VerifyPayment(context.Background(), conf)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.Verified {
		t.Fatal("forged signature accepted")
	}
}

func TestVerifyPaymentWebhookSignature(t *testing.T) {
	gw := newTestGateway(t, "http://localhost:0")
	payload := []byte(`{"event":"payment.captured"}`)

	v, err := gw.VerifyPayment(context.Background(), paymentdomain.Confirmation{
		OrderID:    "order_1",
		PaymentID:  "pay_1",
		Signature:  sign(string(payload), "whsec_test"),
		RawPayload: payload,
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !v.Verified {
		t.Fatal("valid webhook signature rejected")
	}

	if gw.VerifyWebhookSignature(payload, "forged") {
		t.Fatal("forged webhook signature accepted")
	}
}

func TestGetOrderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/orders/order_test_1" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":       "order_test_1",
				"amount":   9900,
				"currency": "INR",
				"status":   "paid",
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	gw := newTestGateway(t, srv.URL)
	status, err := gw.GetOrderStatus(context.Background(), "order_test_1")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status.Status != "paid" || status.Amount != 9900 {
		t.Fatalf("status: %+v", status)
	}

	if _, err := gw.GetOrderStatus(context.Background(), "order_missing"); !errors.Is(err, paymentdomain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestRefundPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/pay_1/refund" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":         "rfnd_1",
			"payment_id": "pay_1",
			"amount":     9900,
			"status":     "processed",
		})
	}))
	defer srv.Close()

	gw := newTestGateway(t, srv.URL)
	refund, err := gw.RefundPayment(context.Background(), "pay_1", 9900, "requested")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refund.RefundID != "rfnd_1" || refund.Amount != 9900 {
		t.Fatalf("refund: %+v", refund)
	}

	if _, err := gw.RefundPayment(context.Background(), "pay_1", 0, ""); !errors.Is(err, paymentdomain.ErrAmountOutOfRange) {
		t.Fatalf("expected ErrAmountOutOfRange, got %v", err)
	}
}
