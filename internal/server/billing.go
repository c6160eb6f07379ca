package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/taxfolio/billing/internal/billing/domain"
	paymentdomain "github.com/taxfolio/billing/internal/payment/domain"
)

func (s *Server) ProcessWorkflow(c *gin.Context) {
	var req billingdomain.WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.Action = billingdomain.Action(strings.ToUpper(strings.TrimSpace(string(req.Action))))

	resp, err := s.billingSvc.ProcessWorkflow(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type completePaymentRequest struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

func (s *Server) CompletePayment(c *gin.Context) {
	var req completePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.billingSvc.CompletePayment(c.Request.Context(), c.Param("id"), paymentdomain.Confirmation{
		OrderID:   strings.TrimSpace(req.OrderID),
		PaymentID: strings.TrimSpace(req.PaymentID),
		Signature: strings.TrimSpace(req.Signature),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type refundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (s *Server) RefundPayment(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	refund, err := s.billingSvc.RefundPayment(c.Request.Context(), c.Param("id"), req.Amount, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refund": refund})
}

func (s *Server) GetBillingMetrics(c *gin.Context) {
	snapshot, err := s.billingSvc.Metrics(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
