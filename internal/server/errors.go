package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/taxfolio/billing/internal/account/domain"
	billingdomain "github.com/taxfolio/billing/internal/billing/domain"
	paymentdomain "github.com/taxfolio/billing/internal/payment/domain"
	"github.com/taxfolio/billing/internal/plan"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    err.Error(),
			Message: "validation error",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "payment_rejected",
			Code:    paymentdomain.ErrInvalidSignature.Error(),
			Message: "payment verification failed",
		}
	case errors.Is(err, accountdomain.ErrDuplicateEmail):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    accountdomain.ErrDuplicateEmail.Error(),
			Message: "an account with this email already exists",
		}
	case errors.Is(err, accountdomain.ErrConcurrencyConflict),
		errors.Is(err, paymentdomain.ErrRefundNotSupported):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, billingdomain.ErrGateway),
		errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: "payment gateway error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, billingdomain.ErrInvalidAccountID),
		errors.Is(err, billingdomain.ErrInvalidAction),
		errors.Is(err, billingdomain.ErrNotAnUpgrade),
		errors.Is(err, billingdomain.ErrNotADowngrade),
		errors.Is(err, billingdomain.ErrFreePlanNotRenewable),
		errors.Is(err, paymentdomain.ErrAmountOutOfRange),
		errors.Is(err, paymentdomain.ErrInvalidPayload):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, accountdomain.ErrAccountNotFound),
		errors.Is(err, paymentdomain.ErrIntentNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, plan.ErrPlanNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog buckets errors for request log fields.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status == http.StatusBadGateway:
		return "gateway_error", payload.Type
	case status >= http.StatusInternalServerError:
		return "server_error", payload.Type
	default:
		return "client_error", payload.Type
	}
}
