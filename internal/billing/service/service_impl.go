// Package service implements the billing workflow engine.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/taxfolio/billing/internal/account/domain"
	"github.com/taxfolio/billing/internal/billing/domain"
	"github.com/taxfolio/billing/internal/clock"
	"github.com/taxfolio/billing/internal/locks"
	"github.com/taxfolio/billing/internal/notification"
	"github.com/taxfolio/billing/internal/observability/metrics"
	paymentdomain "github.com/taxfolio/billing/internal/payment/domain"
	"github.com/taxfolio/billing/internal/plan"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	subscriptionPeriod = 30 * 24 * time.Hour
	maxUpdateRetries   = 3
	completionLockTTL  = 30 * time.Second
)

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	node       *snowflake.Node
	clock      clock.Clock
	catalog    *plan.Catalog
	accounts   accountdomain.Repository
	intents    paymentdomain.Repository
	gateway    paymentdomain.Gateway
	dispatcher *notification.Dispatcher
	metrics    *metrics.Metrics
	locker     *locks.Locker
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Node       *snowflake.Node
	Clock      clock.Clock
	Catalog    *plan.Catalog
	Accounts   accountdomain.Repository
	Intents    paymentdomain.Repository
	Gateway    paymentdomain.Gateway
	Dispatcher *notification.Dispatcher
	Metrics    *metrics.Metrics
	Locker     *locks.Locker `optional:"true"`
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billing.service"),
		node:       p.Node,
		clock:      p.Clock,
		catalog:    p.Catalog,
		accounts:   p.Accounts,
		intents:    p.Intents,
		gateway:    p.Gateway,
		dispatcher: p.Dispatcher,
		metrics:    p.Metrics,
		locker:     p.Locker,
	}
}

func (s *Service) ProcessWorkflow(ctx context.Context, req domain.WorkflowRequest) (domain.WorkflowResponse, error) {
	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil {
		return s.reject(ctx, req.Action, domain.ErrInvalidAccountID)
	}

	account, err := s.accounts.FindByID(ctx, s.db, accountID)
	if err != nil {
		if errors.Is(err, accountdomain.ErrAccountNotFound) {
			return s.reject(ctx, req.Action, err)
		}
		return s.reject(ctx, req.Action, fmt.Errorf("%w: %v", domain.ErrPersistence, err))
	}

	var resp domain.WorkflowResponse
	switch req.Action {
	case domain.ActionUpgrade:
		resp, err = s.upgrade(ctx, account, req.TargetPlanID)
	case domain.ActionDowngrade:
		resp, err = s.downgrade(ctx, account, req.TargetPlanID)
	case domain.ActionRenew:
		resp, err = s.renew(ctx, account)
	case domain.ActionCancel:
		resp, err = s.cancel(ctx, account)
	default:
		return s.reject(ctx, req.Action, domain.ErrInvalidAction)
	}

	if err != nil {
		s.metrics.RecordWorkflow(ctx, string(req.Action), "error")
		if resp.ErrorCode == "" {
			resp.ErrorCode = errorCode(err)
		}
		return resp, err
	}
	s.metrics.RecordWorkflow(ctx, string(req.Action), "success")
	return resp, nil
}

func (s *Service) upgrade(ctx context.Context, account *accountdomain.Account, targetPlanID string) (domain.WorkflowResponse, error) {
	target, err := s.catalog.GetPlan(targetPlanID)
	if err != nil {
		return domain.WorkflowResponse{}, err
	}

	// A plan that has since left the catalog grants no proration credit.
	current, err := s.catalog.GetPlan(account.SubscriptionPlan)
	if err != nil {
		s.log.Warn("current plan missing from catalog, treating as free",
			zap.String("plan_id", account.SubscriptionPlan),
			zap.Int64("account_id", int64(account.ID)),
		)
		current = plan.Plan{}
	}
	if target.Price <= current.Price {
		return domain.WorkflowResponse{}, domain.ErrNotAnUpgrade
	}

	amount := ProratedUpgradeAmount(current, target, account.SubscriptionEndsAt, s.clock.Now())
	return s.openIntent(ctx, account, target, amount, "upgrade")
}

func (s *Service) downgrade(ctx context.Context, account *accountdomain.Account, targetPlanID string) (domain.WorkflowResponse, error) {
	target, err := s.catalog.GetPlan(targetPlanID)
	if err != nil {
		return domain.WorkflowResponse{}, err
	}
	// Equal prices are allowed; lateral moves go through DOWNGRADE since
	// UPGRADE requires a strictly higher price.
	current, err := s.catalog.GetPlan(account.SubscriptionPlan)
	if err == nil && target.Price > current.Price {
		return domain.WorkflowResponse{}, domain.ErrNotADowngrade
	}

	// Entitlements shrink immediately; the already-paid period keeps its
	// end date and no credit is issued.
	updated, err := s.applyAccountUpdate(ctx, account.ID, func(a *accountdomain.Account) {
		a.SubscriptionPlan = target.ID
		a.MaxUsers = target.Entitlements.MaxUsers
		a.MaxStorageMB = target.Entitlements.MaxStorageMB
		a.MaxAPICalls = target.Entitlements.MaxAPICalls
	})
	if err != nil {
		return domain.WorkflowResponse{}, err
	}

	s.dispatcher.SendSubscriptionChange(ctx, notification.SubscriptionChange{
		Email:       updated.Email,
		Name:        updated.Name,
		PlanName:    target.Name,
		Kind:        "downgrade",
		EffectiveAt: nil,
	})

	return domain.WorkflowResponse{Success: true, NextAction: domain.NextActionDowngradeScheduled}, nil
}

func (s *Service) renew(ctx context.Context, account *accountdomain.Account) (domain.WorkflowResponse, error) {
	current, err := s.catalog.GetPlan(account.SubscriptionPlan)
	if err != nil {
		return domain.WorkflowResponse{}, err
	}
	if current.IsFree() {
		return domain.WorkflowResponse{}, domain.ErrFreePlanNotRenewable
	}
	return s.openIntent(ctx, account, current, current.Price, "renewal")
}

func (s *Service) cancel(ctx context.Context, account *accountdomain.Account) (domain.WorkflowResponse, error) {
	updated, err := s.applyAccountUpdate(ctx, account.ID, func(a *accountdomain.Account) {
		a.CancelAtPeriodEnd = true
	})
	if err != nil {
		return domain.WorkflowResponse{}, err
	}

	current, planErr := s.catalog.GetPlan(updated.SubscriptionPlan)
	planName := updated.SubscriptionPlan
	if planErr == nil {
		planName = current.Name
	}
	s.dispatcher.SendSubscriptionChange(ctx, notification.SubscriptionChange{
		Email:       updated.Email,
		Name:        updated.Name,
		PlanName:    planName,
		Kind:        "cancellation",
		EffectiveAt: updated.SubscriptionEndsAt,
	})

	return domain.WorkflowResponse{Success: true, NextAction: domain.NextActionCancellationScheduled}, nil
}

// openIntent records a PENDING intent before touching the gateway. A
// gateway failure leaves the intent orphaned in PENDING; it can never
// settle because no order exists, and the account is untouched.
func (s *Service) openIntent(ctx context.Context, account *accountdomain.Account, target plan.Plan, amount int64, verb string) (domain.WorkflowResponse, error) {
	intent := &paymentdomain.PaymentIntent{
		ID:          s.node.Generate(),
		AccountID:   account.ID,
		PlanID:      target.ID,
		Amount:      amount,
		Currency:    target.Currency,
		Status:      paymentdomain.IntentStatusPending,
		Gateway:     s.gateway.Name(),
		Description: fmt.Sprintf("Taxfolio %s plan %s", target.Name, verb),
	}
	if err := s.intents.Insert(ctx, s.db, intent); err != nil {
		return domain.WorkflowResponse{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	order, err := s.gateway.CreateOrder(ctx, paymentdomain.CreateOrderRequest{
		Amount:   amount,
		Currency: target.Currency,
		Receipt:  intent.ID.String(),
		Notes: map[string]string{
			"account_id": account.ID.String(),
			"plan_id":    target.ID,
			"intent_id":  intent.ID.String(),
		},
	})
	if err != nil {
		s.metrics.RecordGatewayError(ctx, s.gateway.Name(), "create_order")
		s.log.Warn("gateway order creation failed, intent left pending",
			zap.Int64("intent_id", int64(intent.ID)),
			zap.Error(err),
		)
		return domain.WorkflowResponse{ErrorCode: errorCode(domain.ErrGateway)},
			fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}

	if err := s.intents.SetGatewayOrderID(ctx, s.db, intent.ID, order.OrderID); err != nil {
		s.log.Error("gateway order created but intent update failed",
			zap.Int64("intent_id", int64(intent.ID)),
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
		return domain.WorkflowResponse{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	intent.GatewayOrderID = &order.OrderID

	return domain.WorkflowResponse{
		Success:       true,
		NextAction:    domain.NextActionCompletePayment,
		PaymentIntent: intent,
	}, nil
}

// completionRecord is the normalized raw response stored on settled
// intents. PaymentID is required later for refunds.
type completionRecord struct {
	OrderID   string          `json:"order_id"`
	PaymentID string          `json:"payment_id"`
	Webhook   json.RawMessage `json:"webhook,omitempty"`
}

func (s *Service) CompletePayment(ctx context.Context, intentID string, conf paymentdomain.Confirmation) (domain.WorkflowResponse, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(intentID))
	if err != nil {
		return domain.WorkflowResponse{ErrorCode: errorCode(paymentdomain.ErrIntentNotFound)}, paymentdomain.ErrIntentNotFound
	}

	intent, err := s.intents.FindByID(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrIntentNotFound) {
			return domain.WorkflowResponse{ErrorCode: errorCode(err)}, err
		}
		return domain.WorkflowResponse{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if intent.Status != paymentdomain.IntentStatusPending {
		return s.replayResponse(intent)
	}

	// Shed concurrent deliveries of the same completion when redis is
	// around. The conditional status transition below stays the real
	// barrier; losing the lock race only means a wasted verify call.
	if s.locker != nil {
		key := "billing:completion:" + intent.ID.String()
		token, acquired, lockErr := s.locker.TryLock(ctx, key, completionLockTTL)
		if lockErr == nil && acquired {
			defer func() { _ = s.locker.Release(ctx, key, token) }()
		}
	}

	verification, err := s.gateway.VerifyPayment(ctx, conf)
	if err != nil {
		s.metrics.RecordGatewayError(ctx, s.gateway.Name(), "verify_payment")
		s.metrics.RecordCompletion(ctx, s.gateway.Name(), "gateway_error")
		return domain.WorkflowResponse{ErrorCode: errorCode(domain.ErrGateway)},
			fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}

	raw, _ := json.Marshal(completionRecord{
		OrderID:   conf.OrderID,
		PaymentID: conf.PaymentID,
		Webhook:   conf.RawPayload,
	})

	if !verification.Verified {
		if _, markErr := s.intents.MarkFailed(ctx, s.db, intent.ID, raw); markErr != nil {
			s.log.Error("failed to record rejected payment", zap.Int64("intent_id", int64(intent.ID)), zap.Error(markErr))
		}
		s.metrics.RecordCompletion(ctx, s.gateway.Name(), "invalid_signature")
		return domain.WorkflowResponse{ErrorCode: errorCode(paymentdomain.ErrInvalidSignature)},
			paymentdomain.ErrInvalidSignature
	}

	now := s.clock.Now()
	won, err := s.intents.MarkSucceeded(ctx, s.db, intent.ID, now, raw)
	if err != nil {
		return domain.WorkflowResponse{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if !won {
		settled, findErr := s.intents.FindByID(ctx, s.db, id)
		if findErr != nil {
			return domain.WorkflowResponse{}, fmt.Errorf("%w: %v", domain.ErrPersistence, findErr)
		}
		return s.replayResponse(settled)
	}

	resp, err := s.applySettlement(ctx, intent, now)
	if err != nil {
		return resp, err
	}

	intent.Status = paymentdomain.IntentStatusSuccess
	intent.PaidAt = &now
	intent.RawGatewayResponse = raw
	resp.PaymentIntent = intent

	s.metrics.RecordCompletion(ctx, s.gateway.Name(), "success")
	return resp, nil
}

// applySettlement moves the account onto the paid plan after the intent
// has been marked SUCCESS. Failures here are loud: the money is recorded
// and the subscription must follow.
func (s *Service) applySettlement(ctx context.Context, intent *paymentdomain.PaymentIntent, paidAt time.Time) (domain.WorkflowResponse, error) {
	target, planErr := s.catalog.GetPlan(intent.PlanID)
	if planErr != nil {
		s.log.Error("settled intent references plan missing from catalog, extending period only",
			zap.Int64("intent_id", int64(intent.ID)),
			zap.String("plan_id", intent.PlanID),
		)
	}

	endsAt := paidAt.Add(subscriptionPeriod)
	account, err := s.applyAccountUpdate(ctx, intent.AccountID, func(a *accountdomain.Account) {
		if planErr == nil {
			a.SubscriptionPlan = target.ID
			a.MaxUsers = target.Entitlements.MaxUsers
			a.MaxStorageMB = target.Entitlements.MaxStorageMB
			a.MaxAPICalls = target.Entitlements.MaxAPICalls
		}
		a.SubscriptionStatus = accountdomain.SubscriptionStatusActive
		a.SubscriptionEndsAt = &endsAt
		a.CancelAtPeriodEnd = false
	})
	if err != nil {
		s.log.Error("payment recorded but subscription update failed",
			zap.Int64("intent_id", int64(intent.ID)),
			zap.Int64("account_id", int64(intent.AccountID)),
			zap.Error(err),
		)
		return domain.WorkflowResponse{ErrorCode: errorCode(err)}, err
	}

	planName := intent.PlanID
	if planErr == nil {
		planName = target.Name
	}
	s.dispatcher.SendPaymentConfirmation(ctx, notification.PaymentConfirmation{
		Email:    account.Email,
		Name:     account.Name,
		PlanName: planName,
		Amount:   intent.Amount,
		Currency: intent.Currency,
		PaidAt:   paidAt,
	})

	return domain.WorkflowResponse{Success: true, NextAction: domain.NextActionSubscriptionUpdated}, nil
}

func (s *Service) RefundPayment(ctx context.Context, intentID string, amount int64, reason string) (paymentdomain.Refund, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(intentID))
	if err != nil {
		return paymentdomain.Refund{}, paymentdomain.ErrIntentNotFound
	}
	intent, err := s.intents.FindByID(ctx, s.db, id)
	if err != nil {
		return paymentdomain.Refund{}, err
	}
	if intent.Status != paymentdomain.IntentStatusSuccess {
		return paymentdomain.Refund{}, paymentdomain.ErrRefundNotSupported
	}

	if amount <= 0 {
		amount = intent.Amount
	}
	if amount > intent.Amount {
		return paymentdomain.Refund{}, paymentdomain.ErrAmountOutOfRange
	}

	var record completionRecord
	if err := json.Unmarshal(intent.RawGatewayResponse, &record); err != nil || record.PaymentID == "" {
		return paymentdomain.Refund{}, paymentdomain.ErrRefundNotSupported
	}

	refund, err := s.gateway.RefundPayment(ctx, record.PaymentID, amount, reason)
	if err != nil {
		s.metrics.RecordGatewayError(ctx, s.gateway.Name(), "refund_payment")
		return paymentdomain.Refund{}, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}
	s.log.Info("refund issued",
		zap.Int64("intent_id", int64(intent.ID)),
		zap.String("refund_id", refund.RefundID),
		zap.Int64("amount", amount),
	)
	return refund, nil
}

func (s *Service) Metrics(ctx context.Context) (domain.MetricsSnapshot, error) {
	total, active, err := s.accounts.Count(ctx, s.db)
	if err != nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	since := s.clock.Now().Add(-subscriptionPeriod)
	revenue, err := s.intents.SumSucceededSince(ctx, s.db, since)
	if err != nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	churned, err := s.accounts.CountChurnedSince(ctx, s.db, since)
	if err != nil {
		return domain.MetricsSnapshot{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	snapshot := domain.MetricsSnapshot{
		TotalAccounts:       total,
		ActiveSubscriptions: active,
		Revenue30d:          revenue,
		Churn30d:            churned,
	}
	if total > 0 {
		snapshot.ChurnRate = float64(churned) / float64(total)
	}
	return snapshot, nil
}

// applyAccountUpdate retries the optimistic write a bounded number of
// times, re-reading the row before each attempt.
func (s *Service) applyAccountUpdate(ctx context.Context, id snowflake.ID, mutate func(*accountdomain.Account)) (*accountdomain.Account, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		account, err := s.accounts.FindByID(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		mutate(account)

		err = s.accounts.UpdateSubscription(ctx, s.db, account)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, accountdomain.ErrConcurrencyConflict) {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
	}
	return nil, accountdomain.ErrConcurrencyConflict
}

// replayResponse echoes the stored outcome of an already-settled intent
// so redeliveries observe the same result as the delivery that won.
func (s *Service) replayResponse(intent *paymentdomain.PaymentIntent) (domain.WorkflowResponse, error) {
	if intent.Status == paymentdomain.IntentStatusFailed {
		return domain.WorkflowResponse{
			ErrorCode:     errorCode(paymentdomain.ErrInvalidSignature),
			PaymentIntent: intent,
		}, paymentdomain.ErrInvalidSignature
	}
	return domain.WorkflowResponse{
		Success:       true,
		NextAction:    domain.NextActionSubscriptionUpdated,
		PaymentIntent: intent,
	}, nil
}

func (s *Service) reject(ctx context.Context, action domain.Action, err error) (domain.WorkflowResponse, error) {
	s.metrics.RecordWorkflow(ctx, string(action), "error")
	return domain.WorkflowResponse{ErrorCode: errorCode(err)}, err
}

// errorCode extracts the stable sentinel identifier from an error chain.
func errorCode(err error) string {
	for _, sentinel := range []error{
		domain.ErrInvalidAccountID,
		domain.ErrInvalidAction,
		domain.ErrNotAnUpgrade,
		domain.ErrNotADowngrade,
		domain.ErrFreePlanNotRenewable,
		domain.ErrGateway,
		domain.ErrPersistence,
		accountdomain.ErrAccountNotFound,
		accountdomain.ErrConcurrencyConflict,
		paymentdomain.ErrIntentNotFound,
		paymentdomain.ErrInvalidSignature,
		plan.ErrPlanNotFound,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal_error"
}
