// Package repository implements the payment intent store on gorm.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/taxfolio/billing/internal/clock"
	"github.com/taxfolio/billing/internal/payment/domain"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repository struct {
	clock clock.Clock
}

type Params struct {
	fx.In

	Clock clock.Clock
}

func New(p Params) domain.Repository {
	return &repository{clock: p.Clock}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, intent *domain.PaymentIntent) error {
	now := r.clock.Now()
	intent.CreatedAt = now
	intent.UpdatedAt = now
	if intent.Status == "" {
		intent.Status = domain.IntentStatusPending
	}
	return db.WithContext(ctx).Create(intent).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := db.WithContext(ctx).Where("id = ?", id).First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrIntentNotFound
		}
		return nil, err
	}
	return &intent, nil
}

func (r *repository) SetGatewayOrderID(ctx context.Context, db *gorm.DB, id snowflake.ID, orderID string) error {
	res := db.WithContext(ctx).
		Model(&domain.PaymentIntent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"gateway_order_id": orderID,
			"updated_at":       r.clock.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrIntentNotFound
	}
	return nil
}

// MarkSucceeded and MarkFailed guard on the PENDING status in the WHERE
// clause. The row transition, not a lock, is the idempotency barrier for
// duplicate completion deliveries.
func (r *repository) MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time, raw []byte) (bool, error) {
	return r.finalize(ctx, db, id, map[string]any{
		"status":               domain.IntentStatusSuccess,
		"paid_at":              paidAt,
		"raw_gateway_response": datatypes.JSON(raw),
		"updated_at":           r.clock.Now(),
	})
}

func (r *repository) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, raw []byte) (bool, error) {
	return r.finalize(ctx, db, id, map[string]any{
		"status":               domain.IntentStatusFailed,
		"raw_gateway_response": datatypes.JSON(raw),
		"updated_at":           r.clock.Now(),
	})
}

func (r *repository) finalize(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.PaymentIntent{}).
		Where("id = ? AND status = ?", id, domain.IntentStatusPending).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SumSucceededSince(ctx context.Context, db *gorm.DB, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.PaymentIntent{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("status = ? AND paid_at >= ?", domain.IntentStatusSuccess, since).
		Scan(&total).Error
	return total, err
}
