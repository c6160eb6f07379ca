// Package repository implements the account store on gorm.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/taxfolio/billing/internal/account/domain"
	"github.com/taxfolio/billing/internal/clock"
	pkgdb "github.com/taxfolio/billing/pkg/db"
	"go.uber.org/fx"
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

func (r *repository) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	now := r.clock.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	if account.Version == 0 {
		account.Version = 1
	}
	if err := db.WithContext(ctx).Create(account).Error; err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return domain.ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// UpdateSubscription is a compare-and-swap on the version column. Every
// subscription mutation goes through here so concurrent workflows on the
// same account serialize instead of silently overwriting each other.
func (r *repository) UpdateSubscription(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	var endsAt any
	if account.SubscriptionEndsAt != nil {
		endsAt = *account.SubscriptionEndsAt
	}

	res := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ? AND version = ?", account.ID, account.Version).
		Updates(map[string]any{
			"subscription_plan":    account.SubscriptionPlan,
			"subscription_status":  account.SubscriptionStatus,
			"subscription_ends_at": endsAt,
			"cancel_at_period_end": account.CancelAtPeriodEnd,
			"max_users":            account.MaxUsers,
			"max_storage_mb":       account.MaxStorageMB,
			"max_api_calls":        account.MaxAPICalls,
			"version":              account.Version + 1,
			"updated_at":           r.clock.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrencyConflict
	}
	account.Version++
	account.UpdatedAt = r.clock.Now()
	return nil
}

func (r *repository) Count(ctx context.Context, db *gorm.DB) (int64, int64, error) {
	var total, active int64
	if err := db.WithContext(ctx).Model(&domain.Account{}).Count(&total).Error; err != nil {
		return 0, 0, err
	}
	err := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("subscription_status = ?", domain.SubscriptionStatusActive).
		Count(&active).Error
	if err != nil {
		return 0, 0, err
	}
	return total, active, nil
}

func (r *repository) CountChurnedSince(ctx context.Context, db *gorm.DB, since time.Time) (int64, error) {
	var churned int64
	err := db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("(subscription_status = ? OR cancel_at_period_end = ?) AND updated_at >= ?",
			domain.SubscriptionStatusCancelled, true, since).
		Count(&churned).Error
	return churned, err
}
