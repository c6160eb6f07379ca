package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, intent *PaymentIntent) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PaymentIntent, error)
	SetGatewayOrderID(ctx context.Context, db *gorm.DB, id snowflake.ID, orderID string) error
	// MarkSucceeded flips a PENDING intent to SUCCESS. Returns false when
	// the intent was already finalized; only one caller ever wins.
	MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time, raw []byte) (bool, error)
	// MarkFailed flips a PENDING intent to FAILED under the same guard.
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, raw []byte) (bool, error)
	SumSucceededSince(ctx context.Context, db *gorm.DB, since time.Time) (int64, error)
}
