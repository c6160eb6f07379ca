package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound     = errors.New("account_not_found")
	ErrConcurrencyConflict = errors.New("concurrency_conflict")
	ErrDuplicateEmail      = errors.New("duplicate_email")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	// UpdateSubscription writes the subscription fields of account only if
	// the stored version still equals account.Version. On success the
	// version is bumped in place; a lost race returns ErrConcurrencyConflict.
	UpdateSubscription(ctx context.Context, db *gorm.DB, account *Account) error
	Count(ctx context.Context, db *gorm.DB) (total int64, active int64, err error)
	// CountChurnedSince counts accounts cancelled, or scheduled to cancel,
	// within the trailing window.
	CountChurnedSince(ctx context.Context, db *gorm.DB, since time.Time) (int64, error)
}
