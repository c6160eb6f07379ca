package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/taxfolio/billing/internal/account/domain"
	"github.com/taxfolio/billing/internal/clock"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&domain.Account{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func seedAccount(t *testing.T, repo domain.Repository, db *gorm.DB, node *snowflake.Node) *domain.Account {
	t.Helper()
	id := node.Generate()
	account := &domain.Account{
		ID:                 id,
		Email:              fmt.Sprintf("filer-%s@example.in", id),
		SubscriptionPlan:   "PERSONAL",
		SubscriptionStatus: domain.SubscriptionStatusActive,
		MaxUsers:           1,
		MaxStorageMB:       1024,
		MaxAPICalls:        10000,
		Version:            1,
	}
	if err := repo.Insert(context.Background(), db, account); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return account
}

func TestUpdateSubscriptionBumpsVersion(t *testing.T) {
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(1)
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	repo := New(Params{Clock: fc})
	account := seedAccount(t, repo, db, node)

	account.SubscriptionPlan = "BUSINESS"
	account.CancelAtPeriodEnd = true
	if err := repo.UpdateSubscription(context.Background(), db, account); err != nil {
		t.Fatalf("update: %v", err)
	}
	if account.Version != 2 {
		t.Fatalf("version: got %d, want 2", account.Version)
	}

	stored, err := repo.FindByID(context.Background(), db, account.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.SubscriptionPlan != "BUSINESS" || !stored.CancelAtPeriodEnd || stored.Version != 2 {
		t.Fatalf("stored account: %+v", stored)
	}
}

func TestUpdateSubscriptionDetectsLostRace(t *testing.T) {
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(1)
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	repo := New(Params{Clock: fc})
	account := seedAccount(t, repo, db, node)
	ctx := context.Background()

	// Two readers hold version 1; only the first write lands.
	stale, err := repo.FindByID(ctx, db, account.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	account.SubscriptionPlan = "BUSINESS"
	if err := repo.UpdateSubscription(ctx, db, account); err != nil {
		t.Fatalf("first update: %v", err)
	}

	stale.CancelAtPeriodEnd = true
	err = repo.UpdateSubscription(ctx, db, stale)
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}

	stored, err := repo.FindByID(ctx, db, account.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.CancelAtPeriodEnd {
		t.Fatal("lost write must not land")
	}
	if stored.SubscriptionPlan != "BUSINESS" {
		t.Fatalf("winning write missing: %+v", stored)
	}
}

func TestInsertRejectsDuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(1)
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	repo := New(Params{Clock: fc})
	ctx := context.Background()

	first := seedAccount(t, repo, db, node)

	dup := &domain.Account{
		ID:                 node.Generate(),
		Email:              first.Email,
		SubscriptionPlan:   "FREE",
		SubscriptionStatus: domain.SubscriptionStatusActive,
		Version:            1,
	}
	if err := repo.Insert(ctx, db, dup); !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestFindByIDNotFound(t *testing.T) {
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(1)
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	repo := New(Params{Clock: fc})

	_, err := repo.FindByID(context.Background(), db, node.Generate())
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestCountChurnedSince(t *testing.T) {
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(1)
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	repo := New(Params{Clock: fc})
	ctx := context.Background()

	seedAccount(t, repo, db, node)

	scheduled := seedAccount(t, repo, db, node)
	scheduled.CancelAtPeriodEnd = true
	if err := repo.UpdateSubscription(ctx, db, scheduled); err != nil {
		t.Fatalf("update: %v", err)
	}

	cancelled := seedAccount(t, repo, db, node)
	cancelled.SubscriptionStatus = domain.SubscriptionStatusCancelled
	if err := repo.UpdateSubscription(ctx, db, cancelled); err != nil {
		t.Fatalf("update: %v", err)
	}

	churned, err := repo.CountChurnedSince(ctx, db, fc.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("count churned: %v", err)
	}
	if churned != 2 {
		t.Fatalf("churned: got %d, want 2", churned)
	}

	total, activeCount, err := repo.Count(ctx, db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 3 || activeCount != 2 {
		t.Fatalf("counts: total=%d active=%d", total, activeCount)
	}
}
