package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/taxfolio/billing/internal/clock"
	"github.com/taxfolio/billing/internal/payment/domain"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&domain.PaymentIntent{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func newIntent(node *snowflake.Node) *domain.PaymentIntent {
	return &domain.PaymentIntent{
		ID:        node.Generate(),
		AccountID: node.Generate(),
		PlanID:    "PERSONAL",
		Amount:    9900,
		Currency:  "INR",
		Status:    domain.IntentStatusPending,
		Gateway:   "fake",
	}
}

func TestMarkSucceededOnlyOnce(t *testing.T) {
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(1)
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	repo := New(Params{Clock: fc})
	ctx := context.Background()

	intent := newIntent(node)
	if err := repo.Insert(ctx, db, intent); err != nil {
		t.Fatalf("insert: %v", err)
	}

	won, err := repo.MarkSucceeded(ctx, db, intent.ID, fc.Now(), []byte(`{"payment_id":"pay_1"}`))
	if err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if !won {
		t.Fatal("first transition must win")
	}

	won, err = repo.MarkSucceeded(ctx, db, intent.ID, fc.Now(), []byte(`{"payment_id":"pay_1"}`))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if won {
		t.Fatal("replay must not win")
	}

	stored, err := repo.FindByID(ctx, db, intent.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Status != domain.IntentStatusSuccess || stored.PaidAt == nil {
		t.Fatalf("stored intent: %+v", stored)
	}
}

func TestMarkFailedDoesNotOverrideSuccess(t *testing.T) {
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(1)
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	repo := New(Params{Clock: fc})
	ctx := context.Background()

	intent := newIntent(node)
	if err := repo.Insert(ctx, db, intent); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := repo.MarkSucceeded(ctx, db, intent.ID, fc.Now(), nil); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	won, err := repo.MarkFailed(ctx, db, intent.ID, nil)
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if won {
		t.Fatal("settled intent must not flip to FAILED")
	}
}

func TestSumSucceededSince(t *testing.T) {
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(1)
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	repo := New(Params{Clock: fc})
	ctx := context.Background()

	recent := newIntent(node)
	if err := repo.Insert(ctx, db, recent); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := repo.MarkSucceeded(ctx, db, recent.ID, fc.Now(), nil); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	old := newIntent(node)
	old.Amount = 50000
	if err := repo.Insert(ctx, db, old); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := repo.MarkSucceeded(ctx, db, old.ID, fc.Now().Add(-40*24*time.Hour), nil); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	pending := newIntent(node)
	if err := repo.Insert(ctx, db, pending); err != nil {
		t.Fatalf("insert: %v", err)
	}

	total, err := repo.SumSucceededSince(ctx, db, fc.Now().Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if total != 9900 {
		t.Fatalf("total: got %d, want 9900", total)
	}
}

func TestSetGatewayOrderID(t *testing.T) {
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(1)
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	repo := New(Params{Clock: fc})
	ctx := context.Background()

	intent := newIntent(node)
	if err := repo.Insert(ctx, db, intent); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.SetGatewayOrderID(ctx, db, intent.ID, "order_1"); err != nil {
		t.Fatalf("set order: %v", err)
	}

	stored, err := repo.FindByID(ctx, db, intent.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.GatewayOrderID == nil || *stored.GatewayOrderID != "order_1" {
		t.Fatalf("order id: %+v", stored.GatewayOrderID)
	}

	if err := repo.SetGatewayOrderID(ctx, db, node.Generate(), "order_2"); err != domain.ErrIntentNotFound {
		t.Fatalf("expected ErrIntentNotFound, got %v", err)
	}
}
