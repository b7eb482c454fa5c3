package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/config"
	"github.com/smallbiznis/facesaju/internal/coupon/domain"
	"github.com/smallbiznis/facesaju/internal/coupon/repository"
	"github.com/smallbiznis/facesaju/internal/coupon/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var couponSchema = []string{
	`CREATE TABLE coupons (
		id INTEGER PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		service_type TEXT NOT NULL,
		discount_type TEXT NOT NULL,
		discount_amount INTEGER NOT NULL DEFAULT 0,
		total_quantity INTEGER NOT NULL,
		remaining_quantity INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		expires_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE coupon_usage_logs (
		id INTEGER PRIMARY KEY,
		coupon_id INTEGER NOT NULL,
		coupon_code TEXT NOT NULL,
		service_type TEXT NOT NULL,
		record_id TEXT NOT NULL DEFAULT '',
		used_at DATETIME NOT NULL
	)`,
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	for _, stmt := range couponSchema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newService(t *testing.T, clk clock.Clock) domain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	holder, err := config.NewStaticCatalogHolder(config.DefaultCatalog())
	require.NoError(t, err)
	return service.New(service.Params{
		DB:      setupTestDB(t),
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.Provide(),
		Clock:   clk,
		Catalog: holder,
	})
}

func testClock() *clock.FakeClock {
	return clock.NewFakeClock(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))
}

func createCoupon(t *testing.T, svc domain.Service, req domain.CreateRequest) *domain.Coupon {
	t.Helper()
	c, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	return c
}

func TestValidateIsCaseInsensitive(t *testing.T) {
	svc := newService(t, testClock())
	createCoupon(t, svc, domain.CreateRequest{
		Code:           "love2026",
		ServiceType:    "saju_love",
		DiscountKind:   domain.DiscountFixed,
		DiscountAmount: 5000,
		TotalQuantity:  3,
	})

	res, err := svc.Validate(context.Background(), domain.ValidateRequest{Code: " Love2026 ", ServiceType: "saju_love"})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "LOVE2026", res.Code)
	assert.False(t, res.IsFree)
	assert.EqualValues(t, 5000, res.DiscountAmount)
}

func TestValidateRejections(t *testing.T) {
	clk := testClock()
	svc := newService(t, clk)
	ctx := context.Background()

	createCoupon(t, svc, domain.CreateRequest{Code: "FACEONLY", ServiceType: "face", DiscountKind: domain.DiscountFree, TotalQuantity: 1})
	off := createCoupon(t, svc, domain.CreateRequest{Code: "OFF", ServiceType: "all", DiscountKind: domain.DiscountFree, TotalQuantity: 1})
	expires := clk.Now().Add(time.Hour)
	createCoupon(t, svc, domain.CreateRequest{Code: "SOON", DiscountKind: domain.DiscountFree, TotalQuantity: 1, ExpiresAt: &expires})
	createCoupon(t, svc, domain.CreateRequest{Code: "ONCE", DiscountKind: domain.DiscountFree, TotalQuantity: 1})

	_, err := svc.SetActive(ctx, off.ID.String(), false)
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, domain.RedeemRequest{Code: "ONCE", ServiceType: "face"})
	require.NoError(t, err)
	clk.Advance(2 * time.Hour)

	cases := []struct {
		code        string
		serviceType string
		reason      domain.Reason
	}{
		{"MISSING", "face", domain.ReasonNotFound},
		{"FACEONLY", "couple", domain.ReasonWrongProductLine},
		{"OFF", "face", domain.ReasonInactive},
		{"SOON", "face", domain.ReasonExpired},
		{"ONCE", "face", domain.ReasonExhausted},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			res, err := svc.Validate(ctx, domain.ValidateRequest{Code: tc.code, ServiceType: tc.serviceType})
			require.NoError(t, err)
			assert.False(t, res.Valid)
			assert.Equal(t, tc.reason, res.Reason)
			assert.NotEmpty(t, res.Message)
		})
	}
}

func TestValidateHasNoSideEffects(t *testing.T) {
	svc := newService(t, testClock())
	ctx := context.Background()
	createCoupon(t, svc, domain.CreateRequest{Code: "FREE1", ServiceType: "all", DiscountKind: domain.DiscountFree, TotalQuantity: 1})

	for i := 0; i < 3; i++ {
		res, err := svc.Validate(ctx, domain.ValidateRequest{Code: "FREE1", ServiceType: "new_year"})
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.True(t, res.IsFree)
	}

	items, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].RemainingQuantity)
}

func TestConcurrentRedeemNeverOversells(t *testing.T) {
	svc := newService(t, testClock())
	ctx := context.Background()
	const remaining = 3
	const callers = 12
	c := createCoupon(t, svc, domain.CreateRequest{Code: "RACE", ServiceType: "face", DiscountKind: domain.DiscountFree, TotalQuantity: remaining})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Redeem(ctx, domain.RedeemRequest{Code: "race", ServiceType: "face", RecordID: fmt.Sprintf("rec-%d", i)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrExhausted):
				exhausted++
			default:
				t.Errorf("unexpected redeem error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, remaining, succeeded)
	assert.Equal(t, callers-remaining, exhausted)

	items, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 0, items[0].RemainingQuantity)

	usage, err := svc.ListUsage(ctx, c.ID.String())
	require.NoError(t, err)
	assert.Len(t, usage, remaining)
}

func TestRedeemRejectsWrongProductLine(t *testing.T) {
	svc := newService(t, testClock())
	ctx := context.Background()
	createCoupon(t, svc, domain.CreateRequest{Code: "COUPLE", ServiceType: "couple", DiscountKind: domain.DiscountFixed, DiscountAmount: 1000, TotalQuantity: 5})

	_, err := svc.Redeem(ctx, domain.RedeemRequest{Code: "COUPLE", ServiceType: "face"})
	assert.ErrorIs(t, err, domain.ErrWrongProductLine)

	red, err := svc.Redeem(ctx, domain.RedeemRequest{Code: "couple", ServiceType: "couple", RecordID: "c-1"})
	require.NoError(t, err)
	assert.Equal(t, 4, red.Remaining)
	assert.EqualValues(t, 1000, red.DiscountAmount)
}

func TestCreateValidation(t *testing.T) {
	svc := newService(t, testClock())
	ctx := context.Background()
	createCoupon(t, svc, domain.CreateRequest{Code: "DUP", DiscountKind: domain.DiscountFree, TotalQuantity: 1})

	_, err := svc.Create(ctx, domain.CreateRequest{Code: "dup", DiscountKind: domain.DiscountFree, TotalQuantity: 1})
	assert.ErrorIs(t, err, domain.ErrCouponExists)

	_, err = svc.Create(ctx, domain.CreateRequest{Code: "X", ServiceType: "tarot", DiscountKind: domain.DiscountFree, TotalQuantity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidServiceType)

	_, err = svc.Create(ctx, domain.CreateRequest{Code: "Y", DiscountKind: domain.DiscountFixed, TotalQuantity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidDiscount)

	_, err = svc.Create(ctx, domain.CreateRequest{Code: "Z", DiscountKind: domain.DiscountFree})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = svc.Create(ctx, domain.CreateRequest{Code: "  ", DiscountKind: domain.DiscountFree, TotalQuantity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestDeleteRefusesRedeemedCoupon(t *testing.T) {
	svc := newService(t, testClock())
	ctx := context.Background()
	used := createCoupon(t, svc, domain.CreateRequest{Code: "USED", DiscountKind: domain.DiscountFree, TotalQuantity: 2})
	fresh := createCoupon(t, svc, domain.CreateRequest{Code: "FRESH", DiscountKind: domain.DiscountFree, TotalQuantity: 2})

	_, err := svc.Redeem(ctx, domain.RedeemRequest{Code: "USED", ServiceType: "face"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, used.ID.String()), domain.ErrCouponInUse)
	assert.NoError(t, svc.Delete(ctx, fresh.ID.String()))
	assert.ErrorIs(t, svc.Delete(ctx, fresh.ID.String()), domain.ErrNotFound)
}
