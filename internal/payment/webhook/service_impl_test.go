package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/config"
	"github.com/smallbiznis/facesaju/internal/payment/adapters"
	"github.com/smallbiznis/facesaju/internal/payment/adapters/toss"
	paymentdomain "github.com/smallbiznis/facesaju/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/facesaju/internal/payment/repository"
	paymentservice "github.com/smallbiznis/facesaju/internal/payment/service"
	"github.com/smallbiznis/facesaju/internal/payment/webhook"
	"github.com/smallbiznis/facesaju/internal/reconcile"
	recorddomain "github.com/smallbiznis/facesaju/internal/record/domain"
	"github.com/smallbiznis/facesaju/internal/record/localstore"
	"github.com/smallbiznis/facesaju/internal/record/remotestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE payment_orders (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL,
		product_line TEXT NOT NULL,
		slot TEXT NOT NULL,
		order_name TEXT NOT NULL DEFAULT '',
		amount INTEGER NOT NULL,
		original_amount INTEGER NOT NULL DEFAULT 0,
		coupon_code TEXT NOT NULL DEFAULT '',
		is_discount BOOLEAN NOT NULL DEFAULT FALSE,
		provider TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_key TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL DEFAULT '',
		failure_code TEXT NOT NULL DEFAULT '',
		failure_message TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		confirmed_at DATETIME
	)`,
	`CREATE TABLE payment_events (
		id INTEGER PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		order_id TEXT NOT NULL,
		payload TEXT,
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		UNIQUE (provider, provider_event_id)
	)`,
	`CREATE TABLE analyses (
		id TEXT PRIMARY KEY,
		product_line TEXT NOT NULL DEFAULT '',
		schema_version INTEGER NOT NULL DEFAULT 0,
		user_info TEXT,
		raw_result TEXT,
		report TEXT,
		is_paid BOOLEAN NOT NULL DEFAULT FALSE,
		paid_at DATETIME,
		payment_info TEXT,
		utm_source TEXT NOT NULL DEFAULT '',
		utm_medium TEXT NOT NULL DEFAULT '',
		utm_campaign TEXT NOT NULL DEFAULT '',
		influencer_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
}

const webhookSecret = "whsec"

type fixture struct {
	payments paymentdomain.Service
	webhook  *webhook.Service
	remote   *remotestore.Service
	adapters *adapters.Registry
	cfg      config.Config
	lines    *recorddomain.Registry
	line     recorddomain.ProductLine
	clock    *clock.FakeClock
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
	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)
	cfg := config.Config{Gateway: config.GatewayConfig{
		Provider:      "toss",
		SecretKey:     "test_sk",
		WebhookSecret: webhookSecret,
	}}
	registry := adapters.NewRegistry(toss.NewFactory())
	payments := paymentservice.NewService(paymentservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Cfg:      cfg,
		Repo:     paymentrepo.Provide(),
		Adapters: registry,
	})

	holder, err := config.NewStaticCatalogHolder(config.DefaultCatalog())
	require.NoError(t, err)
	lines, err := recorddomain.NewRegistryFromCatalog(holder)
	require.NoError(t, err)
	line, err := lines.Line("saju_love")
	require.NoError(t, err)

	remote := remotestore.New(remotestore.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clk,
		Repo:  remotestore.ProvideRepository(),
	})

	return &fixture{
		payments: payments,
		webhook: webhook.NewService(webhook.Params{
			Log:        zap.NewNop(),
			Cfg:        cfg,
			PaymentSvc: payments,
			Adapters:   registry,
			Lines:      lines,
			Remote:     remote,
			Clock:      clk,
		}),
		remote:   remote,
		adapters: registry,
		cfg:      cfg,
		lines:    lines,
		line:     line,
		clock:    clk,
	}
}

func (f *fixture) order(t *testing.T, recordID string) *paymentdomain.Order {
	t.Helper()
	order, err := f.payments.CreateOrder(context.Background(), paymentdomain.CreateOrderRequest{
		RecordID:    recordID,
		ProductLine: f.line.Name,
		Slot:        "love",
		OrderName:   "AI 연애 사주 심층 분석",
		Amount:      14900,
	})
	require.NoError(t, err)
	return order
}

func signed(t *testing.T, secret string, order *paymentdomain.Order) ([]byte, http.Header) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"eventType": "PAYMENT_STATUS_CHANGED",
		"createdAt": "2026-01-10T12:05:00Z",
		"data": map[string]any{
			"paymentKey":  "pk_" + order.RecordID,
			"orderId":     order.ID,
			"status":      "DONE",
			"method":      "카드",
			"totalAmount": order.Amount,
		},
	})
	require.NoError(t, err)
	headers := http.Header{}
	headers.Set("tosspayments-webhook-transmission-time", "2026-01-10T12:05:01Z")
	headers.Set("tosspayments-webhook-signature", "v1:"+toss.Sign(secret, payload, "2026-01-10T12:05:01Z"))
	return payload, headers
}

func TestWebhookMarksExistingRowPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := recorddomain.NewRecord(f.line, "rec-1", recorddomain.Input{Date: "1994-03-15"}, f.clock.Now())
	require.NoError(t, err)
	_, _, err = f.remote.Upsert(ctx, f.line, rec)
	require.NoError(t, err)

	order := f.order(t, "rec-1")
	payload, headers := signed(t, webhookSecret, order)
	require.NoError(t, f.webhook.IngestWebhook(ctx, "toss", payload, headers))

	got, err := f.remote.Get(ctx, f.line, "rec-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Reports["love"].Paid)
	assert.Equal(t, "1994-03-15", got.Input.Date)
	require.NotNil(t, got.PaymentInfo)
	assert.Equal(t, recorddomain.PaymentMethodGateway, got.PaymentInfo.Method)
	assert.Equal(t, order.ID, got.PaymentInfo.OrderID)
}

func TestWebhookStoresPaidStubForMissingRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.order(t, "rec-2")
	payload, headers := signed(t, webhookSecret, order)
	require.NoError(t, f.webhook.IngestWebhook(ctx, "toss", payload, headers))
	// redelivery is harmless
	require.NoError(t, f.webhook.IngestWebhook(ctx, "toss", payload, headers))

	stub, err := f.remote.Get(ctx, f.line, "rec-2")
	require.NoError(t, err)
	require.NotNil(t, stub)
	assert.True(t, stub.Reports["love"].Paid)
	assert.True(t, stub.Paid)
	require.NotNil(t, stub.PaymentInfo)
	assert.Equal(t, order.ID, stub.PaymentInfo.OrderID)
	assert.EqualValues(t, 14900, stub.PaymentInfo.Price)
}

func TestWebhookStubUnlocksLocalCopyOnNextVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// created while the remote store was unreachable
	store := localstore.OpenMemory(f.line, f.clock, zap.NewNop())
	local, err := recorddomain.NewRecord(f.line, "rec-3", recorddomain.Input{Date: "1991-07-01", UserName: "지민"}, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, local))

	order := f.order(t, "rec-3")
	payload, headers := signed(t, webhookSecret, order)
	require.NoError(t, f.webhook.IngestWebhook(ctx, "toss", payload, headers))

	reconciler := reconcile.New(reconcile.Params{
		Stores: localstore.NewStoresFrom(store),
		Lines:  f.lines,
		Remote: f.remote,
		Log:    zap.NewNop(),
	})
	res, err := reconciler.Load(ctx, f.line.Name, "rec-3")
	require.NoError(t, err)
	assert.Equal(t, reconcile.SourceLocal, res.Source)
	reconciler.Wait()

	unlocked, err := store.Get(ctx, "rec-3")
	require.NoError(t, err)
	assert.True(t, unlocked.Reports["love"].Paid)
	assert.Equal(t, "지민", unlocked.Input.UserName)

	remote, err := f.remote.Get(ctx, f.line, "rec-3")
	require.NoError(t, err)
	assert.Equal(t, "1991-07-01", remote.Input.Date, "local input is backfilled")
}

type flakyRemote struct {
	webhook.RemoteRecords
	failures int
}

func (r *flakyRemote) MarkPaid(ctx context.Context, line recorddomain.ProductLine, id string, slot recorddomain.SlotKey, info recorddomain.PaymentInfo) (*recorddomain.AnalysisRecord, error) {
	if r.failures > 0 {
		r.failures--
		return nil, errors.New("connection reset")
	}
	return r.RemoteRecords.MarkPaid(ctx, line, id, slot, info)
}

func TestWebhookRetryAfterFailedMarkUnlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec, err := recorddomain.NewRecord(f.line, "rec-5", recorddomain.Input{}, f.clock.Now())
	require.NoError(t, err)
	_, _, err = f.remote.Upsert(ctx, f.line, rec)
	require.NoError(t, err)

	flaky := &flakyRemote{RemoteRecords: f.remote, failures: 1}
	svc := webhook.NewService(webhook.Params{
		Log:        zap.NewNop(),
		Cfg:        f.cfg,
		PaymentSvc: f.payments,
		Adapters:   f.adapters,
		Lines:      f.lines,
		Remote:     flaky,
		Clock:      f.clock,
	})

	order := f.order(t, "rec-5")
	payload, headers := signed(t, webhookSecret, order)
	require.Error(t, svc.IngestWebhook(ctx, "toss", payload, headers))

	got, err := f.remote.Get(ctx, f.line, "rec-5")
	require.NoError(t, err)
	assert.False(t, got.Reports["love"].Paid)

	// the gateway redelivers the same event
	require.NoError(t, svc.IngestWebhook(ctx, "toss", payload, headers))
	got, err = f.remote.Get(ctx, f.line, "rec-5")
	require.NoError(t, err)
	assert.True(t, got.Reports["love"].Paid)
}

func TestWebhookWithBadSignatureWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.order(t, "rec-4")
	payload, headers := signed(t, "not-the-secret", order)
	err := f.webhook.IngestWebhook(ctx, "toss", payload, headers)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	got, err := f.remote.Get(ctx, f.line, "rec-4")
	require.NoError(t, err)
	assert.Nil(t, got)

	stored, err := f.payments.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, stored.Confirmed())
}
