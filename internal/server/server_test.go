package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	attributiondomain "github.com/smallbiznis/facesaju/internal/attribution/domain"
	"github.com/smallbiznis/facesaju/internal/authorization"
	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/config"
	coupondomain "github.com/smallbiznis/facesaju/internal/coupon/domain"
	"github.com/smallbiznis/facesaju/internal/inference"
	"github.com/smallbiznis/facesaju/internal/paygate"
	paymentdomain "github.com/smallbiznis/facesaju/internal/payment/domain"
	"github.com/smallbiznis/facesaju/internal/receipt"
	"github.com/smallbiznis/facesaju/internal/reconcile"
	recorddomain "github.com/smallbiznis/facesaju/internal/record/domain"
	"github.com/smallbiznis/facesaju/internal/record/remotestore"
	recordservice "github.com/smallbiznis/facesaju/internal/record/service"
	"github.com/smallbiznis/facesaju/pkg/db/pagination"
	"github.com/stretchr/testify/require"
)

// Fakes embed the interface they stand in for; calling a method a test did
// not wire panics.

type fakeRecords struct {
	RecordService
	create func(context.Context, recordservice.CreateRequest) (*recorddomain.AnalysisRecord, error)
	update func(context.Context, string, string, recordservice.UpdateRequest) (*recorddomain.AnalysisRecord, error)
	delete func(context.Context, string, string) error
}

func (f *fakeRecords) Create(ctx context.Context, req recordservice.CreateRequest) (*recorddomain.AnalysisRecord, error) {
	return f.create(ctx, req)
}

func (f *fakeRecords) Update(ctx context.Context, line, id string, req recordservice.UpdateRequest) (*recorddomain.AnalysisRecord, error) {
	return f.update(ctx, line, id, req)
}

func (f *fakeRecords) Delete(ctx context.Context, line, id string) error {
	return f.delete(ctx, line, id)
}

type fakeLoader struct {
	load func(context.Context, string, string) (*reconcile.Result, error)
}

func (f *fakeLoader) Load(ctx context.Context, line, id string) (*reconcile.Result, error) {
	return f.load(ctx, line, id)
}

type fakeAnalyzer struct {
	last    inference.AnalyzeRequest
	analyze func(context.Context, inference.AnalyzeRequest) (*inference.AnalyzeResult, error)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, req inference.AnalyzeRequest) (*inference.AnalyzeResult, error) {
	f.last = req
	return f.analyze(ctx, req)
}

type fakeGate struct {
	Gate
	lastSlot    recorddomain.SlotKey
	view        func(context.Context, string, string, recorddomain.SlotKey) (*paygate.View, error)
	applyCoupon func(context.Context, string, string, recorddomain.SlotKey, string, string) (*paygate.CouponOutcome, error)
	checkout    func(context.Context, string, string, recorddomain.SlotKey) (*paygate.Checkout, error)
	success     func(context.Context, paygate.SuccessRequest) (*paygate.SuccessResult, error)
	fail        func(context.Context, paygate.FailRequest) (*paygate.FailResult, error)
}

func (f *fakeGate) View(ctx context.Context, line, id string, slot recorddomain.SlotKey) (*paygate.View, error) {
	f.lastSlot = slot
	return f.view(ctx, line, id, slot)
}

func (f *fakeGate) OpenPaywall(ctx context.Context, line, id string, slot recorddomain.SlotKey) (*paygate.View, error) {
	f.lastSlot = slot
	return f.view(ctx, line, id, slot)
}

func (f *fakeGate) ApplyCoupon(ctx context.Context, line, id string, slot recorddomain.SlotKey, code, clientKey string) (*paygate.CouponOutcome, error) {
	return f.applyCoupon(ctx, line, id, slot, code, clientKey)
}

func (f *fakeGate) BeginCheckout(ctx context.Context, line, id string, slot recorddomain.SlotKey) (*paygate.Checkout, error) {
	return f.checkout(ctx, line, id, slot)
}

func (f *fakeGate) CompleteSuccess(ctx context.Context, req paygate.SuccessRequest) (*paygate.SuccessResult, error) {
	return f.success(ctx, req)
}

func (f *fakeGate) CompleteFail(ctx context.Context, req paygate.FailRequest) (*paygate.FailResult, error) {
	return f.fail(ctx, req)
}

type fakeReceipts struct {
	generate func(context.Context, string, string, string) (*receipt.Document, error)
}

func (f *fakeReceipts) Generate(ctx context.Context, line, id, kind string) (*receipt.Document, error) {
	return f.generate(ctx, line, id, kind)
}

type fakeWebhooks struct {
	provider string
	payload  []byte
	err      error
}

func (f *fakeWebhooks) IngestWebhook(_ context.Context, provider string, payload []byte, _ http.Header) error {
	f.provider = provider
	f.payload = payload
	return f.err
}

type fakeCoupons struct {
	coupondomain.Service
	validate func(context.Context, coupondomain.ValidateRequest) (coupondomain.Validation, error)
	redeem   func(context.Context, coupondomain.RedeemRequest) (*coupondomain.Redemption, error)
	list     func(context.Context) ([]coupondomain.Coupon, error)
	create   func(context.Context, coupondomain.CreateRequest) (*coupondomain.Coupon, error)
}

func (f *fakeCoupons) Validate(ctx context.Context, req coupondomain.ValidateRequest) (coupondomain.Validation, error) {
	return f.validate(ctx, req)
}

func (f *fakeCoupons) Redeem(ctx context.Context, req coupondomain.RedeemRequest) (*coupondomain.Redemption, error) {
	return f.redeem(ctx, req)
}

func (f *fakeCoupons) List(ctx context.Context) ([]coupondomain.Coupon, error) {
	return f.list(ctx)
}

func (f *fakeCoupons) Create(ctx context.Context, req coupondomain.CreateRequest) (*coupondomain.Coupon, error) {
	return f.create(ctx, req)
}

type fakeAttribution struct {
	attributiondomain.Service
	influencers []attributiondomain.InfluencerStats
	settlement  func(context.Context, int, int) (*attributiondomain.Settlement, error)
}

func (f *fakeAttribution) ListInfluencers(context.Context) ([]attributiondomain.InfluencerStats, error) {
	return f.influencers, nil
}

func (f *fakeAttribution) MonthlySettlement(ctx context.Context, year, month int) (*attributiondomain.Settlement, error) {
	return f.settlement(ctx, year, month)
}

type fakePaid struct {
	last remotestore.ListPaidRequest
	rows []remotestore.PaidAnalysis
}

func (f *fakePaid) ListPaid(_ context.Context, req remotestore.ListPaidRequest) ([]remotestore.PaidAnalysis, pagination.PageInfo, error) {
	f.last = req
	return f.rows, pagination.PageInfo{}, nil
}

type fakePayments struct {
	paymentdomain.Service
	last paymentdomain.ListOrdersRequest
}

func (f *fakePayments) ListOrders(_ context.Context, req paymentdomain.ListOrdersRequest) ([]paymentdomain.Order, error) {
	f.last = req
	return []paymentdomain.Order{}, nil
}

// fakeAuthz accepts the tokens "admin-token" and "super-token"; only the
// superadmin may view payments.
type fakeAuthz struct{}

func (fakeAuthz) Login(_ context.Context, role authorization.Role, password string) (*authorization.Token, error) {
	if password != "secret" {
		return nil, authorization.ErrInvalidCredentials
	}
	return &authorization.Token{Value: string(role) + "-token", Role: role, ExpiresAt: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)}, nil
}

func (fakeAuthz) Authenticate(_ context.Context, token string) (*authorization.Claims, error) {
	switch token {
	case "admin-token":
		return &authorization.Claims{Role: authorization.RoleAdmin}, nil
	case "super-token":
		return &authorization.Claims{Role: authorization.RoleSuperAdmin}, nil
	}
	return nil, authorization.ErrInvalidToken
}

func (fakeAuthz) Authorize(_ context.Context, actor, object, _ string) error {
	if object == authorization.ObjectPayment && actor != authorization.RoleSuperAdmin.Subject() {
		return authorization.ErrForbidden
	}
	return nil
}

type testServer struct {
	engine      *gin.Engine
	clock       *clock.FakeClock
	records     *fakeRecords
	loader      *fakeLoader
	analyzer    *fakeAnalyzer
	gate        *fakeGate
	receipts    *fakeReceipts
	webhooks    *fakeWebhooks
	coupons     *fakeCoupons
	payments    *fakePayments
	attribution *fakeAttribution
	paid        *fakePaid
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	face, err := recorddomain.NewProductLine("face", "base", "base", "wealth")
	require.NoError(t, err)
	saju, err := recorddomain.NewProductLine("new_year", "base", "base")
	require.NoError(t, err)
	lines, err := recorddomain.NewRegistry(face, saju)
	require.NoError(t, err)

	ts := &testServer{
		engine:      gin.New(),
		clock:       clock.NewFakeClock(time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC)),
		records:     &fakeRecords{},
		loader:      &fakeLoader{},
		analyzer:    &fakeAnalyzer{},
		gate:        &fakeGate{},
		receipts:    &fakeReceipts{},
		webhooks:    &fakeWebhooks{},
		coupons:     &fakeCoupons{},
		payments:    &fakePayments{},
		attribution: &fakeAttribution{},
		paid:        &fakePaid{},
	}
	ts.engine.Use(ErrorHandlingMiddleware())

	NewServer(ServerParams{
		Gin:         ts.engine,
		Cfg:         config.Config{Environment: "test"},
		Clock:       ts.clock,
		Lines:       lines,
		Records:     ts.records,
		Loader:      ts.loader,
		Analyzer:    ts.analyzer,
		Gate:        ts.gate,
		Receipts:    ts.receipts,
		Webhooks:    ts.webhooks,
		Coupons:     ts.coupons,
		Payments:    ts.payments,
		Attribution: ts.attribution,
		Paid:        ts.paid,
		AuthzSvc:    fakeAuthz{},
	})
	return ts
}

func (ts *testServer) do(method, path string, body any, header ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Error
}
