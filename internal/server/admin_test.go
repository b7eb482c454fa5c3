package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	attributiondomain "github.com/smallbiznis/facesaju/internal/attribution/domain"
	coupondomain "github.com/smallbiznis/facesaju/internal/coupon/domain"
	"github.com/smallbiznis/facesaju/internal/record/remotestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCouponInvalidIsOK(t *testing.T) {
	ts := newTestServer(t)
	var got coupondomain.ValidateRequest
	ts.coupons.validate = func(_ context.Context, req coupondomain.ValidateRequest) (coupondomain.Validation, error) {
		got = req
		return coupondomain.Invalid(coupondomain.ReasonNotFound), nil
	}

	w := ts.do(http.MethodPost, "/api/coupon/validate", map[string]any{"code": "NOPE", "serviceType": " "})

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "not_found", body["reason"])
	assert.Empty(t, got.ServiceType)
	assert.NotEmpty(t, got.ClientKey)
}

func TestValidateCouponRateLimited(t *testing.T) {
	ts := newTestServer(t)
	ts.coupons.validate = func(context.Context, coupondomain.ValidateRequest) (coupondomain.Validation, error) {
		return coupondomain.Invalid(coupondomain.ReasonRateLimited), nil
	}

	w := ts.do(http.MethodPost, "/api/coupon/validate", map[string]any{"code": "SPRING"})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}

func TestUseCouponRejection(t *testing.T) {
	ts := newTestServer(t)
	ts.coupons.redeem = func(context.Context, coupondomain.RedeemRequest) (*coupondomain.Redemption, error) {
		return nil, coupondomain.ErrExhausted
	}

	w := ts.do(http.MethodPost, "/api/coupon/use", map[string]any{"code": "SPRING", "serviceType": "face"})

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "exhausted", body["reason"])
	assert.NotEmpty(t, body["error"])
}

func TestUseCouponSuccess(t *testing.T) {
	ts := newTestServer(t)
	ts.coupons.redeem = func(_ context.Context, req coupondomain.RedeemRequest) (*coupondomain.Redemption, error) {
		return &coupondomain.Redemption{Code: req.Code, Remaining: 2}, nil
	}

	w := ts.do(http.MethodPost, "/api/coupon/use", map[string]any{"code": "SPRING", "recordId": "rec-1"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["success"])
}

func TestOperatorLogin(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/admin/auth", map[string]any{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodPost, "/admin/auth", map[string]any{"password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "admin", body["role"])
	assert.Equal(t, "admin-token", body["token"])

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, operatorCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 21*60*60, cookies[0].MaxAge)
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/admin/coupons", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodGet, "/admin/coupons", nil, "Authorization", "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOperatorMeFromCookie(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/admin/me", nil, "Cookie", operatorCookieName+"=super-token")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "superadmin", decodeBody(t, w)["role"])
}

func TestListCouponsFiltersActive(t *testing.T) {
	ts := newTestServer(t)
	ts.coupons.list = func(context.Context) ([]coupondomain.Coupon, error) {
		return []coupondomain.Coupon{
			{ID: snowflake.ID(1), Code: "ON", IsActive: true},
			{ID: snowflake.ID(2), Code: "OFF"},
		}, nil
	}

	w := ts.do(http.MethodGet, "/admin/coupons?active=true", nil, "Authorization", "Bearer admin-token")
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "ON", data[0].(map[string]any)["code"])

	w = ts.do(http.MethodGet, "/admin/coupons?active=maybe", nil, "Authorization", "Bearer admin-token")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateCouponConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.coupons.create = func(context.Context, coupondomain.CreateRequest) (*coupondomain.Coupon, error) {
		return nil, coupondomain.ErrCouponExists
	}

	w := ts.do(http.MethodPost, "/admin/coupons", map[string]any{"code": "SPRING"}, "Authorization", "Bearer admin-token")

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSettlementDefaultsToCurrentKSTMonth(t *testing.T) {
	ts := newTestServer(t)
	// 2026-01-31 16:00 UTC is already February in Korea.
	ts.clock.Set(time.Date(2026, 1, 31, 16, 0, 0, 0, time.UTC))
	var gotYear, gotMonth int
	ts.attribution.settlement = func(_ context.Context, year, month int) (*attributiondomain.Settlement, error) {
		gotYear, gotMonth = year, month
		return &attributiondomain.Settlement{Year: year, Month: month}, nil
	}

	w := ts.do(http.MethodGet, "/admin/settlement", nil, "Authorization", "Bearer admin-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2026, gotYear)
	assert.Equal(t, 2, gotMonth)

	w = ts.do(http.MethodGet, "/admin/settlement?year=2025&month=12", nil, "Authorization", "Bearer admin-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2025, gotYear)
	assert.Equal(t, 12, gotMonth)

	w = ts.do(http.MethodGet, "/admin/settlement?month=dec", nil, "Authorization", "Bearer admin-token")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuperadminPaymentsForbiddenForAdmin(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/superadmin/payments", nil, "Authorization", "Bearer admin-token")

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSuperadminPaymentsListsMonthWithInfluencer(t *testing.T) {
	ts := newTestServer(t)
	ts.attribution.influencers = []attributiondomain.InfluencerStats{
		{Influencer: attributiondomain.Influencer{ID: snowflake.ID(42), Name: "민지"}},
	}
	ts.paid.rows = []remotestore.PaidAnalysis{
		{ID: "rec-1", ProductLine: "face", Price: 4900, InfluencerID: "42"},
		{ID: "rec-2", ProductLine: "face", Price: 4900},
	}

	w := ts.do(http.MethodGet, "/superadmin/payments?year=2026&month=3&page_size=10", nil, "Authorization", "Bearer super-token")

	require.Equal(t, http.StatusOK, w.Code)
	kst := time.FixedZone("KST", 9*60*60)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, kst).UTC(), ts.paid.last.From)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, kst).UTC(), ts.paid.last.To)
	assert.Equal(t, 10, ts.paid.last.PageSize)

	data := decodeBody(t, w)["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, "민지", data[0].(map[string]any)["influencer"])
	assert.Nil(t, data[1].(map[string]any)["influencer"])
}

func TestSuperadminOrdersParsesFilters(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/superadmin/orders?status=CONFIRMED&created_from=2026-01-01&created_to=2026-01-31", nil, "Authorization", "Bearer super-token")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirmed", string(ts.payments.last.Status))
	require.NotNil(t, ts.payments.last.From)
	require.NotNil(t, ts.payments.last.To)
	assert.Equal(t, 23, ts.payments.last.To.Hour())

	w = ts.do(http.MethodGet, "/superadmin/orders?created_from=yesterday", nil, "Authorization", "Bearer super-token")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
