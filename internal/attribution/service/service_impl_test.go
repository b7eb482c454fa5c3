package service_test

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/facesaju/internal/attribution/domain"
	"github.com/smallbiznis/facesaju/internal/attribution/repository"
	"github.com/smallbiznis/facesaju/internal/attribution/service"
	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/record/remotestore"
	"github.com/smallbiznis/facesaju/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var attributionSchema = []string{
	`CREATE TABLE influencers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		platform TEXT NOT NULL DEFAULT '',
		contact TEXT NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT '',
		rs_percentage REAL NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE utm_visits (
		id INTEGER PRIMARY KEY,
		utm_source TEXT NOT NULL,
		utm_medium TEXT NOT NULL DEFAULT '',
		utm_campaign TEXT NOT NULL DEFAULT '',
		influencer_id INTEGER,
		landing_page TEXT NOT NULL DEFAULT '',
		visited_at DATETIME NOT NULL
	)`,
}

// fakePaid serves paid analyses one per page so callers must follow
// page tokens.
type fakePaid struct {
	mu   sync.Mutex
	rows []remotestore.PaidAnalysis
}

func (f *fakePaid) add(p remotestore.PaidAnalysis) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, p)
}

func (f *fakePaid) ListPaid(ctx context.Context, req remotestore.ListPaidRequest) ([]remotestore.PaidAnalysis, pagination.PageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []remotestore.PaidAnalysis
	for _, r := range f.rows {
		if req.InfluencerID != "" && r.InfluencerID != req.InfluencerID {
			continue
		}
		if !req.From.IsZero() && r.PaidAt.Before(req.From) {
			continue
		}
		if !req.To.IsZero() && !r.PaidAt.Before(req.To) {
			continue
		}
		matched = append(matched, r)
	}
	offset := 0
	if req.PageToken != "" {
		offset, _ = strconv.Atoi(req.PageToken)
	}
	if offset >= len(matched) {
		return nil, pagination.PageInfo{}, nil
	}
	info := pagination.PageInfo{}
	if offset+1 < len(matched) {
		info.HasMore = true
		info.NextPageToken = strconv.Itoa(offset + 1)
	}
	return matched[offset : offset+1], info, nil
}

type fixture struct {
	svc   domain.Service
	db    *gorm.DB
	clock *clock.FakeClock
	paid  *fakePaid
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	for _, stmt := range attributionSchema {
		require.NoError(t, db.Exec(stmt).Error)
	}

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	f := &fixture{
		db:    db,
		clock: clock.NewFakeClock(time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC)),
		paid:  &fakePaid{},
	}
	f.svc = service.New(service.Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   repository.Provide(),
		Remote: f.paid,
		Clock:  f.clock,
	})
	return f
}

func TestCreateInfluencerNormalisesSlug(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inf, err := f.svc.CreateInfluencer(ctx, domain.CreateInfluencerRequest{
		Name:         "Daily Saju",
		Slug:         "  Daily Saju TV ",
		Platform:     "youtube",
		RSPercentage: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, "daily-saju-tv", inf.Slug)
	assert.True(t, inf.IsActive)

	_, err = f.svc.CreateInfluencer(ctx, domain.CreateInfluencerRequest{Name: "Copy", Slug: "daily saju tv"})
	assert.ErrorIs(t, err, domain.ErrSlugTaken)

	_, err = f.svc.CreateInfluencer(ctx, domain.CreateInfluencerRequest{Name: "Bad", Slug: "bad", RSPercentage: 120})
	assert.ErrorIs(t, err, domain.ErrInvalidInfluencer)

	_, err = f.svc.CreateInfluencer(ctx, domain.CreateInfluencerRequest{Name: "", Slug: "nameless"})
	assert.ErrorIs(t, err, domain.ErrInvalidInfluencer)

	got, err := f.svc.GetInfluencerBySlug(ctx, "Daily-Saju-TV")
	require.NoError(t, err)
	assert.Equal(t, inf.ID, got.ID)
}

func TestUpdateInfluencer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateInfluencer(ctx, domain.CreateInfluencerRequest{Name: "A", Slug: "alpha"})
	require.NoError(t, err)
	_, err = f.svc.CreateInfluencer(ctx, domain.CreateInfluencerRequest{Name: "B", Slug: "beta"})
	require.NoError(t, err)

	taken := "beta"
	_, err = f.svc.UpdateInfluencer(ctx, a.ID.String(), domain.UpdateInfluencerRequest{Slug: &taken})
	assert.ErrorIs(t, err, domain.ErrSlugTaken)

	share := 15.5
	inactive := false
	updated, err := f.svc.UpdateInfluencer(ctx, a.ID.String(), domain.UpdateInfluencerRequest{
		RSPercentage: &share,
		IsActive:     &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, 15.5, updated.RSPercentage)
	assert.False(t, updated.IsActive)

	_, err = f.svc.UpdateInfluencer(ctx, "12345", domain.UpdateInfluencerRequest{})
	assert.ErrorIs(t, err, domain.ErrInfluencerNotFound)
}

func TestRecordVisitResolvesActiveInfluencer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inf, err := f.svc.CreateInfluencer(ctx, domain.CreateInfluencerRequest{Name: "A", Slug: "alpha"})
	require.NoError(t, err)

	visit, err := f.svc.RecordVisit(ctx, domain.RecordVisitRequest{UTMSource: "ALPHA", UTMMedium: "shorts"})
	require.NoError(t, err)
	assert.Equal(t, inf.ID, visit.InfluencerID)

	stranger, err := f.svc.RecordVisit(ctx, domain.RecordVisitRequest{UTMSource: "unknown"})
	require.NoError(t, err)
	assert.Zero(t, stranger.InfluencerID)

	_, err = f.svc.RecordVisit(ctx, domain.RecordVisitRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidVisit)

	id, err := f.svc.ResolveSource(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, inf.ID.String(), id)

	inactive := false
	_, err = f.svc.UpdateInfluencer(ctx, inf.ID.String(), domain.UpdateInfluencerRequest{IsActive: &inactive})
	require.NoError(t, err)
	id, err = f.svc.ResolveSource(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestMonthlySettlement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alpha, err := f.svc.CreateInfluencer(ctx, domain.CreateInfluencerRequest{Name: "Alpha", Slug: "alpha", RSPercentage: 15})
	require.NoError(t, err)
	_, err = f.svc.CreateInfluencer(ctx, domain.CreateInfluencerRequest{Name: "Quiet", Slug: "quiet", RSPercentage: 50})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.RecordVisit(ctx, domain.RecordVisitRequest{UTMSource: "alpha"})
		require.NoError(t, err)
	}
	// a visit from the previous month stays out of January
	f.clock.Set(time.Date(2025, 12, 31, 14, 0, 0, 0, time.UTC))
	_, err = f.svc.RecordVisit(ctx, domain.RecordVisitRequest{UTMSource: "alpha"})
	require.NoError(t, err)

	alphaID := alpha.ID.String()
	f.paid.add(remotestore.PaidAnalysis{ID: "r1", InfluencerID: alphaID, Price: 9900, PaidAt: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)})
	f.paid.add(remotestore.PaidAnalysis{ID: "r2", InfluencerID: alphaID, Price: 7900, PaidAt: time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)})
	f.paid.add(remotestore.PaidAnalysis{ID: "r3", InfluencerID: alphaID, Price: 0, PaidAt: time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)})
	// 2026-02-01 00:30 KST belongs to February
	f.paid.add(remotestore.PaidAnalysis{ID: "r4", InfluencerID: alphaID, Price: 14900, PaidAt: time.Date(2026, 1, 31, 15, 30, 0, 0, time.UTC)})

	settlement, err := f.svc.MonthlySettlement(ctx, 2026, 1)
	require.NoError(t, err)
	require.Len(t, settlement.Rows, 1)

	row := settlement.Rows[0]
	assert.Equal(t, "Alpha", row.InfluencerName)
	assert.Equal(t, int64(3), row.VisitCount)
	assert.Equal(t, int64(3), row.PaymentCount)
	assert.Equal(t, int64(17800), row.TotalRevenue)
	assert.Equal(t, int64(2670), row.SettlementAmount)
	assert.Equal(t, time.Date(2025, 12, 31, 15, 0, 0, 0, time.UTC), settlement.From)

	_, err = f.svc.MonthlySettlement(ctx, 2026, 13)
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
}

func TestListInfluencersCarriesTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alpha, err := f.svc.CreateInfluencer(ctx, domain.CreateInfluencerRequest{Name: "Alpha", Slug: "alpha"})
	require.NoError(t, err)
	_, err = f.svc.RecordVisit(ctx, domain.RecordVisitRequest{UTMSource: "alpha"})
	require.NoError(t, err)
	f.paid.add(remotestore.PaidAnalysis{ID: "r1", InfluencerID: alpha.ID.String(), Price: 9900, PaidAt: f.clock.Now()})
	f.paid.add(remotestore.PaidAnalysis{ID: "r2", InfluencerID: alpha.ID.String(), Price: 7900, PaidAt: f.clock.Now().Add(time.Hour)})

	list, err := f.svc.ListInfluencers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].TotalVisits)
	assert.Equal(t, int64(2), list[0].TotalPayments)
	assert.Equal(t, int64(17800), list[0].TotalRevenue)

	payments, err := f.svc.PaymentsByInfluencer(ctx, alpha.ID.String())
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "r2", payments[0].RecordID)
}

func TestSettlementAmountRounds(t *testing.T) {
	assert.Equal(t, int64(2670), service.SettlementAmount(17800, 15))
	assert.Equal(t, int64(1), service.SettlementAmount(5, 10))
	assert.Equal(t, int64(0), service.SettlementAmount(4, 10))
	assert.Equal(t, int64(1544), service.SettlementAmount(9900, 15.6))
}

func TestDeleteInfluencer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inf, err := f.svc.CreateInfluencer(ctx, domain.CreateInfluencerRequest{Name: "A", Slug: "alpha"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteInfluencer(ctx, inf.ID.String()))
	assert.ErrorIs(t, f.svc.DeleteInfluencer(ctx, inf.ID.String()), domain.ErrInfluencerNotFound)
	_, err = f.svc.GetInfluencerBySlug(ctx, "alpha")
	assert.ErrorIs(t, err, domain.ErrInfluencerNotFound)
}
