package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/smallbiznis/facesaju/internal/attribution/domain"
	"github.com/smallbiznis/facesaju/internal/record/remotestore"
	"golang.org/x/sync/errgroup"
)

const settlementConcurrency = 4

// settlementZone is the business calendar. Korea has no daylight saving
// time, so a fixed offset is exact.
var settlementZone = time.FixedZone("KST", 9*60*60)

type totals struct {
	visits   int64
	payments int64
	revenue  int64
}

// MonthlySettlement sums visits and paid analyses per influencer for one
// calendar month. Influencers with neither are left out.
func (s *Service) MonthlySettlement(ctx context.Context, year, month int) (*domain.Settlement, error) {
	if month < 1 || month > 12 || year < 2000 || year > 9999 {
		return nil, domain.ErrInvalidPeriod
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, settlementZone)
	to := from.AddDate(0, 1, 0)

	influencers, err := s.repo.ListInfluencers(ctx, s.db, false)
	if err != nil {
		return nil, err
	}
	sums, err := s.aggregate(ctx, influencers, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}

	rows := make([]domain.SettlementRow, 0, len(influencers))
	for i, inf := range influencers {
		t := sums[i]
		if t.visits == 0 && t.payments == 0 {
			continue
		}
		rows = append(rows, domain.SettlementRow{
			InfluencerID:     inf.ID.String(),
			InfluencerName:   inf.Name,
			Slug:             inf.Slug,
			Platform:         inf.Platform,
			VisitCount:       t.visits,
			PaymentCount:     t.payments,
			TotalRevenue:     t.revenue,
			RSPercentage:     inf.RSPercentage,
			SettlementAmount: SettlementAmount(t.revenue, inf.RSPercentage),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].InfluencerName < rows[j].InfluencerName })

	return &domain.Settlement{
		Year:  year,
		Month: month,
		From:  from.UTC(),
		To:    to.UTC(),
		Rows:  rows,
	}, nil
}

// ListInfluencers returns active influencers with all-time totals.
func (s *Service) ListInfluencers(ctx context.Context) ([]domain.InfluencerStats, error) {
	influencers, err := s.repo.ListInfluencers(ctx, s.db, true)
	if err != nil {
		return nil, err
	}
	sums, err := s.aggregate(ctx, influencers, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	out := make([]domain.InfluencerStats, 0, len(influencers))
	for i, inf := range influencers {
		out = append(out, domain.InfluencerStats{
			Influencer:    inf,
			TotalVisits:   sums[i].visits,
			TotalPayments: sums[i].payments,
			TotalRevenue:  sums[i].revenue,
		})
	}
	return out, nil
}

func (s *Service) PaymentsByInfluencer(ctx context.Context, id string) ([]domain.Payment, error) {
	influencerID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	inf, err := s.repo.FindInfluencer(ctx, s.db, influencerID)
	if err != nil {
		return nil, err
	}
	if inf == nil {
		return nil, domain.ErrInfluencerNotFound
	}

	var out []domain.Payment
	err = s.eachPaid(ctx, inf.ID.String(), time.Time{}, time.Time{}, func(p remotestore.PaidAnalysis) {
		out = append(out, domain.Payment{
			RecordID:    p.ID,
			ProductLine: p.ProductLine,
			Price:       p.Price,
			Method:      p.Method,
			PaidAt:      p.PaidAt,
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PaidAt.After(out[j].PaidAt) })
	return out, nil
}

func (s *Service) aggregate(ctx context.Context, influencers []domain.Influencer, from, to time.Time) ([]totals, error) {
	sums := make([]totals, len(influencers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(settlementConcurrency)

	for i := range influencers {
		inf := influencers[i]
		g.Go(func() error {
			visits, err := s.repo.CountVisits(gctx, s.db, inf.ID, from, to)
			if err != nil {
				return err
			}
			t := totals{visits: visits}
			err = s.eachPaid(gctx, inf.ID.String(), from, to, func(p remotestore.PaidAnalysis) {
				t.payments++
				t.revenue += p.Price
			})
			if err != nil {
				return err
			}
			sums[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sums, nil
}

func (s *Service) eachPaid(ctx context.Context, influencerID string, from, to time.Time, fn func(remotestore.PaidAnalysis)) error {
	token := ""
	for {
		page, info, err := s.remote.ListPaid(ctx, remotestore.ListPaidRequest{
			InfluencerID: influencerID,
			From:         from,
			To:           to,
			PageToken:    token,
			PageSize:     250,
		})
		if err != nil {
			return err
		}
		for _, p := range page {
			fn(p)
		}
		if !info.HasMore || info.NextPageToken == "" {
			return nil
		}
		token = info.NextPageToken
	}
}

// SettlementAmount is revenue times the revenue share, rounded half away
// from zero.
func SettlementAmount(revenue int64, rsPercentage float64) int64 {
	return int64(math.Round(float64(revenue) * rsPercentage / 100))
}
