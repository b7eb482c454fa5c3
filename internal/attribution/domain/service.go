package domain

import (
	"context"

	"github.com/smallbiznis/facesaju/internal/record/remotestore"
	"github.com/smallbiznis/facesaju/pkg/db/pagination"
)

type Service interface {
	CreateInfluencer(ctx context.Context, req CreateInfluencerRequest) (*Influencer, error)
	UpdateInfluencer(ctx context.Context, id string, req UpdateInfluencerRequest) (*Influencer, error)
	DeleteInfluencer(ctx context.Context, id string) error
	GetInfluencerBySlug(ctx context.Context, slug string) (*Influencer, error)
	ListInfluencers(ctx context.Context) ([]InfluencerStats, error)
	// ResolveSource returns the id of the active influencer behind a
	// utm_source, or "" when there is none.
	ResolveSource(ctx context.Context, utmSource string) (string, error)
	RecordVisit(ctx context.Context, req RecordVisitRequest) (*Visit, error)
	MonthlySettlement(ctx context.Context, year, month int) (*Settlement, error)
	PaymentsByInfluencer(ctx context.Context, id string) ([]Payment, error)
}

// PaidLister pages through paid analyses of the authoritative store.
type PaidLister interface {
	ListPaid(ctx context.Context, req remotestore.ListPaidRequest) ([]remotestore.PaidAnalysis, pagination.PageInfo, error)
}
