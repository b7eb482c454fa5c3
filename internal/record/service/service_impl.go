package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/observability/metrics"
	"github.com/smallbiznis/facesaju/internal/reconcile"
	"github.com/smallbiznis/facesaju/internal/record/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// SourceResolver maps a utm_source onto an active influencer id. An empty
// id means the source is not attributed.
type SourceResolver interface {
	ResolveSource(ctx context.Context, utmSource string) (string, error)
}

type Reconciler interface {
	Load(ctx context.Context, line, id string) (*reconcile.Result, error)
	PushAsync(ctx context.Context, line, id string)
}

type Params struct {
	fx.In

	Stores     domain.StoreSet
	Reconciler Reconciler
	Resolver   SourceResolver `optional:"true"`
	Clock      clock.Clock
	Log        *zap.Logger
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	stores     domain.StoreSet
	reconciler Reconciler
	resolver   SourceResolver
	clock      clock.Clock
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		stores:     p.Stores,
		reconciler: p.Reconciler,
		resolver:   p.Resolver,
		clock:      p.Clock,
		log:        p.Log.Named("record.service"),
		metrics:    p.Metrics,
	}
}

type CreateRequest struct {
	ProductLine string
	// ID is client generated; one is minted when empty.
	ID          string
	Input       domain.Input
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
}

type UpdateRequest struct {
	Input     *domain.Input
	SeenIntro *bool
}

// Create stores a fresh record locally and pushes it to the remote store in
// the background so shared links work before any payment.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.AnalysisRecord, error) {
	store, err := s.stores.For(req.ProductLine)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}

	rec, err := domain.NewRecord(store.Line(), id, req.Input, s.clock.Now())
	if err != nil {
		return nil, err
	}
	rec.Attribution = s.attribution(ctx, req)

	if err := store.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.metrics.RecordRecordCreated(ctx, store.Line().Name)
	s.reconciler.PushAsync(ctx, store.Line().Name, rec.ID)
	return rec, nil
}

func (s *Service) attribution(ctx context.Context, req CreateRequest) *domain.Attribution {
	source := strings.TrimSpace(req.UTMSource)
	if source == "" {
		return nil
	}
	a := &domain.Attribution{
		UTMSource:   source,
		UTMMedium:   strings.TrimSpace(req.UTMMedium),
		UTMCampaign: strings.TrimSpace(req.UTMCampaign),
	}
	if s.resolver == nil {
		return a
	}
	influencerID, err := s.resolver.ResolveSource(ctx, source)
	if err != nil {
		s.log.Warn("resolve utm source", zap.String("utm_source", source), zap.Error(err))
		return a
	}
	a.InfluencerID = influencerID
	return a
}

// Update applies client edits. A record known only remotely is pulled into
// the local store first.
func (s *Service) Update(ctx context.Context, lineName, id string, req UpdateRequest) (*domain.AnalysisRecord, error) {
	store, err := s.stores.For(lineName)
	if err != nil {
		return nil, err
	}
	res, err := s.reconciler.Load(ctx, lineName, id)
	if err != nil {
		return nil, err
	}
	if res.Source == reconcile.SourceRemote {
		// Load caches remote hits in the background; the patch needs the
		// local copy now.
		if _, _, err := store.Merge(ctx, res.Record); err != nil {
			return nil, err
		}
	}

	rec, err := store.Update(ctx, id, domain.Patch{
		Input:     req.Input,
		SeenIntro: req.SeenIntro,
	})
	if err != nil {
		return nil, err
	}
	if req.Input != nil {
		s.reconciler.PushAsync(ctx, lineName, id)
	}
	return rec, nil
}

// Delete removes the local copy. The id stays burned.
func (s *Service) Delete(ctx context.Context, lineName, id string) error {
	store, err := s.stores.For(lineName)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return &reconcile.NotFoundError{ProductLine: lineName, ID: id, Redirect: reconcile.StartPath(lineName)}
		}
		return err
	}
	return nil
}
