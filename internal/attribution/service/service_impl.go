package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/facesaju/internal/attribution/domain"
	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Remote domain.PaidLister
	Clock  clock.Clock
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	remote domain.PaidLister
	clock  clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("attribution.service"),
		genID:  p.GenID,
		repo:   p.Repo,
		remote: p.Remote,
		clock:  p.Clock,
	}
}

func (s *Service) CreateInfluencer(ctx context.Context, req domain.CreateInfluencerRequest) (*domain.Influencer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidInfluencer
	}
	key := normalizeSlug(req.Slug)
	if key == "" {
		return nil, domain.ErrInvalidInfluencer
	}
	if !validShare(req.RSPercentage) {
		return nil, domain.ErrInvalidInfluencer
	}

	existing, err := s.repo.FindInfluencerBySlug(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrSlugTaken
	}

	now := s.clock.Now().UTC()
	inf := &domain.Influencer{
		ID:           s.genID.Generate(),
		Name:         name,
		Slug:         key,
		Platform:     strings.TrimSpace(req.Platform),
		Contact:      strings.TrimSpace(req.Contact),
		Memo:         strings.TrimSpace(req.Memo),
		RSPercentage: req.RSPercentage,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertInfluencer(ctx, s.db, inf); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, err
	}
	s.log.Info("influencer created", zap.String("influencer_id", inf.ID.String()), zap.String("slug", inf.Slug))
	return inf, nil
}

func (s *Service) UpdateInfluencer(ctx context.Context, id string, req domain.UpdateInfluencerRequest) (*domain.Influencer, error) {
	influencerID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var out *domain.Influencer
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inf, err := s.repo.FindInfluencer(ctx, tx, influencerID)
		if err != nil {
			return err
		}
		if inf == nil {
			return domain.ErrInfluencerNotFound
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.ErrInvalidInfluencer
			}
			inf.Name = name
		}
		if req.Slug != nil {
			key := normalizeSlug(*req.Slug)
			if key == "" {
				return domain.ErrInvalidInfluencer
			}
			if key != inf.Slug {
				other, err := s.repo.FindInfluencerBySlug(ctx, tx, key)
				if err != nil {
					return err
				}
				if other != nil {
					return domain.ErrSlugTaken
				}
			}
			inf.Slug = key
		}
		if req.Platform != nil {
			inf.Platform = strings.TrimSpace(*req.Platform)
		}
		if req.Contact != nil {
			inf.Contact = strings.TrimSpace(*req.Contact)
		}
		if req.Memo != nil {
			inf.Memo = strings.TrimSpace(*req.Memo)
		}
		if req.RSPercentage != nil {
			if !validShare(*req.RSPercentage) {
				return domain.ErrInvalidInfluencer
			}
			inf.RSPercentage = *req.RSPercentage
		}
		if req.IsActive != nil {
			inf.IsActive = *req.IsActive
		}
		inf.UpdatedAt = s.clock.Now().UTC()

		if err := s.repo.UpdateInfluencer(ctx, tx, inf); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrSlugTaken
			}
			return err
		}
		out = inf
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) DeleteInfluencer(ctx context.Context, id string) error {
	influencerID, err := parseID(id)
	if err != nil {
		return err
	}
	deleted, err := s.repo.DeleteInfluencer(ctx, s.db, influencerID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrInfluencerNotFound
	}
	return nil
}

func (s *Service) GetInfluencerBySlug(ctx context.Context, key string) (*domain.Influencer, error) {
	inf, err := s.repo.FindInfluencerBySlug(ctx, s.db, normalizeSlug(key))
	if err != nil {
		return nil, err
	}
	if inf == nil {
		return nil, domain.ErrInfluencerNotFound
	}
	return inf, nil
}

func (s *Service) ResolveSource(ctx context.Context, utmSource string) (string, error) {
	key := normalizeSlug(utmSource)
	if key == "" {
		return "", nil
	}
	inf, err := s.repo.FindInfluencerBySlug(ctx, s.db, key)
	if err != nil {
		return "", err
	}
	if inf == nil || !inf.IsActive {
		return "", nil
	}
	return inf.ID.String(), nil
}

func (s *Service) RecordVisit(ctx context.Context, req domain.RecordVisitRequest) (*domain.Visit, error) {
	source := strings.TrimSpace(req.UTMSource)
	if source == "" {
		return nil, domain.ErrInvalidVisit
	}

	visit := &domain.Visit{
		ID:          s.genID.Generate(),
		UTMSource:   source,
		UTMMedium:   strings.TrimSpace(req.UTMMedium),
		UTMCampaign: strings.TrimSpace(req.UTMCampaign),
		LandingPage: strings.TrimSpace(req.LandingPage),
		VisitedAt:   s.clock.Now().UTC(),
	}
	if inf, err := s.repo.FindInfluencerBySlug(ctx, s.db, normalizeSlug(source)); err != nil {
		s.log.Warn("resolve utm source", zap.String("utm_source", source), zap.Error(err))
	} else if inf != nil && inf.IsActive {
		visit.InfluencerID = inf.ID
	}

	if err := s.repo.InsertVisit(ctx, s.db, visit); err != nil {
		return nil, err
	}
	return visit, nil
}

// normalizeSlug maps operator input and utm_source values onto the same
// key space.
func normalizeSlug(v string) string {
	return slug.Make(strings.TrimSpace(v))
}

func validShare(pct float64) bool {
	return pct >= 0 && pct <= 100
}

func parseID(id string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return 0, domain.ErrInfluencerNotFound
	}
	return parsed, nil
}
