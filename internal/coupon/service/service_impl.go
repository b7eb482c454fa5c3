package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/config"
	"github.com/smallbiznis/facesaju/internal/coupon/domain"
	"github.com/smallbiznis/facesaju/internal/observability/metrics"
	"github.com/smallbiznis/facesaju/internal/ratelimit"
	"github.com/smallbiznis/facesaju/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Clock   clock.Clock
	Catalog *config.CatalogHolder
	Limiter *ratelimit.CouponAttemptLimiter `optional:"true"`
	Metrics *metrics.Metrics                `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	genID   *snowflake.Node
	clock   clock.Clock
	catalog *config.CatalogHolder
	limiter *ratelimit.CouponAttemptLimiter
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("coupon.service"),
		repo:    p.Repo,
		genID:   p.GenID,
		clock:   p.Clock,
		catalog: p.Catalog,
		limiter: p.Limiter,
		metrics: p.Metrics,
	}
}

func (s *Service) Validate(ctx context.Context, req domain.ValidateRequest) (domain.Validation, error) {
	code := normalizeCode(req.Code)
	if code == "" {
		return domain.Invalid(domain.ReasonNotFound), nil
	}

	allowed, err := s.limiter.Allow(ctx, req.ClientKey)
	if err != nil {
		s.log.Warn("coupon attempt limiter unavailable", zap.Error(err))
	}
	if !allowed {
		return domain.Invalid(domain.ReasonRateLimited), nil
	}

	coupon, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.Validation{}, err
	}
	if err := s.check(coupon, strings.TrimSpace(req.ServiceType)); err != nil {
		reason, ok := domain.ReasonFor(err)
		if !ok {
			return domain.Validation{}, err
		}
		return domain.Invalid(reason), nil
	}

	return domain.Validation{
		Valid:          true,
		Code:           coupon.Code,
		Kind:           coupon.DiscountKind,
		IsFree:         coupon.DiscountKind == domain.DiscountFree,
		DiscountAmount: coupon.DiscountAmount,
	}, nil
}

func (s *Service) Redeem(ctx context.Context, req domain.RedeemRequest) (*domain.Redemption, error) {
	code := normalizeCode(req.Code)
	if code == "" {
		return nil, domain.ErrNotFound
	}
	serviceType := strings.TrimSpace(req.ServiceType)

	var out *domain.Redemption
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		ok, err := s.repo.DecrementIfAvailable(ctx, tx, code, serviceType, now)
		if err != nil {
			return err
		}

		coupon, err := s.repo.FindByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if !ok {
			if err := s.check(coupon, serviceType); err != nil {
				return err
			}
			// The row looked redeemable on re-read, so the last unit went
			// to a concurrent call between the two statements.
			return domain.ErrExhausted
		}

		usage := &domain.UsageLog{
			ID:          s.genID.Generate(),
			CouponID:    coupon.ID,
			CouponCode:  coupon.Code,
			ServiceType: serviceType,
			RecordID:    strings.TrimSpace(req.RecordID),
			UsedAt:      now,
		}
		if err := s.repo.InsertUsage(ctx, tx, usage); err != nil {
			return err
		}

		out = &domain.Redemption{
			CouponID:       coupon.ID,
			Code:           coupon.Code,
			Kind:           coupon.DiscountKind,
			DiscountAmount: coupon.DiscountAmount,
			Remaining:      coupon.RemainingQuantity,
			UsedAt:         now,
		}
		return nil
	})
	if err != nil {
		if reason, ok := domain.ReasonFor(err); ok {
			s.metrics.RecordCouponRedemption(ctx, serviceType, string(reason))
		} else {
			s.log.Error("coupon redeem failed", zap.String("code", code), zap.Error(err))
		}
		return nil, err
	}

	s.metrics.RecordCouponRedemption(ctx, serviceType, "redeemed")
	s.log.Info("coupon redeemed",
		zap.String("code", out.Code),
		zap.String("service_type", serviceType),
		zap.Int("remaining", out.Remaining),
	)
	return out, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Coupon, error) {
	code := normalizeCode(req.Code)
	if code == "" {
		return nil, domain.ErrInvalidCode
	}

	serviceType := strings.TrimSpace(req.ServiceType)
	if serviceType == "" {
		serviceType = domain.ServiceTypeAll
	}
	if !s.knownServiceType(serviceType) {
		return nil, domain.ErrInvalidServiceType
	}

	switch req.DiscountKind {
	case domain.DiscountFree:
		if req.DiscountAmount != 0 {
			return nil, domain.ErrInvalidDiscount
		}
	case domain.DiscountFixed:
		if req.DiscountAmount <= 0 {
			return nil, domain.ErrInvalidDiscount
		}
	default:
		return nil, domain.ErrInvalidDiscount
	}

	if req.TotalQuantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = code
	}

	now := s.clock.Now()
	coupon := &domain.Coupon{
		ID:                s.genID.Generate(),
		Code:              code,
		Name:              name,
		ServiceType:       serviceType,
		DiscountKind:      req.DiscountKind,
		DiscountAmount:    req.DiscountAmount,
		TotalQuantity:     req.TotalQuantity,
		RemainingQuantity: req.TotalQuantity,
		IsActive:          true,
		ExpiresAt:         req.ExpiresAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	existing, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrCouponExists
	}
	if err := s.repo.Insert(ctx, s.db, coupon); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrCouponExists
		}
		return nil, err
	}
	return coupon, nil
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) (*domain.Coupon, error) {
	couponID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.SetActive(ctx, s.db, couponID, active, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.repo.FindByID(ctx, s.db, couponID)
}

func (s *Service) List(ctx context.Context) ([]domain.Coupon, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	couponID, err := parseID(id)
	if err != nil {
		return err
	}
	ok, err := s.repo.DeleteUnused(ctx, s.db, couponID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	coupon, err := s.repo.FindByID(ctx, s.db, couponID)
	if err != nil {
		return err
	}
	if coupon == nil {
		return domain.ErrNotFound
	}
	return domain.ErrCouponInUse
}

func (s *Service) ListUsage(ctx context.Context, id string) ([]domain.UsageLog, error) {
	couponID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.repo.ListUsage(ctx, s.db, couponID)
}

func (s *Service) check(coupon *domain.Coupon, serviceType string) error {
	if coupon == nil {
		return domain.ErrNotFound
	}
	if !coupon.IsActive {
		return domain.ErrInactive
	}
	if coupon.ExpiresAt != nil && !coupon.ExpiresAt.After(s.clock.Now()) {
		return domain.ErrExpired
	}
	if coupon.RemainingQuantity <= 0 {
		return domain.ErrExhausted
	}
	if serviceType != "" && !coupon.AppliesTo(serviceType) {
		return domain.ErrWrongProductLine
	}
	return nil
}

func (s *Service) knownServiceType(serviceType string) bool {
	if serviceType == domain.ServiceTypeAll {
		return true
	}
	for _, line := range s.catalog.Get().ProductLines {
		if line.CouponServiceType == serviceType {
			return true
		}
	}
	return false
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func parseID(id string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed <= 0 {
		return 0, errors.Join(domain.ErrNotFound, err)
	}
	return parsed, nil
}
