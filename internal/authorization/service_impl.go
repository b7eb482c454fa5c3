package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Subject is the casbin subject an operator of this role acts as.
func (r Role) Subject() string {
	return "operator:" + string(r)
}

func (r Role) group() string {
	return "role:" + string(r)
}

const (
	ObjectCoupon     = "coupon"
	ObjectInfluencer = "influencer"
	ObjectSettlement = "settlement"
	ObjectPayment    = "payment"
)

const (
	ActionCouponView   = "coupon.view"
	ActionCouponManage = "coupon.manage"

	ActionInfluencerView   = "influencer.view"
	ActionInfluencerManage = "influencer.manage"

	ActionSettlementView = "settlement.view"

	ActionPaymentView = "payment.view"
)

type Service interface {
	Login(ctx context.Context, role Role, password string) (*Token, error)
	Authenticate(ctx context.Context, token string) (*Claims, error)
	Authorize(ctx context.Context, actor string, object string, action string) error
}

type Params struct {
	fx.In

	Cfg      config.Config
	Log      *zap.Logger
	Clock    clock.Clock
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	hashes   map[Role]string
	tokens   tokenCodec
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		hashes: map[Role]string{
			RoleAdmin:      strings.TrimSpace(p.Cfg.Auth.AdminPasswordHash),
			RoleSuperAdmin: strings.TrimSpace(p.Cfg.Auth.SuperAdminPasswordHash),
		},
		tokens: tokenCodec{
			issuer: p.Cfg.AppName,
			secret: []byte(p.Cfg.Auth.JWTSecret),
			ttl:    p.Cfg.Auth.TokenTTL,
			now:    p.Clock.Now,
		},
	}
}

// Login exchanges the shared operator password of a role for a signed
// token.
func (s *ServiceImpl) Login(ctx context.Context, role Role, password string) (*Token, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	hash := s.hashes[role]
	if hash == "" {
		s.log.Warn("operator login attempted without a configured password hash", zap.String("role", string(role)))
		return nil, ErrNotConfigured
	}
	if password == "" || !VerifyPassword(password, hash) {
		s.log.Info("operator login rejected", zap.String("role", string(role)))
		return nil, ErrInvalidCredentials
	}
	if err := s.ensureGrouping(role); err != nil {
		return nil, err
	}
	return s.tokens.issue(role)
}

func (s *ServiceImpl) Authenticate(ctx context.Context, token string) (*Claims, error) {
	return s.tokens.parse(token)
}

// Authorize checks a subject such as "operator:admin" against the policy.
func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	role, ok := roleFromSubject(actor)
	if !ok {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	if err := s.ensureGrouping(role); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("subject", actor),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func roleFromSubject(subject string) (Role, bool) {
	raw, ok := strings.CutPrefix(subject, "operator:")
	if !ok {
		return "", false
	}
	role := Role(raw)
	return role, role.Valid()
}

func (s *ServiceImpl) ensureGrouping(role Role) error {
	has, err := s.enforcer.HasGroupingPolicy(role.Subject(), role.group())
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(role.Subject(), role.group())
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Admin permissions
		{RoleAdmin.group(), ObjectCoupon, ActionCouponView},
		{RoleAdmin.group(), ObjectCoupon, ActionCouponManage},
		{RoleAdmin.group(), ObjectInfluencer, ActionInfluencerView},
		{RoleAdmin.group(), ObjectInfluencer, ActionInfluencerManage},
		{RoleAdmin.group(), ObjectSettlement, ActionSettlementView},

		// Superadmin sees payments on top of everything an admin can do.
		{RoleSuperAdmin.group(), ObjectPayment, ActionPaymentView},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	has, err := enforcer.HasGroupingPolicy(RoleSuperAdmin.group(), RoleAdmin.group())
	if err != nil {
		return err
	}
	if !has {
		if _, err := enforcer.AddGroupingPolicy(RoleSuperAdmin.group(), RoleAdmin.group()); err != nil {
			return err
		}
	}
	return nil
}
