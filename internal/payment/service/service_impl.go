package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/config"
	obsmetrics "github.com/smallbiznis/facesaju/internal/observability/metrics"
	"github.com/smallbiznis/facesaju/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/facesaju/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxCouponInOrder = 20
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       paymentdomain.Repository
	Adapters   *adapters.Registry
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	gateway    config.GatewayConfig
	repo       paymentdomain.Repository
	adapters   *adapters.Registry
	obsMetrics *obsmetrics.Metrics
	newID      func() string
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		gateway:    p.Cfg.Gateway,
		repo:       p.Repo,
		adapters:   p.Adapters,
		obsMetrics: p.ObsMetrics,
		newID:      func() string { return ulid.Make().String() },
	}
}

func (s *Service) CreateOrder(ctx context.Context, req paymentdomain.CreateOrderRequest) (*paymentdomain.Order, error) {
	recordID := strings.TrimSpace(req.RecordID)
	line := strings.TrimSpace(req.ProductLine)
	slot := strings.TrimSpace(req.Slot)
	if recordID == "" || line == "" || slot == "" || req.Amount <= 0 {
		return nil, paymentdomain.ErrInvalidOrder
	}

	now := s.clock.Now()
	order := &paymentdomain.Order{
		ID:             orderID(line, req.CouponCode, s.newID()),
		RecordID:       recordID,
		ProductLine:    line,
		Slot:           slot,
		OrderName:      strings.TrimSpace(req.OrderName),
		Amount:         req.Amount,
		OriginalAmount: req.OriginalAmount,
		CouponCode:     strings.ToUpper(strings.TrimSpace(req.CouponCode)),
		IsDiscount:     req.IsDiscount,
		Provider:       s.gateway.Provider,
		Status:         paymentdomain.OrderPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.InsertOrder(ctx, s.db, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*paymentdomain.Order, error) {
	order, err := s.repo.FindOrder(ctx, s.db, strings.TrimSpace(id), false)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, paymentdomain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) Confirm(ctx context.Context, req paymentdomain.ConfirmRequest) (*paymentdomain.ConfirmResult, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	req.PaymentKey = strings.TrimSpace(req.PaymentKey)
	if req.OrderID == "" || req.PaymentKey == "" {
		return nil, paymentdomain.ErrInvalidOrder
	}

	order, err := s.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Confirmed() {
		return &paymentdomain.ConfirmResult{Order: order, AlreadyConfirmed: true}, nil
	}
	if req.Amount != order.Amount {
		return nil, paymentdomain.ErrAmountMismatch
	}

	adapter, err := s.adapter()
	if err != nil {
		return nil, err
	}

	confirmation, err := s.confirmWithRetry(ctx, adapter, req)
	if err != nil {
		var gwErr *paymentdomain.GatewayError
		if errors.As(err, &gwErr) && !gwErr.Retryable() {
			if _, markErr := s.repo.MarkFailed(ctx, s.db, order.ID, gwErr.Code, gwErr.Message, s.clock.Now()); markErr != nil {
				s.log.Warn("failed to mark order failed", zap.String("order_id", order.ID), zap.Error(markErr))
			}
			s.obsMetrics.RecordPaymentEvent(ctx, order.Provider, paymentdomain.EventTypePaymentFailed)
		}
		s.log.Warn("payment confirm failed", zap.String("order_id", order.ID), zap.Error(err))
		return nil, err
	}

	moved, err := s.repo.MarkConfirmed(ctx, s.db, order.ID, confirmation.PaymentKey, confirmation.Method, s.clock.Now())
	if err != nil {
		return nil, err
	}
	updated, err := s.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if moved {
		s.obsMetrics.RecordPaymentEvent(ctx, order.Provider, paymentdomain.EventTypePaymentSucceeded)
		s.log.Info("payment confirmed",
			zap.String("order_id", order.ID),
			zap.String("record_id", order.RecordID),
			zap.Int64("amount", order.Amount),
		)
	}
	return &paymentdomain.ConfirmResult{Order: updated, AlreadyConfirmed: !moved}, nil
}

func (s *Service) confirmWithRetry(ctx context.Context, adapter paymentdomain.GatewayAdapter, req paymentdomain.ConfirmRequest) (*paymentdomain.Confirmation, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.gateway.ConfirmRetryInterval
	tries := s.gateway.ConfirmMaxTries
	if tries == 0 {
		tries = 1
	}

	return backoff.Retry(ctx, func() (*paymentdomain.Confirmation, error) {
		res, err := adapter.Confirm(ctx, req)
		if err != nil && !paymentdomain.IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(tries))
}

func (s *Service) Fail(ctx context.Context, orderID, code, message string) (*paymentdomain.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	moved, err := s.repo.MarkFailed(ctx, s.db, order.ID, strings.TrimSpace(code), strings.TrimSpace(message), s.clock.Now())
	if err != nil {
		return nil, err
	}
	if moved {
		s.obsMetrics.RecordPaymentEvent(ctx, order.Provider, paymentdomain.EventTypePaymentFailed)
	}
	return s.GetOrder(ctx, order.ID)
}

func (s *Service) ListOrders(ctx context.Context, req paymentdomain.ListOrdersRequest) ([]paymentdomain.Order, error) {
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}
	if req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}
	return s.repo.ListOrders(ctx, s.db, req)
}

func (s *Service) ApplyEvent(ctx context.Context, event *paymentdomain.PaymentEvent) (*paymentdomain.Order, error) {
	if event == nil || strings.TrimSpace(event.ProviderEventID) == "" || strings.TrimSpace(event.OrderID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var (
		out       *paymentdomain.Order
		duplicate bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		record := &paymentdomain.EventRecord{
			ID:              s.genID.Generate(),
			Provider:        event.Provider,
			ProviderEventID: event.ProviderEventID,
			EventType:       event.Type,
			OrderID:         event.OrderID,
			Payload:         datatypes.JSON(event.RawPayload),
			ReceivedAt:      now,
		}
		inserted, err := s.repo.InsertEvent(ctx, tx, record)
		if err != nil {
			return err
		}
		if !inserted {
			// redelivery: report the order as it stands so the caller can
			// re-assert its side effects
			duplicate = true
			out, err = s.repo.FindOrder(ctx, tx, event.OrderID, false)
			return err
		}

		order, err := s.repo.FindOrder(ctx, tx, event.OrderID, true)
		if err != nil {
			return err
		}
		if order == nil {
			return paymentdomain.ErrOrderNotFound
		}

		switch event.Type {
		case paymentdomain.EventTypePaymentSucceeded:
			if event.Amount != order.Amount {
				return paymentdomain.ErrAmountMismatch
			}
			if _, err := s.repo.MarkConfirmed(ctx, tx, order.ID, event.PaymentKey, event.Method, now); err != nil {
				return err
			}
		case paymentdomain.EventTypePaymentFailed:
			if _, err := s.repo.MarkFailed(ctx, tx, order.ID, "WEBHOOK_"+strings.ToUpper(event.Type), "", now); err != nil {
				return err
			}
		}

		if err := s.repo.MarkEventProcessed(ctx, tx, record.ID, now); err != nil {
			return err
		}
		out, err = s.repo.FindOrder(ctx, tx, order.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out != nil && !duplicate {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}
	return out, nil
}

func (s *Service) adapter() (paymentdomain.GatewayAdapter, error) {
	return s.adapters.NewAdapter(s.gateway.Provider, paymentdomain.AdapterConfig{
		SecretKey:     s.gateway.SecretKey,
		WebhookSecret: s.gateway.WebhookSecret,
		BaseURL:       s.gateway.BaseURL,
	})
}

// orderID builds "<line>[-<COUPON>]_<ulid>" within the gateway's 64 char
// [A-Za-z0-9_-] alphabet.
func orderID(line, coupon, id string) string {
	prefix := strings.ReplaceAll(strings.ToLower(line), "_", "-")
	code := make([]rune, 0, maxCouponInOrder)
	for _, r := range strings.ToUpper(coupon) {
		if len(code) == maxCouponInOrder {
			break
		}
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			code = append(code, r)
		}
	}
	if len(code) > 0 {
		prefix += "-" + string(code)
	}
	return prefix + "_" + id
}
