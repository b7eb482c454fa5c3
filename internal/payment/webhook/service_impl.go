package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/config"
	"github.com/smallbiznis/facesaju/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/facesaju/internal/payment/domain"
	recorddomain "github.com/smallbiznis/facesaju/internal/record/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RemoteRecords is the authoritative record store as seen by the webhook.
type RemoteRecords interface {
	MarkPaid(ctx context.Context, line recorddomain.ProductLine, id string, slot recorddomain.SlotKey, info recorddomain.PaymentInfo) (*recorddomain.AnalysisRecord, error)
	Upsert(ctx context.Context, line recorddomain.ProductLine, rec *recorddomain.AnalysisRecord) (*recorddomain.AnalysisRecord, bool, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	PaymentSvc paymentdomain.Service
	Adapters   *adapters.Registry
	Lines      *recorddomain.Registry
	Remote     RemoteRecords
	Clock      clock.Clock
}

type Service struct {
	log        *zap.Logger
	gateway    config.GatewayConfig
	paymentSvc paymentdomain.Service
	adapters   *adapters.Registry
	lines      *recorddomain.Registry
	remote     RemoteRecords
	clock      clock.Clock
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		gateway:    p.Cfg.Gateway,
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
		lines:      p.Lines,
		remote:     p.Remote,
		clock:      clk,
	}
}

// IngestWebhook verifies and applies one gateway callback. A confirmed
// order marks the record paid remotely, so a buyer who never returns to
// the success page is still unlocked on their next visit.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapters.NewAdapter(provider, paymentdomain.AdapterConfig{
		SecretKey:     s.gateway.SecretKey,
		WebhookSecret: s.gateway.WebhookSecret,
		BaseURL:       s.gateway.BaseURL,
	})
	if err != nil {
		return err
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	order, err := s.paymentSvc.ApplyEvent(ctx, event)
	if err != nil {
		return err
	}
	if order == nil || !order.Confirmed() {
		return nil
	}
	return s.markRecordPaid(ctx, order)
}

func (s *Service) markRecordPaid(ctx context.Context, order *paymentdomain.Order) error {
	line, err := s.lines.Line(order.ProductLine)
	if err != nil {
		return err
	}
	info := recorddomain.PaymentInfo{
		Method:     recorddomain.PaymentMethodGateway,
		Price:      order.Amount,
		CouponCode: order.CouponCode,
		IsDiscount: order.IsDiscount,
		OrderID:    order.ID,
		PaymentKey: order.PaymentKey,
	}
	slot := recorddomain.SlotKey(order.Slot)
	_, err = s.remote.MarkPaid(ctx, line, order.RecordID, slot, info)
	if !errors.Is(err, recorddomain.ErrRecordNotFound) {
		return err
	}

	// The remote row was never written. Store a paid stub; the next visit
	// folds it into the local copy and backfills the rest.
	paidAt := s.clock.Now()
	if order.ConfirmedAt != nil {
		paidAt = *order.ConfirmedAt
	}
	stub, err := recorddomain.NewRecord(line, order.RecordID, recorddomain.Input{}, paidAt)
	if err != nil {
		return err
	}
	if _, err := recorddomain.ApplyPayment(stub, line, slot, info, paidAt); err != nil {
		return err
	}
	if _, _, err := s.remote.Upsert(ctx, line, stub); err != nil {
		return err
	}
	s.log.Info("stored paid stub for record missing remotely",
		zap.String("order_id", order.ID),
		zap.String("record_id", order.RecordID),
		zap.String("product_line", line.Name),
	)
	return nil
}
