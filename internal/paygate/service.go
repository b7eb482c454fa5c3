package paygate

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/smallbiznis/facesaju/internal/clock"
	"github.com/smallbiznis/facesaju/internal/config"
	coupondomain "github.com/smallbiznis/facesaju/internal/coupon/domain"
	"github.com/smallbiznis/facesaju/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/facesaju/internal/payment/domain"
	"github.com/smallbiznis/facesaju/internal/reconcile"
	"github.com/smallbiznis/facesaju/internal/record/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Reconciler is the part of the reconcile service the gate needs.
type Reconciler interface {
	Load(ctx context.Context, line, id string) (*reconcile.Result, error)
	PushAsync(ctx context.Context, line, id string)
}

type Params struct {
	fx.In

	Cfg        config.Config
	Catalog    *config.CatalogHolder
	Lines      *domain.Registry
	Stores     domain.StoreSet
	Reconciler Reconciler
	Coupons    coupondomain.Service
	Payments   paymentdomain.Service
	Clock      clock.Clock
	Log        *zap.Logger
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	publicURL  string
	clientKey  string
	catalog    *config.CatalogHolder
	lines      *domain.Registry
	stores     domain.StoreSet
	reconciler Reconciler
	coupons    coupondomain.Service
	payments   paymentdomain.Service
	clock      clock.Clock
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func New(p Params) *Service {
	return &Service{
		publicURL:  strings.TrimRight(p.Cfg.PublicBaseURL, "/"),
		clientKey:  p.Cfg.Gateway.ClientKey,
		catalog:    p.Catalog,
		lines:      p.Lines,
		stores:     p.Stores,
		reconciler: p.Reconciler,
		coupons:    p.Coupons,
		payments:   p.Payments,
		clock:      p.Clock,
		log:        p.Log.Named("paygate.service"),
		metrics:    p.Metrics,
	}
}

// View is what a client needs to render one slot.
type View struct {
	RecordID         string           `json:"recordId"`
	ProductLine      string           `json:"productLine"`
	Slot             domain.SlotKey   `json:"type"`
	State            domain.GateState `json:"state"`
	Rendering        Rendering        `json:"rendering"`
	Price            int64            `json:"price"`
	OriginalPrice    int64            `json:"originalPrice"`
	Retention        bool             `json:"retention"`
	CouponCode       string           `json:"couponCode,omitempty"`
	TeaserEndsAt     *string          `json:"teaserEndsAt,omitempty"`
	RetentionDueAt   *string          `json:"retentionDueAt,omitempty"`
	Retry            bool             `json:"retry"`
	RetryMessage     string           `json:"retryMessage,omitempty"`
	PurchasedAt      *string          `json:"purchasedAt,omitempty"`
	OrderID          string           `json:"orderId,omitempty"`
	RetentionOffered bool             `json:"retentionOffered"`
}

type Checkout struct {
	OrderID    string `json:"orderId"`
	OrderName  string `json:"orderName"`
	Amount     int64  `json:"amount"`
	ClientKey  string `json:"clientKey"`
	SuccessURL string `json:"successUrl"`
	FailURL    string `json:"failUrl"`
	View       *View  `json:"gate"`
}

type CouponOutcome struct {
	Validation coupondomain.Validation `json:"validation"`
	// Unlocked is true when a free coupon paid the slot outright.
	Unlocked bool  `json:"unlocked"`
	View     *View `json:"gate"`
}

type SuccessRequest struct {
	Type       string
	RecordID   string
	OrderID    string
	PaymentKey string
	Amount     int64
}

type SuccessResult struct {
	Record      *domain.AnalysisRecord `json:"record"`
	ProductLine string                 `json:"productLine"`
	Slot        domain.SlotKey         `json:"type"`
	AlreadyPaid bool                   `json:"alreadyPaid"`
}

type FailRequest struct {
	Type     string
	RecordID string
	OrderID  string
	Code     string
	Message  string
}

type FailResult struct {
	RecordID    string         `json:"recordId"`
	ProductLine string         `json:"productLine"`
	Slot        domain.SlotKey `json:"type"`
	Code        string         `json:"code,omitempty"`
	Message     string         `json:"message,omitempty"`
	RetryPath   string         `json:"retryPath"`
}

const widgetRetryMessage = "결제 모듈을 불러오지 못했습니다. 잠시 후 다시 시도해주세요."

func (s *Service) View(ctx context.Context, lineName, id string, slot domain.SlotKey) (*View, error) {
	gs, err := s.gate(ctx, lineName, id, slot)
	if err != nil {
		return nil, err
	}
	// The retention offer opens by itself once due.
	if gs.machine.RetentionDue(gs.session, s.clock.Now()) && State(gs.session) == domain.GateLocked {
		return s.transition(ctx, gs, Transition{Event: EventRetentionOffer})
	}
	return s.view(gs), nil
}

func (s *Service) StartTeaser(ctx context.Context, lineName, id string, slot domain.SlotKey) (*View, error) {
	return s.apply(ctx, lineName, id, slot, Transition{Event: EventStartTeaser})
}

func (s *Service) OpenPaywall(ctx context.Context, lineName, id string, slot domain.SlotKey) (*View, error) {
	return s.apply(ctx, lineName, id, slot, Transition{Event: EventOpenPaywall})
}

func (s *Service) Close(ctx context.Context, lineName, id string, slot domain.SlotKey) (*View, error) {
	return s.apply(ctx, lineName, id, slot, Transition{Event: EventClose})
}

// WidgetFailed keeps the paywall open with a retry affordance.
func (s *Service) WidgetFailed(ctx context.Context, lineName, id string, slot domain.SlotKey) (*View, error) {
	return s.apply(ctx, lineName, id, slot, Transition{Event: EventWidgetFailed})
}

func (s *Service) WidgetReady(ctx context.Context, lineName, id string, slot domain.SlotKey) (*View, error) {
	return s.apply(ctx, lineName, id, slot, Transition{Event: EventWidgetReady})
}

// ApplyCoupon validates code for the slot's line. A free coupon is redeemed
// and unlocks the slot without a gateway round trip; a fixed coupon is
// remembered on the gate and consumed when the payment succeeds.
func (s *Service) ApplyCoupon(ctx context.Context, lineName, id string, slot domain.SlotKey, code, clientKey string) (*CouponOutcome, error) {
	gs, err := s.gate(ctx, lineName, id, slot)
	if err != nil {
		return nil, err
	}
	if gs.paid {
		return &CouponOutcome{Validation: coupondomain.Validation{Valid: false}, Unlocked: true, View: s.view(gs)}, nil
	}
	if State(gs.session) != domain.GatePaywallOpen {
		return nil, ErrInvalidTransition
	}

	validation, err := s.coupons.Validate(ctx, coupondomain.ValidateRequest{
		Code:        code,
		ServiceType: gs.cfg.CouponServiceType,
		ClientKey:   clientKey,
	})
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return &CouponOutcome{Validation: validation, View: s.view(gs)}, nil
	}

	if !validation.IsFree {
		gs.session.CouponCode = validation.Code
		if err := s.saveSession(ctx, gs); err != nil {
			return nil, err
		}
		return &CouponOutcome{Validation: validation, View: s.view(gs)}, nil
	}

	if _, err := s.coupons.Redeem(ctx, coupondomain.RedeemRequest{
		Code:        validation.Code,
		ServiceType: gs.cfg.CouponServiceType,
		RecordID:    id,
	}); err != nil {
		if reason, ok := coupondomain.ReasonFor(err); ok {
			return &CouponOutcome{Validation: coupondomain.Invalid(reason), View: s.view(gs)}, nil
		}
		return nil, err
	}

	rec, err := gs.store.MarkPaid(ctx, id, slot, domain.PaymentInfo{
		Method:     domain.PaymentMethodCoupon,
		Price:      0,
		CouponCode: validation.Code,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordGateTransition(ctx, gs.line.Name, string(State(gs.session)), string(domain.GatePaid))
	s.reconciler.PushAsync(ctx, gs.line.Name, id)
	s.log.Info("slot unlocked by coupon",
		zap.String("product_line", gs.line.Name),
		zap.String("record_id", id),
		zap.String("slot", string(slot)),
		zap.String("coupon_code", validation.Code),
	)

	gs.rec = rec
	gs.paid = true
	gs.session = rec.Gates[slot]
	return &CouponOutcome{Validation: validation, Unlocked: true, View: s.view(gs)}, nil
}

// BeginCheckout creates a gateway order for the slot at its current price
// and returns the parameters the client hands to the gateway widget.
func (s *Service) BeginCheckout(ctx context.Context, lineName, id string, slot domain.SlotKey) (*Checkout, error) {
	gs, err := s.gate(ctx, lineName, id, slot)
	if err != nil {
		return nil, err
	}
	if gs.paid {
		return nil, ErrInvalidTransition
	}
	if State(gs.session) != domain.GatePaywallOpen && State(gs.session) != domain.GateGatewayRedirectPending {
		return nil, ErrInvalidTransition
	}

	price, original, discounted := s.price(gs)
	if gs.session.CouponCode != "" {
		validation, err := s.coupons.Validate(ctx, coupondomain.ValidateRequest{
			Code:        gs.session.CouponCode,
			ServiceType: gs.cfg.CouponServiceType,
		})
		if err != nil {
			return nil, err
		}
		if !validation.Valid || validation.IsFree {
			gs.session.CouponCode = ""
		} else {
			price = applyDiscount(price, validation.DiscountAmount, gs.cfg.MinimumCharge)
			discounted = true
		}
	}

	order, err := s.payments.CreateOrder(ctx, paymentdomain.CreateOrderRequest{
		RecordID:       id,
		ProductLine:    gs.line.Name,
		Slot:           string(slot),
		OrderName:      gs.cfg.OrderName,
		Amount:         price,
		OriginalAmount: original,
		CouponCode:     gs.session.CouponCode,
		IsDiscount:     discounted,
	})
	if err != nil {
		return nil, err
	}

	view, err := s.transition(ctx, gs, Transition{Event: EventBeginCheckout, OrderID: order.ID})
	if err != nil {
		return nil, err
	}

	kind := gs.cfg.RedirectType(string(slot))
	return &Checkout{
		OrderID:    order.ID,
		OrderName:  order.OrderName,
		Amount:     order.Amount,
		ClientKey:  s.clientKey,
		SuccessURL: s.redirectURL("/payment/success", kind, id),
		FailURL:    s.redirectURL("/payment/fail", kind, id),
		View:       view,
	}, nil
}

// CompleteSuccess handles the gateway's success redirect. It is safe to
// re-enter: a second visit only re-asserts the idempotent MarkPaid.
func (s *Service) CompleteSuccess(ctx context.Context, req SuccessRequest) (*SuccessResult, error) {
	lineName, slotName, ok := s.catalog.Get().ResolveRedirectType(req.Type)
	if !ok {
		return nil, ErrUnknownRedirectType
	}
	slot := domain.SlotKey(slotName)
	gs, err := s.gate(ctx, lineName, req.RecordID, slot)
	if err != nil {
		return nil, err
	}

	confirmed, err := s.payments.Confirm(ctx, paymentdomain.ConfirmRequest{
		PaymentKey: req.PaymentKey,
		OrderID:    req.OrderID,
		Amount:     req.Amount,
	})
	if err != nil {
		return nil, err
	}
	order := confirmed.Order
	if order.RecordID != gs.rec.ID || order.Slot != string(slot) || order.ProductLine != gs.line.Name {
		return nil, ErrOrderMismatch
	}

	if !confirmed.AlreadyConfirmed && order.CouponCode != "" {
		if _, err := s.coupons.Redeem(ctx, coupondomain.RedeemRequest{
			Code:        order.CouponCode,
			ServiceType: gs.cfg.CouponServiceType,
			RecordID:    gs.rec.ID,
		}); err != nil {
			// The buyer has been charged the discounted price already.
			s.log.Warn("consume coupon after payment",
				zap.String("order_id", order.ID),
				zap.String("coupon_code", order.CouponCode),
				zap.Error(err),
			)
		}
	}

	alreadyPaid := gs.paid
	rec, err := gs.store.MarkPaid(ctx, gs.rec.ID, slot, domain.PaymentInfo{
		Method:     domain.PaymentMethodGateway,
		Price:      order.Amount,
		CouponCode: order.CouponCode,
		IsDiscount: order.IsDiscount,
		OrderID:    order.ID,
		PaymentKey: order.PaymentKey,
	})
	if err != nil {
		return nil, err
	}
	if !alreadyPaid {
		s.metrics.RecordGateTransition(ctx, gs.line.Name, string(State(gs.session)), string(domain.GatePaid))
	}
	s.reconciler.PushAsync(ctx, gs.line.Name, gs.rec.ID)

	return &SuccessResult{
		Record:      rec,
		ProductLine: gs.line.Name,
		Slot:        slot,
		AlreadyPaid: alreadyPaid,
	}, nil
}

// CompleteFail handles the gateway's fail redirect. The slot returns to
// Locked and is never marked paid.
func (s *Service) CompleteFail(ctx context.Context, req FailRequest) (*FailResult, error) {
	lineName, slotName, ok := s.catalog.Get().ResolveRedirectType(req.Type)
	if !ok {
		return nil, ErrUnknownRedirectType
	}
	slot := domain.SlotKey(slotName)
	out := &FailResult{
		RecordID:    strings.TrimSpace(req.RecordID),
		ProductLine: lineName,
		Slot:        slot,
		Code:        req.Code,
		Message:     req.Message,
		RetryPath:   reconcile.StartPath(lineName) + "/result?id=" + url.QueryEscape(strings.TrimSpace(req.RecordID)),
	}

	if orderID := strings.TrimSpace(req.OrderID); orderID != "" {
		if _, err := s.payments.Fail(ctx, orderID, req.Code, req.Message); err != nil && !errors.Is(err, paymentdomain.ErrOrderNotFound) {
			s.log.Warn("mark order failed", zap.String("order_id", orderID), zap.Error(err))
		}
	}

	gs, err := s.gate(ctx, lineName, req.RecordID, slot)
	if err != nil {
		return nil, err
	}
	if _, err := s.transition(ctx, gs, Transition{Event: EventPaymentFailed}); err != nil && !errors.Is(err, ErrInvalidTransition) {
		return nil, err
	}
	return out, nil
}

type gateState struct {
	line    domain.ProductLine
	cfg     config.ProductLineConfig
	machine Machine
	store   domain.Store
	rec     *domain.AnalysisRecord
	slot    domain.SlotKey
	session domain.GateSession
	paid    bool
}

func (s *Service) gate(ctx context.Context, lineName, id string, slot domain.SlotKey) (*gateState, error) {
	line, err := s.lines.Line(lineName)
	if err != nil {
		return nil, err
	}
	if !line.HasSlot(slot) {
		return nil, domain.ErrUnknownSlot
	}
	cfg, ok := s.catalog.Get().Line(line.Name)
	if !ok {
		return nil, domain.ErrUnknownProductLine
	}
	store, err := s.stores.For(line.Name)
	if err != nil {
		return nil, err
	}

	rec, err := s.local(ctx, store, line.Name, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	reportSlot, _ := rec.Slot(slot)
	return &gateState{
		line: line,
		cfg:  cfg,
		machine: Machine{Timing: Timing{
			Teaser:         cfg.TeaserDuration,
			RetentionDelay: cfg.RetentionDelay,
			Retention:      cfg.DiscountPrice > 0 && cfg.DiscountPrice < cfg.Price,
		}},
		store:   store,
		rec:     rec,
		slot:    slot,
		session: rec.Gates[slot],
		paid:    reportSlot.Paid,
	}, nil
}

// local returns the locally stored record, pulling it through the
// reconciler first when only the remote store knows it.
func (s *Service) local(ctx context.Context, store domain.Store, line, id string) (*domain.AnalysisRecord, error) {
	rec, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return rec, nil
	}
	res, err := s.reconciler.Load(ctx, line, id)
	if err != nil {
		return nil, err
	}
	merged, _, err := store.Merge(ctx, res.Record)
	if err != nil {
		if errors.Is(err, domain.ErrStorageUnavailable) {
			return res.Record, nil
		}
		return nil, err
	}
	return merged, nil
}

func (s *Service) apply(ctx context.Context, lineName, id string, slot domain.SlotKey, t Transition) (*View, error) {
	gs, err := s.gate(ctx, lineName, id, slot)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, gs, t)
}

func (s *Service) transition(ctx context.Context, gs *gateState, t Transition) (*View, error) {
	if t.Now.IsZero() {
		t.Now = s.clock.Now()
	}
	from := State(gs.session)
	next, err := gs.machine.Apply(gs.session, gs.paid, t)
	if err != nil {
		return nil, err
	}
	if next == gs.session {
		return s.view(gs), nil
	}
	gs.session = next
	if err := s.saveSession(ctx, gs); err != nil {
		return nil, err
	}
	if to := State(next); to != from {
		s.metrics.RecordGateTransition(ctx, gs.line.Name, string(from), string(to))
	}
	return s.view(gs), nil
}

func (s *Service) saveSession(ctx context.Context, gs *gateState) error {
	rec, err := gs.store.Update(ctx, gs.rec.ID, domain.Patch{
		Gates: map[domain.SlotKey]domain.GateSession{gs.slot: gs.session},
	})
	if err != nil {
		return err
	}
	gs.rec = rec
	return nil
}

// price returns the list price of the slot, the retention price while the
// retention offer is active.
func (s *Service) price(gs *gateState) (price, original int64, discounted bool) {
	original = gs.cfg.OriginalPrice
	if gs.session.RetentionActive && gs.cfg.DiscountPrice > 0 {
		return gs.cfg.DiscountPrice, original, true
	}
	return gs.cfg.Price, original, false
}

func applyDiscount(price, discount, minimum int64) int64 {
	out := price - discount
	if out < minimum {
		out = minimum
	}
	return out
}

func (s *Service) view(gs *gateState) *View {
	price, original, _ := s.price(gs)
	v := &View{
		RecordID:         gs.rec.ID,
		ProductLine:      gs.line.Name,
		Slot:             gs.slot,
		State:            State(gs.session),
		Rendering:        Render(gs.session, gs.paid),
		Price:            price,
		OriginalPrice:    original,
		Retention:        gs.session.RetentionActive,
		CouponCode:       gs.session.CouponCode,
		Retry:            gs.session.WidgetFailed,
		OrderID:          gs.session.OrderID,
		RetentionOffered: gs.session.RetentionOffered,
	}
	if gs.paid {
		v.State = domain.GatePaid
		if slot, ok := gs.rec.Slot(gs.slot); ok && slot.PurchasedAt != nil {
			v.PurchasedAt = formatTime(*slot.PurchasedAt)
		}
	}
	if v.Retry {
		v.RetryMessage = widgetRetryMessage
	}
	if gs.session.TeaserStartedAt != nil && !gs.paid {
		v.TeaserEndsAt = formatTime(gs.session.TeaserStartedAt.Add(gs.machine.Timing.Teaser))
	}
	if gs.session.RetentionDueAt != nil && !gs.paid {
		v.RetentionDueAt = formatTime(*gs.session.RetentionDueAt)
	}
	return v
}

func (s *Service) redirectURL(path, kind, id string) string {
	q := url.Values{}
	q.Set("type", kind)
	q.Set("id", id)
	return s.publicURL + path + "?" + q.Encode()
}
