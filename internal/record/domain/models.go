package domain

import (
	"encoding/json"
	"time"
)

// CurrentSchemaVersion is stamped on every record written by this package.
const CurrentSchemaVersion = 2

// AnalysisLeaseTimeout bounds how long an in-flight analysis marker is
// honoured before another caller may start the analysis again.
const AnalysisLeaseTimeout = 5 * time.Minute

type SlotKey string

type PaymentMethod string

const (
	PaymentMethodGateway PaymentMethod = "gateway"
	PaymentMethodCoupon  PaymentMethod = "coupon"
)

type GateState string

const (
	GateLocked                 GateState = "locked"
	GateTeaserShown            GateState = "teaser_shown"
	GatePaywallOpen            GateState = "paywall_open"
	GateGatewayRedirectPending GateState = "gateway_redirect_pending"
	GatePaid                   GateState = "paid"
)

// AnalysisRecord is one user session's input, external output and payment
// state for a single product line.
type AnalysisRecord struct {
	SchemaVersion     int                     `json:"schemaVersion"`
	ID                string                  `json:"id"`
	ProductLine       string                  `json:"productLine"`
	CreatedAt         time.Time               `json:"createdAt"`
	UpdatedAt         time.Time               `json:"updatedAt"`
	Input             Input                   `json:"input"`
	RawExternalResult json.RawMessage         `json:"rawExternalResult"`
	Reports           map[SlotKey]ReportSlot  `json:"reports"`
	Paid              bool                    `json:"paid"`
	PaymentInfo       *PaymentInfo            `json:"paymentInfo,omitempty"`
	Attribution       *Attribution            `json:"attribution,omitempty"`
	SeenIntro         bool                    `json:"seenIntro"`
	Analyzing         bool                    `json:"isAnalyzing"`
	AnalysisStartedAt *time.Time              `json:"analysisStartedAt,omitempty"`
	Gates             map[SlotKey]GateSession `json:"gates,omitempty"`
}

type ReportSlot struct {
	Paid        bool            `json:"paid"`
	Data        json.RawMessage `json:"data"`
	PurchasedAt *time.Time      `json:"purchasedAt,omitempty"`
}

func (s ReportSlot) HasData() bool {
	return hasJSON(s.Data)
}

type Input struct {
	UserName    string         `json:"userName,omitempty"`
	Gender      string         `json:"gender,omitempty"`
	Date        string         `json:"date,omitempty"`
	Time        string         `json:"time,omitempty"`
	Calendar    string         `json:"calendar,omitempty"`
	IsLeapMonth bool           `json:"isLeapMonth,omitempty"`
	UserConcern string         `json:"userConcern,omitempty"`
	Status      string         `json:"status,omitempty"`
	ImageRef    string         `json:"imageRef,omitempty"`
	Partner     *Input         `json:"partner,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

func (i Input) IsZero() bool {
	b, _ := json.Marshal(i)
	return string(b) == "{}"
}

func (i Input) Equal(other Input) bool {
	a, _ := json.Marshal(i)
	b, _ := json.Marshal(other)
	return string(a) == string(b)
}

type PaymentInfo struct {
	Method     PaymentMethod `json:"method"`
	Price      int64         `json:"price"`
	CouponCode string        `json:"couponCode,omitempty"`
	IsDiscount bool          `json:"isDiscount,omitempty"`
	OrderID    string        `json:"orderId,omitempty"`
	PaymentKey string        `json:"paymentKey,omitempty"`
}

type Attribution struct {
	UTMSource    string `json:"utmSource,omitempty"`
	UTMMedium    string `json:"utmMedium,omitempty"`
	UTMCampaign  string `json:"utmCampaign,omitempty"`
	InfluencerID string `json:"influencerId,omitempty"`
}

// GateSession is the per-slot paywall progress kept next to the record.
// It is local state and is never mirrored to the remote store.
type GateSession struct {
	State            GateState  `json:"state"`
	TeaserStartedAt  *time.Time `json:"teaserStartedAt,omitempty"`
	RetentionDueAt   *time.Time `json:"retentionDueAt,omitempty"`
	RetentionOffered bool       `json:"retentionOffered,omitempty"`
	RetentionActive  bool       `json:"retentionActive,omitempty"`
	WidgetFailed     bool       `json:"widgetFailed,omitempty"`
	CouponCode       string     `json:"couponCode,omitempty"`
	OrderID          string     `json:"orderId,omitempty"`
}

func (r *AnalysisRecord) Slot(key SlotKey) (ReportSlot, bool) {
	s, ok := r.Reports[key]
	return s, ok
}

func (r *AnalysisRecord) PaidSlots() []SlotKey {
	out := make([]SlotKey, 0, len(r.Reports))
	for k, s := range r.Reports {
		if s.Paid {
			out = append(out, k)
		}
	}
	return out
}

func (r *AnalysisRecord) AnyPaid() bool {
	for _, s := range r.Reports {
		if s.Paid {
			return true
		}
	}
	return false
}

func (r *AnalysisRecord) HasAnalysis() bool {
	if hasJSON(r.RawExternalResult) {
		return true
	}
	for _, s := range r.Reports {
		if s.HasData() {
			return true
		}
	}
	return false
}

// AnalysisInFlight reports whether another caller holds the analysis marker.
func (r *AnalysisRecord) AnalysisInFlight(now time.Time) bool {
	if !r.Analyzing || r.AnalysisStartedAt == nil {
		return false
	}
	return now.Sub(*r.AnalysisStartedAt) < AnalysisLeaseTimeout
}

// Clone returns a copy that shares no maps with r.
func (r *AnalysisRecord) Clone() *AnalysisRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.RawExternalResult = cloneRaw(r.RawExternalResult)
	out.Reports = make(map[SlotKey]ReportSlot, len(r.Reports))
	for k, s := range r.Reports {
		s.Data = cloneRaw(s.Data)
		if s.PurchasedAt != nil {
			t := *s.PurchasedAt
			s.PurchasedAt = &t
		}
		out.Reports[k] = s
	}
	if r.PaymentInfo != nil {
		info := *r.PaymentInfo
		out.PaymentInfo = &info
	}
	if r.Attribution != nil {
		a := *r.Attribution
		out.Attribution = &a
	}
	if r.AnalysisStartedAt != nil {
		t := *r.AnalysisStartedAt
		out.AnalysisStartedAt = &t
	}
	if r.Gates != nil {
		out.Gates = make(map[SlotKey]GateSession, len(r.Gates))
		for k, g := range r.Gates {
			out.Gates[k] = g
		}
	}
	return &out
}

func hasJSON(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	return string(raw) != "null"
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if !hasJSON(raw) {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
